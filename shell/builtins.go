package shell

import (
	"context"
	"strings"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/format"
)

// builtinDoc describes one client-side command for help output.
type builtinDoc struct {
	name  string
	usage string
	desc  string
}

var builtinDocs = []builtinDoc{
	{"help", "help [command]", "show this help, or usage for one command"},
	{"exit", "exit", "leave the shell, saving session and history"},
	{"quit", "quit", "same as exit"},
	{"status", "status", "show transport endpoint, connection state, and session metrics"},
	{"clear", "clear", "clear the terminal"},
	{"history", "history", "show numbered command history"},
	{"alias", "alias [name='value']", "list aliases or define one"},
	{"unalias", "unalias <name>", "remove an alias"},
	{"format", "format [name]", "show or set the default output format"},
}

// runBuiltin executes client-side commands that never touch the
// transport. Returns false for anything that should be dispatched.
// Builtin names match case-insensitively; the parser keeps the head
// token as typed.
func (s *Shell) runBuiltin(ctx context.Context, cmd command.ParsedCommand) bool {
	switch strings.ToLower(cmd.Command) {
	case "help":
		s.builtinHelp(cmd)
	case "exit", "quit":
		s.out.Println("Bye")
		s.Stop()
	case "status":
		s.builtinStatus(cmd)
	case "clear":
		s.out.Print("\x1b[2J\x1b[H")
	case "history":
		s.builtinHistory()
	case "alias":
		s.builtinAlias(cmd)
	case "unalias":
		s.builtinUnalias(cmd)
	case "format":
		s.builtinFormat(cmd)
	default:
		return false
	}
	return true
}

func (s *Shell) builtinHelp(cmd command.ParsedCommand) {
	if len(cmd.Arguments) > 0 {
		name := strings.ToLower(cmd.Arguments[0])
		for _, doc := range builtinDocs {
			if doc.name == name {
				s.out.Printf("%s\n  usage: %s\n  %s\n", doc.name, doc.usage, doc.desc)
				return
			}
		}
		s.out.Printf("No local help for %q; it is sent to the server as-is.\n", name)
		return
	}

	s.out.Println("Built-in commands:")
	width := 0
	for _, doc := range builtinDocs {
		if len(doc.name) > width {
			width = len(doc.name)
		}
	}
	for _, doc := range builtinDocs {
		s.out.Printf("  %-*s  %s\n", width, doc.name, doc.desc)
	}
	s.out.Println("Anything else is sent to the server. Append \\G for vertical output.")
}

func (s *Shell) builtinStatus(cmd command.ParsedCommand) {
	data := map[string]any{
		"endpoint":  s.transport.Endpoint(),
		"connected": s.transport.IsConnected(),
	}
	for k, v := range s.transport.Info() {
		data[k] = v
	}
	for k, v := range s.session.Snapshot() {
		data[k] = v
	}
	s.renderResult(cmd, command.OK(data))
}

func (s *Shell) builtinHistory() {
	entries := s.history.Entries()
	if len(entries) == 0 {
		s.out.Println("History is empty")
		return
	}
	for i, entry := range entries {
		s.out.Printf("%4d  %s\n", i+1, entry)
	}
}

// builtinAlias handles both listing and definition. Definitions look
// like `alias ls='SHOW TABLES'`; the tokenizer has already stripped
// the quotes, so the value may continue across several arguments.
func (s *Shell) builtinAlias(cmd command.ParsedCommand) {
	if len(cmd.Arguments) == 0 {
		names := s.aliases.Names()
		if len(names) == 0 {
			s.out.Println("No aliases defined")
			return
		}
		for _, name := range names {
			value, _ := s.aliases.Get(name)
			s.out.Printf("alias %s='%s'\n", name, value)
		}
		return
	}

	name, value, found := strings.Cut(cmd.Arguments[0], "=")
	if !found || name == "" {
		s.out.Println("usage: alias name='value'")
		return
	}
	if len(cmd.Arguments) > 1 {
		value = strings.Join(append([]string{value}, cmd.Arguments[1:]...), " ")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		s.out.Println("usage: alias name='value'")
		return
	}
	s.aliases.Set(name, value)
	s.out.Printf("alias %s='%s'\n", name, value)
}

func (s *Shell) builtinUnalias(cmd command.ParsedCommand) {
	if len(cmd.Arguments) == 0 {
		s.out.Println("usage: unalias <name>")
		return
	}
	name := cmd.Arguments[0]
	if s.aliases.Remove(name) {
		s.out.Printf("Removed alias %s\n", name)
	} else {
		s.out.Printf("No such alias: %s\n", name)
	}
}

func (s *Shell) builtinFormat(cmd command.ParsedCommand) {
	if len(cmd.Arguments) == 0 {
		s.out.Printf("Current format: %s (valid: %s)\n",
			s.session.DefaultFormat(), strings.Join(format.Names(), ", "))
		return
	}
	name := strings.ToLower(cmd.Arguments[0])
	if !format.Valid(name) {
		s.out.Printf("Unknown format %q (valid: %s)\n", name, strings.Join(format.Names(), ", "))
		return
	}
	s.session.Set("default_format", name)
	s.out.Printf("Default format set to %s\n", name)
}
