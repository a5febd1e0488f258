// Package command defines the command model shared by the shell, the
// transports, and the server: the parsed form of a command line, the
// result of executing one, pushed messages, and the handler registry
// that dispatches commands by name.
package command

import (
	"strings"
	"unicode"
)

// ParsedCommand is the structured form of one command line.
type ParsedCommand struct {
	// Command is the head token exactly as typed. Empty for blank
	// input. Name matching is case-insensitive at dispatch (the
	// registry and the shell builtins lowercase on lookup), never here.
	Command string `json:"command"`

	// Arguments are the positional tokens after the command name.
	Arguments []string `json:"arguments,omitempty"`

	// Options holds --key=value, --flag, and -f tokens (flags map to
	// "true").
	Options map[string]string `json:"options,omitempty"`

	// Raw is the input with surrounding whitespace and any trailing
	// terminator (";" or "\G") removed. Multi-line input keeps its
	// embedded newlines.
	Raw string `json:"raw"`

	// HasVerticalTerminator reports that the line ended with \G,
	// requesting vertical output for this command only.
	HasVerticalTerminator bool `json:"has_vertical_terminator,omitempty"`
}

// Empty reports whether the line contained no command.
func (p ParsedCommand) Empty() bool {
	return p.Command == ""
}

// Option returns the value of a named option, or "" when absent.
func (p ParsedCommand) Option(name string) string {
	return p.Options[name]
}

// HasOption reports whether the option was present on the line.
func (p ParsedCommand) HasOption(name string) bool {
	_, ok := p.Options[name]
	return ok
}

// Parse splits a command line into a ParsedCommand. It is total: any
// input produces a value, never an error.
//
// Tokens split on whitespace outside quotes. Single and double quotes
// group and are stripped. Outside quotes a backslash escapes the next
// rune; inside double quotes \", \\, \n, \t, and \r are honoured and
// any other backslash stays literal; single quotes take everything
// literally. An unterminated quote consumes the rest of the line.
//
// After the command name, tokens of the form --key=value, --flag, or
// -f populate Options (flags map to "true"). A bare "--" ends option
// parsing; everything after it is positional.
func Parse(line string) ParsedCommand {
	raw, vertical := trimTerminators(line)

	parsed := ParsedCommand{
		Raw:                   raw,
		HasVerticalTerminator: vertical,
	}

	tokens := tokenize(raw)
	if len(tokens) == 0 {
		return parsed
	}

	parsed.Command = tokens[0]

	optionsDone := false
	for _, tok := range tokens[1:] {
		switch {
		case !optionsDone && tok == "--":
			optionsDone = true

		case !optionsDone && len(tok) > 2 && strings.HasPrefix(tok, "--"):
			key, value, found := strings.Cut(tok[2:], "=")
			if !found {
				value = "true"
			}
			if parsed.Options == nil {
				parsed.Options = make(map[string]string)
			}
			parsed.Options[key] = value

		case !optionsDone && len(tok) == 2 && tok[0] == '-' && isFlagRune(rune(tok[1])):
			if parsed.Options == nil {
				parsed.Options = make(map[string]string)
			}
			parsed.Options[tok[1:]] = "true"

		default:
			parsed.Arguments = append(parsed.Arguments, tok)
		}
	}

	return parsed
}

// isFlagRune limits short flags to letters so a bare "-1" stays a
// positional argument.
func isFlagRune(r rune) bool {
	return unicode.IsLetter(r)
}

// trimTerminators strips surrounding whitespace and any trailing ";"
// or "\G" terminators, reporting whether a \G was seen.
func trimTerminators(line string) (string, bool) {
	s := strings.TrimSpace(line)
	vertical := false
	for {
		switch {
		case strings.HasSuffix(s, `\G`):
			vertical = true
			s = strings.TrimRight(s[:len(s)-2], " \t")
		case strings.HasSuffix(s, ";"):
			s = strings.TrimRight(s[:len(s)-1], " \t")
		default:
			return s, vertical
		}
	}
}

// tokenize splits on whitespace honoring quotes and escapes.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder

	inToken := false
	escaped := false
	var quote rune

	flush := func() {
		if inToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	for _, r := range s {
		switch {
		case escaped:
			if quote == '"' {
				cur.WriteString(dquoteEscape(r))
			} else {
				cur.WriteRune(r)
			}
			inToken = true
			escaped = false

		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}

		case quote == '"':
			switch r {
			case '\\':
				escaped = true
			case '"':
				quote = 0
			default:
				cur.WriteRune(r)
			}

		case r == '\\':
			escaped = true
			inToken = true

		case r == '\'' || r == '"':
			quote = r
			inToken = true

		case unicode.IsSpace(r):
			flush()

		default:
			cur.WriteRune(r)
			inToken = true
		}
	}

	if escaped {
		// Trailing backslash with nothing to escape stays literal.
		cur.WriteByte('\\')
	}
	flush()

	return tokens
}

// dquoteEscape resolves a backslash escape inside double quotes. Only
// the documented set is translated; anything else keeps its backslash.
func dquoteEscape(r rune) string {
	switch r {
	case '"', '\\':
		return string(r)
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	}
	return `\` + string(r)
}
