package command

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Handler executes one command. Handlers report failure through the
// result, not through panics; a panicking handler is recovered by the
// registry and converted into a failed result.
type Handler interface {
	Execute(ctx context.Context, cmd ParsedCommand) Result
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, cmd ParsedCommand) Result

// Execute calls the function.
func (f HandlerFunc) Execute(ctx context.Context, cmd ParsedCommand) Result {
	return f(ctx, cmd)
}

// UnknownCommandError reports a command name with no registered
// handler, along with the names that are registered.
type UnknownCommandError struct {
	Name      string
	Available []string
}

func (e *UnknownCommandError) Error() string {
	return "unknown command: " + e.Name
}

// Info describes a registered command for help listings.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Registry dispatches commands to handlers by name. Names are
// case-insensitive. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
	fallback Handler
}

type registration struct {
	description string
	handler     Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register binds a handler to a command name, replacing any previous
// binding for that name.
func (r *Registry) Register(name, description string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(name)] = registration{description: description, handler: h}
}

// RegisterFunc binds a plain function to a command name.
func (r *Registry) RegisterFunc(name, description string, fn HandlerFunc) {
	r.Register(name, description, fn)
}

// SetFallback installs a handler for command names with no binding.
// Pass nil to restore the default unknown-command failure.
func (r *Registry) SetFallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Has reports whether a handler is bound to the name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[strings.ToLower(name)]
	return ok
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Commands returns name/description pairs for help output, sorted by
// name.
func (r *Registry) Commands() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.handlers))
	for name, reg := range r.handlers {
		infos = append(infos, Info{Name: name, Description: reg.description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Execute dispatches the command to its handler. An unknown name goes
// to the fallback handler when one is set; otherwise it produces a
// failed result whose metadata lists the available commands under
// "available_commands". Execute never panics.
func (r *Registry) Execute(ctx context.Context, cmd ParsedCommand) (result Result) {
	name := strings.ToLower(cmd.Command)

	r.mu.RLock()
	reg, ok := r.handlers[name]
	fallback := r.fallback
	r.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			result = Failf("command %q panicked: %v", name, p)
		}
	}()

	if ok {
		return reg.handler.Execute(ctx, cmd)
	}
	if fallback != nil {
		return fallback.Execute(ctx, cmd)
	}

	err := &UnknownCommandError{Name: name, Available: r.Names()}
	return FromError(err).WithMeta("available_commands", err.Available)
}
