package shell

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Aliases maps short names to replacement text. Expansion substitutes
// at most once per line and never re-expands the result, so cyclic
// definitions cannot loop.
type Aliases struct {
	mu    sync.RWMutex
	table map[string]string
}

// NewAliases returns an alias table preloaded with the given entries.
func NewAliases(preload map[string]string) *Aliases {
	a := &Aliases{table: make(map[string]string, len(preload))}
	for name, value := range preload {
		a.table[name] = value
	}
	return a
}

// Set binds a name to its replacement.
func (a *Aliases) Set(name, value string) {
	a.mu.Lock()
	a.table[name] = value
	a.mu.Unlock()
}

// Remove deletes an alias, reporting whether it existed.
func (a *Aliases) Remove(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.table[name]
	delete(a.table, name)
	return ok
}

// Get returns the replacement for a name.
func (a *Aliases) Get(name string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	value, ok := a.table[name]
	return value, ok
}

// Has reports whether the name is aliased.
func (a *Aliases) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// Names returns the alias names, sorted.
func (a *Aliases) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.table))
	for name := range a.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of aliases.
func (a *Aliases) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.table)
}

// Expand replaces the line's head token when it exactly matches an
// alias, appending the remainder verbatim. Lines with no alias match
// come back unchanged.
func (a *Aliases) Expand(line string) string {
	head, rest := splitHead(line)
	if head == "" {
		return line
	}

	value, ok := a.Get(head)
	if !ok {
		return line
	}
	return value + rest
}

// splitHead splits off the leading whitespace-delimited token. rest
// keeps its leading separator so concatenation reproduces the tail
// byte for byte.
func splitHead(line string) (head, rest string) {
	s := strings.TrimLeftFunc(line, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}
