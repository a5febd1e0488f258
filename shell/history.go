package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultHistorySize caps the history when no size is configured.
const DefaultHistorySize = 1000

// History is a capped FIFO of executed command lines. Entries are
// trimmed; empty entries and consecutive duplicates are dropped. A
// navigation cursor supports previous/next recall and snaps back past
// the end on every Add.
type History struct {
	mu      sync.Mutex
	entries []string
	cap     int
	cursor  int
	path    string
}

// NewHistory returns a history persisted at path (empty disables
// persistence) holding at most capacity entries.
func NewHistory(path string, capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistorySize
	}
	return &History{cap: capacity, path: path}
}

// Add appends an entry, trimming whitespace, dropping empties and
// immediate duplicates, and evicting the oldest past capacity.
func (h *History) Add(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.entries); n > 0 && h.entries[n-1] == entry {
		h.cursor = len(h.entries)
		return
	}

	h.entries = append(h.entries, entry)
	if len(h.entries) > h.cap {
		h.entries = h.entries[len(h.entries)-h.cap:]
	}
	h.cursor = len(h.entries)
}

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Last returns the most recent entry.
func (h *History) Last() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return "", false
	}
	return h.entries[len(h.entries)-1], true
}

// Previous moves the cursor one entry back, clamped at the oldest.
func (h *History) Previous() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return "", false
	}
	if h.cursor > 0 {
		h.cursor--
	}
	return h.entries[h.cursor], true
}

// Next moves the cursor one entry forward. Past the newest entry it
// reports no value, matching the empty prompt line readline shows.
func (h *History) Next() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor < len(h.entries) {
		h.cursor++
	}
	if h.cursor >= len(h.entries) {
		return "", false
	}
	return h.entries[h.cursor], true
}

// Clear removes all entries.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	h.cursor = 0
}

// Save writes the history file with owner-only permissions, creating
// the directory if needed. The write goes through a temp file and
// rename so a crash cannot truncate existing history.
func (h *History) Save() error {
	if h.path == "" {
		return nil
	}

	h.mu.Lock()
	data := strings.Join(h.entries, "\n")
	if data != "" {
		data += "\n"
	}
	h.mu.Unlock()

	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0600); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename history file: %w", err)
	}
	return nil
}

// Load reads the history file, collapsing consecutive duplicates and
// truncating to capacity. A missing file is not an error.
func (h *History) Load() error {
	if h.path == "" {
		return nil
	}

	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read history file: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = nil
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if n := len(h.entries); n > 0 && h.entries[n-1] == line {
			continue
		}
		h.entries = append(h.entries, line)
	}
	if len(h.entries) > h.cap {
		h.entries = h.entries[len(h.entries)-h.cap:]
	}
	h.cursor = len(h.entries)
	return nil
}
