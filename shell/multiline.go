package shell

import "strings"

// MultiLine assembles commands spread over several input lines. A line
// whose trimmed text ends with a backslash keeps the buffer open; the
// first line without one completes the command. An empty line while
// the buffer is open discards it.
type MultiLine struct {
	fragments []string
}

// Active reports whether a continuation is in progress.
func (m *MultiLine) Active() bool {
	return len(m.fragments) > 0
}

// Feed consumes one input line. When the line completes a command it
// returns the command joined with single spaces, the same text joined
// with newlines (preserving the multi-line shape for Raw), and true.
func (m *MultiLine) Feed(line string) (cmd, raw string, complete bool) {
	trimmed := strings.TrimSpace(line)

	if m.Active() && trimmed == "" {
		m.Reset()
		return "", "", false
	}

	if strings.HasSuffix(trimmed, `\`) {
		m.fragments = append(m.fragments, strings.TrimSpace(trimmed[:len(trimmed)-1]))
		return "", "", false
	}

	m.fragments = append(m.fragments, trimmed)
	cmd = strings.Join(m.fragments, " ")
	raw = strings.Join(m.fragments, "\n")
	m.fragments = nil
	return cmd, raw, true
}

// Reset discards the buffer and exits multi-line mode.
func (m *MultiLine) Reset() {
	m.fragments = nil
}
