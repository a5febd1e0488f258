package shell

import (
	"fmt"
	"io"
	"sync"
)

// Output serialises writes to the shell's output stream so prompt
// lines and asynchronously received messages never tear mid-line. The
// input and receive tasks may still interleave whole lines; that is
// allowed.
type Output struct {
	mu sync.Mutex
	w  io.Writer
}

// NewOutput wraps w in a mutex-guarded writer.
func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

// Print writes s as-is.
func (o *Output) Print(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprint(o.w, s)
}

// Println writes s followed by a newline.
func (o *Output) Println(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.w, s)
}

// Printf writes a formatted string.
func (o *Output) Printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, format, args...)
}
