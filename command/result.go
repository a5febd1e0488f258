package command

import (
	"fmt"
	"time"
)

// Result is the outcome of executing a command. A failed result always
// carries a non-empty Error; the constructors below enforce that.
type Result struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// OK returns a successful result carrying data.
func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// OKMsg returns a successful result with a human-readable message and
// no data.
func OKMsg(message string) Result {
	return Result{Success: true, Message: message}
}

// Fail returns a failed result. An empty error string is replaced with
// "unknown error" so the failure invariant holds.
func Fail(errMsg string) Result {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	return Result{Success: false, Error: errMsg}
}

// Failf returns a failed result with a formatted error.
func Failf(format string, args ...any) Result {
	return Fail(fmt.Sprintf(format, args...))
}

// FromError converts an error into a failed result.
func FromError(err error) Result {
	if err == nil {
		return Fail("")
	}
	return Fail(err.Error())
}

// WithMeta returns a copy of the result with one metadata key set.
func (r Result) WithMeta(key string, value any) Result {
	meta := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta[key] = value
	r.Metadata = meta
	return r
}

// WithDuration records the execution duration under the duration_ms
// metadata key, which the vertical formatter renders as a row summary.
func (r Result) WithDuration(d time.Duration) Result {
	return r.WithMeta("duration_ms", float64(d)/float64(time.Millisecond))
}

// Failed reports whether the result is a failure.
func (r Result) Failed() bool {
	return !r.Success
}
