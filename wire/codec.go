package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/standardbeagle/conch/command"
)

// MaxLineBytes bounds a single frame. A peer writing a longer line is
// misbehaving; the decoder reports a ProtocolError instead of growing
// its buffer without limit.
const MaxLineBytes = 1 << 20

const readChunkSize = 4096

// ProtocolError reports a malformed frame. Line holds the offending
// input, truncated for display.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid message format: %s (%s)", truncateLine(e.Line), e.Reason)
}

func truncateLine(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// Encoder writes frames as newline-delimited JSON. Safe for concurrent
// use; each frame is written with a single Write call so lines never
// interleave.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(data)
	return err
}

// WriteCommand writes a command frame.
func (e *Encoder) WriteCommand(cmd command.ParsedCommand) error {
	return e.encode(commandFrame{
		Type:      TypeCommand,
		Command:   cmd.Command,
		Arguments: cmd.Arguments,
		Options:   cmd.Options,
		Raw:       cmd.Raw,
		Vertical:  cmd.HasVerticalTerminator,
	})
}

// WritePing writes a ping frame.
func (e *Encoder) WritePing() error {
	return e.encode(pingFrame{Type: TypePing})
}

// WriteSubscribe writes a subscribe frame. An empty topic subscribes to
// everything; rule is an optional server-side SELECT rule.
func (e *Encoder) WriteSubscribe(topic, rule string) error {
	return e.encode(subscribeFrame{Type: TypeSubscribe, Topic: topic, Rule: rule})
}

// WriteUnsubscribe writes an unsubscribe frame.
func (e *Encoder) WriteUnsubscribe(topic string) error {
	return e.encode(subscribeFrame{Type: TypeUnsubscribe, Topic: topic})
}

// WriteResult writes a command result as a response frame.
func (e *Encoder) WriteResult(res command.Result) error {
	return e.encode(responseFrame{Type: TypeResponse, Result: res})
}

// WriteMessage writes a pushed message frame.
func (e *Encoder) WriteMessage(msg command.Message) error {
	return e.encode(newMessageFrame(msg))
}

// WriteWelcome writes the greeting frame a server sends on connect.
func (e *Encoder) WriteWelcome(message string, data map[string]any) error {
	return e.encode(welcomeFrame{Type: TypeWelcome, Message: message, Data: data})
}

// Decoder reads newline-delimited frames. Partial lines are buffered
// across reads, so a decoder survives read deadlines: a timed-out Next
// returns the deadline error and a later call resumes mid-line.
type Decoder struct {
	r   io.Reader
	buf []byte
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next reads one frame. It returns io.EOF when the stream ends cleanly,
// a *ProtocolError for an unparseable or oversized line, and the
// underlying read error otherwise. Empty lines are skipped.
func (d *Decoder) Next() (Frame, error) {
	for {
		if i := bytes.IndexByte(d.buf, '\n'); i >= 0 {
			line := bytes.TrimSpace(d.buf[:i])
			d.buf = d.buf[i+1:]
			if len(line) == 0 {
				continue
			}
			return ParseFrame(line)
		}

		if len(d.buf) > MaxLineBytes {
			line := d.buf
			d.buf = nil
			return Frame{}, &ProtocolError{Line: string(line[:64]), Reason: "line exceeds 1 MiB"}
		}

		chunk := make([]byte, readChunkSize)
		n, err := d.r.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)
		}
		if err != nil {
			if n > 0 && bytes.IndexByte(d.buf, '\n') >= 0 {
				continue
			}
			return Frame{}, err
		}
	}
}

// ParseFrame decodes one line into a classified frame. A frame without
// a type field but with a "success" key is treated as a response.
func ParseFrame(line []byte) (Frame, error) {
	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		return Frame{}, &ProtocolError{Line: string(line), Reason: err.Error()}
	}

	frameType, _ := fields["type"].(string)
	if frameType == "" {
		if _, ok := fields["success"]; ok {
			frameType = TypeResponse
		} else {
			return Frame{}, &ProtocolError{Line: string(line), Reason: "missing type field"}
		}
	}

	return Frame{Type: frameType, Fields: fields}, nil
}
