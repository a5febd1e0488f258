package command

import (
	"encoding/json"
	"time"
)

// Message is a server-pushed event delivered over a streaming
// transport.
type Message struct {
	// Type classifies the message: "data", "system", "error", or a
	// caller-defined kind. Defaults to "unknown".
	Type string `json:"type"`

	// Payload is the message body. May be any JSON-representable value.
	Payload any `json:"payload,omitempty"`

	// Source names the origin. Defaults to "unknown".
	Source string `json:"source"`

	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage builds a message applying the type/source defaults and
// stamping the current time.
func NewMessage(msgType string, payload any, source string) Message {
	if msgType == "" {
		msgType = "unknown"
	}
	if source == "" {
		source = "unknown"
	}
	return Message{
		Type:      msgType,
		Payload:   payload,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// DataMessage builds a "data" message.
func DataMessage(payload any, source string) Message {
	return NewMessage("data", payload, source)
}

// SystemMessage builds a "system" message with a text payload.
func SystemMessage(text string) Message {
	return NewMessage("system", text, "system")
}

// ErrorMessage builds an "error" message from an error.
func ErrorMessage(err error) Message {
	text := "unknown error"
	if err != nil {
		text = err.Error()
	}
	return NewMessage("error", text, "system")
}

// MessageFromMap decodes a generic JSON object into a Message. It
// never fails: missing type and source fall back to "unknown", the
// payload falls back to a "data" key, and an absent or unparseable
// timestamp becomes the current time.
func MessageFromMap(m map[string]any) Message {
	msg := Message{
		Type:      "unknown",
		Source:    "unknown",
		Timestamp: time.Now(),
	}

	if t, ok := m["type"].(string); ok && t != "" {
		msg.Type = t
	}
	if s, ok := m["source"].(string); ok && s != "" {
		msg.Source = s
	}

	if payload, ok := m["payload"]; ok {
		msg.Payload = payload
	} else if data, ok := m["data"]; ok {
		msg.Payload = data
	}

	if ts, ok := parseTimestamp(m["timestamp"]); ok {
		msg.Timestamp = ts
	}

	if meta, ok := m["metadata"].(map[string]any); ok {
		msg.Metadata = meta
	}

	return msg
}

// parseTimestamp accepts the timestamp shapes seen on the wire:
// RFC 3339 strings, unix seconds as a JSON number, and time.Time for
// in-process messages.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
	case float64:
		if t > 0 {
			sec := int64(t)
			nsec := int64((t - float64(sec)) * float64(time.Second))
			return time.Unix(sec, nsec), true
		}
	case int64:
		if t > 0 {
			return time.Unix(t, 0), true
		}
	case json.Number:
		if f, err := t.Float64(); err == nil && f > 0 {
			sec := int64(f)
			return time.Unix(sec, 0), true
		}
	}
	return time.Time{}, false
}
