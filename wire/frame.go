// Package wire defines the newline-delimited JSON protocol spoken
// between the shell transports and the command server. Every line is
// one JSON object carrying a "type" field:
//
//	{"type":"command","command":"status","arguments":[],"raw":"status"}
//	{"type":"ping"}
//	{"type":"subscribe","topic":"sensor/temperature"}
//	{"type":"response","success":true,"data":{...}}
//	{"type":"message","message_type":"data","payload":{...},"source":"sensor-1"}
//
// Responses may omit the type field; a frame with a "success" key is
// treated as a response for compatibility with terse servers.
package wire

import (
	"fmt"
	"time"

	"github.com/standardbeagle/conch/command"
)

// Frame type names.
const (
	TypeCommand     = "command"
	TypePing        = "ping"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeResponse    = "response"
	TypeMessage     = "message"
	TypeWelcome     = "welcome"
)

// Frame is one decoded line: its classified type plus the raw object.
type Frame struct {
	Type   string
	Fields map[string]any
}

// AsCommand extracts the parsed command a "command" frame carries.
func (f Frame) AsCommand() (command.ParsedCommand, error) {
	name, _ := f.Fields["command"].(string)
	if name == "" {
		return command.ParsedCommand{}, fmt.Errorf("command frame missing command name")
	}

	cmd := command.ParsedCommand{Command: name}

	if raw, ok := f.Fields["raw"].(string); ok {
		cmd.Raw = raw
	}
	if args, ok := f.Fields["arguments"].([]any); ok {
		for _, a := range args {
			if s, ok := a.(string); ok {
				cmd.Arguments = append(cmd.Arguments, s)
			}
		}
	}
	if opts, ok := f.Fields["options"].(map[string]any); ok && len(opts) > 0 {
		cmd.Options = make(map[string]string, len(opts))
		for k, v := range opts {
			if s, ok := v.(string); ok {
				cmd.Options[k] = s
			}
		}
	}
	if v, ok := f.Fields["vertical"].(bool); ok {
		cmd.HasVerticalTerminator = v
	}
	return cmd, nil
}

// AsResult extracts the command result a response frame carries.
func (f Frame) AsResult() command.Result {
	res := command.Result{}
	res.Success, _ = f.Fields["success"].(bool)
	res.Data = f.Fields["data"]
	res.Error, _ = f.Fields["error"].(string)
	res.Message, _ = f.Fields["message"].(string)
	if meta, ok := f.Fields["metadata"].(map[string]any); ok {
		res.Metadata = meta
	}
	if !res.Success && res.Error == "" {
		res.Error = "unknown error"
	}
	return res
}

// AsMessage extracts the pushed message a "message" frame carries.
// The frame's message_type becomes the message's type; the envelope's
// own type field never leaks through.
func (f Frame) AsMessage() command.Message {
	m := make(map[string]any, len(f.Fields))
	for k, v := range f.Fields {
		m[k] = v
	}
	if mt, ok := m["message_type"]; ok {
		m["type"] = mt
	} else {
		delete(m, "type")
	}
	return command.MessageFromMap(m)
}

// Topic returns the topic of a subscribe/unsubscribe frame.
func (f Frame) Topic() string {
	topic, _ := f.Fields["topic"].(string)
	return topic
}

// Rule returns the optional server-side rule of a subscribe frame.
func (f Frame) Rule() string {
	rule, _ := f.Fields["rule"].(string)
	return rule
}

// Wire shapes for the encoder.

type commandFrame struct {
	Type      string            `json:"type"`
	Command   string            `json:"command"`
	Arguments []string          `json:"arguments,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
	Raw       string            `json:"raw,omitempty"`
	Vertical  bool              `json:"vertical,omitempty"`
}

type pingFrame struct {
	Type string `json:"type"`
}

type subscribeFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Rule  string `json:"rule,omitempty"`
}

type responseFrame struct {
	Type string `json:"type"`
	command.Result
}

type messageFrame struct {
	Type        string         `json:"type"`
	MessageType string         `json:"message_type"`
	Payload     any            `json:"payload,omitempty"`
	Source      string         `json:"source"`
	Timestamp   string         `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type welcomeFrame struct {
	Type    string         `json:"type"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// ResponseEnvelope returns the wire shape of a response frame, for
// codecs that frame their own lines (WebSocket, HTTP bodies).
func ResponseEnvelope(res command.Result) any {
	return responseFrame{Type: TypeResponse, Result: res}
}

// MessageEnvelope returns the wire shape of a pushed message frame.
func MessageEnvelope(msg command.Message) any {
	return newMessageFrame(msg)
}

// WelcomeEnvelope returns the wire shape of a welcome frame.
func WelcomeEnvelope(message string, data map[string]any) any {
	return welcomeFrame{Type: TypeWelcome, Message: message, Data: data}
}

func newMessageFrame(msg command.Message) messageFrame {
	return messageFrame{
		Type:        TypeMessage,
		MessageType: msg.Type,
		Payload:     msg.Payload,
		Source:      msg.Source,
		Timestamp:   msg.Timestamp.Format(time.RFC3339Nano),
		Metadata:    msg.Metadata,
	}
}
