package filter

import (
	"github.com/standardbeagle/conch/command"
)

// MessageContext flattens a message into the record shape conditions
// evaluate against. Metadata keys come first, then map-payload keys,
// then the core fields, so the core fields always win a collision.
// The timestamp is exposed as unix seconds to line up with the time
// macros.
func MessageContext(msg command.Message) map[string]any {
	record := make(map[string]any, len(msg.Metadata)+6)

	for k, v := range msg.Metadata {
		record[k] = v
	}
	if payload, ok := msg.Payload.(map[string]any); ok {
		for k, v := range payload {
			record[k] = v
		}
	}

	record["type"] = msg.Type
	record["payload"] = msg.Payload
	record["source"] = msg.Source
	record["timestamp"] = float64(msg.Timestamp.Unix())

	return record
}

// MessageTopic extracts the topic of a message: the "topic" metadata
// key, falling back to "channel", else "".
func MessageTopic(msg command.Message) string {
	if msg.Metadata == nil {
		return ""
	}
	if topic, ok := msg.Metadata["topic"].(string); ok && topic != "" {
		return topic
	}
	if channel, ok := msg.Metadata["channel"].(string); ok {
		return channel
	}
	return ""
}
