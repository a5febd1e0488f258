package server

import (
	"context"
	"strconv"
	"strings"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/format"
)

// registerBuiltins installs the handlers every conch server carries.
func (s *Server) registerBuiltins() {
	s.registry.RegisterFunc("ping", "liveness check", s.handlePing)
	s.registry.RegisterFunc("echo", "echo arguments back", s.handleEcho)
	s.registry.RegisterFunc("status", "server status and counters", s.handleStatus)
	s.registry.RegisterFunc("history", "recent published messages", s.handleHistory)
	s.registry.RegisterFunc("publish", "publish a message to a topic", s.handlePublish)
	s.registry.RegisterFunc("commands", "list available commands", s.handleCommands)
}

func (s *Server) handlePing(ctx context.Context, cmd command.ParsedCommand) command.Result {
	return command.OKMsg("pong")
}

// handleEcho returns the arguments joined, or the raw tail when quoting
// should survive.
func (s *Server) handleEcho(ctx context.Context, cmd command.ParsedCommand) command.Result {
	return command.OK(map[string]any{
		"echo": strings.Join(cmd.Arguments, " "),
	})
}

func (s *Server) handleStatus(ctx context.Context, cmd command.ParsedCommand) command.Result {
	return command.OK(s.Info())
}

// handleHistory returns recent published messages, newest last.
// `history 10` limits the count; `history --topic=sensor/temperature`
// filters by topic.
func (s *Server) handleHistory(ctx context.Context, cmd command.ParsedCommand) command.Result {
	n := 0
	if len(cmd.Arguments) > 0 {
		parsed, err := strconv.Atoi(cmd.Arguments[0])
		if err != nil || parsed < 0 {
			return command.Failf("invalid count %q", cmd.Arguments[0])
		}
		n = parsed
	}
	topic := cmd.Option("topic")

	msgs := s.ring.Recent(0)
	rows := make([][]any, 0, len(msgs))
	for _, msg := range msgs {
		msgTopic := messageTopic(msg)
		if topic != "" && msgTopic != topic {
			continue
		}
		rows = append(rows, []any{
			msg.Timestamp.Format("15:04:05"),
			msg.Type,
			msg.Source,
			msgTopic,
			msg.Payload,
		})
	}
	if n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}

	return command.OK(format.TableData(
		[]string{"time", "type", "source", "topic", "payload"}, rows)).
		WithMeta("count", len(rows))
}

// handlePublish broadcasts `publish <topic> <payload...>`. A payload
// that parses as a number is published as one; everything else is the
// joined text.
func (s *Server) handlePublish(ctx context.Context, cmd command.ParsedCommand) command.Result {
	if len(cmd.Arguments) < 2 {
		return command.Fail("usage: publish <topic> <payload>")
	}
	topic := cmd.Arguments[0]
	text := strings.Join(cmd.Arguments[1:], " ")

	var payload any = text
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		payload = f
	}

	msgType := cmd.Option("type")
	if msgType == "" {
		msgType = "data"
	}
	source := cmd.Option("source")
	if source == "" {
		source = "publish"
	}

	msg := command.NewMessage(msgType, payload, source)
	msg.Metadata = map[string]any{"topic": topic}
	s.Publish(msg)

	return command.OKMsg("Published to " + topic)
}

func (s *Server) handleCommands(ctx context.Context, cmd command.ParsedCommand) command.Result {
	infos := s.registry.Commands()
	rows := make([][]any, len(infos))
	for i, info := range infos {
		rows[i] = []any{info.Name, info.Description}
	}
	return command.OK(format.TableData([]string{"command", "description"}, rows))
}

func messageTopic(msg command.Message) string {
	if msg.Metadata == nil {
		return ""
	}
	topic, _ := msg.Metadata["topic"].(string)
	return topic
}
