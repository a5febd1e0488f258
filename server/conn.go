package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/wire"
)

// conn is one socket client: a read loop owning the decoder and a
// writer goroutine draining the hub's outbound channel. All writes go
// through the write mutex so a deadline and its write stay paired.
type conn struct {
	id      string
	netConn net.Conn
	srv     *Server
	log     *logrus.Entry

	enc *wire.Encoder
	dec *wire.Decoder

	hubClient *HubClient

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConn(netConn net.Conn, srv *Server) *conn {
	id := uuid.Must(uuid.NewV4()).String()
	return &conn{
		id:        id,
		netConn:   netConn,
		srv:       srv,
		log:       srv.log.Logger.WithFields(logrus.Fields{"component": "conn", "client": id}),
		enc:       wire.NewEncoder(netConn),
		dec:       wire.NewDecoder(netConn),
		hubClient: NewHubClient(id),
	}
}

// handle runs the connection until the client leaves or the server
// stops. close must come before waiting on the writer: unregistering
// from the hub is what closes the writer's channel.
func (c *conn) handle(ctx context.Context) {
	c.writeWelcome()
	c.srv.hub.Register(c.hubClient)

	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		c.writeLoop()
	}()

	c.readLoop(ctx)
	c.close()
	writerWg.Wait()
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if c.srv.config.ReadTimeout > 0 {
			c.netConn.SetReadDeadline(time.Now().Add(c.srv.config.ReadTimeout))
		}

		frame, err := c.dec.Next()
		if err != nil {
			var perr *wire.ProtocolError
			switch {
			case errors.As(err, &perr):
				c.log.WithError(perr).Debug("malformed frame")
				c.writeResult(command.Fail(perr.Error()))
				continue
			case isTimeout(err):
				continue
			case err == io.EOF || isClosed(err):
				return
			default:
				c.log.WithError(err).Debug("read error")
				return
			}
		}

		c.handleFrame(ctx, frame)
	}
}

// handleFrame dispatches one decoded frame.
func (c *conn) handleFrame(ctx context.Context, frame wire.Frame) {
	switch frame.Type {
	case wire.TypeCommand:
		cmd, err := frame.AsCommand()
		if err != nil {
			c.writeResult(command.FromError(err))
			return
		}
		c.srv.stats.CommandExecuted()
		c.writeResult(c.srv.registry.Execute(ctx, cmd))

	case wire.TypePing:
		c.writeResult(command.OKMsg("pong"))

	case wire.TypeSubscribe:
		topic, rule := frame.Topic(), frame.Rule()
		if err := c.hubClient.Subscribe(topic, rule); err != nil {
			c.writeResult(command.FromError(err))
			return
		}
		if topic == "" {
			topic = "all topics"
		}
		c.writeResult(command.OKMsg("Subscribed to " + topic))

	case wire.TypeUnsubscribe:
		topic := frame.Topic()
		c.hubClient.Unsubscribe(topic)
		if topic == "" {
			topic = "all topics"
		}
		c.writeResult(command.OKMsg("Unsubscribed from " + topic))

	default:
		c.writeResult(command.Failf("unexpected %s frame", frame.Type))
	}
}

// writeLoop drains hub messages to the wire. It ends when the hub
// closes the channel (unregister or hub stop).
func (c *conn) writeLoop() {
	for msg := range c.hubClient.Messages() {
		c.writeMu.Lock()
		c.setWriteDeadline()
		err := c.enc.WriteMessage(msg)
		c.writeMu.Unlock()
		if err != nil {
			c.log.WithError(err).Debug("push failed")
			c.close()
			return
		}
	}
}

func (c *conn) writeWelcome() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	data := c.srv.Info()
	data["client_id"] = c.id
	data["commands"] = c.srv.registry.Names()
	if err := c.enc.WriteWelcome("conch server "+Version, data); err != nil {
		c.log.WithError(err).Debug("welcome failed")
	}
}

func (c *conn) writeResult(res command.Result) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	if err := c.enc.WriteResult(res); err != nil {
		c.log.WithError(err).Debug("write failed")
	}
}

func (c *conn) setWriteDeadline() {
	if c.srv.config.WriteTimeout > 0 {
		c.netConn.SetWriteDeadline(time.Now().Add(c.srv.config.WriteTimeout))
	}
}

// close tears the connection down once: unregister from the hub (which
// closes the outbound channel and stops the write loop) and close the
// socket.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.srv.hub.Unregister(c.hubClient)
		c.netConn.Close()
	})
}

// rejectConn tells an over-limit client why it is being dropped.
func rejectConn(netConn net.Conn) {
	netConn.SetWriteDeadline(time.Now().Add(time.Second))
	wire.NewEncoder(netConn).WriteResult(command.Fail("server full"))
	netConn.Close()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}
