package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/wire"
)

// upgrader accepts any origin: the server binds to loopback and carries
// no credentials worth forging a request for.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn is one WebSocket client. Each text message is one JSON frame,
// the socket protocol without newline framing.
type wsConn struct {
	id  string
	ws  *websocket.Conn
	srv *Server
	log *logrus.Entry

	hubClient *HubClient

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// handleWS upgrades the request and runs the connection.
func (h *httpServer) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.srv.log.WithError(err).Debug("ws upgrade failed")
		return
	}

	if h.srv.config.MaxClients > 0 && h.srv.stats.ActiveConnections() >= int64(h.srv.config.MaxClients) {
		h.srv.log.Warn("max clients reached, rejecting websocket")
		ws.WriteJSON(wire.ResponseEnvelope(command.Fail("server full")))
		ws.Close()
		return
	}

	id := uuid.Must(uuid.NewV4()).String()
	c := &wsConn{
		id:        id,
		ws:        ws,
		srv:       h.srv,
		log:       h.srv.log.Logger.WithFields(logrus.Fields{"component": "ws", "client": id}),
		hubClient: NewHubClient(id),
	}

	h.srv.clients.Store(c.id, c)
	h.srv.stats.ConnectionOpened()

	h.srv.wg.Add(1)
	go func() {
		defer h.srv.wg.Done()
		defer func() {
			h.srv.clients.Delete(c.id)
			h.srv.stats.ConnectionClosed()
		}()
		c.handle()
	}()
}

func (c *wsConn) handle() {
	c.writeWelcome()
	c.srv.hub.Register(c.hubClient)

	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		c.writeLoop()
	}()

	c.readLoop()
	c.close()
	writerWg.Wait()
}

func (c *wsConn) readLoop() {
	for {
		if c.srv.config.ReadTimeout > 0 {
			c.ws.SetReadDeadline(time.Now().Add(c.srv.config.ReadTimeout))
		}

		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return
		}

		frame, err := wire.ParseFrame(data)
		if err != nil {
			c.writeResult(command.FromError(err))
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *wsConn) handleFrame(frame wire.Frame) {
	switch frame.Type {
	case wire.TypeCommand:
		cmd, err := frame.AsCommand()
		if err != nil {
			c.writeResult(command.FromError(err))
			return
		}
		c.srv.stats.CommandExecuted()
		c.writeResult(c.srv.registry.Execute(c.srv.ctx, cmd))

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

func (c *wsConn) writeLoop() {
	for msg := range c.hubClient.Messages() {
		if err := c.writeJSON(wire.MessageEnvelope(msg)); err != nil {
			c.log.WithError(err).Debug("push failed")
			c.close()
			return
		}
	}
}

func (c *wsConn) writeWelcome() {
	data := c.srv.Info()
	data["client_id"] = c.id
	data["commands"] = c.srv.registry.Names()
	if err := c.writeJSON(wire.WelcomeEnvelope("conch server "+Version, data)); err != nil {
		c.log.WithError(err).Debug("welcome failed")
	}
}

func (c *wsConn) writeResult(res command.Result) {
	if err := c.writeJSON(wire.ResponseEnvelope(res)); err != nil {
		c.log.WithError(err).Debug("write failed")
	}
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.srv.config.WriteTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.srv.config.WriteTimeout))
	}
	return c.ws.WriteJSON(v)
}

// close tears the connection down once.
func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		c.srv.hub.Unregister(c.hubClient)
		c.ws.Close()
	})
}
