package server

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/filter"
)

// clientBuffer is the per-client outbound queue depth. A client that
// falls further behind than this loses messages rather than stalling
// the hub.
const clientBuffer = 64

// HubClient is one subscriber registered with the hub. The connection
// goroutine owns the subscription set; the hub goroutine only reads it
// during delivery.
type HubClient struct {
	id   string
	send chan command.Message

	mu      sync.Mutex
	all     bool
	allRule *filter.Rule
	topics  map[string]*filter.Rule
}

// NewHubClient returns a client identified by id.
func NewHubClient(id string) *HubClient {
	return &HubClient{
		id:     id,
		send:   make(chan command.Message, clientBuffer),
		topics: make(map[string]*filter.Rule),
	}
}

// ID returns the client identifier.
func (c *HubClient) ID() string { return c.id }

// Messages is the channel the connection drains to the wire.
func (c *HubClient) Messages() <-chan command.Message { return c.send }

// Subscribe adds a topic subscription. An empty topic subscribes to
// every message. A non-empty rule is parsed as a SELECT rule and
// filters what this subscription delivers.
func (c *HubClient) Subscribe(topic, rule string) error {
	var parsed *filter.Rule
	if rule != "" {
		var err error
		parsed, err = filter.ParseRule(rule)
		if err != nil {
			return fmt.Errorf("invalid rule: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if topic == "" {
		c.all = true
		c.allRule = parsed
		return nil
	}
	c.topics[topic] = parsed
	return nil
}

// Unsubscribe removes a topic subscription. An empty topic clears
// everything.
func (c *HubClient) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if topic == "" {
		c.all = false
		c.allRule = nil
		c.topics = make(map[string]*filter.Rule)
		return
	}
	delete(c.topics, topic)
}

// Subscriptions returns the subscribed topics, with "*" standing for
// the subscribe-all state.
func (c *HubClient) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	if c.all {
		out = append(out, "*")
	}
	for topic := range c.topics {
		out = append(out, topic)
	}
	return out
}

// accept reports whether the client should receive msg, and returns the
// message with any rule's field selection applied.
func (c *HubClient) accept(msg command.Message) (command.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.all {
		if c.allRule == nil {
			return msg, true
		}
		if c.allRule.MatchesMessage(msg) {
			return c.allRule.Apply(msg), true
		}
	}

	topic := filter.MessageTopic(msg)
	rule, ok := c.topics[topic]
	if !ok {
		return command.Message{}, false
	}
	if rule == nil {
		return msg, true
	}
	if !rule.MatchesMessage(msg) {
		return command.Message{}, false
	}
	return rule.Apply(msg), true
}

// Hub fans published messages out to subscribed clients. One goroutine
// owns the client set; register, unregister, and publish all go through
// its channels. Slow clients lose messages instead of blocking the
// loop.
type Hub struct {
	log   *logrus.Entry
	stats *Stats
	ring  *Ring

	register   chan *HubClient
	unregister chan *HubClient
	broadcast  chan command.Message

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

// NewHub returns a hub recording into ring and counting into stats.
func NewHub(ring *Ring, stats *Stats, logger *logrus.Logger) *Hub {
	return &Hub{
		log:        logger.WithField("component", "hub"),
		stats:      stats,
		ring:       ring,
		register:   make(chan *HubClient),
		unregister: make(chan *HubClient),
		broadcast:  make(chan command.Message, 64),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Run drives the hub until Stop. Call it in its own goroutine.
func (h *Hub) Run() {
	defer close(h.stopped)

	clients := make(map[*HubClient]struct{})
	for {
		select {
		case c := <-h.register:
			clients[c] = struct{}{}
			h.log.WithField("client", c.id).Debug("registered")

		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				h.log.WithField("client", c.id).Debug("unregistered")
			}

		case msg := <-h.broadcast:
			h.ring.Add(msg)
			for c := range clients {
				out, ok := c.accept(msg)
				if !ok {
					continue
				}
				select {
				case c.send <- out:
				default:
					h.stats.MessageDropped()
				}
			}

		case <-h.done:
			for c := range clients {
				close(c.send)
			}
			return
		}
	}
}

// Register adds a client to the delivery set.
func (h *Hub) Register(c *HubClient) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a client and closes its message channel.
func (h *Hub) Unregister(c *HubClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish hands a message to the hub for fan-out. Safe to call from
// any goroutine; after Stop it is a no-op.
func (h *Hub) Publish(msg command.Message) {
	h.stats.MessagePublished()
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Stop ends the run loop and closes every client channel.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	<-h.stopped
}
