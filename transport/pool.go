package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrPoolExhausted is returned when Get waited the full timeout
	// without a connection becoming available.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed is returned by Get after Close.
	ErrPoolClosed = errors.New("connection pool closed")
)

// DefaultPoolTimeout bounds how long Get blocks when the pool is full.
const DefaultPoolTimeout = 30 * time.Second

// Pool is a bounded pool of streaming transports. Get hands out an
// idle connection or creates one up to the size limit, then blocks
// with a deadline. Put validates the connection and stops any active
// streaming before returning it; a dead connection is discarded and
// its slot freed.
type Pool struct {
	factory func(ctx context.Context) (StreamingTransport, error)
	idle    chan StreamingTransport
	timeout time.Duration

	mu     sync.Mutex
	size   int
	max    int
	closed bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolTimeout sets how long Get blocks before ErrPoolExhausted.
func WithPoolTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.timeout = d }
}

// NewPool returns a pool of at most maxSize connections built by
// factory. The factory returns connected transports.
func NewPool(maxSize int, factory func(ctx context.Context) (StreamingTransport, error), opts ...PoolOption) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}
	p := &Pool{
		factory: factory,
		idle:    make(chan StreamingTransport, maxSize),
		timeout: DefaultPoolTimeout,
		max:     maxSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns a connection: an idle one, a freshly created one while
// under the size limit, or — once the limit is reached — whichever
// comes back first within the pool timeout.
func (p *Pool) Get(ctx context.Context) (StreamingTransport, error) {
	for {
		select {
		case t := <-p.idle:
			if p.validate(t) {
				return t, nil
			}
			p.discard(t)
			continue
		default:
		}
		break
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.size < p.max {
		p.size++
		p.mu.Unlock()

		t, err := p.factory(ctx)
		if err != nil {
			p.mu.Lock()
			p.size--
			p.mu.Unlock()
			return nil, fmt.Errorf("create pooled connection: %w", err)
		}
		return t, nil
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		select {
		case t := <-p.idle:
			if p.validate(t) {
				return t, nil
			}
			p.discard(t)
		case <-timer.C:
			return nil, fmt.Errorf("%w: no connection available within %s", ErrPoolExhausted, p.timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put returns a connection to the pool. Streaming is stopped first; a
// connection that is no longer usable is discarded and its slot freed.
func (p *Pool) Put(t StreamingTransport) {
	if t == nil {
		return
	}
	if t.IsStreaming() {
		t.StopStreaming()
	}
	if !p.validate(t) {
		p.discard(t)
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.discard(t)
		return
	}

	select {
	case p.idle <- t:
	default:
		p.discard(t)
	}
}

// Close drains and disconnects every idle connection. Get fails with
// ErrPoolClosed afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for {
		select {
		case t := <-p.idle:
			p.mu.Lock()
			p.size--
			p.mu.Unlock()
			if err := t.Disconnect(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}

// Stats reports the pool's current occupancy.
func (p *Pool) Stats() (size, idle, max int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size, len(p.idle), p.max
}

func (p *Pool) validate(t StreamingTransport) bool {
	return t.IsConnected()
}

func (p *Pool) discard(t StreamingTransport) {
	t.Disconnect()
	p.mu.Lock()
	p.size--
	p.mu.Unlock()
}
