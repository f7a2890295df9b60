package storetest

import (
	"context"
	"sync"

	"github.com/kapilratnani/pgfire/internal/store"
)

// fakeListenConn implements store.ListenConn entirely in memory: the
// Fake store calls deliver() synchronously from inside a mutation,
// and WaitForNotification blocks until one arrives or the connection
// is closed, mirroring pgx.Conn.WaitForNotification's contract.
type fakeListenConn struct {
	owner *Fake
	ldb   *ldb

	mu     sync.Mutex
	queue  []store.Notification
	signal chan struct{}
	closed bool
}

func newFakeListenConn(owner *Fake, l *ldb) *fakeListenConn {
	return &fakeListenConn{
		owner:  owner,
		ldb:    l,
		signal: make(chan struct{}, 1),
	}
}

func (c *fakeListenConn) deliver(n store.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.queue = append(c.queue, n)
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *fakeListenConn) WaitForNotification(ctx context.Context) (*store.Notification, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			n := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return &n, nil
		}
		if c.closed {
			c.mu.Unlock()
			return nil, context.Canceled
		}
		c.mu.Unlock()

		select {
		case <-c.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *fakeListenConn) Close(context.Context) error {
	c.closeFromStore()
	return nil
}

// closeFromStore marks the connection closed without needing the
// store's own lock (it is called both by Close and by the owning
// store on DeleteLDB/shutdown, which already hold it).
func (c *fakeListenConn) closeFromStore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	select {
	case c.signal <- struct{}{}:
	default:
	}
}
