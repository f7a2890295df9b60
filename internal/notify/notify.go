// Package notify implements the Change Notification Fan-out: a
// per-subscription listener goroutine that drains a store.ListenConn,
// filters change records by path prefix, and exposes them to a
// consumer (the SSE responder) as a channel receive rather than the
// polling-plus-zero-delay-sleep the original Python implementation
// used (see spec §9, "prefer a direct await on a channel receive").
package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kapilratnani/pgfire/internal/pathcodec"
	"github.com/kapilratnani/pgfire/internal/store"
)

// pollTick bounds how long a single WaitForNotification call blocks
// before the listener re-checks its cancel flag, per spec §4.5 ("wait
// up to 1s for the connection to be readable").
var pollTick = 1 * time.Second

// Record is a change record ready for delivery: Path has already been
// joined into the slash-separated form subscribers compare against.
type Record struct {
	Event string
	Path  string
	Data  json.RawMessage
}

type wirePayload struct {
	Event string          `json:"event"`
	Path  []string        `json:"path"`
	Data  json.RawMessage `json:"data"`
}

// Dialer opens a fresh dedicated LISTEN connection for ldb. It is
// store.Store.NewListenConn in production and a fake in tests.
type Dialer func(ctx context.Context, ldb string) (store.ListenConn, error)

// Subscription is the triple (LDB, path prefix, sink) described in
// spec §3/§4.5: one dedicated connection plus a background listener
// goroutine feeding a FIFO that Stream exposes to the consumer.
type Subscription struct {
	ldb    string
	prefix string
	dial   Dialer
	log    *zap.SugaredLogger

	records chan Record

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Subscribe opens a dedicated connection in async-notification mode
// and starts its listener goroutine, per spec §4.5.
func Subscribe(ctx context.Context, ldb, pathPrefix string, dial Dialer, log *zap.SugaredLogger) (*Subscription, error) {
	conn, err := dial(ctx, ldb)
	if err != nil {
		return nil, err
	}

	listenerCtx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		ldb:     ldb,
		prefix:  pathPrefix,
		dial:    dial,
		log:     log,
		records: make(chan Record),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go s.run(listenerCtx, conn)
	return s, nil
}

// Stream returns the channel of records matching this subscription's
// path prefix. It is closed when the subscription ends, whether from
// Cleanup, the client disconnecting, or the underlying connection
// failing past its retry budget.
func (s *Subscription) Stream() <-chan Record {
	return s.records
}

// Cleanup cancels the listener, waits for it to exit, and closes the
// connection. Idempotent under concurrent callers.
func (s *Subscription) Cleanup() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
	<-s.done
}

func (s *Subscription) run(ctx context.Context, conn store.ListenConn) {
	defer close(s.done)
	defer close(s.records)
	// conn is reassigned on reconnect; capture it by reference so this
	// always closes whichever connection was live when run() returns.
	defer func() { _ = conn.Close(context.Background()) }()

	for {
		waitCtx, cancelWait := context.WithTimeout(context.Background(), pollTick)
		n, err := conn.WaitForNotification(waitCtx)
		cancelWait()

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue // just the 1s poll tick; re-check cancel and retry
			}
			s.log.Warnw("listen connection failed, attempting reconnect",
				"ldb", s.ldb, "error", err)
			newConn, rerr := s.reconnect(ctx)
			if rerr != nil {
				s.log.Errorw("giving up on subscription after failed reconnects",
					"ldb", s.ldb, "error", rerr)
				return
			}
			conn.Close(context.Background()) //nolint:errcheck
			conn = newConn
			continue
		}

		rec, ok := s.parse(n)
		if !ok {
			continue
		}
		if !strings.HasPrefix(rec.Path, s.prefix) {
			continue
		}

		select {
		case s.records <- rec:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscription) reconnect(ctx context.Context) (store.ListenConn, error) {
	var conn store.ListenConn
	err := retry.Do(
		func() error {
			c, err := s.dial(ctx, s.ldb)
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		retry.Attempts(5),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
	)
	return conn, err
}

func (s *Subscription) parse(n *store.Notification) (Record, bool) {
	var payload wirePayload
	if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
		s.log.Warnw("dropping malformed notification payload", "ldb", s.ldb, "error", err)
		return Record{}, false
	}
	return Record{
		Event: payload.Event,
		Path:  pathcodec.Join(payload.Path),
		Data:  payload.Data,
	}, true
}
