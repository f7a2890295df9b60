package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kapilratnani/pgfire/internal/notify"
	"github.com/kapilratnani/pgfire/internal/store"
	"github.com/kapilratnani/pgfire/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialer(s store.Store) notify.Dialer {
	return func(ctx context.Context, ldb string) (store.ListenConn, error) {
		return s.NewListenConn(ctx, ldb)
	}
}

func recv(t *testing.T, ch <-chan notify.Record) notify.Record {
	t.Helper()
	select {
	case rec, ok := <-ch:
		require.True(t, ok, "channel closed before a record arrived")
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
		return notify.Record{}
	}
}

func assertNoRecord(t *testing.T, ch <-chan notify.Record) {
	t.Helper()
	select {
	case rec, ok := <-ch:
		if ok {
			t.Fatalf("expected no record, got %+v", rec)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

// S6: SSE fan-out — prefix-matching mutations are observed in order;
// non-matching ones never appear (invariants 7 and 8).
func TestScenarioS6(t *testing.T) {
	ctx := context.Background()
	s := storetest.New()
	defer s.Close()
	_, err := s.CreateLDB(ctx, "fb")
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	sub, err := notify.Subscribe(ctx, "fb", "x/posts", dialer(s), log)
	require.NoError(t, err)
	defer sub.Cleanup()

	stream := sub.Stream()

	_, err = s.Post(ctx, "fb", "x/posts", map[string]any{"t": float64(1)})
	require.NoError(t, err)
	_, err = s.Post(ctx, "fb", "x/posts", map[string]any{"t": float64(2)})
	require.NoError(t, err)
	_, err = s.Post(ctx, "fb", "x/msgs", map[string]any{"t": float64(9)})
	require.NoError(t, err)

	first := recv(t, stream)
	assert.Equal(t, "put", first.Event)
	assert.Regexp(t, `^x/posts/`, first.Path)
	var firstData map[string]any
	require.NoError(t, json.Unmarshal(first.Data, &firstData))
	assert.Equal(t, float64(1), firstData["t"])

	second := recv(t, stream)
	assert.Equal(t, "put", second.Event)
	assert.Regexp(t, `^x/posts/`, second.Path)
	var secondData map[string]any
	require.NoError(t, json.Unmarshal(second.Data, &secondData))
	assert.Equal(t, float64(2), secondData["t"])

	assertNoRecord(t, stream)
}

func TestEmptyPrefixMatchesEverything(t *testing.T) {
	ctx := context.Background()
	s := storetest.New()
	defer s.Close()
	_, err := s.CreateLDB(ctx, "fb")
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	sub, err := notify.Subscribe(ctx, "fb", "", dialer(s), log)
	require.NoError(t, err)
	defer sub.Cleanup()

	_, err = s.Put(ctx, "fb", "anything/here", "v")
	require.NoError(t, err)

	rec := recv(t, sub.Stream())
	assert.Equal(t, "anything/here", rec.Path)
}

func TestCleanupClosesStream(t *testing.T) {
	ctx := context.Background()
	s := storetest.New()
	defer s.Close()
	_, err := s.CreateLDB(ctx, "fb")
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	sub, err := notify.Subscribe(ctx, "fb", "", dialer(s), log)
	require.NoError(t, err)

	sub.Cleanup()

	_, ok := <-sub.Stream()
	assert.False(t, ok, "stream should be closed after Cleanup")
}

func TestCleanupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := storetest.New()
	defer s.Close()
	_, err := s.CreateLDB(ctx, "fb")
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	sub, err := notify.Subscribe(ctx, "fb", "", dialer(s), log)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		sub.Cleanup()
		close(done)
	}()
	sub.Cleanup()
	<-done
}
