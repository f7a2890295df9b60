//go:build integration

package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/kapilratnani/pgfire/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestPostgresStoreRoundTrip is the Go analogue of
// tests/test_postgres_storage.py: it exercises the real stored
// procedures against a live Postgres. Run with:
//
//	PGFIRE_TEST_DATABASE_URL=postgres://... go test -tags=integration ./internal/store/...
func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("PGFIRE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PGFIRE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	log := zap.NewNop().Sugar()

	s, err := store.NewPostgresStore(ctx, dsn, log)
	require.NoError(t, err)
	defer s.Close()

	const ldbName = "pgfire_integration_test"
	_, _ = s.DeleteLDB(ctx, ldbName) // best effort cleanup from a previous run

	_, err = s.CreateLDB(ctx, ldbName)
	require.NoError(t, err)
	defer s.DeleteLDB(ctx, ldbName) //nolint:errcheck

	_, err = s.Put(ctx, ldbName, "a/b/c", map[string]any{"d": float64(1)})
	require.NoError(t, err)

	got, err := s.Get(ctx, ldbName, "a/b")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"c": map[string]any{"d": float64(1)}}, got)

	_, err = s.Patch(ctx, ldbName, "a/b", map[string]any{"e": float64(2)})
	require.NoError(t, err)

	got, err = s.Get(ctx, ldbName, "a/b")
	require.NoError(t, err)
	obj := got.(map[string]any)
	require.Equal(t, map[string]any{"d": float64(1)}, obj["c"])
	require.Equal(t, float64(2), obj["e"])
}
