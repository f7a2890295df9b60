package store

import (
	"github.com/pkg/errors"

	"github.com/kapilratnani/pgfire/internal/pathcodec"
)

// Sentinel errors for the storage contract described in spec §4.3 / §7.
// Callers should compare with errors.Is; the REST layer maps each one to
// an HTTP status.
var (
	// ErrNotFound: LDB absent on read or mutate. A path that resolves to
	// nothing on GET is not an error: Get returns nil for it.
	ErrNotFound = errors.New("pgfire: not found")

	// ErrAlreadyExists: LDB create collision.
	ErrAlreadyExists = errors.New("pgfire: already exists")

	// ErrClosedStore: operation attempted after Close.
	ErrClosedStore = errors.New("pgfire: store closed")

	// ErrInvalidPath: malformed path or LDB name. It is the same value
	// pathcodec.Parse wraps, so path errors match it with errors.Is.
	ErrInvalidPath = pathcodec.ErrInvalidPath

	// ErrStoreFailure: underlying store error (connection loss,
	// constraint violation). Never retried inside the core.
	ErrStoreFailure = errors.New("pgfire: store failure")

	// ErrSubscriptionClosed: a subscription's listener exited, either
	// from cleanup or because its connection died.
	ErrSubscriptionClosed = errors.New("pgfire: subscription closed")
)
