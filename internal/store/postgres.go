package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kapilratnani/pgfire/internal/pathcodec"
	"github.com/kapilratnani/pgfire/internal/pushid"
)

const defaultHandleCacheSize = 256

// PostgresStore is the Postgres-backed implementation of Store. It
// keeps a connection pool for ordinary reads/writes and hands out
// dedicated, unpooled connections for LISTEN (see NewListenConn),
// exactly as spec §5 requires ("Each subscription owns its connection
// exclusively").
type PostgresStore struct {
	pool    *pgxpool.Pool
	connStr string
	log     *zap.SugaredLogger
	pushIDs *pushid.Generator
	cache   *handleCache

	mu     sync.RWMutex
	closed bool
}

// NewPostgresStore connects to Postgres (retrying transient startup
// failures, matching the teacher's connect-retry loop) and installs the
// meta table, triggers, and stored procedures.
func NewPostgresStore(ctx context.Context, connStr string, log *zap.SugaredLogger) (*PostgresStore, error) {
	var pool *pgxpool.Pool

	err := retry.Do(
		func() error {
			p, err := pgxpool.New(ctx, connStr)
			if err != nil {
				return err
			}
			if err := p.Ping(ctx); err != nil {
				p.Close()
				return err
			}
			pool = p
			return nil
		},
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			log.Warnw("retrying database connection", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "pgfire: connecting to postgres")
	}

	cache, err := newHandleCache(defaultHandleCacheSize)
	if err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{
		pool:    pool,
		connStr: connStr,
		log:     log,
		pushIDs: pushid.New(),
		cache:   cache,
	}

	if err := s.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) bootstrap(ctx context.Context) error {
	stmts, err := bootstrapStatements()
	if err != nil {
		return errors.Wrap(err, "pgfire: loading bootstrap sql")
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "pgfire: running bootstrap sql")
		}
	}
	return nil
}

func (s *PostgresStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosedStore
	}
	return nil
}

// CreateLDB creates the catalog entry and the per-LDB physical table.
func (s *PostgresStore) CreateLDB(ctx context.Context, name string) (*LDBHandle, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateLDBName(name); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO storage_meta (db_name) VALUES ($1)`, name); err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrapf(ErrAlreadyExists, "ldb %q", name)
		}
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}

	ident := pgx.Identifier{name}.Sanitize()
	createTable := `CREATE TABLE ` + ident + ` (
		root_key      varchar(255) PRIMARY KEY,
		data          jsonb,
		created       timestamp DEFAULT now(),
		last_modified timestamp DEFAULT now()
	)`
	if _, err := tx.Exec(ctx, createTable); err != nil {
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}

	triggerName := pgx.Identifier{"pgfire_touch_" + name}.Sanitize()
	createTrigger := `CREATE TRIGGER ` + triggerName + `
		BEFORE UPDATE ON ` + ident + `
		FOR EACH ROW EXECUTE PROCEDURE pgfire_update_last_modified()`
	if _, err := tx.Exec(ctx, createTrigger); err != nil {
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}

	handle := &LDBHandle{Name: name}
	s.cache.put(handle)
	return handle, nil
}

// DeleteLDB drops the per-LDB table and its catalog entry.
func (s *PostgresStore) DeleteLDB(ctx context.Context, name string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if err := validateLDBName(name); err != nil {
		return false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, errors.Wrap(ErrStoreFailure, err.Error())
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `DELETE FROM storage_meta WHERE db_name = $1`, name)
	if err != nil {
		return false, errors.Wrap(ErrStoreFailure, err.Error())
	}
	if tag.RowsAffected() == 0 {
		return false, errors.Wrapf(ErrNotFound, "ldb %q", name)
	}

	ident := pgx.Identifier{name}.Sanitize()
	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+ident); err != nil {
		return false, errors.Wrap(ErrStoreFailure, err.Error())
	}

	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(ErrStoreFailure, err.Error())
	}

	s.cache.remove(name)
	return true, nil
}

// ListLDBs reads the catalog.
func (s *PostgresStore) ListLDBs(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT db_name FROM storage_meta ORDER BY db_name`)
	if err != nil {
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, errors.Wrap(ErrStoreFailure, err.Error())
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// GetLDB returns nil (not an error) if the LDB does not exist.
func (s *PostgresStore) GetLDB(ctx context.Context, name string) (*LDBHandle, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateLDBName(name); err != nil {
		return nil, err
	}

	if h, ok := s.cache.get(name); ok {
		return h, nil
	}

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM storage_meta WHERE db_name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}
	if !exists {
		return nil, nil
	}

	handle := &LDBHandle{Name: name}
	s.cache.put(handle)
	return handle, nil
}

func (s *PostgresStore) requireLDB(ctx context.Context, name string) error {
	h, err := s.GetLDB(ctx, name)
	if err != nil {
		return err
	}
	if h == nil {
		return errors.Wrapf(ErrNotFound, "ldb %q", name)
	}
	return nil
}

// Get implements spec §4.3's get(ldb, path): whole-document merge when
// path is absent, else a single jsonb path extraction.
func (s *PostgresStore) Get(ctx context.Context, ldb, path string) (any, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.requireLDB(ctx, ldb); err != nil {
		return nil, err
	}

	p, err := pathcodec.Parse(path)
	if err != nil {
		return nil, err
	}

	ident := pgx.Identifier{ldb}.Sanitize()

	if p.Whole {
		return s.getWholeDocument(ctx, ident)
	}

	var raw []byte
	err = s.pool.QueryRow(ctx,
		`SELECT data #> $1 FROM `+ident+` WHERE root_key = $2`,
		p.Segments, p.Root,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}
	return decodeJSON(raw)
}

// getWholeDocument merges every row's single-key object by key,
// asserting the disjointness invariant spec §9 calls out ("assert this
// invariant on read").
func (s *PostgresStore) getWholeDocument(ctx context.Context, ident string) (any, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM `+ident)
	if err != nil {
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}
	defer rows.Close()

	merged := map[string]any{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(ErrStoreFailure, err.Error())
		}
		decoded, err := decodeJSON(raw)
		if err != nil {
			return nil, errors.Wrap(ErrStoreFailure, err.Error())
		}
		rowObj, ok := decoded.(map[string]any)
		if !ok {
			return nil, errors.Wrap(ErrStoreFailure, "row data was not a single-key object")
		}
		for k, v := range rowObj {
			if _, collide := merged[k]; collide {
				return nil, errors.Wrapf(ErrStoreFailure,
					"root key %q present in more than one row: disjoint-key invariant violated", k)
			}
			merged[k] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}
	return merged, nil
}

// Put deep-sets value at path.
func (s *PostgresStore) Put(ctx context.Context, ldb, path string, value any) (any, error) {
	if err := s.mutate(ctx, "upsert_json_data_notify", ldb, path, value); err != nil {
		return nil, err
	}
	return value, nil
}

// Patch deep-merges value into the subtree at path.
func (s *PostgresStore) Patch(ctx context.Context, ldb, path string, value any) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, errors.Wrap(ErrInvalidPath, "patch value must be a json object")
	}
	if err := s.mutate(ctx, "patch_json_data_notify", ldb, path, obj); err != nil {
		return nil, err
	}
	return value, nil
}

// Post generates a push ID, puts value at path+"/"+id, and returns
// {push_id: value}.
func (s *PostgresStore) Post(ctx context.Context, ldb, path string, value any) (map[string]any, error) {
	id, err := s.pushIDs.Next()
	if err != nil {
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}

	newPath := id
	if path != "" {
		newPath = path + "/" + id
	}
	if _, err := s.Put(ctx, ldb, newPath, value); err != nil {
		return nil, err
	}
	return map[string]any{id: value}, nil
}

// Delete writes JSON null at path; the root-key row and the path
// itself persist, per spec §9 ("delete = write null").
func (s *PostgresStore) Delete(ctx context.Context, ldb, path string) (bool, error) {
	if _, err := s.Put(ctx, ldb, path, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) mutate(ctx context.Context, procedure, ldb, path string, value any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.requireLDB(ctx, ldb); err != nil {
		return err
	}

	p, err := pathcodec.Parse(path)
	if err != nil {
		return err
	}
	if p.Whole {
		return errors.Wrap(ErrInvalidPath, "path is required for mutations")
	}

	skeleton := pathcodec.BuildSkeleton(p.Segments, value)
	skeletonJSON, err := json.Marshal(skeleton)
	if err != nil {
		return errors.Wrap(ErrStoreFailure, err.Error())
	}
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(ErrStoreFailure, err.Error())
	}

	_, err = s.pool.Exec(ctx,
		`SELECT `+procedure+`($1, $2, $3::jsonb, $4, $5::jsonb)`,
		ldb, p.Root, skeletonJSON, p.Segments, valueJSON,
	)
	if err != nil {
		return errors.Wrap(ErrStoreFailure, err.Error())
	}
	return nil
}

// NewListenConn opens a dedicated, unpooled connection and issues
// LISTEN on ldb's channel (the channel name equals the table name).
func (s *PostgresStore) NewListenConn(ctx context.Context, ldb string) (ListenConn, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateLDBName(ldb); err != nil {
		return nil, err
	}

	conn, err := pgx.Connect(ctx, s.connStr)
	if err != nil {
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}

	if _, err := conn.Exec(ctx, `LISTEN `+pgx.Identifier{ldb}.Sanitize()); err != nil {
		conn.Close(ctx) //nolint:errcheck
		return nil, errors.Wrap(ErrStoreFailure, err.Error())
	}

	return &pgxListenConn{conn: conn}, nil
}

// Close shuts down the connection pool. After Close every operation
// fails with ErrClosedStore.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pool.Close()
	return nil
}

func decodeJSON(raw []byte) (any, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key")
}

// pgxListenConn adapts *pgx.Conn to the ListenConn interface so
// internal/notify never imports pgx directly.
type pgxListenConn struct {
	conn *pgx.Conn
}

func (c *pgxListenConn) WaitForNotification(ctx context.Context) (*Notification, error) {
	n, err := c.conn.WaitForNotification(ctx)
	if err != nil {
		return nil, err
	}
	return &Notification{Channel: n.Channel, Payload: n.Payload}, nil
}

func (c *pgxListenConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}
