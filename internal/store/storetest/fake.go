// Package storetest provides an in-memory Store implementation with
// the same deep-set/deep-merge/notify semantics as the Postgres-backed
// store, so internal/store and internal/notify can assert spec §8's
// invariants without a live database. It is the Go analogue of testing
// business logic above the DB boundary the way the teacher's core
// package tests do.
package storetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kapilratnani/pgfire/internal/pathcodec"
	"github.com/kapilratnani/pgfire/internal/pushid"
	"github.com/kapilratnani/pgfire/internal/store"
	"github.com/pkg/errors"
)

type ldb struct {
	rows map[string]any // root_key -> subtree (not wrapped)
	subs []*fakeListenConn
}

// Fake is a Store backed entirely by in-process maps and channels.
type Fake struct {
	mu      sync.Mutex
	ldbs    map[string]*ldb
	pushIDs *pushid.Generator
	closed  bool
}

// New returns an empty Fake store.
func New() *Fake {
	return &Fake{
		ldbs:    map[string]*ldb{},
		pushIDs: pushid.New(),
	}
}

func (f *Fake) checkOpen() error {
	if f.closed {
		return store.ErrClosedStore
	}
	return nil
}

func (f *Fake) CreateLDB(_ context.Context, name string) (*store.LDBHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if _, ok := f.ldbs[name]; ok {
		return nil, errors.Wrapf(store.ErrAlreadyExists, "ldb %q", name)
	}
	f.ldbs[name] = &ldb{rows: map[string]any{}}
	return &store.LDBHandle{Name: name}, nil
}

func (f *Fake) DeleteLDB(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen(); err != nil {
		return false, err
	}
	l, ok := f.ldbs[name]
	if !ok {
		return false, errors.Wrapf(store.ErrNotFound, "ldb %q", name)
	}
	for _, s := range l.subs {
		s.closeFromStore()
	}
	delete(f.ldbs, name)
	return true, nil
}

func (f *Fake) ListLDBs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	var names []string
	for n := range f.ldbs {
		names = append(names, n)
	}
	return names, nil
}

func (f *Fake) GetLDB(_ context.Context, name string) (*store.LDBHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if _, ok := f.ldbs[name]; !ok {
		return nil, nil
	}
	return &store.LDBHandle{Name: name}, nil
}

func (f *Fake) Get(_ context.Context, name, path string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	l, ok := f.ldbs[name]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "ldb %q", name)
	}

	p, err := pathcodec.Parse(path)
	if err != nil {
		return nil, err
	}
	if p.Whole {
		merged := map[string]any{}
		for k, v := range l.rows {
			merged[k] = v
		}
		return deepCopy(merged), nil
	}

	root, ok := l.rows[p.Root]
	if !ok {
		return nil, nil
	}
	v, ok := extract(root, p.Segments[1:])
	if !ok {
		return nil, nil
	}
	return deepCopy(v), nil
}

func (f *Fake) Put(ctx context.Context, name, path string, value any) (any, error) {
	if err := f.mutate(ctx, name, path, value, "put", deepSet); err != nil {
		return nil, err
	}
	return value, nil
}

func (f *Fake) Patch(ctx context.Context, name, path string, value any) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, errors.Wrap(store.ErrInvalidPath, "patch value must be a json object")
	}
	if err := f.mutate(ctx, name, path, obj, "patch", deepMerge); err != nil {
		return nil, err
	}
	return value, nil
}

func (f *Fake) Post(ctx context.Context, name, path string, value any) (map[string]any, error) {
	id, err := f.pushIDs.Next()
	if err != nil {
		return nil, err
	}
	newPath := id
	if path != "" {
		newPath = path + "/" + id
	}
	if _, err := f.Put(ctx, name, newPath, value); err != nil {
		return nil, err
	}
	return map[string]any{id: value}, nil
}

func (f *Fake) Delete(ctx context.Context, name, path string) (bool, error) {
	if _, err := f.Put(ctx, name, path, nil); err != nil {
		return false, err
	}
	return true, nil
}

type combiner func(existing any, segments []string, value any) any

func (f *Fake) mutate(_ context.Context, name, path string, value any, event string, combine combiner) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen(); err != nil {
		return err
	}
	l, ok := f.ldbs[name]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "ldb %q", name)
	}

	p, err := pathcodec.Parse(path)
	if err != nil {
		return err
	}
	if p.Whole {
		return errors.Wrap(store.ErrInvalidPath, "path is required for mutations")
	}

	existing := l.rows[p.Root]
	l.rows[p.Root] = combine(existing, p.Segments[1:], value)

	record := store.ChangeRecord{Event: event, Path: p.Segments, Data: deepCopy(value)}
	f.publish(l, record)
	return nil
}

func (f *Fake) publish(l *ldb, rec store.ChangeRecord) {
	payload, _ := json.Marshal(rec)
	for _, s := range l.subs {
		s.deliver(store.Notification{Payload: string(payload)})
	}
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for _, l := range f.ldbs {
		for _, s := range l.subs {
			s.closeFromStore()
		}
	}
	return nil
}

// NewListenConn registers a fake connection against the named LDB's
// in-process fan-out list; every subsequent mutation on that LDB is
// delivered to it until the caller Closes it.
func (f *Fake) NewListenConn(_ context.Context, name string) (store.ListenConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	l, ok := f.ldbs[name]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "ldb %q", name)
	}

	c := newFakeListenConn(f, l)
	l.subs = append(l.subs, c)
	return c, nil
}

func deepCopy(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func extract(node any, segments []string) (any, bool) {
	cur := node
	for _, seg := range segments {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := obj[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func deepSet(existing any, segments []string, value any) any {
	if len(segments) == 0 {
		return value
	}
	obj, ok := existing.(map[string]any)
	if !ok {
		obj = map[string]any{}
	} else {
		clone := map[string]any{}
		for k, v := range obj {
			clone[k] = v
		}
		obj = clone
	}
	obj[segments[0]] = deepSet(obj[segments[0]], segments[1:], value)
	return obj
}

func deepMerge(existing any, segments []string, value any) any {
	skeleton := pathcodec.BuildSkeleton(segments, value)
	return mergeValues(existing, skeleton)
}

func mergeValues(a, b any) any {
	aObj, aIsObj := a.(map[string]any)
	bObj, bIsObj := b.(map[string]any)
	if !aIsObj || !bIsObj {
		return b
	}
	result := map[string]any{}
	for k, v := range aObj {
		result[k] = v
	}
	for k, v := range bObj {
		if existing, ok := result[k]; ok {
			result[k] = mergeValues(existing, v)
		} else {
			result[k] = v
		}
	}
	return result
}
