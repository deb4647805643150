// Package realtime abstracts the hierarchical key-value database the
// application keeps its state in. Paths are slash separated ("users/42").
// Every backend offers point reads, whole-subtree writes, field merges,
// removal and change subscriptions.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var (
	ErrInvalidPath = errors.New("invalid store path")
	ErrClosed      = errors.New("store is closed")
)

// Store is the capability set required from any backend.
type Store interface {
	// Get reads the subtree at path. A missing subtree yields a snapshot
	// whose Exists reports false.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Set overwrites the subtree at path. A nil value removes it.
	Set(ctx context.Context, path string, value any) error
	// Update merges fields into the object at path without touching siblings.
	// Keys may themselves be relative paths.
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
	// Subscribe calls fn with the current value and again after every change
	// to the subtree, until the subscription is cancelled or ctx is done.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// Subscription is a live change feed. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

type subscriptionFunc struct {
	once sync.Once
	fn   func()
}

func (s *subscriptionFunc) Unsubscribe() { s.once.Do(s.fn) }

// NewSubscription wraps a cancel function so it runs at most once.
func NewSubscription(cancel func()) Subscription {
	return &subscriptionFunc{fn: cancel}
}

// Snapshot is an immutable JSON value read from the store.
type Snapshot struct {
	Path string
	raw  json.RawMessage
}

func NewSnapshot(path string, raw []byte) Snapshot {
	return Snapshot{Path: path, raw: raw}
}

func (s Snapshot) Exists() bool {
	t := bytes.TrimSpace(s.raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// Unmarshal decodes the value into v. It is a no-op for a missing value.
func (s Snapshot) Unmarshal(v any) error {
	if !s.Exists() {
		return nil
	}
	return json.Unmarshal(s.raw, v)
}

func (s Snapshot) Raw() json.RawMessage { return s.raw }

// Children decodes an object value into its direct children. A list value is
// returned keyed by index.
func (s Snapshot) Children() (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if !s.Exists() {
		return out, nil
	}
	t := bytes.TrimSpace(s.raw)
	if t[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(t, &items); err != nil {
			return nil, err
		}
		for i, item := range items {
			out[indexKey(i)] = item
		}
		return out, nil
	}
	if err := json.Unmarshal(t, &out); err != nil {
		return nil, err
	}
	return out, nil
}
