package realtime

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
)

// MemoryStore is an in-process Store used for local development and tests.
//
// Change callbacks run synchronously on the writer's goroutine, in commit
// order, and must not write back to the store.
type MemoryStore struct {
	mu       sync.Mutex
	dispatch sync.Mutex
	root     any
	subs     map[uint64]*memorySub
	nextID   uint64
	closed   bool
}

type memorySub struct {
	path      string
	segs      []string
	fn        func(Snapshot)
	last      []byte
	cancelled atomic.Bool
}

type delivery struct {
	sub  *memorySub
	snap Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uint64]*memorySub)}
}

func (s *MemoryStore) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	raw, err := encodeTree(getAt(s.root, segs))
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(path, raw), nil
}

func (s *MemoryStore) Set(ctx context.Context, path string, value any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return err
	}
	return s.write(ctx, func(root any) any {
		return setAt(root, segs, v)
	})
}

func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	type change struct {
		segs  []string
		value any
	}
	changes := make([]change, 0, len(fields))
	for k, v := range fields {
		target, err := childPath(segs, k)
		if err != nil {
			return err
		}
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		changes = append(changes, change{segs: target, value: nv})
	}
	return s.write(ctx, func(root any) any {
		for _, c := range changes {
			root = setAt(root, c.segs, c.value)
		}
		return root
	})
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

// write applies mutate under the lock, then hands changed snapshots to
// subscribers while holding the dispatch lock so deliveries keep commit order.
func (s *MemoryStore) write(ctx context.Context, mutate func(any) any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.root = mutate(s.root)

	var pending []delivery
	for _, sub := range s.subs {
		raw, err := encodeTree(getAt(s.root, sub.segs))
		if err != nil || bytes.Equal(raw, sub.last) {
			continue
		}
		sub.last = raw
		pending = append(pending, delivery{sub: sub, snap: NewSnapshot(sub.path, raw)})
	}

	s.dispatch.Lock()
	s.mu.Unlock()
	defer s.dispatch.Unlock()
	for _, d := range pending {
		if !d.sub.cancelled.Load() {
			d.sub.fn(d.snap)
		}
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	raw, err := encodeTree(getAt(s.root, segs))
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	id := s.nextID
	s.nextID++
	sub := &memorySub{path: path, segs: segs, fn: fn, last: raw}
	s.subs[id] = sub

	s.dispatch.Lock()
	s.mu.Unlock()
	fn(NewSnapshot(path, raw))
	s.dispatch.Unlock()

	subscription := NewSubscription(func() {
		sub.cancelled.Store(true)
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})
	context.AfterFunc(ctx, subscription.Unsubscribe)
	return subscription, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, sub := range s.subs {
		sub.cancelled.Store(true)
		delete(s.subs, id)
	}
	return nil
}
