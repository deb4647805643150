package realtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"membership-backend/internal/logger"
)

const (
	nodesTable           = "realtime_nodes"
	DefaultChangeChannel = "realtime_changes"
	listenerPingInterval = 90 * time.Second
	refreshTimeout       = 10 * time.Second
)

// PostgresSchema creates the single table backing PostgresStore. Each
// top-level key ("users", "students", ...) is one JSONB document.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS realtime_nodes (
	root       TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore is a self-hosted Store. Writes lock the affected top-level
// document, apply the change and publish the key with pg_notify; a
// pq.Listener turns those notifications into subscription refreshes.
type PostgresStore struct {
	db      *sqlx.DB
	psql    sq.StatementBuilderType
	channel string

	mu     sync.Mutex
	subs   map[uint64]*pgSub
	nextID uint64

	listener  *pq.Listener
	done      chan struct{}
	closeOnce sync.Once
}

type pgSub struct {
	path      string
	segs      []string
	fn        func(Snapshot)
	mu        sync.Mutex
	last      []byte
	cancelled atomic.Bool
}

func NewPostgresStore(db *sqlx.DB, channel string) *PostgresStore {
	if channel == "" {
		channel = DefaultChangeChannel
	}
	return &PostgresStore{
		db:      db,
		psql:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		channel: channel,
		subs:    make(map[uint64]*pgSub),
		done:    make(chan struct{}),
	}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	logger.DatabaseCall("exec", "create realtime_nodes")
	_, err := s.db.ExecContext(ctx, PostgresSchema)
	logger.DatabaseResult("exec", 0, err)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Listen starts receiving change notifications from other processes.
// Without it, subscribers only see writes made through this store.
func (s *PostgresStore) Listen(dsn string) error {
	l := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Realtime listener event", "event", ev, "error", err)
		}
	})
	if err := l.Listen(s.channel); err != nil {
		l.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.channel, err)
	}
	s.listener = l
	go s.listen(l)
	return nil
}

func (s *PostgresStore) listen(l *pq.Listener) {
	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case n, ok := <-l.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected: notifications may have been missed.
				s.refreshMatching("")
				continue
			}
			s.refreshMatching(n.Extra)
		case <-ticker.C:
			go func() {
				if err := l.Ping(); err != nil {
					logger.Warn("Realtime listener ping failed", "error", err)
				}
			}()
		}
	}
}

func (s *PostgresStore) loadRoot(ctx context.Context, q sqlx.QueryerContext, root string, forUpdate bool) (any, error) {
	b := s.psql.Select("doc").From(nodesTable).Where(sq.Eq{"root": root})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	logger.DatabaseCall("select", query, "root", root)
	var doc []byte
	err = sqlx.GetContext(ctx, q, &doc, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("select", 0, nil)
		return nil, nil
	}
	logger.DatabaseResult("select", 1, err)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}
	return decodeTree(doc)
}

func (s *PostgresStore) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	tree, err := s.loadRoot(ctx, s.db, segs[0], false)
	if err != nil {
		return Snapshot{}, err
	}
	raw, err := encodeTree(getAt(tree, segs[1:]))
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(path, raw), nil
}

func (s *PostgresStore) Set(ctx context.Context, path string, value any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return err
	}
	return s.mutate(ctx, segs[0], func(tree any) any {
		return setAt(tree, segs[1:], v)
	})
}

func (s *PostgresStore) Update(ctx context.Context, path string, fields map[string]any) error {
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
		target, err := childPath(segs[1:], k)
		if err != nil {
			return err
		}
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		changes = append(changes, change{segs: target, value: nv})
	}
	return s.mutate(ctx, segs[0], func(tree any) any {
		for _, c := range changes {
			tree = setAt(tree, c.segs, c.value)
		}
		return tree
	})
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

// mutate performs a locked read-modify-write of one top-level document.
func (s *PostgresStore) mutate(ctx context.Context, root string, fn func(any) any) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	tree, err := s.loadRoot(ctx, tx, root, true)
	if err != nil {
		return err
	}
	tree = fn(tree)

	var (
		query string
		args  []any
	)
	if tree == nil {
		query, args, err = s.psql.Delete(nodesTable).Where(sq.Eq{"root": root}).ToSql()
	} else {
		var doc []byte
		doc, err = encodeTree(tree)
		if err != nil {
			return err
		}
		query, args, err = s.psql.Insert(nodesTable).
			Columns("root", "doc", "updated_at").
			Values(root, string(doc), sq.Expr("now()")).
			Suffix("ON CONFLICT (root) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at").
			ToSql()
	}
	if err != nil {
		return err
	}

	logger.DatabaseCall("exec", query, "root", root)
	res, err := tx.ExecContext(ctx, query, args...)
	var affected int64
	if err == nil {
		affected, _ = res.RowsAffected()
	}
	logger.DatabaseResult("exec", affected, err)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", root, err)
	}

	if _, err = tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", s.channel, root); err != nil {
		return fmt.Errorf("failed to publish change for %s: %w", root, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", root, err)
	}

	s.refreshMatching(root)
	return nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}

	sub := &pgSub{path: path, segs: segs, fn: fn}
	sub.mu.Lock()
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	unsubscribe := func() {
		sub.cancelled.Store(true)
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}

	snap, err := s.Get(ctx, path)
	if err != nil {
		sub.mu.Unlock()
		unsubscribe()
		return nil, err
	}
	sub.last = snap.Raw()
	fn(snap)
	sub.mu.Unlock()

	subscription := NewSubscription(unsubscribe)
	context.AfterFunc(ctx, subscription.Unsubscribe)
	return subscription, nil
}

// refreshMatching re-reads every subscription under root ("" for all) and
// delivers the ones whose value changed.
func (s *PostgresStore) refreshMatching(root string) {
	s.mu.Lock()
	var targets []*pgSub
	for _, sub := range s.subs {
		if root == "" || sub.segs[0] == root {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		s.refresh(sub)
	}
}

func (s *PostgresStore) refresh(sub *pgSub) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.cancelled.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	snap, err := s.Get(ctx, sub.path)
	if err != nil {
		logger.Warn("Failed to refresh subscription", "path", sub.path, "error", err)
		return
	}
	if string(snap.Raw()) == string(sub.last) {
		return
	}
	sub.last = snap.Raw()
	sub.fn(snap)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		for id, sub := range s.subs {
			sub.cancelled.Store(true)
			delete(s.subs, id)
		}
		s.mu.Unlock()
		if s.listener != nil {
			if lerr := s.listener.Close(); lerr != nil {
				logger.Warn("Failed to close realtime listener", "error", lerr)
			}
		}
		err = s.db.Close()
	})
	return err
}
