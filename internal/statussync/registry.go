package statussync

import (
	"context"
	"sync"
	"time"

	"membership-backend/internal/domain"
	"membership-backend/internal/metrics"
)

// Registry tracks the live synchronizers of every connected user so that
// logout and dismissal can reach all of a user's sessions.
type Registry struct {
	watcher  Watcher
	lastSeen LastSeenStore
	opts     Options

	mu       sync.Mutex
	sessions map[domain.ID]map[*Synchronizer]struct{}
}

func NewRegistry(watcher Watcher, lastSeen LastSeenStore, ttl time.Duration, rec *metrics.Recorder) *Registry {
	return &Registry{
		watcher:  watcher,
		lastSeen: lastSeen,
		opts:     Options{TTL: ttl, Metrics: rec},
		sessions: make(map[domain.ID]map[*Synchronizer]struct{}),
	}
}

func (r *Registry) LastSeen() LastSeenStore {
	return r.lastSeen
}

// Open starts a synchronizer for the session key that reports to l. The
// returned function stops it and removes it from the registry.
func (r *Registry) Open(ctx context.Context, key SessionKey, l Listener) (*Synchronizer, func(), error) {
	userID := key.UserID
	s := New(key, r.watcher, r.lastSeen, l, r.opts)

	r.mu.Lock()
	if r.sessions[userID] == nil {
		r.sessions[userID] = make(map[*Synchronizer]struct{})
	}
	r.sessions[userID][s] = struct{}{}
	r.mu.Unlock()

	release := func() {
		s.Stop()
		r.mu.Lock()
		defer r.mu.Unlock()
		if set := r.sessions[userID]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(r.sessions, userID)
			}
		}
	}

	if err := s.Start(ctx); err != nil {
		release()
		return nil, nil, err
	}
	return s, release, nil
}

func (r *Registry) snapshot(userID domain.ID) []*Synchronizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Synchronizer, 0, len(r.sessions[userID]))
	for s := range r.sessions[userID] {
		out = append(out, s)
	}
	return out
}

// Dismiss hides the notification in whichever of the user's sessions shows it.
func (r *Registry) Dismiss(userID domain.ID, notificationID string) bool {
	dismissed := false
	for _, s := range r.snapshot(userID) {
		if s.Dismiss(notificationID) {
			dismissed = true
		}
	}
	return dismissed
}

// Sessions reports how many live sessions userID has.
func (r *Registry) Sessions(userID domain.ID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[userID])
}

// CloseUser stops every session of userID.
func (r *Registry) CloseUser(userID domain.ID) {
	r.mu.Lock()
	set := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	for s := range set {
		s.Stop()
	}
}

// Close stops all sessions.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[domain.ID]map[*Synchronizer]struct{})
	r.mu.Unlock()

	for _, set := range all {
		for s := range set {
			s.Stop()
		}
	}
}
