package statussync

import (
	"context"
	"sync"

	"membership-backend/internal/domain"
)

// SessionKey names one viewing client of a user. Clients that send no id
// share the user's empty-ClientID slot.
type SessionKey struct {
	UserID   domain.ID
	ClientID string
}

// LastSeenStore persists the most recently observed status per client so a
// change made while the client was away is announced on its next session.
type LastSeenStore interface {
	Get(ctx context.Context, key SessionKey) (domain.RegistrationStatus, bool, error)
	Set(ctx context.Context, key SessionKey, status domain.RegistrationStatus) error
	Clear(ctx context.Context, key SessionKey) error
	// ClearUser forgets the status recorded for every client of userID.
	ClearUser(ctx context.Context, userID domain.ID) error
}

type MemoryLastSeenStore struct {
	mu     sync.Mutex
	status map[SessionKey]domain.RegistrationStatus
}

func NewMemoryLastSeenStore() *MemoryLastSeenStore {
	return &MemoryLastSeenStore{status: make(map[SessionKey]domain.RegistrationStatus)}
}

func (m *MemoryLastSeenStore) Get(_ context.Context, key SessionKey) (domain.RegistrationStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.status[key]
	return s, ok, nil
}

func (m *MemoryLastSeenStore) Set(_ context.Context, key SessionKey, status domain.RegistrationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[key] = status
	return nil
}

func (m *MemoryLastSeenStore) Clear(_ context.Context, key SessionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.status, key)
	return nil
}

func (m *MemoryLastSeenStore) ClearUser(_ context.Context, userID domain.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.status {
		if key.UserID == userID {
			delete(m.status, key)
		}
	}
	return nil
}
