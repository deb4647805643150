// Package rtdb implements the repositories on top of a realtime.Store.
// Records are decoded one by one; a malformed record is logged and skipped
// instead of failing the whole read.
package rtdb

import (
	"encoding/json"
	"sort"

	"membership-backend/internal/logger"
	"membership-backend/internal/realtime"
	"membership-backend/internal/repository"
)

// Store bundles the repositories that share one realtime.Store.
type Store struct {
	db            realtime.Store
	Users         repository.UserRepository
	Registrations repository.RegistrationRepository
	Roster        repository.RosterRepository
}

func NewStore(db realtime.Store) *Store {
	return &Store{
		db:            db,
		Users:         NewUserRepository(db),
		Registrations: NewRegistrationRepository(db),
		Roster:        NewRosterRepository(db),
	}
}

// DB exposes the underlying store for components that subscribe directly.
func (s *Store) DB() realtime.Store {
	return s.db
}

type validator interface {
	Validate() error
}

// decodeChildren decodes every child of snap into T, filling the id from the
// key through setKey, and drops the ones that fail to decode or validate.
func decodeChildren[T any, PT interface {
	*T
	validator
}](snap realtime.Snapshot, kind string, setKey func(PT, string)) ([]T, error) {
	children, err := snap.Children()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		var v T
		p := PT(&v)
		if err := json.Unmarshal(children[k], p); err != nil {
			logger.Warn("Skipping undecodable record", "kind", kind, "key", k, "error", err)
			continue
		}
		setKey(p, k)
		if err := p.Validate(); err != nil {
			logger.Warn("Skipping malformed record", "kind", kind, "key", k, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
