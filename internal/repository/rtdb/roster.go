package rtdb

import (
	"context"
	"encoding/json"
	"fmt"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/realtime"
	"membership-backend/internal/repository"
)

type rosterRepository struct {
	db realtime.Store
}

func NewRosterRepository(db realtime.Store) repository.RosterRepository {
	return &rosterRepository{db: db}
}

// Load reads members ordered by id and the recycled pool. The two reads are
// independent and may observe different moments.
func (r *rosterRepository) Load(ctx context.Context) (*domain.Roster, error) {
	snap, err := r.db.Get(ctx, repository.StudentsPath)
	if err != nil {
		return nil, err
	}
	members, err := decodeChildren(snap, "member", func(m *domain.Member, key string) {
		if m.ID == "" {
			m.ID = domain.ID(key)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode members: %w", err)
	}

	poolSnap, err := r.db.Get(ctx, repository.RecycledPoolPath)
	if err != nil {
		return nil, err
	}
	pool, err := decodePool(poolSnap)
	if err != nil {
		return nil, fmt.Errorf("failed to decode recycled pool: %w", err)
	}

	return &domain.Roster{Members: members, Recycled: pool}, nil
}

// decodePool accepts the list form and the index-keyed object form the
// hosted database returns for sparse arrays.
func decodePool(snap realtime.Snapshot) ([]string, error) {
	children, err := snap.Children()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(children))
	for k, raw := range children {
		var n string
		if err := json.Unmarshal(raw, &n); err != nil || n == "" {
			logger.Warn("Skipping malformed recycled number", "key", k, "value", string(raw))
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *rosterRepository) Save(ctx context.Context, roster *domain.Roster) error {
	if err := r.SaveMembers(ctx, roster.Members); err != nil {
		return err
	}
	return r.SavePool(ctx, roster.Recycled)
}

func (r *rosterRepository) SaveMembers(ctx context.Context, members []domain.Member) error {
	byID := make(map[string]domain.Member, len(members))
	for _, m := range members {
		byID[string(m.ID)] = m
	}
	if err := r.db.Set(ctx, repository.StudentsPath, byID); err != nil {
		return fmt.Errorf("failed to save members: %w", err)
	}
	return nil
}

func (r *rosterRepository) SavePool(ctx context.Context, pool []string) error {
	var value any
	if len(pool) > 0 {
		value = pool
	}
	if err := r.db.Set(ctx, repository.RecycledPoolPath, value); err != nil {
		return fmt.Errorf("failed to save recycled pool: %w", err)
	}
	return nil
}
