package rtdb

import (
	"context"
	"fmt"

	"membership-backend/internal/domain"
	"membership-backend/internal/realtime"
	"membership-backend/internal/repository"
)

type userRepository struct {
	db realtime.Store
}

func NewUserRepository(db realtime.Store) repository.UserRepository {
	return &userRepository{db: db}
}

func userPath(id domain.ID) string {
	return repository.UsersPath + "/" + string(id)
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	return r.db.Set(ctx, userPath(user.ID), user)
}

func (r *userRepository) GetByID(ctx context.Context, id domain.ID) (*domain.User, error) {
	snap, err := r.db.Get(ctx, userPath(id))
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, repository.ErrNotFound
	}
	var u domain.User
	if err := snap.Unmarshal(&u); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", id, err)
	}
	if u.ID == "" {
		u.ID = id
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) List(ctx context.Context) ([]domain.User, error) {
	snap, err := r.db.Get(ctx, repository.UsersPath)
	if err != nil {
		return nil, err
	}
	return decodeChildren(snap, "user", func(u *domain.User, key string) {
		if u.ID == "" {
			u.ID = domain.ID(key)
		}
	})
}
