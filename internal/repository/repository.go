package repository

import (
	"context"
	"errors"
	"time"

	"membership-backend/internal/domain"
	"membership-backend/internal/realtime"
)

var ErrNotFound = errors.New("record not found")

// Store paths shared with the web clients.
const (
	UsersPath         = "users"
	RegistrationsPath = "registrations"
	StudentsPath      = "students"
	RecycledPoolPath  = "deletedControlNumbers"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id domain.ID) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
}

type RegistrationRepository interface {
	Create(ctx context.Context, req *domain.RegistrationRequest) error
	GetByID(ctx context.Context, id string) (*domain.RegistrationRequest, error)
	List(ctx context.Context) ([]domain.RegistrationRequest, error)
	ListByUser(ctx context.Context, userID domain.ID) ([]domain.RegistrationRequest, error)
	UpdateStatus(ctx context.Context, id string, status domain.RegistrationStatus, at time.Time) error
	Delete(ctx context.Context, id string) error
	// Watch delivers the full, validated request list now and after every change.
	Watch(ctx context.Context, fn func([]domain.RegistrationRequest)) (realtime.Subscription, error)
}

// RosterRepository persists the member list and the recycled pool. Both are
// always written as whole collections; concurrent writers race and the last
// write wins.
type RosterRepository interface {
	Load(ctx context.Context) (*domain.Roster, error)
	// Save writes the members, then the pool, as two separate store writes.
	Save(ctx context.Context, roster *domain.Roster) error
	SaveMembers(ctx context.Context, members []domain.Member) error
	SavePool(ctx context.Context, pool []string) error
}
