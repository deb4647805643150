package rtdb

import (
	"context"
	"fmt"
	"time"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/realtime"
	"membership-backend/internal/repository"
)

type registrationRepository struct {
	db realtime.Store
}

func NewRegistrationRepository(db realtime.Store) repository.RegistrationRepository {
	return &registrationRepository{db: db}
}

func registrationPath(id string) string {
	return repository.RegistrationsPath + "/" + id
}

func decodeRegistrations(snap realtime.Snapshot) ([]domain.RegistrationRequest, error) {
	return decodeChildren(snap, "registration", func(r *domain.RegistrationRequest, key string) {
		if r.ID == "" {
			r.ID = key
		}
	})
}

func (r *registrationRepository) Create(ctx context.Context, req *domain.RegistrationRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return r.db.Set(ctx, registrationPath(req.ID), req)
}

func (r *registrationRepository) GetByID(ctx context.Context, id string) (*domain.RegistrationRequest, error) {
	snap, err := r.db.Get(ctx, registrationPath(id))
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, repository.ErrNotFound
	}
	var req domain.RegistrationRequest
	if err := snap.Unmarshal(&req); err != nil {
		return nil, fmt.Errorf("failed to decode registration %s: %w", id, err)
	}
	if req.ID == "" {
		req.ID = id
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *registrationRepository) List(ctx context.Context) ([]domain.RegistrationRequest, error) {
	snap, err := r.db.Get(ctx, repository.RegistrationsPath)
	if err != nil {
		return nil, err
	}
	return decodeRegistrations(snap)
}

func (r *registrationRepository) ListByUser(ctx context.Context, userID domain.ID) ([]domain.RegistrationRequest, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var own []domain.RegistrationRequest
	for _, req := range all {
		if req.UserID == userID {
			own = append(own, req)
		}
	}
	return own, nil
}

func (r *registrationRepository) UpdateStatus(ctx context.Context, id string, status domain.RegistrationStatus, at time.Time) error {
	return r.db.Update(ctx, registrationPath(id), map[string]any{
		"status":    status,
		"updatedAt": at.UTC().Format(time.RFC3339Nano),
	})
}

func (r *registrationRepository) Delete(ctx context.Context, id string) error {
	return r.db.Delete(ctx, registrationPath(id))
}

func (r *registrationRepository) Watch(ctx context.Context, fn func([]domain.RegistrationRequest)) (realtime.Subscription, error) {
	return r.db.Subscribe(ctx, repository.RegistrationsPath, func(snap realtime.Snapshot) {
		regs, err := decodeRegistrations(snap)
		if err != nil {
			logger.Warn("Dropping undecodable registrations update", "error", err)
			return
		}
		fn(regs)
	})
}
