package service

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/repository"
	"membership-backend/internal/statussync"
)

type registrationService struct {
	regRepo  repository.RegistrationRepository
	images   *ImageStorage
	lastSeen statussync.LastSeenStore
	now      func() time.Time
}

func NewRegistrationService(regRepo repository.RegistrationRepository, images *ImageStorage, lastSeen statussync.LastSeenStore) RegistrationService {
	return &registrationService{
		regRepo:  regRepo,
		images:   images,
		lastSeen: lastSeen,
		now:      time.Now,
	}
}

func (s *registrationService) UploadProof(ctx context.Context, userID domain.ID, filename, contentType string, r io.Reader) (*ProofUpload, error) {
	logger.EnterMethod("registrationService.UploadProof", "user_id", userID, "filename", filename)
	up, err := s.images.Upload(ctx, filename, contentType, r)
	if err != nil {
		logger.ExitMethodWithError("registrationService.UploadProof", err)
		return nil, err
	}
	logger.ExitMethod("registrationService.UploadProof", "ref", up.Ref)
	return up, nil
}

func (s *registrationService) Submit(ctx context.Context, userID domain.ID, submittedBy string, in RegistrationInput) (*domain.RegistrationRequest, error) {
	name := strings.TrimSpace(in.StudentName)
	number := strings.TrimSpace(in.StudentNumber)
	if name == "" || number == "" || in.YearLevel == "" || in.MembershipFee == nil {
		return nil, validationError("Please fill in all fields!")
	}
	if !in.YearLevel.Valid() {
		return nil, validationError("Unknown year level %q", in.YearLevel)
	}
	if *in.MembershipFee < 0 {
		return nil, validationError("Membership fee cannot be negative")
	}
	if strings.TrimSpace(in.ProofOfPayment) == "" {
		return nil, validationError("Please upload proof of payment!")
	}

	existing, err := s.regRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError("list registrations", err)
	}
	if len(existing) > 0 {
		return nil, conflictError("You already have a registration request")
	}

	now := s.now().UTC()
	req := &domain.RegistrationRequest{
		ID:             domain.RegistrationID(userID, now),
		UserID:         userID,
		StudentName:    name,
		StudentNumber:  number,
		YearLevel:      in.YearLevel,
		MembershipFee:  *in.MembershipFee,
		ProofOfPayment: in.ProofOfPayment,
		Status:         domain.RegistrationStatusPending,
		SubmittedAt:    now,
		UpdatedAt:      now,
		SubmittedBy:    submittedBy,
	}
	// Forget statuses of earlier requests so no client announces the new
	// one; it is first observed as pending.
	if err := s.lastSeen.ClearUser(ctx, userID); err != nil {
		logger.Warn("Failed to clear last seen status", "user_id", userID, "error", err)
	}
	if err := s.regRepo.Create(ctx, req); err != nil {
		return nil, storeError("create registration", err)
	}
	logger.Info("Registration submitted", "registration_id", req.ID, "user_id", userID)
	return req, nil
}

func (s *registrationService) own(ctx context.Context, userID domain.ID) ([]domain.RegistrationRequest, error) {
	regs, err := s.regRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError("list registrations", err)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].SubmittedAt.After(regs[j].SubmittedAt) })
	return regs, nil
}

func (s *registrationService) Get(ctx context.Context, userID domain.ID) (*RegistrationDetails, error) {
	regs, err := s.own(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, notFoundError("No registration request")
	}
	url, err := s.images.URL(ctx, regs[0].ProofOfPayment)
	if err != nil {
		logger.Warn("Failed to resolve proof url", "registration_id", regs[0].ID, "error", err)
	}
	return &RegistrationDetails{RegistrationRequest: regs[0], ProofURL: url}, nil
}

// Discard deletes the user's requests so they can register again. It is a
// no-op apart from clearing last-seen when there is nothing to delete.
func (s *registrationService) Discard(ctx context.Context, userID domain.ID) error {
	regs, err := s.own(ctx, userID)
	if err != nil {
		return err
	}
	for _, r := range regs {
		if err := s.regRepo.Delete(ctx, r.ID); err != nil {
			return storeError("delete registration", err)
		}
	}
	if err := s.lastSeen.ClearUser(ctx, userID); err != nil {
		logger.Warn("Failed to clear last seen status", "user_id", userID, "error", err)
	}
	logger.Info("Registration discarded", "user_id", userID, "count", len(regs))
	return nil
}
