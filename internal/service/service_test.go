package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"membership-backend/internal/controlnumber"
	"membership-backend/internal/domain"
	"membership-backend/internal/realtime"
	"membership-backend/internal/repository"
	"membership-backend/internal/repository/rtdb"
	"membership-backend/internal/statussync"
	"membership-backend/internal/storage"
)

type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendRegistrationDecision(ctx context.Context, email, name string, status domain.RegistrationStatus, controlNumber string) error {
	args := m.Called(ctx, email, name, status, controlNumber)
	return args.Error(0)
}

type MockSessionCloser struct {
	mock.Mock
}

func (m *MockSessionCloser) CloseUser(userID domain.ID) {
	m.Called(userID)
}

// failingStatusRepo lets every call through except UpdateStatus.
type failingStatusRepo struct {
	repository.RegistrationRepository
	err error
}

func (r *failingStatusRepo) UpdateStatus(ctx context.Context, id string, status domain.RegistrationStatus, at time.Time) error {
	return r.err
}

var june15 = time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	ctx      context.Context
	db       *realtime.MemoryStore
	store    *rtdb.Store
	files    *storage.MockStorageService
	images   *ImageStorage
	alloc    *controlnumber.Allocator
	email    *MockEmailService
	lastSeen *statussync.MemoryLastSeenStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := realtime.NewMemoryStore()
	t.Cleanup(func() { db.Close() })
	files, err := storage.NewMockStorageService("http://localhost:8080", t.TempDir(), "test-secret")
	require.NoError(t, err)
	return &testEnv{
		ctx:      context.Background(),
		db:       db,
		store:    rtdb.NewStore(db),
		files:    files,
		images:   NewImageStorage(files, 1<<20, time.Hour),
		alloc:    controlnumber.NewAllocator(time.UTC).WithClock(func() time.Time { return june15 }),
		email:    &MockEmailService{},
		lastSeen: statussync.NewMemoryLastSeenStore(),
	}
}

func (e *testEnv) admin(regRepo repository.RegistrationRepository) *adminService {
	if regRepo == nil {
		regRepo = e.store.Registrations
	}
	svc := NewAdminService(regRepo, e.store.Roster, e.store.Users, e.images, e.alloc, e.email, nil).(*adminService)
	svc.now = func() time.Time { return june15 }
	return svc
}

func (e *testEnv) seedUser(t *testing.T, id domain.ID, email string) {
	t.Helper()
	require.NoError(t, e.store.Users.Create(e.ctx, &domain.User{
		ID: id, Email: email, Username: string(id), PasswordHash: "$2a$04$hash", CreatedAt: june15,
	}))
}

func (e *testEnv) seedRequest(t *testing.T, userID domain.ID, studentNumber string, at time.Time) *domain.RegistrationRequest {
	t.Helper()
	req := &domain.RegistrationRequest{
		ID: domain.RegistrationID(userID, at), UserID: userID, StudentName: "Student " + studentNumber,
		StudentNumber: studentNumber, YearLevel: domain.YearLevelSecond, MembershipFee: 20,
		ProofOfPayment: "proofs/1_receipt.png", Status: domain.RegistrationStatusPending,
		SubmittedAt: at, UpdatedAt: at, SubmittedBy: string(userID),
	}
	require.NoError(t, e.store.Registrations.Create(e.ctx, req))
	return req
}

func (e *testEnv) seedRoster(t *testing.T, roster *domain.Roster) {
	t.Helper()
	require.NoError(t, e.store.Roster.Save(e.ctx, roster))
}

func fee(f float64) *float64 { return &f }
