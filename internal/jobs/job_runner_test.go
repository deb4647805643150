package jobs

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"membership-backend/internal/config"
	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/service"
)

type MockAdminService struct {
	service.AdminService
	mock.Mock
}

func (m *MockAdminService) Reconcile(ctx context.Context, repair bool) (*domain.ReconcileReport, error) {
	args := m.Called(ctx, repair)
	report, _ := args.Get(0).(*domain.ReconcileReport)
	return report, args.Error(1)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newRunner(admin service.AdminService, pingErr error, repair bool) *JobRunner {
	cfg := &config.Config{}
	cfg.Scheduler.Repair = repair
	return NewJobRunner(admin, stubPinger{err: pingErr}, cfg)
}

func TestReconcileRoster_UsesRepairSetting(t *testing.T) {
	admin := &MockAdminService{}
	admin.On("Reconcile", mock.Anything, true).Return(&domain.ReconcileReport{
		StrandedApprovals: []domain.StrandedApproval{{RequestID: "reg_u1_1", StudentNumber: "1"}},
		Repaired:          true,
	}, nil).Once()

	require.NoError(t, newRunner(admin, nil, true).ReconcileRoster())
	admin.AssertExpectations(t)
}

func TestReconcileRoster_ReturnsServiceError(t *testing.T) {
	admin := &MockAdminService{}
	admin.On("Reconcile", mock.Anything, false).Return(nil, service.ErrUnavailable).Once()

	err := newRunner(admin, nil, false).ReconcileRoster()
	assert.ErrorIs(t, err, service.ErrUnavailable)
}

func TestRunWithRecovery_CatchesPanic(t *testing.T) {
	jr := newRunner(&MockAdminService{}, nil, false)
	err := jr.runWithRecovery("boom", func(context.Context) error {
		panic("nil roster")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil roster")
}

func TestRunByName(t *testing.T) {
	admin := &MockAdminService{}
	admin.On("Reconcile", mock.Anything, false).Return(&domain.ReconcileReport{}, nil)

	jr := newRunner(admin, nil, false)
	assert.NoError(t, jr.RunByName(JobAll))
	assert.NoError(t, jr.RunByName(JobVerifyStore))
	assert.Error(t, jr.RunByName("rebuild-everything"))

	down := newRunner(admin, errors.New("dial tcp: refused"), false)
	assert.Error(t, down.RunByName(JobVerifyStore))
	assert.Error(t, down.RunByName(JobAll))
	admin.AssertNumberOfCalls(t, "Reconcile", 1)
}

func TestJobLogsCarryService(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithWriter(&buf, "info", "json")
	t.Cleanup(func() { logger.Initialize("info", "text") })

	jr := newRunner(&MockAdminService{}, errors.New("dial tcp: refused"), false)
	require.Error(t, jr.VerifyStore())

	assert.Contains(t, buf.String(), `"service":"jobs"`)
	assert.Contains(t, buf.String(), `"msg":"Job failed"`)
}
