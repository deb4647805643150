package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/statussync"
)

func TestAdminService_ApproveMintsControlNumber(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "ana@example.com")
	req := env.seedRequest(t, "u1", "2021-0001", june15)
	env.email.On("SendRegistrationDecision", mock.Anything, "ana@example.com", "Student 2021-0001",
		domain.RegistrationStatusApproved, "CN-06-15-001").Return(nil)

	member, err := env.admin(nil).Approve(env.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "CN-06-15-001", member.ControlNumber)
	assert.Equal(t, "2024-06-15", member.RegistrationDate)
	assert.Equal(t, domain.YearLevelSecond, member.YearLevel)

	got, err := env.store.Registrations.GetByID(env.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationStatusApproved, got.Status)

	roster, err := env.store.Roster.Load(env.ctx)
	require.NoError(t, err)
	require.Len(t, roster.Members, 1)
	assert.Equal(t, member.ID, roster.Members[0].ID)
	env.email.AssertExpectations(t)
}

func TestAdminService_ApproveRecyclesLowestFirst(t *testing.T) {
	env := newTestEnv(t)
	req := env.seedRequest(t, "u1", "2021-0009", june15)
	env.seedRoster(t, &domain.Roster{
		Members:  []domain.Member{{ID: "m1", Name: "Held", StudentNumber: "1", ControlNumber: "CN-06-15-001"}},
		Recycled: []string{"CN-06-02-002", "CN-06-01-001"},
	})
	env.email.On("SendRegistrationDecision", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	member, err := env.admin(nil).Approve(env.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "CN-06-01-001", member.ControlNumber)

	pool, err := env.admin(nil).Pool(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CN-06-02-002"}, pool)
}

func TestAdminService_ApproveRejections(t *testing.T) {
	env := newTestEnv(t)
	svc := env.admin(nil)

	_, err := svc.Approve(env.ctx, "reg_missing_1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Request not found!", Message(err))

	dup := env.seedRequest(t, "u1", "2021-0001", june15)
	env.seedRoster(t, &domain.Roster{Members: []domain.Member{
		{ID: "m1", Name: "Existing", StudentNumber: "2021-0001", ControlNumber: "CN-06-01-001"},
	}})
	_, err = svc.Approve(env.ctx, dup.ID)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Student number already exists!", Message(err))

	roster, err := env.store.Roster.Load(env.ctx)
	require.NoError(t, err)
	assert.Len(t, roster.Members, 1, "rejected approvals must not touch the roster")
}

func TestAdminService_ApproveLogsFailedExit(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithWriter(&buf, "debug", "json")
	t.Cleanup(func() { logger.Initialize("info", "text") })

	env := newTestEnv(t)
	req := env.seedRequest(t, "u1", "2021-0001", june15)
	env.seedRoster(t, &domain.Roster{Members: []domain.Member{
		{ID: "m1", Name: "Existing", StudentNumber: "2021-0001", ControlNumber: "CN-06-01-001"},
	}})
	_, err := env.admin(nil).Approve(env.ctx, req.ID)
	require.ErrorIs(t, err, ErrValidation)

	var exits []map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var entry map[string]any
		require.NoError(t, dec.Decode(&entry))
		if entry["method"] == "adminService.Approve" && entry["event"] == "exit" {
			exits = append(exits, entry)
		}
	}
	require.Len(t, exits, 1)
	assert.Equal(t, "Student number already exists!", exits[0]["error"])
}

func TestAdminService_PartialApprovalAndReconcile(t *testing.T) {
	env := newTestEnv(t)
	req := env.seedRequest(t, "u1", "2021-0001", june15)
	broken := env.admin(&failingStatusRepo{RegistrationRepository: env.store.Registrations, err: errors.New("connection reset")})

	member, err := broken.Approve(env.ctx, req.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialApproval)
	require.NotNil(t, member)
	assert.Equal(t, "CN-06-15-001", member.ControlNumber)
	env.email.AssertNotCalled(t, "SendRegistrationDecision")

	got, err := env.store.Registrations.GetByID(env.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationStatusPending, got.Status)

	svc := env.admin(nil)
	report, err := svc.Reconcile(env.ctx, false)
	require.NoError(t, err)
	require.Len(t, report.StrandedApprovals, 1)
	assert.Equal(t, req.ID, report.StrandedApprovals[0].RequestID)
	assert.Equal(t, member.ID, report.StrandedApprovals[0].MemberID)
	assert.False(t, report.Repaired)

	report, err = svc.Reconcile(env.ctx, true)
	require.NoError(t, err)
	assert.True(t, report.Repaired)
	got, err = env.store.Registrations.GetByID(env.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationStatusApproved, got.Status)

	report, err = svc.Reconcile(env.ctx, true)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.False(t, report.Repaired)
}

func TestAdminService_ReconcilePoolConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoster(t, &domain.Roster{
		Members:  []domain.Member{{ID: "m1", Name: "Held", StudentNumber: "1", ControlNumber: "CN-06-15-001"}},
		Recycled: []string{"CN-06-15-001", "CN-06-01-001"},
	})
	svc := env.admin(nil)

	report, err := svc.Reconcile(env.ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"CN-06-15-001"}, report.PoolConflicts)
	assert.True(t, report.Repaired)

	pool, err := svc.Pool(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CN-06-01-001"}, pool)
}

func TestAdminService_Deny(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "ana@example.com")
	req := env.seedRequest(t, "u1", "2021-0001", june15)
	env.email.On("SendRegistrationDecision", mock.Anything, "ana@example.com", mock.Anything,
		domain.RegistrationStatusDenied, "").Return(errors.New("smtp down"))
	svc := env.admin(nil)

	require.NoError(t, svc.Deny(env.ctx, req.ID), "email failures are not fatal")
	got, err := env.store.Registrations.GetByID(env.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationStatusDenied, got.Status)

	require.NoError(t, svc.Deny(env.ctx, req.ID), "denying again does nothing")
	env.email.AssertNumberOfCalls(t, "SendRegistrationDecision", 1)
	roster, err := env.store.Roster.Load(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, roster.Members)
	assert.ErrorIs(t, svc.Deny(env.ctx, "reg_missing_1"), ErrNotFound)
	env.email.AssertExpectations(t)
}

// noteListener collects the statuses a synchronizer announces.
type noteListener struct {
	mu    sync.Mutex
	notes []domain.RegistrationStatus
}

func (l *noteListener) ShowView(statussync.View) {}

func (l *noteListener) ShowNotification(n statussync.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes = append(l.notes, n.Status)
}

func (l *noteListener) DismissNotification(string) {}

func (l *noteListener) statuses() []domain.RegistrationStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.RegistrationStatus(nil), l.notes...)
}

func (e *testEnv) watch(t *testing.T, userID domain.ID) *noteListener {
	t.Helper()
	l := &noteListener{}
	s := statussync.New(statussync.SessionKey{UserID: userID}, e.store.Registrations, e.lastSeen, l, statussync.Options{})
	require.NoError(t, s.Start(e.ctx))
	t.Cleanup(s.Stop)
	return l
}

func TestAdminService_DenyAfterApprove(t *testing.T) {
	env := newTestEnv(t)
	req := env.seedRequest(t, "u1", "2021-0001", june15)
	env.email.On("SendRegistrationDecision", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	seen := env.watch(t, "u1")
	svc := env.admin(nil)

	member, err := svc.Approve(env.ctx, req.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Deny(env.ctx, req.ID))

	got, err := env.store.Registrations.GetByID(env.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationStatusDenied, got.Status)
	assert.Equal(t, []domain.RegistrationStatus{domain.RegistrationStatusApproved, domain.RegistrationStatusDenied}, seen.statuses())

	roster, err := env.store.Roster.Load(env.ctx)
	require.NoError(t, err)
	require.Len(t, roster.Members, 1, "the member created by the approval stays")
	assert.Equal(t, member.ID, roster.Members[0].ID)
}

func TestAdminService_ApproveAfterDeny(t *testing.T) {
	env := newTestEnv(t)
	req := env.seedRequest(t, "u1", "2021-0001", june15)
	env.email.On("SendRegistrationDecision", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	seen := env.watch(t, "u1")
	svc := env.admin(nil)

	require.NoError(t, svc.Deny(env.ctx, req.ID))
	member, err := svc.Approve(env.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "CN-06-15-001", member.ControlNumber)

	got, err := env.store.Registrations.GetByID(env.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationStatusApproved, got.Status)
	assert.Equal(t, []domain.RegistrationStatus{domain.RegistrationStatusDenied, domain.RegistrationStatusApproved}, seen.statuses())

	_, err = svc.Approve(env.ctx, req.ID)
	assert.ErrorIs(t, err, ErrValidation, "an approved request is not minted twice")
	roster, err := env.store.Roster.Load(env.ctx)
	require.NoError(t, err)
	assert.Len(t, roster.Members, 1)
}

func TestAdminService_ListRequests(t *testing.T) {
	env := newTestEnv(t)
	older := env.seedRequest(t, "u1", "1", june15.Add(-time.Hour))
	newer := env.seedRequest(t, "u2", "2", june15)
	require.NoError(t, env.store.Registrations.UpdateStatus(env.ctx, older.ID, domain.RegistrationStatusApproved, june15))
	svc := env.admin(nil)

	all, err := svc.ListRequests(env.ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.True(t, strings.HasPrefix(all[0].ProofURL, "http://localhost:8080/files/proofs/"))

	pending, err := svc.ListRequests(env.ctx, domain.RegistrationStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, newer.ID, pending[0].ID)

	_, err = svc.ListRequests(env.ctx, "archived")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdminService_RegisterMemberAvoidsCollisions(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoster(t, &domain.Roster{Members: []domain.Member{
		{ID: "m1", Name: "A", StudentNumber: "1", ControlNumber: "CN-06-15-001"},
		{ID: "m2", Name: "B", StudentNumber: "2", ControlNumber: "CN-06-15-002"},
	}})
	svc := env.admin(nil)

	m, err := svc.RegisterMember(env.ctx, MemberInput{Name: " Cy ", StudentNumber: "3", YearLevel: domain.YearLevelThird, MembershipFee: fee(20)})
	require.NoError(t, err)
	assert.Equal(t, "CN-06-15-003", m.ControlNumber)
	assert.Equal(t, "Cy", m.Name)

	_, err = svc.RegisterMember(env.ctx, MemberInput{Name: "Dup", StudentNumber: "3", YearLevel: domain.YearLevelThird, MembershipFee: fee(20)})
	assert.ErrorIs(t, err, ErrValidation)

	tests := []struct {
		name string
		in   MemberInput
	}{
		{"missing number", MemberInput{Name: "X", YearLevel: domain.YearLevelFirst, MembershipFee: fee(20)}},
		{"missing name", MemberInput{StudentNumber: "9", YearLevel: domain.YearLevelFirst, MembershipFee: fee(20)}},
		{"missing fee", MemberInput{Name: "X", StudentNumber: "9", YearLevel: domain.YearLevelFirst}},
		{"bad year", MemberInput{Name: "X", StudentNumber: "9", YearLevel: "5th Year", MembershipFee: fee(20)}},
		{"negative fee", MemberInput{Name: "X", StudentNumber: "9", YearLevel: domain.YearLevelFirst, MembershipFee: fee(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterMember(env.ctx, tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAdminService_RegisterMemberExhaustion(t *testing.T) {
	env := newTestEnv(t)
	members := make([]domain.Member, 0, 999)
	for i := 1; i <= 999; i++ {
		members = append(members, domain.Member{
			ID: domain.ID(fmt.Sprintf("m%03d", i)), Name: "N", StudentNumber: fmt.Sprint(i),
			ControlNumber: fmt.Sprintf("CN-06-15-%03d", i),
		})
	}
	env.seedRoster(t, &domain.Roster{Members: members})

	_, err := env.admin(nil).RegisterMember(env.ctx, MemberInput{Name: "Late", StudentNumber: "1000", YearLevel: domain.YearLevelFirst, MembershipFee: fee(20)})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAdminService_UpdateMember(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoster(t, &domain.Roster{Members: []domain.Member{
		{ID: "m1", Name: "A", StudentNumber: "1", YearLevel: domain.YearLevelFirst, MembershipFee: 20, ControlNumber: "CN-06-01-001"},
		{ID: "m2", Name: "B", StudentNumber: "2", YearLevel: domain.YearLevelFirst, MembershipFee: 20, ControlNumber: "CN-06-01-002"},
	}})
	svc := env.admin(nil)

	_, err := svc.UpdateMember(env.ctx, "m1", MemberInput{Name: "A", StudentNumber: "2", YearLevel: domain.YearLevelFirst})
	assert.ErrorIs(t, err, ErrValidation)

	m, err := svc.UpdateMember(env.ctx, "m1", MemberInput{Name: "Anne", StudentNumber: "1", YearLevel: domain.YearLevelFourth})
	require.NoError(t, err)
	assert.Equal(t, "CN-06-01-001", m.ControlNumber)
	assert.Equal(t, "Anne", m.Name)
	assert.Zero(t, m.MembershipFee)

	_, err = svc.UpdateMember(env.ctx, "nobody", MemberInput{Name: "X", StudentNumber: "7", YearLevel: domain.YearLevelFirst})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminService_DeleteFreesExactlyOneNumber(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoster(t, &domain.Roster{
		Members: []domain.Member{
			{ID: "m1", Name: "A", StudentNumber: "1", ControlNumber: "CN-06-02-002"},
			{ID: "m2", Name: "B", StudentNumber: "2"},
		},
		Recycled: []string{"CN-06-03-001"},
	})
	svc := env.admin(nil)

	require.NoError(t, svc.DeleteMember(env.ctx, "m1"))
	pool, err := svc.Pool(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CN-06-02-002", "CN-06-03-001"}, pool)

	require.NoError(t, svc.DeleteMember(env.ctx, "m2"))
	pool, err = svc.Pool(env.ctx)
	require.NoError(t, err)
	assert.Len(t, pool, 2, "a member without a control number frees nothing")

	assert.ErrorIs(t, svc.DeleteMember(env.ctx, "m1"), ErrNotFound)

	require.NoError(t, svc.DeleteAllMembers(env.ctx))
	pool, err = svc.Pool(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, pool)
}

func TestAdminService_DeleteKeepsSharedNumberOutOfPool(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoster(t, &domain.Roster{Members: []domain.Member{
		{ID: "m1", Name: "A", StudentNumber: "1", ControlNumber: "CN-06-02-002"},
		{ID: "m2", Name: "B", StudentNumber: "2", ControlNumber: "CN-06-02-002"},
	}})
	svc := env.admin(nil)

	require.NoError(t, svc.DeleteMember(env.ctx, "m1"))
	pool, err := svc.Pool(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, pool, "m2 still holds the number")

	env.email.On("SendRegistrationDecision", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	req := env.seedRequest(t, "u1", "3", june15)
	member, err := svc.Approve(env.ctx, req.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "CN-06-02-002", member.ControlNumber)

	require.NoError(t, svc.DeleteMember(env.ctx, "m2"))
	pool, err = svc.Pool(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CN-06-02-002"}, pool)
}

func TestAdminService_ImportSkipsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	svc := env.admin(nil)
	csvData := "Control Number,Name,Student Number,Year Level,Fee,Date\n" +
		"CN-06-01-001,Ana,2021-0001,1st Year,20,2024-06-01\n" +
		"CN-06-01-002,Ana Again,2021-0001,1st Year,20,2024-06-01\n" +
		"CN-06-01-001,Ben,2021-0002,2nd Year,20,2024-06-01\n" +
		"CN-06-01-003,Cy,2021-0003,3rd Year,20,2024-06-01\n" +
		"short,row\n"

	res, err := svc.ImportCSV(env.ctx, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Loaded)
	assert.Equal(t, 3, res.Skipped)

	roster, err := env.store.Roster.Load(env.ctx)
	require.NoError(t, err)
	require.Len(t, roster.Members, 2)
	byName := map[string]domain.Member{}
	for _, m := range roster.Members {
		byName[m.Name] = m
	}
	require.Contains(t, byName, "Ana")
	require.Contains(t, byName, "Cy")
	assert.Equal(t, "CN-06-01-001", byName["Ana"].ControlNumber)

	// Deleting the only holder frees the number exactly once.
	require.NoError(t, svc.DeleteMember(env.ctx, byName["Ana"].ID))
	pool, err := svc.Pool(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CN-06-01-001"}, pool)
}

func TestAdminService_ListAndStats(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoster(t, &domain.Roster{Members: []domain.Member{
		{ID: "m1", Name: "Ana Cruz", StudentNumber: "2021-001", YearLevel: domain.YearLevelFirst, MembershipFee: 20, ControlNumber: "CN-06-01-001"},
		{ID: "m2", Name: "Ben", StudentNumber: "2021-002", YearLevel: domain.YearLevelSecond, MembershipFee: 25.5, ControlNumber: "CN-06-01-002"},
		{ID: "m3", Name: "Cy", StudentNumber: "2019-003", YearLevel: "Graduate", MembershipFee: 10, ControlNumber: "CN-06-02-001"},
	}})
	svc := env.admin(nil)

	found, err := svc.ListMembers(env.ctx, domain.MemberFilter{Search: "cruz"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, domain.ID("m1"), found[0].ID)

	found, err = svc.ListMembers(env.ctx, domain.MemberFilter{Search: "cn-06-01"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	stats, err := svc.Stats(env.ctx, domain.MemberFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalMembers)
	assert.InDelta(t, 55.5, stats.TotalRevenue, 1e-9)
	assert.Equal(t, map[domain.YearLevel]int{
		domain.YearLevelFirst: 1, domain.YearLevelSecond: 1, domain.YearLevelThird: 0, domain.YearLevelFourth: 0,
	}, stats.YearCounts)

	stats, err = svc.Stats(env.ctx, domain.MemberFilter{YearLevel: domain.YearLevelSecond})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMembers)
	assert.InDelta(t, 25.5, stats.TotalRevenue, 1e-9)
}

func TestAdminService_ExportImport(t *testing.T) {
	env := newTestEnv(t)
	svc := env.admin(nil)

	var buf bytes.Buffer
	_, err := svc.ExportCSV(env.ctx, domain.MemberFilter{}, &buf)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "No data to save!", Message(err))

	env.seedRoster(t, &domain.Roster{
		Members: []domain.Member{
			{ID: "m1", Name: `Cruz, "JD"`, StudentNumber: "1", YearLevel: domain.YearLevelFirst, MembershipFee: 20, ControlNumber: "CN-06-01-001", RegistrationDate: "2024-06-01"},
			{ID: "m2", Name: "Ben", StudentNumber: "2", YearLevel: domain.YearLevelSecond, MembershipFee: 25, ControlNumber: "CN-06-01-002", RegistrationDate: "2024-06-01"},
		},
		Recycled: []string{"CN-05-01-001"},
	})

	filename, err := svc.ExportCSV(env.ctx, domain.MemberFilter{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "membership_data_2024-06-15.csv", filename)

	res, err := svc.ImportCSV(env.ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Loaded)

	roster, err := env.store.Roster.Load(env.ctx)
	require.NoError(t, err)
	require.Len(t, roster.Members, 2)
	assert.Empty(t, roster.Recycled, "import clears the pool")
	names := []string{roster.Members[0].Name, roster.Members[1].Name}
	assert.ElementsMatch(t, []string{`Cruz, "JD"`, "Ben"}, names)
	for _, m := range roster.Members {
		assert.NotEqual(t, domain.ID("m1"), m.ID)
		assert.NotEqual(t, domain.ID("m2"), m.ID)
	}

	_, err = svc.ImportCSV(env.ctx, strings.NewReader("  \n"))
	assert.ErrorIs(t, err, ErrValidation)
}
