package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"membership-backend/internal/controlnumber"
	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/metrics"
	"membership-backend/internal/repository"
	"membership-backend/internal/rostercsv"
)

type adminService struct {
	regRepo    repository.RegistrationRepository
	rosterRepo repository.RosterRepository
	userRepo   repository.UserRepository
	images     *ImageStorage
	alloc      *controlnumber.Allocator
	emailSvc   EmailService
	metrics    *metrics.Recorder
	newID      func() domain.ID
	now        func() time.Time
}

func NewAdminService(
	regRepo repository.RegistrationRepository,
	rosterRepo repository.RosterRepository,
	userRepo repository.UserRepository,
	images *ImageStorage,
	alloc *controlnumber.Allocator,
	emailSvc EmailService,
	rec *metrics.Recorder,
) AdminService {
	return &adminService{
		regRepo:    regRepo,
		rosterRepo: rosterRepo,
		userRepo:   userRepo,
		images:     images,
		alloc:      alloc,
		emailSvc:   emailSvc,
		metrics:    rec,
		newID:      newTimeOrderedID,
		now:        time.Now,
	}
}

func (s *adminService) ListRequests(ctx context.Context, status domain.RegistrationStatus) ([]RegistrationDetails, error) {
	if status != "" && !status.Valid() {
		return nil, validationError("Unknown status %q", status)
	}
	regs, err := s.regRepo.List(ctx)
	if err != nil {
		return nil, storeError("list registrations", err)
	}
	out := make([]RegistrationDetails, 0, len(regs))
	for _, r := range regs {
		if status != "" && r.Status != status {
			continue
		}
		url, err := s.images.URL(ctx, r.ProofOfPayment)
		if err != nil {
			logger.Warn("Failed to resolve proof url", "registration_id", r.ID, "error", err)
		}
		out = append(out, RegistrationDetails{RegistrationRequest: r, ProofURL: url})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (s *adminService) request(ctx context.Context, requestID string) (*domain.RegistrationRequest, error) {
	req, err := s.regRepo.GetByID(ctx, requestID)
	if err != nil {
		if err = storeError("get registration", err); isNotFound(err) {
			return nil, notFoundError("Request not found!")
		}
		return nil, err
	}
	return req, nil
}

// allocate hands out a control number and updates roster.Recycled to match.
func (s *adminService) allocate(roster *domain.Roster) (string, controlnumber.Source, error) {
	pool := controlnumber.NewPool(roster.Recycled)
	taken := make([]string, 0, len(roster.Members))
	for _, m := range roster.Members {
		taken = append(taken, m.ControlNumber)
	}
	number, src, err := s.alloc.Allocate(pool, taken)
	if err != nil {
		return "", "", err
	}
	roster.Recycled = pool.Numbers()
	return number, src, nil
}

func studentNumberTaken(members []domain.Member, number string, except domain.ID) bool {
	for _, m := range members {
		if m.StudentNumber == number && m.ID != except {
			return true
		}
	}
	return false
}

// Approve turns a request into a member whatever its current status. A
// student number already on the roster is rejected, which also keeps a
// request from being minted twice. The roster write and the status write are
// separate; when the second fails the member exists and ErrPartialApproval is
// returned along with it.
func (s *adminService) Approve(ctx context.Context, requestID string) (*domain.Member, error) {
	logger.EnterMethod("adminService.Approve", "request_id", requestID)

	req, err := s.request(ctx, requestID)
	if err != nil {
		logger.ExitMethodWithError("adminService.Approve", err)
		return nil, err
	}
	roster, err := s.rosterRepo.Load(ctx)
	if err != nil {
		err = storeError("load roster", err)
		logger.ExitMethodWithError("adminService.Approve", err)
		return nil, err
	}
	if studentNumberTaken(roster.Members, req.StudentNumber, "") {
		err = validationError("Student number already exists!")
		logger.ExitMethodWithError("adminService.Approve", err)
		return nil, err
	}

	number, src, err := s.allocate(roster)
	if err != nil {
		err = storeError("allocate control number", err)
		logger.ExitMethodWithError("adminService.Approve", err)
		return nil, err
	}
	member := domain.Member{
		ID:               s.newID(),
		Name:             req.StudentName,
		StudentNumber:    req.StudentNumber,
		YearLevel:        req.YearLevel,
		MembershipFee:    req.MembershipFee,
		ControlNumber:    number,
		RegistrationDate: s.alloc.Today().Format("2006-01-02"),
	}
	roster.Members = append(roster.Members, member)
	if err := s.rosterRepo.Save(ctx, roster); err != nil {
		err = storeError("save roster", err)
		logger.ExitMethodWithError("adminService.Approve", err)
		return nil, err
	}
	s.metrics.ControlNumberAllocated(string(src))

	if err := s.regRepo.UpdateStatus(ctx, requestID, domain.RegistrationStatusApproved, s.now()); err != nil {
		s.metrics.ApprovalPartiallyFailed()
		logger.Error("Approval left request unchanged after member was created",
			"request_id", requestID, "status", req.Status, "member_id", member.ID, "control_number", number, "error", err)
		err = fmt.Errorf("%w: request %s, member %s (%s): %w", ErrPartialApproval, requestID, member.ID, number, err)
		logger.ExitMethodWithError("adminService.Approve", err)
		return &member, err
	}

	s.metrics.RegistrationDecided(string(domain.RegistrationStatusApproved))
	logger.ExitMethod("adminService.Approve", "member_id", member.ID, "control_number", number, "source", src)
	s.notifyDecision(ctx, req, domain.RegistrationStatusApproved, number)
	return &member, nil
}

// Deny marks the request denied. A member created by an earlier approval
// stays on the roster. Denying a denied request does nothing.
func (s *adminService) Deny(ctx context.Context, requestID string) error {
	req, err := s.request(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status == domain.RegistrationStatusDenied {
		return nil
	}
	if err := s.regRepo.UpdateStatus(ctx, requestID, domain.RegistrationStatusDenied, s.now()); err != nil {
		return storeError("update registration", err)
	}
	s.metrics.RegistrationDecided(string(domain.RegistrationStatusDenied))
	logger.Info("Registration denied", "request_id", requestID, "previous", req.Status)
	s.notifyDecision(ctx, req, domain.RegistrationStatusDenied, "")
	return nil
}

// notifyDecision emails the request owner. Failures are logged only.
func (s *adminService) notifyDecision(ctx context.Context, req *domain.RegistrationRequest, status domain.RegistrationStatus, controlNumber string) {
	if s.emailSvc == nil {
		return
	}
	user, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		logger.Warn("Skipping decision email, owner not found", "user_id", req.UserID, "error", err)
		return
	}
	if err := s.emailSvc.SendRegistrationDecision(ctx, user.Email, req.StudentName, status, controlNumber); err != nil {
		logger.Warn("Failed to send decision email", "user_id", req.UserID, "error", err)
	}
}

func validateMemberInput(in *MemberInput, requireFee bool) error {
	in.Name = strings.TrimSpace(in.Name)
	in.StudentNumber = strings.TrimSpace(in.StudentNumber)
	if in.StudentNumber == "" {
		return validationError("Student number is required!")
	}
	if in.Name == "" || in.YearLevel == "" || (requireFee && in.MembershipFee == nil) {
		return validationError("Please fill in all required fields!")
	}
	if !in.YearLevel.Valid() {
		return validationError("Unknown year level %q", in.YearLevel)
	}
	if in.MembershipFee != nil && *in.MembershipFee < 0 {
		return validationError("Membership fee cannot be negative")
	}
	return nil
}

func (s *adminService) RegisterMember(ctx context.Context, in MemberInput) (*domain.Member, error) {
	if err := validateMemberInput(&in, true); err != nil {
		return nil, err
	}
	roster, err := s.rosterRepo.Load(ctx)
	if err != nil {
		return nil, storeError("load roster", err)
	}
	if studentNumberTaken(roster.Members, in.StudentNumber, "") {
		return nil, validationError("Student number already exists!")
	}

	number, src, err := s.allocate(roster)
	if err != nil {
		return nil, storeError("allocate control number", err)
	}
	member := domain.Member{
		ID:               s.newID(),
		Name:             in.Name,
		StudentNumber:    in.StudentNumber,
		YearLevel:        in.YearLevel,
		MembershipFee:    *in.MembershipFee,
		ControlNumber:    number,
		RegistrationDate: s.alloc.Today().Format("2006-01-02"),
	}
	roster.Members = append(roster.Members, member)
	if err := s.rosterRepo.Save(ctx, roster); err != nil {
		return nil, storeError("save roster", err)
	}
	s.metrics.ControlNumberAllocated(string(src))
	logger.Info("Member registered", "member_id", member.ID, "control_number", number, "source", src)
	return &member, nil
}

// UpdateMember edits a member's details. The control number never changes.
func (s *adminService) UpdateMember(ctx context.Context, id domain.ID, in MemberInput) (*domain.Member, error) {
	if err := validateMemberInput(&in, false); err != nil {
		return nil, err
	}
	roster, err := s.rosterRepo.Load(ctx)
	if err != nil {
		return nil, storeError("load roster", err)
	}
	idx := indexOfMember(roster.Members, id)
	if idx < 0 {
		return nil, notFoundError("Student not found!")
	}
	if studentNumberTaken(roster.Members, in.StudentNumber, id) {
		return nil, validationError("Student number already exists!")
	}

	m := &roster.Members[idx]
	m.Name = in.Name
	m.StudentNumber = in.StudentNumber
	m.YearLevel = in.YearLevel
	m.MembershipFee = 0
	if in.MembershipFee != nil {
		m.MembershipFee = *in.MembershipFee
	}
	if err := s.rosterRepo.SaveMembers(ctx, roster.Members); err != nil {
		return nil, storeError("save members", err)
	}
	updated := *m
	return &updated, nil
}

// DeleteMember removes the member and frees its control number unless
// another member still holds it.
func (s *adminService) DeleteMember(ctx context.Context, id domain.ID) error {
	roster, err := s.rosterRepo.Load(ctx)
	if err != nil {
		return storeError("load roster", err)
	}
	idx := indexOfMember(roster.Members, id)
	if idx < 0 {
		return notFoundError("Student not found!")
	}
	deleted := roster.Members[idx]
	roster.Members = append(roster.Members[:idx], roster.Members[idx+1:]...)

	freed := ""
	if !controlNumberHeld(roster.Members, deleted.ControlNumber) {
		pool := controlnumber.NewPool(roster.Recycled)
		pool.Free(deleted.ControlNumber)
		roster.Recycled = pool.Numbers()
		freed = deleted.ControlNumber
	}

	if err := s.rosterRepo.Save(ctx, roster); err != nil {
		return storeError("save roster", err)
	}
	logger.Info("Member deleted", "member_id", id, "control_number", deleted.ControlNumber, "freed", freed)
	return nil
}

// DeleteAllMembers empties the roster and the recycled pool.
func (s *adminService) DeleteAllMembers(ctx context.Context) error {
	if err := s.rosterRepo.Save(ctx, &domain.Roster{}); err != nil {
		return storeError("save roster", err)
	}
	logger.Info("All members deleted")
	return nil
}

func controlNumberHeld(members []domain.Member, number string) bool {
	if number == "" {
		return false
	}
	for _, m := range members {
		if m.ControlNumber == number {
			return true
		}
	}
	return false
}

func indexOfMember(members []domain.Member, id domain.ID) int {
	for i := range members {
		if members[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *adminService) ListMembers(ctx context.Context, filter domain.MemberFilter) ([]domain.Member, error) {
	roster, err := s.rosterRepo.Load(ctx)
	if err != nil {
		return nil, storeError("load roster", err)
	}
	out := make([]domain.Member, 0, len(roster.Members))
	for i := range roster.Members {
		if filter.Matches(&roster.Members[i]) {
			out = append(out, roster.Members[i])
		}
	}
	return out, nil
}

// Stats summarises the members matching filter. Members with a year level
// outside the enumeration count toward totals but not toward YearCounts.
func (s *adminService) Stats(ctx context.Context, filter domain.MemberFilter) (*domain.Stats, error) {
	members, err := s.ListMembers(ctx, filter)
	if err != nil {
		return nil, err
	}
	stats := &domain.Stats{YearCounts: make(map[domain.YearLevel]int, len(domain.YearLevels))}
	for _, y := range domain.YearLevels {
		stats.YearCounts[y] = 0
	}
	for _, m := range members {
		stats.TotalMembers++
		stats.TotalRevenue += m.MembershipFee
		if _, ok := stats.YearCounts[m.YearLevel]; ok {
			stats.YearCounts[m.YearLevel]++
		}
	}
	return stats, nil
}

func (s *adminService) ExportCSV(ctx context.Context, filter domain.MemberFilter, w io.Writer) (string, error) {
	members, err := s.ListMembers(ctx, filter)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return "", validationError("No data to save!")
	}
	if err := rostercsv.Write(w, members); err != nil {
		return "", fmt.Errorf("failed to write csv: %w", err)
	}
	return rostercsv.Filename(s.alloc.Today()), nil
}

// ImportCSV replaces the roster with the file's members and clears the pool.
// A row repeating an earlier row's student number or control number is
// skipped.
func (s *adminService) ImportCSV(ctx context.Context, r io.Reader) (*ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, validationError("The file appears to be empty!")
	}
	res, err := rostercsv.Read(bytes.NewReader(data), s.newID)
	if err != nil {
		return nil, validationError("Failed to load CSV file: %v", err)
	}
	members, dups := uniqueMembers(res.Members)
	if err := s.rosterRepo.Save(ctx, &domain.Roster{Members: members}); err != nil {
		return nil, storeError("save roster", err)
	}
	logger.Info("Roster imported", "loaded", len(members), "skipped", res.Skipped+dups, "duplicates", dups)
	return &ImportResult{Loaded: len(members), Skipped: res.Skipped + dups}, nil
}

// uniqueMembers keeps the first member for each student number and control
// number and reports how many were dropped.
func uniqueMembers(members []domain.Member) ([]domain.Member, int) {
	students := make(map[string]struct{}, len(members))
	numbers := make(map[string]struct{}, len(members))
	out := make([]domain.Member, 0, len(members))
	for _, m := range members {
		_, dupStudent := students[m.StudentNumber]
		_, dupNumber := numbers[m.ControlNumber]
		if (m.StudentNumber != "" && dupStudent) || (m.ControlNumber != "" && dupNumber) {
			logger.Warn("Skipping duplicate roster row", "student_number", m.StudentNumber, "control_number", m.ControlNumber)
			continue
		}
		if m.StudentNumber != "" {
			students[m.StudentNumber] = struct{}{}
		}
		if m.ControlNumber != "" {
			numbers[m.ControlNumber] = struct{}{}
		}
		out = append(out, m)
	}
	return out, len(members) - len(out)
}

func (s *adminService) Pool(ctx context.Context) ([]string, error) {
	roster, err := s.rosterRepo.Load(ctx)
	if err != nil {
		return nil, storeError("load roster", err)
	}
	return controlnumber.NewPool(roster.Recycled).Numbers(), nil
}

// Reconcile finds pending requests whose student number already belongs to a
// member, and pool entries that a current member holds. With repair set, the
// requests are marked approved and the entries are dropped from the pool.
func (s *adminService) Reconcile(ctx context.Context, repair bool) (*domain.ReconcileReport, error) {
	regs, err := s.regRepo.List(ctx)
	if err != nil {
		return nil, storeError("list registrations", err)
	}
	roster, err := s.rosterRepo.Load(ctx)
	if err != nil {
		return nil, storeError("load roster", err)
	}

	byNumber := make(map[string]domain.Member, len(roster.Members))
	held := make(map[string]struct{}, len(roster.Members))
	for _, m := range roster.Members {
		byNumber[m.StudentNumber] = m
		if m.ControlNumber != "" {
			held[m.ControlNumber] = struct{}{}
		}
	}

	report := &domain.ReconcileReport{
		StrandedApprovals: []domain.StrandedApproval{},
		PoolConflicts:     []string{},
	}
	for _, r := range regs {
		if r.Status != domain.RegistrationStatusPending {
			continue
		}
		if m, ok := byNumber[r.StudentNumber]; ok {
			report.StrandedApprovals = append(report.StrandedApprovals, domain.StrandedApproval{
				RequestID:     r.ID,
				StudentNumber: r.StudentNumber,
				MemberID:      m.ID,
				ControlNumber: m.ControlNumber,
			})
		}
	}
	sort.Slice(report.StrandedApprovals, func(i, j int) bool {
		return report.StrandedApprovals[i].RequestID < report.StrandedApprovals[j].RequestID
	})
	pool := controlnumber.NewPool(roster.Recycled)
	for _, n := range pool.Numbers() {
		if _, ok := held[n]; ok {
			report.PoolConflicts = append(report.PoolConflicts, n)
		}
	}

	s.metrics.ReconcileFindings("stranded_approval", len(report.StrandedApprovals))
	s.metrics.ReconcileFindings("pool_conflict", len(report.PoolConflicts))
	if !report.Clean() {
		logger.Warn("Reconcile found inconsistencies",
			"stranded_approvals", len(report.StrandedApprovals), "pool_conflicts", len(report.PoolConflicts), "repair", repair)
	}
	if !repair || report.Clean() {
		return report, nil
	}

	for _, st := range report.StrandedApprovals {
		if err := s.regRepo.UpdateStatus(ctx, st.RequestID, domain.RegistrationStatusApproved, s.now()); err != nil {
			return report, storeError("repair registration", err)
		}
	}
	if len(report.PoolConflicts) > 0 {
		for _, n := range report.PoolConflicts {
			pool.Remove(n)
		}
		if err := s.rosterRepo.SavePool(ctx, pool.Numbers()); err != nil {
			return report, storeError("repair pool", err)
		}
	}
	report.Repaired = true
	logger.Info("Reconcile repaired inconsistencies",
		"stranded_approvals", len(report.StrandedApprovals), "pool_conflicts", len(report.PoolConflicts))
	return report, nil
}
