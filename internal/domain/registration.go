package domain

import (
	"fmt"
	"strings"
	"time"
)

type RegistrationStatus string

const (
	RegistrationStatusPending  RegistrationStatus = "pending"
	RegistrationStatusApproved RegistrationStatus = "approved"
	RegistrationStatusDenied   RegistrationStatus = "denied"
)

func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationStatusPending, RegistrationStatusApproved, RegistrationStatusDenied:
		return true
	}
	return false
}

type RegistrationRequest struct {
	ID             string             `json:"id"`
	UserID         ID                 `json:"userId"`
	StudentName    string             `json:"studentName"`
	StudentNumber  string             `json:"studentNumber"`
	YearLevel      YearLevel          `json:"schoolYear"`
	MembershipFee  float64            `json:"membershipFee"`
	ProofOfPayment string             `json:"proofOfPayment"`
	Status         RegistrationStatus `json:"status"`
	SubmittedAt    time.Time          `json:"submittedAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
	SubmittedBy    string             `json:"submittedBy"`
}

// Validate is applied to every request read from the store.
func (r *RegistrationRequest) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: registration id is empty", ErrMalformedRecord)
	case r.UserID == "":
		return fmt.Errorf("%w: registration %s has no owner", ErrMalformedRecord, r.ID)
	case strings.TrimSpace(r.StudentNumber) == "":
		return fmt.Errorf("%w: registration %s has no student number", ErrMalformedRecord, r.ID)
	case !r.Status.Valid():
		return fmt.Errorf("%w: registration %s has status %q", ErrMalformedRecord, r.ID, r.Status)
	}
	return nil
}

// RegistrationID builds the store key for a user's submission.
func RegistrationID(userID ID, at time.Time) string {
	return fmt.Sprintf("reg_%s_%d", userID, at.UnixMilli())
}

// StrandedApproval is a pending request whose student number is already held
// by a member, left behind when an approval failed after the roster write.
type StrandedApproval struct {
	RequestID     string `json:"request_id"`
	StudentNumber string `json:"student_number"`
	MemberID      ID     `json:"member_id"`
	ControlNumber string `json:"control_number"`
}

type ReconcileReport struct {
	StrandedApprovals []StrandedApproval `json:"stranded_approvals"`
	PoolConflicts     []string           `json:"pool_conflicts"`
	Repaired          bool               `json:"repaired"`
}

func (r *ReconcileReport) Clean() bool {
	return len(r.StrandedApprovals) == 0 && len(r.PoolConflicts) == 0
}
