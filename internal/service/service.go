package service

import (
	"context"
	"io"

	"membership-backend/internal/domain"
)

type SignupInput struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
}

type AuthService interface {
	Signup(ctx context.Context, in SignupInput) (*domain.User, error)
	// Login accepts an email or username as identifier.
	Login(ctx context.Context, identifier, password string) (*domain.Session, error)
	AdminLogin(ctx context.Context, username, password string) (*domain.Session, error)
	Logout(ctx context.Context, userID domain.ID) error
}

type RegistrationInput struct {
	StudentName    string
	StudentNumber  string
	YearLevel      domain.YearLevel
	MembershipFee  *float64
	ProofOfPayment string
}

type ProofUpload struct {
	Ref string `json:"ref"`
	URL string `json:"url"`
}

// RegistrationDetails is a request together with a resolved proof URL.
type RegistrationDetails struct {
	domain.RegistrationRequest
	ProofURL string `json:"proofUrl,omitempty"`
}

type RegistrationService interface {
	UploadProof(ctx context.Context, userID domain.ID, filename, contentType string, r io.Reader) (*ProofUpload, error)
	Submit(ctx context.Context, userID domain.ID, submittedBy string, in RegistrationInput) (*domain.RegistrationRequest, error)
	Get(ctx context.Context, userID domain.ID) (*RegistrationDetails, error)
	Discard(ctx context.Context, userID domain.ID) error
}

type MemberInput struct {
	Name          string
	StudentNumber string
	YearLevel     domain.YearLevel
	MembershipFee *float64
}

type ImportResult struct {
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
}

type AdminService interface {
	ListRequests(ctx context.Context, status domain.RegistrationStatus) ([]RegistrationDetails, error)
	Approve(ctx context.Context, requestID string) (*domain.Member, error)
	Deny(ctx context.Context, requestID string) error

	RegisterMember(ctx context.Context, in MemberInput) (*domain.Member, error)
	UpdateMember(ctx context.Context, id domain.ID, in MemberInput) (*domain.Member, error)
	DeleteMember(ctx context.Context, id domain.ID) error
	DeleteAllMembers(ctx context.Context) error
	ListMembers(ctx context.Context, filter domain.MemberFilter) ([]domain.Member, error)
	Stats(ctx context.Context, filter domain.MemberFilter) (*domain.Stats, error)

	ExportCSV(ctx context.Context, filter domain.MemberFilter, w io.Writer) (filename string, err error)
	ImportCSV(ctx context.Context, r io.Reader) (*ImportResult, error)

	Pool(ctx context.Context) ([]string, error)
	Reconcile(ctx context.Context, repair bool) (*domain.ReconcileReport, error)
}

type EmailService interface {
	SendRegistrationDecision(ctx context.Context, email, name string, status domain.RegistrationStatus, controlNumber string) error
}
