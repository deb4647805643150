package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/repository"
	"membership-backend/internal/security"
	"membership-backend/internal/statussync"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 6

// AdminID is the user id carried by administrator sessions.
const AdminID domain.ID = "admin"

// AdminCredentials is the configured administrator login.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// SessionCloser ends a user's live status sessions.
type SessionCloser interface {
	CloseUser(userID domain.ID)
}

type authService struct {
	userRepo repository.UserRepository
	tokens   security.TokenManager
	admin    AdminCredentials
	lastSeen statussync.LastSeenStore
	sessions SessionCloser
	newID    func() domain.ID
	now      func() time.Time
}

func NewAuthService(
	userRepo repository.UserRepository,
	tokens security.TokenManager,
	admin AdminCredentials,
	lastSeen statussync.LastSeenStore,
	sessions SessionCloser,
) AuthService {
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		admin:    admin,
		lastSeen: lastSeen,
		sessions: sessions,
		newID:    newTimeOrderedID,
		now:      time.Now,
	}
}

// newTimeOrderedID returns a UUIDv7 so ids sort in creation order.
func newTimeOrderedID() domain.ID {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.ID(uuid.NewString())
	}
	return domain.ID(id.String())
}

func (s *authService) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)

	switch {
	case email == "" || username == "" || in.Password == "" || in.ConfirmPassword == "":
		return nil, validationError("Please fill in all fields!")
	case !emailPattern.MatchString(email):
		return nil, validationError("Please enter a valid email address!")
	case in.Password != in.ConfirmPassword:
		return nil, validationError("Passwords do not match!")
	case len(in.Password) < minPasswordLength:
		return nil, validationError("Password must be at least 6 characters long!")
	}

	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, storeError("list users", err)
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return nil, validationError("Email already exists!")
		}
		if strings.EqualFold(u.Username, username) {
			return nil, validationError("Username already exists!")
		}
	}
	if strings.EqualFold(username, s.admin.Username) {
		return nil, validationError("Username already exists!")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           s.newID(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, storeError("create user", err)
	}
	logger.Info("User signed up", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (s *authService) Login(ctx context.Context, identifier, password string) (*domain.Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, validationError("Please fill in all fields!")
	}

	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, storeError("list users", err)
	}
	var user *domain.User
	for i := range users {
		if strings.EqualFold(users[i].Email, identifier) || strings.EqualFold(users[i].Username, identifier) {
			user = &users[i]
			break
		}
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user.ID, user.Username, user.Role())
}

func (s *authService) AdminLogin(ctx context.Context, username, password string) (*domain.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, validationError("Please fill in all fields!")
	}
	if s.admin.PasswordHash == "" {
		logger.Warn("Admin login attempted but no admin password hash is configured")
		return nil, ErrInvalidCredentials
	}
	if username != s.admin.Username {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(AdminID, s.admin.Username, domain.RoleAdmin)
}

// Logout forgets the user's last-seen status and ends their live sessions.
func (s *authService) Logout(ctx context.Context, userID domain.ID) error {
	if s.sessions != nil {
		s.sessions.CloseUser(userID)
	}
	if userID == AdminID || s.lastSeen == nil {
		return nil
	}
	if err := s.lastSeen.ClearUser(ctx, userID); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *authService) issue(userID domain.ID, username string, role domain.Role) (*domain.Session, error) {
	token, expiresAt, err := s.tokens.GenerateAccessToken(string(userID), username, string(role))
	if err != nil {
		return nil, err
	}
	return &domain.Session{
		UserID:      userID,
		Username:    username,
		Role:        role,
		AccessToken: token,
		ExpiresAt:   expiresAt.Unix(),
	}, nil
}
