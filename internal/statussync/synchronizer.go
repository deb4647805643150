// Package statussync keeps a user's view of their registration request in
// step with the realtime database and raises a one-shot notification each
// time the request's status changes.
package statussync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/metrics"
	"membership-backend/internal/realtime"
)

// DefaultNotificationTTL is how long a notification stays up unless dismissed.
const DefaultNotificationTTL = 7 * time.Second

var ErrAlreadyStarted = errors.New("synchronizer already started")

type ViewKind string

const (
	ViewForm   ViewKind = "form"
	ViewStatus ViewKind = "status"
)

// View is what the user should currently see: the registration form when
// they own no request, otherwise the status card for their request.
type View struct {
	Kind         ViewKind                    `json:"kind"`
	Registration *domain.RegistrationRequest `json:"registration,omitempty"`
}

type Notification struct {
	ID        string                    `json:"id"`
	Status    domain.RegistrationStatus `json:"status"`
	Title     string                    `json:"title"`
	Message   string                    `json:"message"`
	ExpiresAt time.Time                 `json:"expiresAt"`
}

// Listener receives the synchronizer's output. Calls are serialized and
// must not call back into the synchronizer.
type Listener interface {
	ShowView(View)
	ShowNotification(Notification)
	DismissNotification(id string)
}

// Watcher delivers the full registration set on subscribe and on every
// change after that.
type Watcher interface {
	Watch(ctx context.Context, fn func([]domain.RegistrationRequest)) (realtime.Subscription, error)
}

// NotificationText returns the title and message shown for a status.
func NotificationText(status domain.RegistrationStatus) (title, message string) {
	switch status {
	case domain.RegistrationStatusApproved:
		return "Request Approved!", "Congratulations! Your membership request has been approved."
	case domain.RegistrationStatusDenied:
		return "Request Denied", "Your membership request has been denied. Please contact admin for more information."
	default:
		return "Request Pending", "Your membership request is being reviewed."
	}
}

type Options struct {
	TTL     time.Duration
	Metrics *metrics.Recorder
	// AfterFunc schedules f after d and returns a function that cancels it.
	// Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
	Now       func() time.Time
}

type toast struct {
	id   string
	stop func() bool
}

// Synchronizer follows one user's registration for one viewing session.
// Every update from the watcher goes through handle, which holds mu for the
// whole step.
type Synchronizer struct {
	key      SessionKey
	userID   domain.ID
	watcher  Watcher
	lastSeen LastSeenStore
	listener Listener
	ttl      time.Duration
	metrics  *metrics.Recorder
	after    func(time.Duration, func()) func() bool
	now      func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	sub     realtime.Subscription
	started bool
	stopped bool
	current *domain.RegistrationRequest
	toast   *toast
	seq     int
	done    chan struct{}

	// seen is the status this session last showed. It is loaded from
	// lastSeen once, so sessions sharing a key never consume each other's
	// transitions.
	seen       domain.RegistrationStatus
	seenKnown  bool
	seenLoaded bool
}

func New(key SessionKey, watcher Watcher, lastSeen LastSeenStore, listener Listener, opts Options) *Synchronizer {
	s := &Synchronizer{
		key:      key,
		userID:   key.UserID,
		watcher:  watcher,
		lastSeen: lastSeen,
		listener: listener,
		ttl:      opts.TTL,
		metrics:  opts.Metrics,
		after:    opts.AfterFunc,
		now:      opts.Now,
		done:     make(chan struct{}),
	}
	if s.ttl <= 0 {
		s.ttl = DefaultNotificationTTL
	}
	if s.after == nil {
		s.after = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Start subscribes to registration updates. The first delivery happens
// before Start returns.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	subCtx := s.ctx
	s.mu.Unlock()

	sub, err := s.watcher.Watch(subCtx, s.handle)
	if err != nil {
		s.Stop()
		return fmt.Errorf("failed to watch registrations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		sub.Unsubscribe()
		return nil
	}
	s.sub = sub
	s.metrics.SessionStarted()
	return nil
}

// Stop cancels the subscription and any pending notification timer.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.done)
	sub := s.sub
	s.sub = nil
	if s.toast != nil {
		s.toast.stop()
		s.toast = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
		s.metrics.SessionEnded()
	}
}

// Done is closed once the synchronizer stops.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

// Current returns the request being displayed, or nil for the form view.
func (s *Synchronizer) Current() *domain.RegistrationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// Dismiss hides the notification with the given id if it is still showing.
func (s *Synchronizer) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.toast == nil || s.toast.id != id {
		return false
	}
	s.toast.stop()
	s.toast = nil
	s.listener.DismissNotification(id)
	return true
}

func (s *Synchronizer) handle(regs []domain.RegistrationRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	own := latestOwned(regs, s.userID)
	if own == nil {
		// A discarded request starts the next one from an undefined status.
		s.current = nil
		s.seenKnown = false
		s.listener.ShowView(View{Kind: ViewForm})
		return
	}
	s.current = own
	s.listener.ShowView(View{Kind: ViewStatus, Registration: own})

	if !s.seenLoaded {
		s.seenLoaded = true
		last, ok, err := s.lastSeen.Get(s.ctx, s.key)
		if err != nil {
			logger.Warn("Failed to read last seen status", "user_id", s.userID, "client_id", s.key.ClientID, "error", err)
			ok = false
		}
		s.seen, s.seenKnown = last, ok
	}
	if s.seenKnown && s.seen != own.Status {
		s.notify(own)
	}
	s.seen, s.seenKnown = own.Status, true
	if err := s.lastSeen.Set(s.ctx, s.key, own.Status); err != nil {
		logger.Warn("Failed to store last seen status", "user_id", s.userID, "client_id", s.key.ClientID, "error", err)
	}
}

// notify replaces any showing notification with one for req's status.
func (s *Synchronizer) notify(req *domain.RegistrationRequest) {
	if s.toast != nil {
		s.toast.stop()
		s.listener.DismissNotification(s.toast.id)
		s.toast = nil
	}

	s.seq++
	title, message := NotificationText(req.Status)
	n := Notification{
		ID:        fmt.Sprintf("%s-%d", req.ID, s.seq),
		Status:    req.Status,
		Title:     title,
		Message:   message,
		ExpiresAt: s.now().Add(s.ttl),
	}
	t := &toast{id: n.ID}
	t.stop = s.after(s.ttl, func() { s.expire(n.ID) })
	s.toast = t

	logger.Info("Registration status changed", "user_id", s.userID, "registration_id", req.ID, "status", req.Status)
	s.metrics.NotificationShown(string(req.Status))
	s.listener.ShowNotification(n)
}

func (s *Synchronizer) expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.toast == nil || s.toast.id != id {
		return
	}
	s.toast = nil
	s.listener.DismissNotification(id)
}

// latestOwned picks the user's most recently submitted request.
func latestOwned(regs []domain.RegistrationRequest, userID domain.ID) *domain.RegistrationRequest {
	var own *domain.RegistrationRequest
	for i := range regs {
		r := regs[i]
		if r.UserID != userID {
			continue
		}
		if own == nil || r.SubmittedAt.After(own.SubmittedAt) {
			own = &r
		}
	}
	return own
}
