package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/statussync"
)

// backlogWarn is the queue length at which a slow reader gets logged.
const backlogWarn = 32

const maxClientIDLength = 64

type sseEvent struct {
	name string
	data any
}

// eventStream adapts synchronizer callbacks to a queue drained by the SSE
// handler. Callbacks never block. A queued view is replaced by a newer one
// since each view carries the whole state; notifications and dismissals are
// always kept.
type eventStream struct {
	userID domain.ID

	mu     sync.Mutex
	queue  []sseEvent
	warned bool
	ready  chan struct{}
}

func newEventStream(userID domain.ID) *eventStream {
	return &eventStream{userID: userID, ready: make(chan struct{}, 1)}
}

func (s *eventStream) push(ev sseEvent) {
	s.mu.Lock()
	if ev.name == "view" {
		kept := s.queue[:0]
		for _, q := range s.queue {
			if q.name != "view" {
				kept = append(kept, q)
			}
		}
		s.queue = kept
	}
	s.queue = append(s.queue, ev)
	if len(s.queue) >= backlogWarn && !s.warned {
		s.warned = true
		logger.Warn("Status stream backlog growing, client is not reading", "user_id", s.userID, "queued", len(s.queue))
	}
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// drain takes every queued event in order.
func (s *eventStream) drain() []sseEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	s.warned = false
	return out
}

func (s *eventStream) ShowView(v statussync.View) {
	s.push(sseEvent{name: "view", data: v})
}

func (s *eventStream) ShowNotification(n statussync.Notification) {
	s.push(sseEvent{name: "notification", data: n})
}

func (s *eventStream) DismissNotification(id string) {
	s.push(sseEvent{name: "dismiss", data: map[string]string{"id": id}})
}

func writeEvent(w http.ResponseWriter, ev sseEvent) error {
	data, err := json.Marshal(ev.data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, data)
	return err
}

// clientID names the viewing client so its last-seen status is kept apart
// from the user's other devices. Clients without one share a slot.
func clientID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("client_id"))
	if id == "" {
		id = strings.TrimSpace(r.Header.Get("X-Client-ID"))
	}
	return id, len(id) <= maxClientIDLength
}

// RegistrationEvents streams the caller's registration view and status
// notifications for as long as the connection stays open.
func (h *Handlers) RegistrationEvents(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	client, ok := clientID(r)
	if !ok {
		h.errorJSON(w, r, http.StatusBadRequest, fmt.Sprintf("client_id must be at most %d characters", maxClientIDLength), nil)
		return
	}
	stream := newEventStream(id)
	rc := http.NewResponseController(w)

	key := statussync.SessionKey{UserID: id, ClientID: client}
	session, release, err := h.sessions.Open(r.Context(), key, stream)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	defer release()

	// Long-lived stream; the server's write timeout must not cut it.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.WarnContext(r.Context(), "Streaming not supported by response writer", "error", err)
		return
	}

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-session.Done():
			_ = writeEvent(w, sseEvent{name: "close", data: map[string]string{"reason": "session ended"}})
			_ = rc.Flush()
			return
		case <-stream.ready:
			for _, ev := range stream.drain() {
				if err := writeEvent(w, ev); err != nil {
					logger.Debug("Status stream write failed", "user_id", id, "error", err)
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
