// Package relay runs scrape sessions: it guards the single session slot,
// delivers selected posts to the scrape chat and promotes relayed posts
// into the select chat.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	kit "birdrelay/internal/transport"
)

var (
	ErrBusy          = errors.New("a session is already running")
	ErrNotConfigured = errors.New("scrape channel is not configured")
	ErrWrongChannel  = errors.New("command is not from the scrape channel")
)

// Rejection is returned when the guard refuses to start a session.
// Reason is one of ErrBusy, ErrNotConfigured or ErrWrongChannel.
type Rejection struct {
	Reason error
}

func (r *Rejection) Error() string { return "session rejected: " + r.Reason.Error() }
func (r *Rejection) Unwrap() error { return r.Reason }

// UserMessage is the chat answer for the rejection.
func (r *Rejection) UserMessage() string {
	switch {
	case errors.Is(r.Reason, ErrBusy):
		return "Still busy working on last command."
	case errors.Is(r.Reason, ErrNotConfigured):
		return "Set the channel first"
	case errors.Is(r.Reason, ErrWrongChannel):
		return "Wrong channel!"
	}
	return r.Reason.Error()
}

type Mode string

const (
	ModeBest   Mode = "best"
	ModeImages Mode = "images"
)

func (m Mode) Valid() bool { return m == ModeBest || m == ModeImages }

// SessionInfo describes the work of a session.
type SessionInfo struct {
	Mode    Mode
	Handle  string
	Count   int
	Dest    kit.ChatTarget
	Trigger string
}

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	Busy      bool           `json:"busy"`
	Cancelled bool           `json:"cancelled"`
	Mode      Mode           `json:"mode,omitempty"`
	Handle    string         `json:"handle,omitempty"`
	Count     int            `json:"count,omitempty"`
	Dest      string         `json:"dest,omitempty"`
	Trigger   string         `json:"trigger,omitempty"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	Total     int            `json:"total"`
	Sent      int            `json:"sent"`
	Failed    int            `json:"failed"`
	Last      *FinishedState `json:"last,omitempty"`
}

// FinishedState summarizes the most recent finished session.
type FinishedState struct {
	Mode       Mode      `json:"mode"`
	Handle     string    `json:"handle"`
	FinishedAt time.Time `json:"finished_at"`
	Report     Report    `json:"report"`
}

// Session is the single in-flight scrape slot.
//
// The guard decision and the transition to busy happen under one mutex, so two
// concurrent Begin calls can never both succeed.
type Session struct {
	mu        sync.Mutex
	busy      bool
	cancelled bool
	cancel    context.CancelFunc
	done      chan struct{}

	info    SessionInfo
	started time.Time
	total   int
	sent    int
	failed  int
	last    *FinishedState

	now func() time.Time
}

func NewSession() *Session {
	return &Session{now: time.Now}
}

// Check runs the guard without changing state. origin is the chat the request
// came from, scrape the configured scrape chat (zero when unset).
func (s *Session) Check(origin, scrape kit.ChatTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(origin, scrape)
}

func (s *Session) checkLocked(origin, scrape kit.ChatTarget) error {
	switch {
	case s.busy:
		return &Rejection{Reason: ErrBusy}
	case scrape.IsZero():
		return &Rejection{Reason: ErrNotConfigured}
	case !scrape.Contains(origin.ChatID, origin.ThreadID):
		return &Rejection{Reason: ErrWrongChannel}
	}
	return nil
}

// Begin runs the guard and, when it passes, marks the session busy with a
// cleared stop flag. The returned context is cancelled by Cancel or Finish.
func (s *Session) Begin(parent context.Context, origin, scrape kit.ChatTarget, info SessionInfo) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(origin, scrape); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancelled = false
	s.busy = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.info = info
	s.started = s.now()
	s.total, s.sent, s.failed = 0, 0, 0
	return ctx, nil
}

// Cancel requests the running session to stop. It reports false (and changes
// nothing) when no session is running.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		return false
	}
	s.cancelled = true
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

// Stopped reports whether a stop was requested for the current session.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// SetTotal records how many posts the session is about to deliver.
func (s *Session) SetTotal(n int) {
	s.mu.Lock()
	s.total = n
	s.mu.Unlock()
}

// Progress records one delivered or failed post.
func (s *Session) Progress(ok bool) {
	s.mu.Lock()
	if ok {
		s.sent++
	} else {
		s.failed++
	}
	s.mu.Unlock()
}

// Finish releases the slot and records rep as the last result.
func (s *Session) Finish(rep Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		return
	}
	s.busy = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.last = &FinishedState{Mode: s.info.Mode, Handle: s.info.Handle, FinishedAt: s.now(), Report: rep}
}

// Done returns a channel closed when the running session finishes, or nil
// when idle.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Busy: s.busy, Cancelled: s.cancelled}
	if s.last != nil {
		cp := *s.last
		snap.Last = &cp
	}
	if !s.busy {
		return snap
	}
	snap.Mode = s.info.Mode
	snap.Handle = s.info.Handle
	snap.Count = s.info.Count
	snap.Dest = s.info.Dest.String()
	snap.Trigger = s.info.Trigger
	snap.StartedAt = s.started
	snap.Total = s.total
	snap.Sent = s.sent
	snap.Failed = s.failed
	return snap
}
