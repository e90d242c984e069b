package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avoronel/relaychat/internal/domain"
)

var ErrBadTransition = errors.New("illegal session state transition")

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed // terminal
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is one connected client's server-side handle: identity meta, the
// signaling transport, the bounded outbound queue and the lifecycle state
// machine connecting -> open -> closing -> closed.
type Session struct {
	ID   SessionID
	User *domain.User

	conn  SignalConnection
	queue *Queue

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

func NewSession(id SessionID, user *domain.User, conn SignalConnection, queue *Queue) *Session {
	return &Session{
		ID:    id,
		User:  user,
		conn:  conn,
		queue: queue,
		state: StateConnecting,
	}
}

func (s *Session) Conn() SignalConnection { return s.conn }
func (s *Session) Queue() *Queue          { return s.queue }

// BindCancel attaches the cancel func of the connection context so a forced
// disconnect can stop the session's own pumps and nothing else.
func (s *Session) BindCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open moves connecting -> open.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return ErrBadTransition
	}
	s.state = StateOpen
	return nil
}

// BeginClose moves connecting/open -> closing and cancels the session's
// pumps. Returns false when already closing or closed, which makes every
// disconnect path idempotent.
func (s *Session) BeginClose() bool {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosing
	cancel := s.cancel
	s.mu.Unlock()

	s.queue.CloseIntake()
	if cancel != nil {
		cancel()
	}
	return true
}

// MarkClosed moves closing -> closed once queued deliveries are flushed or
// the drain timeout elapsed. Tolerates a direct jump from earlier states so
// a transport that dies before open still terminates.
func (s *Session) MarkClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

// Enqueue routes a fan-out envelope into the session's queue, refusing once
// the session started closing.
func (s *Session) Enqueue(env *domain.Envelope, mode QueueMode, timeout time.Duration) EnqueueOutcome {
	if s.State() >= StateClosing {
		return OutcomeClosed
	}
	return s.queue.Enqueue(env, mode, timeout)
}
