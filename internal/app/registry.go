package app

import (
	"errors"
	"sync"
	"time"

	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrCapacityExceeded = errors.New("connection capacity exceeded")

type EventKind int

const (
	EventRegistered EventKind = iota
	EventDeregistered
)

// Event is a lifecycle notification emitted on register/deregister and
// consumed by the lifecycle manager.
type Event struct {
	Kind EventKind
	SID  core.SessionID
}

type sessionEntry struct {
	RoomName domain.RoomName
	Session  *core.Session
}

// userEntry refcounts the sessions behind one client token so idle
// identities can be swept once the last session is gone.
type userEntry struct {
	user      *domain.User
	sessions  int
	idleSince time.Time
}

// Registry tracks active sessions and their room association, bounded by a
// configured connection capacity. Operations on the same session id are
// linearized by the registry mutex. Users are keyed by the client token so
// a display identity survives reconnects even though sessions never do.
type Registry struct {
	max    int
	events chan Event

	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	users    map[string]*userEntry
}

func NewRegistry(maxConnections int) *Registry {
	return &Registry{
		max:      maxConnections,
		events:   make(chan Event, 64),
		sessions: make(map[core.SessionID]*sessionEntry),
		users:    make(map[string]*userEntry),
	}
}

// Events is consumed by the lifecycle manager's run loop.
func (r *Registry) Events() <-chan Event { return r.events }

// Register binds a new session, failing when the capacity bound is hit.
func (r *Registry) Register(sess *core.Session) error {
	r.mu.Lock()
	if len(r.sessions) >= r.max {
		r.mu.Unlock()
		return ErrCapacityExceeded
	}
	r.sessions[sess.ID] = &sessionEntry{Session: sess}
	if e, ok := r.users[string(sess.User.ID)]; ok {
		e.sessions++
		e.idleSince = time.Time{}
	}
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID)).Msg("registered session")
	r.emit(Event{Kind: EventRegistered, SID: sess.ID})
	return nil
}

// Deregister is idempotent; absent ids are a no-op and emit nothing.
func (r *Registry) Deregister(sid core.SessionID) {
	r.mu.Lock()
	e, ok := r.sessions[sid]
	delete(r.sessions, sid)
	if ok {
		if ue, has := r.users[string(e.Session.User.ID)]; has {
			ue.sessions--
			if ue.sessions <= 0 {
				ue.sessions = 0
				ue.idleSince = time.Now()
			}
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("deregistered session")
	r.emit(Event{Kind: EventDeregistered, SID: sid})
}

func (r *Registry) Lookup(sid core.SessionID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.RoomName == "" {
		return "", false
	}
	return e.RoomName, true
}

func (r *Registry) UpdateRoom(sid core.SessionID, room domain.RoomName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.RoomName = room
	return true
}

func (r *Registry) ClearRoom(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.RoomName = ""
	}
}

// GetOrCreateUser resolves the display identity behind a client token.
// A fresh identity starts its idle clock immediately; Register clears it.
func (r *Registry) GetOrCreateUser(token string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.users[token]; ok {
		return e.user
	}
	u := &domain.User{ID: domain.UserID(token), Username: domain.DefaultUsername}
	r.users[token] = &userEntry{user: u, idleSince: time.Now()}
	log.Info().Str("module", "app.registry").Str("token", token).Msg("created new user")
	return u
}

func (r *Registry) UpdateUsername(token, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[token]
	if !ok {
		return nil
	}
	if err := e.user.SetUsername(name); err != nil {
		return err
	}
	log.Info().Str("module", "app.registry").Str("token", token).Str("username", name).Msg("updated username")
	return nil
}

// SweepUsers drops identities with no live session that have been idle
// longer than ttl, and reports how many. A display name survives quick
// reconnects, not an extended absence.
func (r *Registry) SweepUsers(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for token, e := range r.users {
		if e.sessions == 0 && !e.idleSince.IsZero() && now.Sub(e.idleSince) >= ttl {
			delete(r.users, token)
			n++
			log.Info().Str("module", "app.registry").Str("token", token).Msg("swept idle user")
		}
	}
	return n
}

// emit never blocks the registry on a stalled consumer.
func (r *Registry) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		log.Warn().Str("module", "app.registry").Str("sid", string(ev.SID)).Msg("lifecycle event dropped, consumer lagging")
	}
}
