package app

import (
	"errors"

	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotJoined      = errors.New("session is not in a room")
	ErrUnknownSession = errors.New("unknown session")
	ErrKindNotAllowed = errors.New("kind not publishable by clients")
)

// Orchestrator coordinates registry, rooms and lifecycle: the
// decode -> publish inbound path and room membership moves.
type Orchestrator struct {
	Registry  *Registry
	Rooms     core.RoomFactory
	Lifecycle *LifecycleManager
}

// Join moves the session into roomName, leaving (and notifying) any current
// room first. A session is in at most one room.
func (o *Orchestrator) Join(sid core.SessionID, roomName domain.RoomName) (core.RoomService, error) {
	sess, ok := o.Registry.Lookup(sid)
	if !ok {
		return nil, ErrUnknownSession
	}
	if prev, ok := o.Registry.RoomOf(sid); ok {
		if prev == roomName {
			return o.Rooms.GetOrCreate(prev), nil
		}
		o.Lifecycle.LeaveRoom(sid, sess)
	}

	// The janitor may retire the room between GetOrCreate and Join; a
	// refused join means the handle went stale, and the next GetOrCreate
	// resolves a live replacement.
	var room core.RoomService
	for {
		room = o.Rooms.GetOrCreate(roomName)
		if room.Join(sid, sess) {
			break
		}
	}
	o.Registry.UpdateRoom(sid, roomName)
	log.Info().Str("module", "app.orchestrator").Str("sid", string(sid)).Str("room", string(roomName)).Msg("joined room")

	res := room.Publish(domain.Envelope{
		Kind:       domain.KindMemberJoined,
		Sender:     string(sid),
		SenderName: sess.User.Username,
	})
	o.Lifecycle.punishSlow(domain.KindMemberJoined, res.Slow)
	return room, nil
}

// Leave removes the session from its room without touching the connection.
func (o *Orchestrator) Leave(sid core.SessionID) {
	sess, ok := o.Registry.Lookup(sid)
	if !ok {
		return
	}
	o.Lifecycle.LeaveRoom(sid, sess)
}

// OnEnvelope publishes a codec-validated envelope from sid to its room.
func (o *Orchestrator) OnEnvelope(sid core.SessionID, env domain.Envelope) error {
	if !env.Kind.Content() {
		return ErrKindNotAllowed
	}
	sess, ok := o.Registry.Lookup(sid)
	if !ok {
		return ErrUnknownSession
	}
	roomName, ok := o.Registry.RoomOf(sid)
	if !ok {
		return ErrNotJoined
	}

	env.Sender = string(sid)
	env.SenderName = sess.User.Username

	room := o.Rooms.GetOrCreate(roomName)
	res := room.Publish(env)
	o.Lifecycle.punishSlow(env.Kind, res.Slow)
	return nil
}

// OnDisconnect is the adapter's exit hook for a dead transport.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.Lifecycle.Disconnect(sid, ReasonTransport)
}

// EvictRoom force-removes every member, then the room itself. Reports
// whether the room existed.
func (o *Orchestrator) EvictRoom(name domain.RoomName) bool {
	room, ok := o.Rooms.Get(name)
	if !ok {
		return false
	}
	for _, m := range room.MembersSnapshot() {
		o.Lifecycle.Disconnect(m.SID, ReasonClient)
	}
	o.Rooms.StopRoom(name)
	return true
}
