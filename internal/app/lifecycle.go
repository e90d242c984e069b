package app

import (
	"context"
	"time"

	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
	"github.com/rs/zerolog/log"
)

type DisconnectReason string

const (
	ReasonClient       DisconnectReason = "client_close"
	ReasonTransport    DisconnectReason = "transport_error"
	ReasonSlowConsumer DisconnectReason = "slow_consumer"
)

// LifecycleManager owns the session teardown path: open -> closing (room
// membership removed, member_left published, queue intake closed) and,
// once the adapter finished draining, closing -> closed (deregistered).
// Every entry point is idempotent, so eviction and transport death may race
// a graceful leave without double cleanup.
type LifecycleManager struct {
	Registry *Registry
	Rooms    core.RoomFactory
	Policy   KindPolicy
	// UserTTL bounds how long an idle display identity outlives its last
	// session; zero disables the sweep.
	UserTTL time.Duration
}

// Run consumes registry lifecycle events until ctx is done. The events are
// the observability spine of connect/disconnect; cleanup itself is driven
// synchronously by Disconnect/Finalize so it cannot lag behind a busy loop.
// The same loop periodically sweeps idle user identities.
func (m *LifecycleManager) Run(ctx context.Context) error {
	interval := m.UserTTL
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if m.UserTTL > 0 {
				m.Registry.SweepUsers(now, m.UserTTL)
			}
		case ev := <-m.Registry.Events():
			switch ev.Kind {
			case EventRegistered:
				log.Info().Str("module", "app.lifecycle").Str("sid", string(ev.SID)).
					Int("active", m.Registry.Len()).Msg("session registered")
			case EventDeregistered:
				log.Info().Str("module", "app.lifecycle").Str("sid", string(ev.SID)).
					Int("active", m.Registry.Len()).Msg("session deregistered")
			}
		}
	}
}

// LeaveRoom removes the session from its room and publishes a member_left
// notice to the remaining members. A member that times out blocking on the
// notice is punished like any other slow consumer. No-op when the session
// is roomless.
func (m *LifecycleManager) LeaveRoom(sid core.SessionID, sess *core.Session) bool {
	roomName, ok := m.Registry.RoomOf(sid)
	if !ok {
		return false
	}
	room := m.Rooms.GetOrCreate(roomName)
	room.Leave(sid)
	m.Registry.ClearRoom(sid)

	res := room.Publish(domain.Envelope{
		Kind:       domain.KindMemberLeft,
		Sender:     string(sid),
		SenderName: sess.User.Username,
	})
	m.punishSlow(domain.KindMemberLeft, res.Slow)
	return true
}

// Disconnect starts teardown: state to closing, room notified, intake
// closed, pumps cancelled. The writePump keeps draining what is already
// queued; Finalize completes the transition once it is done.
func (m *LifecycleManager) Disconnect(sid core.SessionID, reason DisconnectReason) {
	sess, ok := m.Registry.Lookup(sid)
	if !ok {
		return
	}
	if !sess.BeginClose() {
		return
	}
	log.Info().Str("module", "app.lifecycle").Str("sid", string(sid)).
		Str("reason", string(reason)).Msg("session closing")
	m.LeaveRoom(sid, sess)
}

// Finalize is called by the adapter after the outbound queue flushed or the
// drain timeout elapsed: the session becomes closed and its slot frees up.
func (m *LifecycleManager) Finalize(sid core.SessionID) {
	sess, ok := m.Registry.Lookup(sid)
	if !ok {
		return
	}
	sess.BeginClose() // covers transports that died before Disconnect ran
	m.LeaveRoom(sid, sess)
	sess.MarkClosed()
	m.Registry.Deregister(sid)
}

// punishSlow applies the policy verdict to every session whose blocking
// enqueue timed out during a publish. Recursion through Disconnect ->
// LeaveRoom is bounded: a punished session transitions to closing, so its
// queue stops timing out.
func (m *LifecycleManager) punishSlow(kind domain.Kind, slow []core.SessionID) {
	for _, sid := range slow {
		switch m.Policy.OnSlowConsumer(kind) {
		case KickMember:
			log.Warn().Str("module", "app.lifecycle").Str("sid", string(sid)).Msg("slow consumer evicted")
			m.Disconnect(sid, ReasonSlowConsumer)
		case DropFrame, NoAction:
		}
	}
}
