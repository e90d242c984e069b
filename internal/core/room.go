package core

import (
	"sync"
	"time"

	"github.com/avoronel/relaychat/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room. Membership keeps insertion order
// so fan-out iteration is deterministic. The sequence counter is the single
// authoritative ordering source for the room and is only ever advanced under
// the room lock.
type roomImpl struct {
	room   *domain.Room
	policy DeliveryPolicy
	echo   bool

	mu         sync.Mutex
	order      []SessionID
	members    map[SessionID]*Session
	lastSeq    uint64
	emptySince time.Time
	retired    bool
}

func NewRoomService(room *domain.Room, policy DeliveryPolicy, echo bool) RoomService {
	return &roomImpl{
		room:    room,
		policy:  policy,
		echo:    echo,
		members: make(map[SessionID]*Session),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *roomImpl) LastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

func (r *roomImpl) EmptySince() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 || r.emptySince.IsZero() {
		return time.Time{}, false
	}
	return r.emptySince, true
}

func (r *roomImpl) Join(sid SessionID, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return false
	}
	if _, ok := r.members[sid]; ok {
		return true
	}
	r.members[sid] = s
	r.order = append(r.order, sid)
	r.emptySince = time.Time{}
	log.Info().Str("module", "core.room").Str("room", string(r.room.Name)).Str("sid", string(sid)).Msg("member joined")
	return true
}

// Retire closes the room to further joins. It refuses while members remain,
// so a join that lands between the caller's emptiness check and this call
// keeps the room alive instead of getting stranded.
func (r *roomImpl) Retire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 {
		return false
	}
	r.retired = true
	return true
}

func (r *roomImpl) Leave(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[sid]; !ok {
		return
	}
	delete(r.members, sid)
	for i, id := range r.order {
		if id == sid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if len(r.members) == 0 {
		r.emptySince = time.Now()
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.Name)).Str("sid", string(sid)).Msg("member left")
}

// Publish assigns the next sequence number and server timestamp, then fans
// the envelope out to every current member in join order. The sender is
// skipped only when echo is off. Blocking enqueues (per policy) stall the
// whole publish, which is the intended room-wide backpressure.
func (r *roomImpl) Publish(env domain.Envelope) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeq++
	env.Seq = r.lastSeq
	env.Timestamp = time.Now().UTC()
	env.Room = r.room.Name
	e := &env

	mode, timeout := r.policy.ModeFor(e.Kind)
	res := PublishResult{Seq: e.Seq}
	for _, sid := range r.order {
		if !r.echo && string(sid) == e.Sender {
			continue
		}
		switch r.members[sid].Enqueue(e, mode, timeout) {
		case OutcomeDelivered:
			res.Delivered++
		case OutcomeDroppedOldest:
			res.Delivered++
			res.Dropped++
		case OutcomeTimedOut:
			res.Slow = append(res.Slow, sid)
		case OutcomeClosed:
			// delivery to a session on its way out is a no-op, not an error
		}
	}

	log.Debug().Str("module", "core.room").Str("room", string(r.room.Name)).
		Uint64("seq", e.Seq).Str("kind", string(e.Kind)).
		Int("delivered", res.Delivered).Int("dropped", res.Dropped).Int("slow", len(res.Slow)).
		Msg("publish result")
	return res
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MemberDTO, 0, len(r.order))
	for _, sid := range r.order {
		u := r.members[sid].User
		out = append(out, MemberDTO{SID: sid, ID: u.ID, Username: u.Username})
	}
	return out
}
