package app

import (
	"testing"
	"time"

	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
)

func newTestStack(t *testing.T, enqueueTimeout time.Duration) (*Orchestrator, *Registry, *RoomManager) {
	t.Helper()
	policy := KindPolicy{TextMode: core.Block, MediaMode: core.DropOldest, EnqueueTimeout: enqueueTimeout}
	rooms := NewRoomManager(policy, true, time.Minute)
	registry := NewRegistry(8)
	lifecycle := &LifecycleManager{Registry: registry, Rooms: rooms, Policy: policy}
	orch := &Orchestrator{
		Registry:  registry,
		Rooms:     rooms,
		Lifecycle: lifecycle,
	}
	return orch, registry, rooms
}

func register(t *testing.T, r *Registry, id string, depth int) *core.Session {
	t.Helper()
	user := &domain.User{ID: domain.UserID("u-" + id), Username: id}
	s := core.NewSession(core.SessionID(id), user, nopConn{}, core.NewQueue(depth))
	if err := r.Register(s); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	return s
}

func drainKinds(s *core.Session) []domain.Kind {
	var kinds []domain.Kind
	for {
		select {
		case e := <-s.Queue().Out():
			kinds = append(kinds, e.Kind)
		default:
			return kinds
		}
	}
}

func TestOrchestrator_JoinPublishesPresence(t *testing.T) {
	orch, registry, rooms := newTestStack(t, time.Second)
	a := register(t, registry, "a", 16)
	b := register(t, registry, "b", 16)

	if _, err := orch.Join(a.ID, "main"); err != nil {
		t.Fatalf("join a err = %v", err)
	}
	if _, err := orch.Join(b.ID, "main"); err != nil {
		t.Fatalf("join b err = %v", err)
	}

	if got := rooms.GetOrCreate("main").MemberCount(); got != 2 {
		t.Fatalf("member count = %d, want 2", got)
	}
	// a observes both join notices, b only its own (no retroactive delivery).
	if kinds := drainKinds(a); len(kinds) != 2 || kinds[0] != domain.KindMemberJoined || kinds[1] != domain.KindMemberJoined {
		t.Fatalf("a observed %v", kinds)
	}
	if kinds := drainKinds(b); len(kinds) != 1 || kinds[0] != domain.KindMemberJoined {
		t.Fatalf("b observed %v", kinds)
	}
}

func TestOrchestrator_SwitchingRoomsNotifiesOldRoom(t *testing.T) {
	orch, registry, _ := newTestStack(t, time.Second)
	a := register(t, registry, "a", 16)
	b := register(t, registry, "b", 16)

	orch.Join(a.ID, "alpha")
	orch.Join(b.ID, "alpha")
	drainKinds(a)
	drainKinds(b)

	if _, err := orch.Join(b.ID, "beta"); err != nil {
		t.Fatal(err)
	}

	kinds := drainKinds(a)
	if len(kinds) != 1 || kinds[0] != domain.KindMemberLeft {
		t.Fatalf("old room observed %v, want [member_left]", kinds)
	}
	if room, ok := registry.RoomOf(b.ID); !ok || room != "beta" {
		t.Fatalf("b's room = (%q, %v)", room, ok)
	}
}

func TestOrchestrator_PublishRequiresRoom(t *testing.T) {
	orch, registry, _ := newTestStack(t, time.Second)
	a := register(t, registry, "a", 16)

	err := orch.OnEnvelope(a.ID, domain.Envelope{Kind: domain.KindText, Body: "hi"})
	if err != ErrNotJoined {
		t.Fatalf("publish without room err = %v, want ErrNotJoined", err)
	}
	if err := orch.OnEnvelope("ghost", domain.Envelope{Kind: domain.KindText}); err != ErrUnknownSession {
		t.Fatalf("publish from unknown session err = %v, want ErrUnknownSession", err)
	}
	if err := orch.OnEnvelope(a.ID, domain.Envelope{Kind: domain.KindMemberLeft}); err != ErrKindNotAllowed {
		t.Fatalf("client-published presence err = %v, want ErrKindNotAllowed", err)
	}
}

func TestOrchestrator_StampsSenderIdentity(t *testing.T) {
	orch, registry, _ := newTestStack(t, time.Second)
	a := register(t, registry, "a", 16)
	orch.Join(a.ID, "main")
	drainKinds(a)

	if err := orch.OnEnvelope(a.ID, domain.Envelope{Kind: domain.KindText, Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	e := <-a.Queue().Out()
	if e.Sender != "a" || e.SenderName != "a" {
		t.Fatalf("sender identity = (%q, %q)", e.Sender, e.SenderName)
	}
	if e.Timestamp.IsZero() {
		t.Fatal("server timestamp missing")
	}
	if e.Seq == 0 {
		t.Fatal("sequence number missing")
	}
}

func TestLifecycle_SlowConsumerEvicted(t *testing.T) {
	orch, registry, rooms := newTestStack(t, 20*time.Millisecond)
	healthy := register(t, registry, "healthy", 32)
	slow := register(t, registry, "slow", 1)

	orch.Join(healthy.ID, "main")
	orch.Join(slow.ID, "main") // fills slow's depth-1 queue with the join notice
	drainKinds(healthy)

	// The text publish blocks on the stuffed queue, times out, and the
	// policy evicts the laggard.
	if err := orch.OnEnvelope(healthy.ID, domain.Envelope{Kind: domain.KindText, Body: "hi"}); err != nil {
		t.Fatal(err)
	}

	if slow.State() != core.StateClosing {
		t.Fatalf("slow session state = %v, want closing", slow.State())
	}
	if got := rooms.GetOrCreate("main").MemberCount(); got != 1 {
		t.Fatalf("member count after eviction = %d, want 1", got)
	}

	kinds := drainKinds(healthy)
	last := kinds[len(kinds)-1]
	if last != domain.KindMemberLeft {
		t.Fatalf("healthy member observed %v, want trailing member_left", kinds)
	}
}

// racingRooms serves a retired room handle on the first GetOrCreate, the
// way a janitor sweep landing between lookup and join would.
type racingRooms struct {
	*RoomManager
	stale  core.RoomService
	served bool
}

func (f *racingRooms) GetOrCreate(name domain.RoomName) core.RoomService {
	if !f.served {
		f.served = true
		return f.stale
	}
	return f.RoomManager.GetOrCreate(name)
}

func TestOrchestrator_JoinRetriesAfterRoomRetirement(t *testing.T) {
	policy := KindPolicy{TextMode: core.Block, MediaMode: core.DropOldest, EnqueueTimeout: time.Second}
	mgr := NewRoomManager(policy, true, time.Nanosecond)

	// A room that emptied out and expired while a joiner still holds its
	// handle.
	stale := mgr.GetOrCreate("lobby")
	ghost := testSession("ghost")
	if err := ghost.Open(); err != nil {
		t.Fatal(err)
	}
	stale.Join(ghost.ID, ghost)
	stale.Leave(ghost.ID)
	if n := mgr.Sweep(time.Now().Add(time.Hour)); n != 1 {
		t.Fatalf("sweep removed %d rooms, want 1", n)
	}

	rooms := &racingRooms{RoomManager: mgr, stale: stale}
	registry := NewRegistry(8)
	lifecycle := &LifecycleManager{Registry: registry, Rooms: rooms, Policy: policy}
	orch := &Orchestrator{Registry: registry, Rooms: rooms, Lifecycle: lifecycle}

	a := register(t, registry, "a", 16)
	if _, err := orch.Join(a.ID, "lobby"); err != nil {
		t.Fatalf("join err = %v", err)
	}

	// The joiner must land in the manager's live room, not the retired one.
	live, ok := mgr.Get("lobby")
	if !ok {
		t.Fatal("manager has no live lobby after the join")
	}
	if got := live.MemberCount(); got != 1 {
		t.Fatalf("live room member count = %d, want 1", got)
	}
	if got := stale.MemberCount(); got != 0 {
		t.Fatalf("retired room member count = %d, want 0", got)
	}
	if err := orch.OnEnvelope(a.ID, domain.Envelope{Kind: domain.KindText, Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	kinds := drainKinds(a)
	if len(kinds) == 0 || kinds[len(kinds)-1] != domain.KindText {
		t.Fatalf("joiner observed %v, want a delivered text envelope", kinds)
	}
}

func TestLifecycle_LeaveNoticeTimeoutEvictsLaggard(t *testing.T) {
	orch, registry, rooms := newTestStack(t, 20*time.Millisecond)
	leaver := register(t, registry, "leaver", 16)
	slow := register(t, registry, "slow", 2)

	orch.Join(slow.ID, "main")
	orch.Join(leaver.ID, "main") // the second join notice fills slow's queue

	// The member_left publish blocks on the stuffed queue, times out, and
	// the laggard goes the same way as on any other blocking kind.
	orch.Leave(leaver.ID)

	if slow.State() != core.StateClosing {
		t.Fatalf("slow session state = %v, want closing", slow.State())
	}
	if got := rooms.GetOrCreate("main").MemberCount(); got != 0 {
		t.Fatalf("member count = %d, want 0", got)
	}
}

func TestOrchestrator_EvictRoom(t *testing.T) {
	orch, registry, rooms := newTestStack(t, time.Second)
	a := register(t, registry, "a", 16)
	b := register(t, registry, "b", 16)
	orch.Join(a.ID, "doomed")
	orch.Join(b.ID, "doomed")

	if !orch.EvictRoom("doomed") {
		t.Fatal("EvictRoom did not find an existing room")
	}
	if a.State() != core.StateClosing || b.State() != core.StateClosing {
		t.Fatalf("member states = (%v, %v), want both closing", a.State(), b.State())
	}
	for _, info := range rooms.List() {
		if info.Name == "doomed" {
			t.Fatal("evicted room still listed")
		}
	}
	if orch.EvictRoom("doomed") {
		t.Fatal("EvictRoom found a removed room")
	}
}

func TestLifecycle_DisconnectIsIdempotent(t *testing.T) {
	orch, registry, rooms := newTestStack(t, time.Second)
	a := register(t, registry, "a", 16)
	b := register(t, registry, "b", 16)
	orch.Join(a.ID, "main")
	orch.Join(b.ID, "main")
	drainKinds(a)

	orch.Lifecycle.Disconnect(b.ID, ReasonClient)
	orch.Lifecycle.Disconnect(b.ID, ReasonTransport) // second call: no-op

	if kinds := drainKinds(a); len(kinds) != 1 || kinds[0] != domain.KindMemberLeft {
		t.Fatalf("a observed %v, want exactly one member_left", kinds)
	}
	if got := rooms.GetOrCreate("main").MemberCount(); got != 1 {
		t.Fatalf("member count = %d", got)
	}
}

func TestLifecycle_FinalizeFreesTheSlot(t *testing.T) {
	orch, registry, _ := newTestStack(t, time.Second)
	a := register(t, registry, "a", 16)
	orch.Join(a.ID, "main")

	orch.Lifecycle.Disconnect(a.ID, ReasonClient)
	orch.Lifecycle.Finalize(a.ID)

	if a.State() != core.StateClosed {
		t.Fatalf("state = %v, want closed", a.State())
	}
	if _, ok := registry.Lookup(a.ID); ok {
		t.Fatal("finalized session still registered")
	}
	orch.Lifecycle.Finalize(a.ID) // idempotent on absent session
}
