package app

import (
	"context"
	"sync"
	"time"

	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManager creates rooms on first join and retires them once they have
// been empty past the configured TTL. Retiring a room also retires its
// sequence counter; a later rejoin starts a fresh room from seq 1.
type RoomManager struct {
	policy core.DeliveryPolicy
	echo   bool
	ttl    time.Duration

	mu    sync.RWMutex
	rooms map[domain.RoomName]core.RoomService
}

func NewRoomManager(policy core.DeliveryPolicy, echo bool, emptyTTL time.Duration) *RoomManager {
	return &RoomManager{
		policy: policy,
		echo:   echo,
		ttl:    emptyTTL,
		rooms:  make(map[domain.RoomName]core.RoomService),
	}
}

func (m *RoomManager) GetOrCreate(name domain.RoomName) core.RoomService {
	m.mu.RLock()
	room, ok := m.rooms[name]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[name]; ok {
		return room
	}
	room = core.NewRoomService(&domain.Room{Name: name}, m.policy, m.echo)
	m.rooms[name] = room
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("created room")
	return room
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for name, r := range m.rooms {
		out = append(out, core.RoomInfo{Name: name, MemberCount: r.MemberCount(), LastSeq: r.LastSeq()})
	}
	return out
}

func (m *RoomManager) Get(name domain.RoomName) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[name]
	return r, ok
}

func (m *RoomManager) StopRoom(name domain.RoomName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[name]
	if !ok {
		return
	}
	if !r.Retire() {
		// someone joined since the caller emptied it; the room lives on
		return
	}
	delete(m.rooms, name)
}

// Sweep removes rooms that have been empty longer than the TTL and reports
// how many went away. A room is only dropped from the map once Retire
// confirms it is still empty, so a concurrent joiner holding a stale handle
// either keeps the room alive or sees the join refused and retries.
func (m *RoomManager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for name, r := range m.rooms {
		since, empty := r.EmptySince()
		if empty && now.Sub(since) >= m.ttl && r.Retire() {
			delete(m.rooms, name)
			n++
			log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("retired empty room")
		}
	}
	return n
}

// Janitor runs periodic sweeps until ctx is done.
func (m *RoomManager) Janitor(ctx context.Context) error {
	interval := m.ttl
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
			m.Sweep(now)
		}
	}
}
