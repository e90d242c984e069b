package core

import (
	"fmt"
	"time"

	"github.com/avoronel/relaychat/internal/domain"
)

// Frame is a raw outbound wire payload (already serialized).
type Frame []byte

type SessionID string

// SignalConnection abstracts the session's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues a control frame without blocking.
	TrySend(Frame) error
	Close()
}

// QueueMode selects how Enqueue behaves when the queue is full.
type QueueMode int

const (
	// DropOldest evicts the head to make room. Lossy, keeps latency low.
	DropOldest QueueMode = iota
	// Block stalls the producer until space frees or the timeout fires.
	Block
)

// ParseQueueMode maps the config spelling of a queue mode to its constant.
func ParseQueueMode(s string) (QueueMode, error) {
	switch s {
	case "drop_oldest":
		return DropOldest, nil
	case "block":
		return Block, nil
	}
	return 0, fmt.Errorf("unknown queue mode %q", s)
}

type EnqueueOutcome int

const (
	OutcomeDelivered EnqueueOutcome = iota
	OutcomeDroppedOldest
	OutcomeTimedOut
	OutcomeClosed
)

func (o EnqueueOutcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeDroppedOldest:
		return "dropped_oldest"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeClosed:
		return "closed"
	}
	return "unknown"
}

// DeliveryPolicy maps an envelope kind to the queue behavior used when
// fanning it out. Implemented in app from config.
type DeliveryPolicy interface {
	ModeFor(kind domain.Kind) (QueueMode, time.Duration)
}

// PublishResult reports per-recipient delivery outcomes to the orchestrator.
type PublishResult struct {
	Seq       uint64
	Delivered int
	// Dropped counts drop-oldest evictions across recipient queues.
	Dropped int
	// Slow lists sessions whose blocking enqueue timed out; the caller
	// decides their fate (eviction, per policy).
	Slow []SessionID
}

// MemberDTO is a read-only roster view for APIs (no transport fields).
type MemberDTO struct {
	SID      SessionID     `json:"sid"`
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set and the sequence counter, but never touches
// transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	LastSeq() uint64
	// EmptySince reports when the room last lost its final member.
	EmptySince() (time.Time, bool)

	// Join reports false once the room is retired; the caller must
	// resolve a fresh room through the factory and retry.
	Join(sid SessionID, s *Session) bool
	Leave(sid SessionID)
	Publish(env domain.Envelope) PublishResult
	// Retire permanently closes an empty room to new joins. Reports false
	// while the room still has members.
	Retire() bool
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
	LastSeq     uint64          `json:"last_seq"`
}

type RoomFactory interface {
	GetOrCreate(name domain.RoomName) RoomService
	Get(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	StopRoom(name domain.RoomName)
}
