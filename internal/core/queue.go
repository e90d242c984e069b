package core

import (
	"sync"
	"time"

	"github.com/avoronel/relaychat/internal/domain"
)

// Queue is the bounded outbound buffer of a single session. One producer
// side (room fan-out, serialized per room) and one consumer (the session's
// drain loop). The data channel is never closed; CloseIntake closes done
// instead, so a racing producer can never panic on send.
type Queue struct {
	ch   chan *domain.Envelope
	done chan struct{}

	// serializes the evict-then-send step of drop-oldest producers
	mu   sync.Mutex
	once sync.Once
}

func NewQueue(depth int) *Queue {
	return &Queue{
		ch:   make(chan *domain.Envelope, depth),
		done: make(chan struct{}),
	}
}

// Enqueue offers env under the given mode. Block mode races the timeout and
// intake close; DropOldest evicts the head when full and never blocks.
func (q *Queue) Enqueue(env *domain.Envelope, mode QueueMode, timeout time.Duration) EnqueueOutcome {
	select {
	case <-q.done:
		return OutcomeClosed
	default:
	}

	switch mode {
	case Block:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case q.ch <- env:
			return OutcomeDelivered
		case <-q.done:
			return OutcomeClosed
		case <-timer.C:
			return OutcomeTimedOut
		}
	default: // DropOldest
		q.mu.Lock()
		defer q.mu.Unlock()
		evicted := false
		for {
			select {
			case q.ch <- env:
				if evicted {
					return OutcomeDroppedOldest
				}
				return OutcomeDelivered
			default:
			}
			select {
			case <-q.ch:
				evicted = true
			default:
				// consumer stole the slot first; loop and retry the send
			}
		}
	}
}

// Out is consumed by the session's drain loop only.
func (q *Queue) Out() <-chan *domain.Envelope { return q.ch }

// Done is closed once intake stops; pending items stay readable via Out.
func (q *Queue) Done() <-chan struct{} { return q.done }

// CloseIntake stops accepting new envelopes. Idempotent.
func (q *Queue) CloseIntake() {
	q.once.Do(func() { close(q.done) })
}

func (q *Queue) Len() int { return len(q.ch) }
