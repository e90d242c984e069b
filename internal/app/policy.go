package app

import (
	"time"

	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// KindPolicy is the one subtle correctness decision in the relay, spelled
// out per kind class and chosen in config. Voice and file are large,
// latency-sensitive and loss-tolerant, so by default a lagging consumer
// loses its oldest frames; text (and the append-only edit/delete/presence
// kinds) must not silently vanish, so by default the producer blocks up to
// EnqueueTimeout and a consumer still stuck after that is evicted.
type KindPolicy struct {
	// TextMode covers text, edit, delete and membership notices;
	// MediaMode covers voice and file blobs.
	TextMode  core.QueueMode
	MediaMode core.QueueMode

	EnqueueTimeout time.Duration
}

func (p KindPolicy) ModeFor(kind domain.Kind) (core.QueueMode, time.Duration) {
	mode := p.TextMode
	if kind == domain.KindVoice || kind == domain.KindFile {
		mode = p.MediaMode
	}
	if mode == core.Block {
		return core.Block, p.EnqueueTimeout
	}
	return core.DropOldest, 0
}

// OnSlowConsumer decides what a blocking-enqueue timeout costs the laggard.
// Drop-oldest kinds never time out, so they never cost the consumer its
// connection.
func (p KindPolicy) OnSlowConsumer(kind domain.Kind) BackpressureAction {
	if mode, _ := p.ModeFor(kind); mode == core.Block {
		return KickMember
	}
	return DropFrame
}
