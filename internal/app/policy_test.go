package app

import (
	"testing"
	"time"

	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
)

func TestKindPolicy_ModeFor(t *testing.T) {
	p := KindPolicy{TextMode: core.Block, MediaMode: core.DropOldest, EnqueueTimeout: 2 * time.Second}

	tests := []struct {
		kind        domain.Kind
		wantMode    core.QueueMode
		wantTimeout time.Duration
	}{
		{domain.KindVoice, core.DropOldest, 0},
		{domain.KindFile, core.DropOldest, 0},
		{domain.KindText, core.Block, 2 * time.Second},
		{domain.KindEdit, core.Block, 2 * time.Second},
		{domain.KindDelete, core.Block, 2 * time.Second},
		{domain.KindMemberJoined, core.Block, 2 * time.Second},
		{domain.KindMemberLeft, core.Block, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			mode, timeout := p.ModeFor(tt.kind)
			if mode != tt.wantMode || timeout != tt.wantTimeout {
				t.Errorf("ModeFor(%s) = (%v, %v), want (%v, %v)",
					tt.kind, mode, timeout, tt.wantMode, tt.wantTimeout)
			}
		})
	}
}

func TestKindPolicy_ConfiguredModesFlowThrough(t *testing.T) {
	// Both classes flipped away from their defaults.
	p := KindPolicy{TextMode: core.DropOldest, MediaMode: core.Block, EnqueueTimeout: time.Second}

	if mode, timeout := p.ModeFor(domain.KindText); mode != core.DropOldest || timeout != 0 {
		t.Fatalf("ModeFor(text) = (%v, %v), want drop-oldest with no timeout", mode, timeout)
	}
	if mode, timeout := p.ModeFor(domain.KindVoice); mode != core.Block || timeout != time.Second {
		t.Fatalf("ModeFor(voice) = (%v, %v), want block with timeout", mode, timeout)
	}
	// Eviction follows the mode, not the kind.
	if got := p.OnSlowConsumer(domain.KindText); got != DropFrame {
		t.Fatalf("OnSlowConsumer(text) = %v, want DropFrame", got)
	}
	if got := p.OnSlowConsumer(domain.KindVoice); got != KickMember {
		t.Fatalf("OnSlowConsumer(voice) = %v, want KickMember", got)
	}
}

func TestKindPolicy_OnSlowConsumer(t *testing.T) {
	p := KindPolicy{TextMode: core.Block, MediaMode: core.DropOldest, EnqueueTimeout: time.Second}

	tests := []struct {
		kind domain.Kind
		want BackpressureAction
	}{
		{domain.KindVoice, DropFrame},
		{domain.KindFile, DropFrame},
		{domain.KindText, KickMember},
		{domain.KindDelete, KickMember},
		{domain.KindMemberLeft, KickMember},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := p.OnSlowConsumer(tt.kind); got != tt.want {
				t.Errorf("OnSlowConsumer(%s) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}
