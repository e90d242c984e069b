package domain

import (
	"errors"
	"time"
)

const MaxFileNameLen = 255

var (
	ErrEmptyMessage      = errors.New("empty message")
	ErrTooLarge          = errors.New("payload too large")
	ErrMalformedEncoding = errors.New("malformed payload encoding")
	ErrInvalidName       = errors.New("invalid file name")
	ErrInvalidTarget     = errors.New("invalid target sequence")
)

// Kind is the closed set of envelope kinds. The fan-out path matches on it
// exhaustively; adding a kind is a compile-visible change, not a new string.
type Kind string

const (
	KindText   Kind = "text"
	KindVoice  Kind = "voice"
	KindFile   Kind = "file"
	KindEdit   Kind = "edit"
	KindDelete Kind = "delete"

	// Server-synthesized presence notices. Never accepted from clients.
	KindMemberJoined Kind = "member_joined"
	KindMemberLeft   Kind = "member_left"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindVoice, KindFile, KindEdit, KindDelete,
		KindMemberJoined, KindMemberLeft:
		return true
	}
	return false
}

// Content reports whether the kind carries client-produced chat content.
func (k Kind) Content() bool {
	switch k {
	case KindText, KindVoice, KindFile, KindEdit, KindDelete:
		return true
	}
	return false
}

// Envelope is one immutable unit of room traffic. Seq and Timestamp are
// assigned by the room at publish time (server clock, never the client's);
// everything else is fixed by the codec or the orchestrator before that.
type Envelope struct {
	Seq        uint64    `json:"seq"`
	Room       RoomName  `json:"room"`
	Kind       Kind      `json:"kind"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"sender_name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	// Body holds text and edit content.
	Body string `json:"message,omitempty"`
	// Data holds decoded voice/file bytes; JSON re-encodes it as base64.
	Data []byte `json:"data,omitempty"`
	MIME string `json:"mime,omitempty"`

	FileName   string `json:"file_name,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	// TargetSeq references the envelope an edit or delete applies to.
	// The log itself is append-only; viewers reconcile on replay.
	TargetSeq uint64 `json:"target_seq,omitempty"`
}
