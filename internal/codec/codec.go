// Package codec validates and normalizes inbound payloads into canonical
// envelopes. It is the primary defense against malformed or oversized client
// input: byte limits are checked against the transport encoding before the
// decoded buffer is allocated.
package codec

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/avoronel/relaychat/internal/domain"
)

const (
	voiceMIME = "audio/wav"
	fileMIME  = "application/octet-stream"
)

// Decoder holds the per-kind payload bounds. Pure transforms only; sequence
// numbers and timestamps are assigned later, at publish time.
type Decoder struct {
	maxTextChars  int
	maxVoiceBytes int
	maxFileBytes  int
}

func NewDecoder(maxTextChars, maxVoiceBytes, maxFileBytes int) *Decoder {
	return &Decoder{
		maxTextChars:  maxTextChars,
		maxVoiceBytes: maxVoiceBytes,
		maxFileBytes:  maxFileBytes,
	}
}

// Text trims the body and rejects empty or over-limit messages. The rune
// count is the limit unit, not bytes.
func (d *Decoder) Text(body string) (domain.Envelope, error) {
	body, err := d.textBody(body)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{Kind: domain.KindText, Body: body}, nil
}

// Voice reverses the base64 transport encoding of a recorded clip.
func (d *Decoder) Voice(b64 string, durationMs int64) (domain.Envelope, error) {
	data, err := decodeBinary(b64, d.maxVoiceBytes)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{
		Kind:       domain.KindVoice,
		Data:       data,
		MIME:       voiceMIME,
		DurationMs: durationMs,
	}, nil
}

// File decodes an attachment and its display name. The name is reduced to
// its final path element so a hostile client cannot smuggle separators.
func (d *Decoder) File(b64, name string) (domain.Envelope, error) {
	clean, err := sanitizeFileName(name)
	if err != nil {
		return domain.Envelope{}, err
	}
	data, err := decodeBinary(b64, d.maxFileBytes)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{
		Kind:     domain.KindFile,
		Data:     data,
		MIME:     fileMIME,
		FileName: clean,
	}, nil
}

// Edit references an earlier sequence number with a replacement body.
func (d *Decoder) Edit(targetSeq uint64, body string) (domain.Envelope, error) {
	if targetSeq == 0 {
		return domain.Envelope{}, domain.ErrInvalidTarget
	}
	body, err := d.textBody(body)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{Kind: domain.KindEdit, Body: body, TargetSeq: targetSeq}, nil
}

// Delete references an earlier sequence number. Append-only: nothing is
// removed server-side, viewers reconcile on replay.
func (d *Decoder) Delete(targetSeq uint64) (domain.Envelope, error) {
	if targetSeq == 0 {
		return domain.Envelope{}, domain.ErrInvalidTarget
	}
	return domain.Envelope{Kind: domain.KindDelete, TargetSeq: targetSeq}, nil
}

func (d *Decoder) textBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > d.maxTextChars {
		return "", domain.ErrTooLarge
	}
	return body, nil
}

// decodeBinary enforces the byte limit on the encoded length first, so the
// allocation is bounded before any attacker-supplied length is trusted.
func decodeBinary(b64 string, limit int) ([]byte, error) {
	if b64 == "" {
		return nil, domain.ErrEmptyMessage
	}
	if base64.StdEncoding.DecodedLen(len(b64)) > limit {
		return nil, domain.ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEncoding, err)
	}
	if len(data) == 0 {
		return nil, domain.ErrEmptyMessage
	}
	if len(data) > limit {
		return nil, domain.ErrTooLarge
	}
	return data, nil
}

func sanitizeFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	// keep only the final path element, whichever separator convention
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "", domain.ErrInvalidName
	}
	if utf8.RuneCountInString(name) > domain.MaxFileNameLen {
		return "", domain.ErrInvalidName
	}
	return name, nil
}
