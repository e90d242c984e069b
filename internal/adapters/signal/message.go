package signal

import (
	"errors"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/avoronel/relaychat/internal/app"
	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
)

// handleContent decodes one content message and publishes it. Codec and
// routing failures are reported to the offending session only; the
// connection stays up.
func (ctl *Controller) handleContent(sess *core.Session, c *wsConn, kind string, data []byte) {
	env, err := ctl.decodeContent(kind, data)
	if err == nil {
		err = ctl.Orch.OnEnvelope(sess.ID, env)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID)).
			Str("type", kind).Msg("message rejected")
		ctl.sendError(c, errorCode(err))
	}
}

func (ctl *Controller) decodeContent(kind string, data []byte) (domain.Envelope, error) {
	switch kind {
	case "message":
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return domain.Envelope{}, errBadPayload
		}
		return ctl.Codec.Text(p.Message)
	case "voice_message":
		var p struct {
			VoiceData  string `json:"voice_data"`
			DurationMs int64  `json:"duration_ms"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return domain.Envelope{}, errBadPayload
		}
		return ctl.Codec.Voice(p.VoiceData, p.DurationMs)
	case "file_message":
		var p struct {
			FileData string `json:"file_data"`
			FileName string `json:"file_name"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return domain.Envelope{}, errBadPayload
		}
		return ctl.Codec.File(p.FileData, p.FileName)
	case "edit_message":
		var p struct {
			TargetSeq uint64 `json:"target_seq"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return domain.Envelope{}, errBadPayload
		}
		return ctl.Codec.Edit(p.TargetSeq, p.Message)
	default: // delete_message
		var p struct {
			TargetSeq uint64 `json:"target_seq"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return domain.Envelope{}, errBadPayload
		}
		return ctl.Codec.Delete(p.TargetSeq)
	}
}

var errBadPayload = errors.New("bad payload")

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, domain.ErrTooLarge):
		return "too_large"
	case errors.Is(err, domain.ErrMalformedEncoding):
		return "malformed_encoding"
	case errors.Is(err, domain.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, domain.ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, app.ErrNotJoined):
		return "not_joined"
	case errors.Is(err, errBadPayload):
		return "bad_payload"
	default:
		return "internal"
	}
}
