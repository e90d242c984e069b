package signal

import (
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
)

func (ctl *Controller) handleRename(sess *core.Session, conn *wsConn, data []byte) {
	type renamePayload struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	var p renamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	if err := ctl.Orch.Registry.UpdateUsername(string(sess.User.ID), p.Name); err != nil {
		ctl.sendError(conn, "invalid_name")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sess.ID)).Str("name", p.Name).Msg("rename")
	ctl.handleWhoAmI(sess, conn)
}

func (ctl *Controller) handleWhoAmI(sess *core.Session, conn *wsConn) {
	resp := struct {
		Type     string          `json:"type"`
		SID      core.SessionID  `json:"sid"`
		Username string          `json:"username"`
		Room     domain.RoomName `json:"room,omitempty"`
	}{
		Type:     "whoami",
		SID:      sess.ID,
		Username: sess.User.Username,
	}
	if room, ok := ctl.Orch.Registry.RoomOf(sess.ID); ok {
		resp.Room = room
	}
	ctl.sendJSON(conn, resp)
}
