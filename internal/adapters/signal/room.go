package signal

import (
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
)

func (ctl *Controller) handleJoin(sess *core.Session, conn *wsConn, data []byte) {
	type joinPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
		Name string `json:"name,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	roomName := domain.RoomName(p.Room)
	if roomName == "" {
		roomName = domain.RoomName(ctl.Cfg.DefaultRoom)
	}

	if p.Name != "" {
		if err := ctl.Orch.Registry.UpdateUsername(string(sess.User.ID), p.Name); err != nil {
			ctl.sendError(conn, "invalid_name")
			return
		}
	}

	log.Info().Str("module", "signal").Str("sid", string(sess.ID)).Str("room", string(roomName)).Msg("join")
	room, err := ctl.Orch.Join(sess.ID, roomName)
	if err != nil {
		ctl.sendError(conn, "internal")
		return
	}

	// Snapshot goes back to the joiner: roster plus the room's sequence
	// watermark, so the client knows where delivery starts for it.
	resp := struct {
		Type    string           `json:"type"`
		Room    domain.RoomName  `json:"room"`
		Members []core.MemberDTO `json:"members"`
		Count   int              `json:"count"`
		LastSeq uint64           `json:"last_seq"`
	}{
		Type:    "room_state",
		Room:    room.Room().Name,
		Members: room.MembersSnapshot(),
		Count:   room.MemberCount(),
		LastSeq: room.LastSeq(),
	}
	ctl.sendJSON(conn, resp)
}

// handleLeave exits the current room; the connection itself stays up.
func (ctl *Controller) handleLeave(sess *core.Session, conn *wsConn) {
	log.Info().Str("module", "signal").Str("sid", string(sess.ID)).Msg("leave")
	ctl.Orch.Leave(sess.ID)
	ctl.sendJSON(conn, map[string]any{
		"type": "left",
	})
}
