package signal

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *Controller) readPump(ctx context.Context, sess *core.Session, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sess.ID)).Msg("readPump closing")
		ctl.Limiter.Forget(sess.ID)
		ctl.Orch.OnDisconnect(sess.ID)
	}()

	pongWait := 2 * ctl.Cfg.PingPeriod
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sess.ID)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sess.ID)).Msg("readPump read error")
				return
			}
			ctl.dispatch(sess, c, data)
		}
	}
}

// writePump is the single writer on the socket: control frames, room
// envelopes and keepalive pings. When intake closes it drains what is
// already queued, bounded by the drain timeout, then finalizes the session.
func (ctl *Controller) writePump(ctx context.Context, sess *core.Session, c *wsConn) {
	defer func() {
		ctl.Orch.Lifecycle.Finalize(sess.ID)
		c.Close()
	}()

	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	q := sess.Queue()

	for {
		select {
		case <-ctx.Done():
			ctl.drain(sess, c)
			return
		case <-q.Done():
			ctl.drain(sess, c)
			return
		case f, ok := <-c.ctrl:
			if !ok {
				return
			}
			if err := ctl.writeFrame(c, f); err != nil {
				return
			}
		case env := <-q.Out():
			if err := ctl.writeEnvelope(c, env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

// drain flushes remaining queued envelopes after intake closed, giving slow
// clients one last bounded chance to catch up.
func (ctl *Controller) drain(sess *core.Session, c *wsConn) {
	deadline := time.Now().Add(ctl.Cfg.DrainTimeout)
	q := sess.Queue()
	for {
		if time.Now().After(deadline) {
			log.Warn().Str("module", "signal").Str("sid", string(sess.ID)).Msg("drain timeout, discarding queue")
			return
		}
		select {
		case env := <-q.Out():
			if err := ctl.writeEnvelope(c, env); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (ctl *Controller) writeFrame(c *wsConn, f core.Frame) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, f); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
		return err
	}
	return nil
}

// wireEnvelope is the delivery event: the envelope fields flattened next to
// the type discriminator.
type wireEnvelope struct {
	Type string `json:"type"`
	domain.Envelope
}

func (ctl *Controller) writeEnvelope(c *wsConn, env *domain.Envelope) error {
	b, err := json.Marshal(wireEnvelope{Type: "envelope", Envelope: *env})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("envelope marshal")
		return nil
	}
	return ctl.writeFrame(c, b)
}

func (ctl *Controller) dispatch(sess *core.Session, c *wsConn, data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}

	switch head.Type {
	case "join":
		ctl.handleJoin(sess, c, data)
	case "leave":
		ctl.handleLeave(sess, c)
	case "ping":
		ctl.handlePing(c)
	case "rename":
		ctl.handleRename(sess, c, data)
	case "whoami":
		ctl.handleWhoAmI(sess, c)
	case "message", "voice_message", "file_message", "edit_message", "delete_message":
		if !ctl.Limiter.Allow(sess.ID) {
			ctl.sendError(c, "rate_limited")
			return
		}
		ctl.handleContent(sess, c, head.Type, data)
	default:
		log.Warn().Str("module", "signal").Str("type", head.Type).Msg("unknown signal")
	}
}
