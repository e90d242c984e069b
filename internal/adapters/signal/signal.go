// Package signal is the websocket adapter: it owns the transport endpoints,
// the read/write pumps and the per-type payload handlers, and hands decoded
// envelopes to the orchestrator.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avoronel/relaychat/internal/app"
	"github.com/avoronel/relaychat/internal/codec"
	"github.com/avoronel/relaychat/internal/config"
	"github.com/avoronel/relaychat/internal/core"
)

var ErrConnClosed = errors.New("connection closed")

type Controller struct {
	Orch    *app.Orchestrator
	Codec   *codec.Decoder
	Limiter *RateLimiter
	Cfg     *config.Config
}

func NewController(orch *app.Orchestrator, dec *codec.Decoder, cfg *config.Config) *Controller {
	return &Controller{
		Orch:    orch,
		Codec:   dec,
		Limiter: NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
		Cfg:     cfg,
	}
}

// wsConn carries control replies (pong, errors, room_state) on its own
// bounded channel; room envelopes travel through the session queue so flow
// control applies to them only.
type wsConn struct {
	conn *websocket.Conn
	ctrl chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.ctrl <- f:
	default:
		return errors.New("control channel full")
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.ctrl)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the HTTP request and spins up a fresh session. A
// reconnect is a brand-new session id; only the user identity behind the
// client-token cookie carries over.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")

	if ctl.Orch.Registry.Len() >= ctl.Cfg.MaxConnections {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "capacity_exceeded"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := &wsConn{
		conn: ws,
		ctrl: make(chan core.Frame, 32),
	}

	sid := core.SessionID(uuid.NewString())
	user := ctl.Orch.Registry.GetOrCreateUser(token)
	sess := core.NewSession(sid, user, conn, core.NewQueue(ctl.Cfg.QueueDepth))

	ctx, cancel := context.WithCancel(ctx)
	sess.BindCancel(cancel)

	if err := ctl.Orch.Registry.Register(sess); err != nil {
		// lost the capacity race after the pre-check
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "capacity exceeded"),
			time.Now().Add(time.Second))
		_ = ws.Close()
		cancel()
		return
	}
	if err := sess.Open(); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("open session")
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	go ctl.writePump(ctx, sess, conn)
	go ctl.readPump(ctx, sess, conn)
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *wsConn, code string) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"error": code,
	})
}
