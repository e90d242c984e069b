package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avoronel/relaychat/internal/adapters/signal"
	"github.com/avoronel/relaychat/internal/app"
	"github.com/avoronel/relaychat/internal/codec"
	"github.com/avoronel/relaychat/internal/config"
	"github.com/avoronel/relaychat/internal/core"
	"github.com/avoronel/relaychat/internal/domain"
)

type stubConn struct{}

func (stubConn) TrySend(core.Frame) error { return nil }
func (stubConn) Close()                   {}

func newTestRouter(t *testing.T) (*gin.Engine, *app.Orchestrator, *app.Registry) {
	t.Helper()
	cfg := &config.Config{
		Mode:         "release",
		StaticPath:   t.TempDir(),
		ReadLimit:    1 << 16,
		PingPeriod:   time.Minute,
		DefaultRoom:  "main",
		RateLimit:    10,
		RateInterval: time.Second,
	}
	policy := app.KindPolicy{TextMode: core.Block, MediaMode: core.DropOldest, EnqueueTimeout: time.Second}
	rooms := app.NewRoomManager(policy, true, time.Minute)
	registry := app.NewRegistry(8)
	lifecycle := &app.LifecycleManager{Registry: registry, Rooms: rooms, Policy: policy}
	orch := &app.Orchestrator{Registry: registry, Rooms: rooms, Lifecycle: lifecycle}
	ctl := signal.NewController(orch, codec.NewDecoder(100, 1024, 1024), cfg)
	return SetupRouter(context.Background(), cfg, ctl, rooms), orch, registry
}

func TestRouter_DeleteRoomEvictsMembers(t *testing.T) {
	r, orch, registry := newTestRouter(t)

	user := &domain.User{ID: "u-a", Username: "a"}
	s := core.NewSession("s-a", user, stubConn{}, core.NewQueue(8))
	if err := registry.Register(s); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	if _, err := orch.Join(s.ID, "doomed"); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/rooms/doomed", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if s.State() != core.StateClosing {
		t.Fatalf("member state = %v, want closing", s.State())
	}

	// Gone: a second delete finds nothing.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/rooms/doomed", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("repeat DELETE status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_ListRooms(t *testing.T) {
	r, orch, _ := newTestRouter(t)
	orch.Rooms.GetOrCreate("visible")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", w.Code, http.StatusOK)
	}
}
