package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/avoronel/relaychat/internal/adapters/http"
	wssignal "github.com/avoronel/relaychat/internal/adapters/signal"
	"github.com/avoronel/relaychat/internal/app"
	"github.com/avoronel/relaychat/internal/codec"
	"github.com/avoronel/relaychat/internal/config"
	"github.com/avoronel/relaychat/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	textMode, err := core.ParseQueueMode(cfg.QueuePolicyText)
	if err != nil {
		log.Fatal().Err(err).Msg("bad queue_policy_text")
	}
	mediaMode, err := core.ParseQueueMode(cfg.QueuePolicyMedia)
	if err != nil {
		log.Fatal().Err(err).Msg("bad queue_policy_media")
	}
	policy := app.KindPolicy{
		TextMode:       textMode,
		MediaMode:      mediaMode,
		EnqueueTimeout: cfg.EnqueueTimeout,
	}
	rooms := app.NewRoomManager(policy, cfg.Echo, cfg.EmptyRoomTTL)
	registry := app.NewRegistry(cfg.MaxConnections)
	lifecycle := &app.LifecycleManager{
		Registry: registry,
		Rooms:    rooms,
		Policy:   policy,
		UserTTL:  cfg.UserTTL,
	}

	orch := &app.Orchestrator{
		Registry:  registry,
		Rooms:     rooms,
		Lifecycle: lifecycle,
	}

	dec := codec.NewDecoder(cfg.MaxTextChars, cfg.MaxVoiceBytes, cfg.MaxFileBytes)
	ctl := wssignal.NewController(orch, dec, cfg)

	r := router.SetupRouter(ctx, cfg, ctl, rooms)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lifecycle.Run(gctx) })
	g.Go(func() error { return rooms.Janitor(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("background worker error")
	}
	log.Info().Msg("Server exited gracefully")
}
