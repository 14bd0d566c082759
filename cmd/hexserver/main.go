// Command hexserver generates hex terrain maps and serves them over HTTP and
// websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/hexterrain/internal/api"
	"github.com/talgya/hexterrain/internal/config"
	"github.com/talgya/hexterrain/internal/engine"
	"github.com/talgya/hexterrain/internal/persistence"
	"github.com/talgya/hexterrain/internal/ratelimit"
	"github.com/talgya/hexterrain/internal/skybox"
	"github.com/talgya/hexterrain/internal/transport/ws"
	"github.com/talgya/hexterrain/internal/wire"
)

func main() {
	configPath := flag.String("config", os.Getenv("HEXTERRAIN_CONFIG"), "YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("hexterrain map server",
		"radius", cfg.Generation.Radius,
		"mode", cfg.Generation.Mode,
		"max_radius", cfg.MaxRadius,
		"rotate_every", cfg.RotateEvery,
		"random_org", cfg.RandomOrgKey != "",
	)

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Skybox ────────────────────────────────────────────────────────
	sky, err := loadSkybox(cfg.Skybox)
	if err != nil {
		slog.Error("failed to load skybox", "error", err)
		os.Exit(1)
	}

	// ── Engine (restore last map or generate) ─────────────────────────
	svc := engine.NewService(cfg, db, sky)
	restored, err := svc.Restore()
	if err != nil {
		slog.Warn("could not restore archived map, generating a new one", "error", err)
	}
	if !restored {
		if _, err := svc.Generate(context.Background(), engine.Request{}); err != nil {
			slog.Error("initial generation failed", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rotator := engine.NewRotator(svc, cfg.RotateEvery)
	go rotator.Run(ctx)

	// ── Transport + API ───────────────────────────────────────────────
	limiter := ratelimit.New(cfg.RateLimit.GenerateMax, cfg.RateLimit.GenerateWindow)
	wsServer := ws.NewServer(svc, cfg.WS, cfg.MaxRadius, limiter)
	wsServer.Start(ctx)

	apiServer := &api.Server{
		Svc:      svc,
		WS:       wsServer,
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
		Limits:   cfg.RateLimit,
		Limiter:  limiter,
	}
	apiServer.Start()

	// ── Wait for shutdown ─────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	rotator.Stop()
	<-rotator.Done()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}

	fmt.Println("hexserver stopped.")
}

// loadSkybox reads the configured face files, or generates a gradient sky
// when none are set.
func loadSkybox(c config.SkyboxConfig) (wire.Skybox, error) {
	if c.Configured() {
		sky, err := skybox.LoadFiles(c.Paths())
		if err != nil {
			return wire.Skybox{}, err
		}
		slog.Info("skybox loaded from files", "faces", presentFaces(sky))
		return sky, nil
	}
	if c.GradientSize == 0 {
		slog.Warn("no skybox configured; clients will reject maps")
		return wire.Skybox{}, nil
	}
	sky, err := skybox.Gradient(c.GradientSize, skybox.DefaultPalette)
	if err != nil {
		return wire.Skybox{}, err
	}
	slog.Info("skybox generated", "size", c.GradientSize)
	return sky, nil
}

func presentFaces(sky wire.Skybox) int {
	n := 0
	for _, f := range sky.Faces {
		if f.Present() {
			n++
		}
	}
	return n
}
