// Command hexclient is a headless map client. It connects to a hexserver,
// loads every map it is sent into a session and logs a summary of each load.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/hexterrain/internal/protocol"
	"github.com/talgya/hexterrain/internal/session"
	"github.com/talgya/hexterrain/internal/transport/ws"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	url := flag.String("url", envOrDefault("HEXTERRAIN_WS_URL", "ws://localhost:8080/ws"), "server websocket URL")
	compress := flag.Bool("compress", true, "request zstd map frames")
	generate := flag.Int("generate", envIntOrDefault("HEXTERRAIN_GENERATE_RADIUS", -1), "request a new map of this radius after connecting (-1 = no)")
	seed := flag.Int64("seed", 0, "seed for -generate (0 = server picks)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess := session.New()
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second

	radius := *generate
	for {
		err := run(ctx, sess, *url, *compress, radius, *seed)
		radius = -1 // only the first connection asks for a new map
		if ctx.Err() != nil {
			break
		}
		slog.Warn("connection lost, reconnecting...", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		if ctx.Err() != nil {
			break
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	loads, failures := sess.Counts()
	slog.Info("client stopped", "loads", loads, "failures", failures)
	fmt.Println("hexclient stopped.")
}

func run(ctx context.Context, sess *session.Session, url string, compress bool, radius int, seed int64) error {
	client := &ws.Client{
		Name:     "hexclient",
		Compress: compress,
		OnMap: func(info protocol.MapInfoMsg, payload []byte) {
			slog.Info("map received",
				"id", info.MapID,
				"radius", info.Radius,
				"seed", info.Seed,
				"mode", info.Mode,
				"frame", humanize.Bytes(uint64(info.Bytes)),
				"payload", humanize.Bytes(uint64(len(payload))),
			)
			if err := sess.LoadMap(payload); err != nil {
				return
			}
			cur := sess.Current()
			lo, hi := heightRange(cur)
			slog.Info("session updated",
				"spawn", cur.Spawn,
				"heights", fmt.Sprintf("%.1f..%.1f", lo, hi),
				"lights", len(cur.Map.LightSources),
			)
		},
		OnError: func(e protocol.ErrorMsg) {
			slog.Warn("server error", "code", e.Code, "message", e.Message)
		},
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Dial(dialCtx, url); err != nil {
		return err
	}
	defer client.Close()
	slog.Info("connected", "url", url, "compress", compress)

	if radius >= 0 {
		if err := client.Generate(radius, seed, ""); err != nil {
			return err
		}
	}
	return client.Run(ctx)
}

func heightRange(l *session.Loaded) (lo, hi float32) {
	first := true
	for _, cell := range l.Map.All() {
		h := cell.Hex.Height
		if first || h < lo {
			lo = h
		}
		if first || h > hi {
			hi = h
		}
		first = false
	}
	return lo, hi
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
