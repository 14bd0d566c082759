// Package api provides the HTTP API for the map server.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/hexterrain/internal/config"
	"github.com/talgya/hexterrain/internal/engine"
	"github.com/talgya/hexterrain/internal/persistence"
	"github.com/talgya/hexterrain/internal/protocol"
	"github.com/talgya/hexterrain/internal/ratelimit"
	"github.com/talgya/hexterrain/internal/transport/ws"
	"github.com/talgya/hexterrain/internal/world"
)

const (
	maxSSEConns  = 16
	maxListLimit = 500
)

// Server serves maps over HTTP and websocket.
type Server struct {
	Svc      *engine.Service
	WS       *ws.Server
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	Limits   config.RateLimitConfig
	Limiter  *ratelimit.Limiter // shared with websocket GENERATE; nil builds one from Limits

	// Active SSE connection count (atomic).
	sseConns int32
	http     *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	generateLimiter := s.Limiter
	if generateLimiter == nil {
		generateLimiter = ratelimit.New(s.Limits.GenerateMax, s.Limits.GenerateWindow)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/map", s.handleMapRoutes)
	mux.HandleFunc("/api/v1/map/", s.handleMapRoutes)
	mux.HandleFunc("/api/v1/map.bin", s.handleMapBinary)
	mux.HandleFunc("/api/v1/maps", s.handleMaps)

	// SSE stream of new maps.
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/generate", s.adminOnly(ratelimit.Middleware(generateLimiter, s.handleGenerate)))

	if s.WS != nil {
		mux.HandleFunc("/ws", s.WS.Handler())
	}

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	s.http = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:8000": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require POST with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no "+config.EnvAdminKey+" set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Svc.Stats()
	clients := 0
	if s.WS != nil {
		clients = s.WS.Clients()
	}
	status := map[string]any{
		"name":             "hexterrain",
		"protocol_version": protocol.Version,
		"uptime":           st.Uptime.Round(time.Second).String(),
		"maps_generated":   st.Generated,
		"maps_archived":    st.Archived,
		"ws_clients":       clients,
		"current_map":      st.Current,
	}
	writeJSON(w, status)
}

// handleMapRoutes dispatches between the current map (GET /api/v1/map) and hex detail (GET /api/v1/map/:q/:r).
func (s *Server) handleMapRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/map")
	if path == "" || path == "/" {
		s.handleBulkMap(w, r)
		return
	}
	s.handleHexDetail(w, r)
}

// snapshotFor resolves ?id= to a map, writing the HTTP error on failure.
func (s *Server) snapshotFor(w http.ResponseWriter, r *http.Request) (*engine.Snapshot, bool) {
	snap, err := s.Svc.Fetch(r.URL.Query().Get("id"))
	switch {
	case errors.Is(err, engine.ErrNoMap), errors.Is(err, persistence.ErrNotFound):
		http.Error(w, "map not found", http.StatusNotFound)
		return nil, false
	case err != nil:
		slog.Error("map fetch failed", "error", err)
		http.Error(w, "map unavailable", http.StatusInternalServerError)
		return nil, false
	}
	return snap, true
}

// handleBulkMap returns all hexes for a 2D map renderer.
func (s *Server) handleBulkMap(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotFor(w, r)
	if !ok {
		return
	}

	type hexEntry struct {
		Q      int     `json:"q"`
		R      int     `json:"r"`
		Height float32 `json:"height"`
		Color  string  `json:"color"`
	}

	m := snap.Data.Map()
	hexes := make([]hexEntry, 0, m.HexCount())
	for c, h := range m.All() {
		a := c.ToAxial()
		hexes = append(hexes, hexEntry{Q: a.Q, R: a.R, Height: h.Height, Color: h.Color.Hex()})
	}
	lo, hi := m.HeightRange()

	writeJSON(w, map[string]any{
		"map":           snap.Record,
		"radius":        m.Radius,
		"center":        m.Center().ToAxial(),
		"height_min":    lo,
		"height_max":    hi,
		"light_sources": snap.Data.LightSources,
		"hexes":         hexes,
	})
}

func (s *Server) handleHexDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	// /api/v1/map/:q/:r → parts[0]="" [1]="api" [2]="v1" [3]="map" [4]=q [5]=r
	if len(parts) < 6 {
		http.Error(w, "usage: /api/v1/map/:q/:r", http.StatusBadRequest)
		return
	}
	q, err1 := strconv.Atoi(parts[4])
	rr, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}

	snap, ok := s.snapshotFor(w, r)
	if !ok {
		return
	}
	m := snap.Data.Map()
	coord := world.AxialCoord{Q: q, R: rr}.ToCube()
	hex, found := m.Get(coord)
	if !found {
		http.Error(w, "hex not found", http.StatusNotFound)
		return
	}

	type neighborInfo struct {
		Q      int     `json:"q"`
		R      int     `json:"r"`
		Height float32 `json:"height"`
		Slope  float32 `json:"slope"`
	}
	var neighbors []neighborInfo
	for _, nc := range coord.Neighbors() {
		nh, ok := m.Get(nc)
		if !ok {
			continue
		}
		a := nc.ToAxial()
		neighbors = append(neighbors, neighborInfo{Q: a.Q, R: a.R, Height: nh.Height, Slope: nh.Height - hex.Height})
	}

	pos := world.AxialToCartesian(coord.ToAxial())
	result := map[string]any{
		"q":         q,
		"r":         rr,
		"cube":      coord,
		"ring":      world.Distance(coord, m.Center()),
		"height":    hex.Height,
		"color":     hex.Color.Hex(),
		"position":  world.WorldPosition(pos, hex.Height),
		"neighbors": neighbors,
	}
	writeJSON(w, result)
}

// handleMapBinary serves the wire-encoded map. ?zstd=1 compresses the body.
func (s *Server) handleMapBinary(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotFor(w, r)
	if !ok {
		return
	}
	body := snap.Payload
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Map-Id", snap.Record.ID)
	if r.URL.Query().Get("zstd") == "1" {
		body = protocol.Compress(body)
		w.Header().Set("Content-Encoding", "zstd")
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Write(body)
}

func (s *Server) handleMaps(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}
	maps, err := s.Svc.List(limit)
	if err != nil {
		slog.Error("map list failed", "error", err)
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	if maps == nil {
		maps = []persistence.MapRecord{}
	}
	writeJSON(w, maps)
}

type generateRequest struct {
	Radius *int   `json:"radius"` // nil uses the configured radius
	Seed   int64  `json:"seed"`
	Mode   string `json:"mode"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	if req.Radius != nil && *req.Radius < 0 {
		http.Error(w, "radius must be non-negative", http.StatusBadRequest)
		return
	}

	snap, err := s.Svc.Generate(r.Context(), engine.Request{Radius: req.Radius, Seed: req.Seed, Mode: req.Mode})
	switch {
	case errors.Is(err, engine.ErrRadius), errors.Is(err, engine.ErrMode):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("generate failed", "error", err)
		http.Error(w, "generation failed", http.StatusInternalServerError)
		return
	}
	slog.Info("map generated via admin API", "id", snap.Record.ID, "remote", ratelimit.ClientIP(r))
	writeJSON(w, snap.Record)
}

// handleStream provides an SSE endpoint announcing new maps.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.Svc.Subscribe()
	defer s.Svc.Unsubscribe(subID)

	if cur := s.Svc.Current(); cur != nil {
		writeSSEMap(w, cur)
	}
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			writeSSEMap(w, snap)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEMap writes a single map announcement in SSE format.
func writeSSEMap(w http.ResponseWriter, snap *engine.Snapshot) {
	data, err := json.Marshal(snap.Record)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: map\ndata: %s\n\n", data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
