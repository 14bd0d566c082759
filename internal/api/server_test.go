package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/talgya/hexterrain/internal/config"
	"github.com/talgya/hexterrain/internal/engine"
	"github.com/talgya/hexterrain/internal/persistence"
	"github.com/talgya/hexterrain/internal/protocol"
	"github.com/talgya/hexterrain/internal/wire"
	"github.com/talgya/hexterrain/internal/world"
)

const testKey = "k3y"

func newTestServer(t *testing.T, generateMax int) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Generation.Radius = 3
	cfg.MaxRadius = 10
	s := &Server{
		Svc:      engine.NewService(cfg, nil, wire.Skybox{}),
		AdminKey: testKey,
		Limits:   config.RateLimitConfig{GenerateMax: generateMax, GenerateWindow: time.Hour},
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func generate(t *testing.T, ts *httptest.Server, body string) persistence.MapRecord {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/api/v1/generate", testKey, body)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("generate: %d %s", resp.StatusCode, b)
	}
	var rec persistence.MapRecord
	decode(t, resp, &rec)
	return rec
}

func TestGenerateAuth(t *testing.T) {
	ts := newTestServer(t, 10)
	if resp := do(t, http.MethodPost, ts.URL+"/api/v1/generate", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/api/v1/generate", "wrong", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/generate", testKey, ""); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/api/v1/generate", testKey, `{"radius":11}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversized radius: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/api/v1/generate", testKey, `{nope`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad body: %d", resp.StatusCode)
	}

	rec := generate(t, ts, `{"radius":4,"seed":12}`)
	if rec.Radius != 4 || rec.Seed != 12 || rec.HexCount != world.HexCountForRadius(4) {
		t.Fatalf("record = %+v", rec)
	}
	if rec := generate(t, ts, `{"radius":0}`); rec.Radius != 0 || rec.HexCount != 1 {
		t.Fatalf("radius 0 record = %+v", rec)
	}
	if rec := generate(t, ts, `{}`); rec.Radius != 3 {
		t.Fatalf("default radius record = %+v", rec)
	}
}

func TestAdminDisabledWithoutKey(t *testing.T) {
	s := &Server{Svc: engine.NewService(config.Default(), nil, wire.Skybox{}), Limits: config.Default().RateLimit}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	if resp := do(t, http.MethodPost, ts.URL+"/api/v1/generate", "anything", ""); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	ts := newTestServer(t, 1)
	generate(t, ts, "")
	resp := do(t, http.MethodPost, ts.URL+"/api/v1/generate", testKey, "")
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") == "" {
		t.Fatalf("second generate: %d", resp.StatusCode)
	}
}

func TestMapEndpoints(t *testing.T) {
	ts := newTestServer(t, 10)
	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/map", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("map before generation: %d", resp.StatusCode)
	}
	rec := generate(t, ts, `{"seed":5}`)

	var bulk struct {
		Radius int `json:"radius"`
		Hexes  []struct {
			Q, R   int
			Height float32
			Color  string
		} `json:"hexes"`
		LightSources []wire.LightSource `json:"light_sources"`
	}
	decode(t, do(t, http.MethodGet, ts.URL+"/api/v1/map", "", ""), &bulk)
	if bulk.Radius != 3 || len(bulk.Hexes) != world.HexCountForRadius(3) || len(bulk.LightSources) != 1 {
		t.Fatalf("bulk map: radius %d, %d hexes, %d lights", bulk.Radius, len(bulk.Hexes), len(bulk.LightSources))
	}

	var detail struct {
		Ring      int     `json:"ring"`
		Height    float32 `json:"height"`
		Neighbors []any   `json:"neighbors"`
	}
	decode(t, do(t, http.MethodGet, ts.URL+"/api/v1/map/3/3", "", ""), &detail)
	if detail.Ring != 0 || detail.Height != 0 || len(detail.Neighbors) != 6 {
		t.Fatalf("centre detail = %+v", detail)
	}
	decode(t, do(t, http.MethodGet, ts.URL+"/api/v1/map/6/3", "", ""), &detail)
	if detail.Ring != 3 || len(detail.Neighbors) != 3 {
		t.Fatalf("corner detail = %+v", detail)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/map/0/0", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("outside hex: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/map/x/1", "", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad coords: %d", resp.StatusCode)
	}

	resp := do(t, http.MethodGet, ts.URL+"/api/v1/map.bin", "", "")
	raw, _ := io.ReadAll(resp.Body)
	if resp.Header.Get("X-Map-Id") != rec.ID {
		t.Fatalf("X-Map-Id = %q", resp.Header.Get("X-Map-Id"))
	}
	if d, err := wire.Decode(raw); err != nil || d.Radius != 3 {
		t.Fatalf("map.bin: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/map.bin?zstd=1", nil)
	req.Header.Set("Accept-Encoding", "zstd")
	zresp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	defer zresp.Body.Close()
	packed, _ := io.ReadAll(zresp.Body)
	unpacked, err := protocol.Decompress(packed)
	if err != nil || string(unpacked) != string(raw) {
		t.Fatalf("zstd body does not match raw map: %v", err)
	}

	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/map.bin?id=missing", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing id: %d", resp.StatusCode)
	}

	var list []persistence.MapRecord
	decode(t, do(t, http.MethodGet, ts.URL+"/api/v1/maps", "", ""), &list)
	if len(list) != 1 || list[0].ID != rec.ID {
		t.Fatalf("maps = %+v", list)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/maps?limit=0", "", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("limit=0: %d", resp.StatusCode)
	}

	var status map[string]any
	decode(t, do(t, http.MethodGet, ts.URL+"/api/v1/status", "", ""), &status)
	if status["maps_generated"] != float64(1) {
		t.Fatalf("status = %v", status)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, 10)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("preflight: %d %q", resp.StatusCode, resp.Header.Get("Access-Control-Allow-Origin"))
	}
}
