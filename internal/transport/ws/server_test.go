package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/hexterrain/internal/config"
	"github.com/talgya/hexterrain/internal/engine"
	"github.com/talgya/hexterrain/internal/protocol"
	"github.com/talgya/hexterrain/internal/wire"
)

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type received struct {
	info    protocol.MapInfoMsg
	payload []byte
}

func startServer(t *testing.T, limiter Limiter) (*engine.Service, *Server, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Generation.Radius = 2
	cfg.MaxRadius = 6
	svc := engine.NewService(cfg, nil, wire.Skybox{})
	srv := NewServer(svc, cfg.WS, cfg.MaxRadius, limiter)

	ctx, cancel := context.WithCancel(context.Background())
	srv.Start(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return svc, srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialClient(t *testing.T, url string, compress bool) (*Client, chan received, chan protocol.ErrorMsg) {
	t.Helper()
	maps := make(chan received, 8)
	errs := make(chan protocol.ErrorMsg, 8)
	c := &Client{
		Name:     "test",
		Compress: compress,
		OnMap:    func(info protocol.MapInfoMsg, p []byte) { maps <- received{info, p} },
		OnError:  func(e protocol.ErrorMsg) { errs <- e },
	}
	if err := c.Dial(context.Background(), url); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(cancel)
	return c, maps, errs
}

func waitMap(t *testing.T, ch chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no map received")
		return received{}
	}
}

func waitErr(t *testing.T, ch chan protocol.ErrorMsg) protocol.ErrorMsg {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("no error received")
		return protocol.ErrorMsg{}
	}
}

func TestCurrentMapOnConnect(t *testing.T) {
	svc, _, url := startServer(t, nil)
	snap, err := svc.Generate(context.Background(), engine.Request{Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	for _, compress := range []bool{false, true} {
		_, maps, _ := dialClient(t, url, compress)
		got := waitMap(t, maps)
		if got.info.MapID != snap.Record.ID || got.info.Radius != 2 {
			t.Fatalf("info = %+v", got.info)
		}
		if !bytes.Equal(got.payload, snap.Payload) {
			t.Fatalf("compress=%v: payload differs", compress)
		}
	}
}

func TestGenerateBroadcast(t *testing.T) {
	_, srv, url := startServer(t, nil)
	a, mapsA, _ := dialClient(t, url, true)
	_, mapsB, _ := dialClient(t, url, false)

	deadline := time.Now().Add(5 * time.Second)
	for srv.Clients() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := a.Generate(4, 77, "simplex"); err != nil {
		t.Fatal(err)
	}
	ga, gb := waitMap(t, mapsA), waitMap(t, mapsB)
	if ga.info.MapID == "" || ga.info.MapID != gb.info.MapID {
		t.Fatalf("clients saw different maps: %q %q", ga.info.MapID, gb.info.MapID)
	}
	d, err := wire.Decode(ga.payload)
	if err != nil || d.Radius != 4 {
		t.Fatalf("decoded radius %d, err %v", d.Radius, err)
	}
	if ga.info.Mode != "simplex" || ga.info.Seed != 77 {
		t.Fatalf("info = %+v", ga.info)
	}
}

func TestGenerateRadiusZero(t *testing.T) {
	_, _, url := startServer(t, nil)
	c, maps, _ := dialClient(t, url, false)

	if err := c.Generate(0, 5, ""); err != nil {
		t.Fatal(err)
	}
	got := waitMap(t, maps)
	if got.info.Radius != 0 || got.info.Hexes != 1 {
		t.Fatalf("radius 0 request gave %+v", got.info)
	}
	if d, err := wire.Decode(got.payload); err != nil || len(d.Hexes) != 1 || len(d.Hexes[0]) != 1 {
		t.Fatalf("payload is not the single-hex map: %v", err)
	}

	c.Generate(-1, 5, "")
	if got := waitMap(t, maps); got.info.Radius != 2 {
		t.Fatalf("server default radius = %d, want 2", got.info.Radius)
	}
}

func TestEnqueueMapAllOrNothing(t *testing.T) {
	c := &conn{id: "t", out: make(chan outMsg, 3)}
	info := protocol.MapInfoMsg{Type: protocol.TypeMapInfo, MapID: "a"}
	if !c.enqueueMap(info, []byte{1}) {
		t.Fatal("first map refused")
	}
	if c.enqueueMap(info, []byte{2}) {
		t.Fatal("map queued without room for its frame")
	}
	if len(c.out) != 2 {
		t.Fatalf("queue holds %d messages, want 2", len(c.out))
	}
	c.close()
	if c.enqueueMap(info, []byte{3}) {
		t.Fatal("map queued on a closed conn")
	}
}

func TestConcurrentMapsStayPaired(t *testing.T) {
	cfg := config.Default()
	cfg.MaxRadius = 6
	svc := engine.NewService(cfg, nil, wire.Skybox{})
	var snaps []*engine.Snapshot
	for r := 0; r < 4; r++ {
		radius := r
		snap, err := svc.Generate(context.Background(), engine.Request{Radius: &radius, Seed: int64(r + 1)})
		if err != nil {
			t.Fatal(err)
		}
		snaps = append(snaps, snap)
	}

	srv := NewServer(svc, cfg.WS, cfg.MaxRadius, nil)
	const rounds = 50
	c := &conn{id: "t", out: make(chan outMsg, 2*rounds*len(snaps))}
	var wg sync.WaitGroup
	for _, snap := range snaps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				srv.sendMap(c, snap)
			}
		}()
	}
	wg.Wait()
	c.close()

	n := 0
	for msg := range c.out {
		var info protocol.MapInfoMsg
		if msg.kind != websocket.TextMessage || json.Unmarshal(msg.data, &info) != nil {
			t.Fatalf("message %d is not MAP_INFO", n)
		}
		frame, ok := <-c.out
		if !ok || frame.kind != websocket.BinaryMessage {
			t.Fatalf("MAP_INFO %d not followed by a frame", n)
		}
		payload, err := protocol.MapPayload(frame.data)
		if err != nil {
			t.Fatal(err)
		}
		d, err := wire.Decode(payload)
		if err != nil || d.Radius != info.Radius {
			t.Fatalf("pair %d: info radius %d, frame radius %d (%v)", n, info.Radius, d.Radius, err)
		}
		n++
	}
	if n != rounds*len(snaps) {
		t.Fatalf("%d maps queued, want %d", n, rounds*len(snaps))
	}
}

func TestFetchAndErrors(t *testing.T) {
	svc, _, url := startServer(t, nil)
	c, maps, errs := dialClient(t, url, false)

	c.Fetch("")
	if e := waitErr(t, errs); e.Code != protocol.ErrNotFound {
		t.Fatalf("fetch before any map: %+v", e)
	}

	snap, _ := svc.Generate(context.Background(), engine.Request{Seed: 1})
	waitMap(t, maps) // broadcast
	c.Fetch(snap.Record.ID)
	if got := waitMap(t, maps); got.info.MapID != snap.Record.ID {
		t.Fatalf("fetched %q", got.info.MapID)
	}

	c.Generate(7, 0, "")
	if e := waitErr(t, errs); e.Code != protocol.ErrBadRequest {
		t.Fatalf("oversized radius: %+v", e)
	}
	c.Fetch("9f7a1b52-3c44-4e0a-8d2f-0a1b2c3d4e5f")
	if e := waitErr(t, errs); e.Code != protocol.ErrNotFound {
		t.Fatalf("unknown map: %+v", e)
	}
}

func TestRateLimited(t *testing.T) {
	_, _, url := startServer(t, denyAll{})
	c, _, errs := dialClient(t, url, false)
	c.Generate(1, 1, "")
	if e := waitErr(t, errs); e.Code != protocol.ErrRateLimit {
		t.Fatalf("err = %+v", e)
	}
}

func TestHandshakeRequiresHello(t *testing.T) {
	_, _, url := startServer(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"FETCH"}`))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("no error message: %v", err)
	}
	var e protocol.ErrorMsg
	if json.Unmarshal(msg, &e); e.Type != protocol.TypeError || e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("got %s", msg)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection still open after bad handshake")
	}
}
