// Package ws serves maps over websocket: binary map frames plus JSON control
// messages.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"

	"github.com/talgya/hexterrain/internal/config"
	"github.com/talgya/hexterrain/internal/engine"
	"github.com/talgya/hexterrain/internal/persistence"
	"github.com/talgya/hexterrain/internal/protocol"
	"github.com/talgya/hexterrain/internal/ratelimit"
)

const (
	handshakeWait = 5 * time.Second
	pingPeriod    = 30 * time.Second
)

// MapSource is the engine surface the server needs.
type MapSource interface {
	Current() *engine.Snapshot
	Fetch(id string) (*engine.Snapshot, error)
	Generate(ctx context.Context, req engine.Request) (*engine.Snapshot, error)
	Subscribe() (int, <-chan *engine.Snapshot)
	Unsubscribe(id int)
}

// Limiter gates GENERATE requests per remote address.
type Limiter interface {
	Allow(key string) bool
}

type Server struct {
	svc       MapSource
	cfg       config.WSConfig
	maxRadius int
	limiter   Limiter

	upgrader websocket.Upgrader

	mu    deadlock.RWMutex
	conns map[string]*conn
}

func NewServer(svc MapSource, cfg config.WSConfig, maxRadius int, limiter Limiter) *Server {
	return &Server{
		svc:       svc,
		cfg:       cfg,
		maxRadius: maxRadius,
		limiter:   limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}
}

type outMsg struct {
	kind int
	data []byte
}

// conn is one client. The writer goroutine is the only writer after the
// handshake; enqueue never blocks.
type conn struct {
	id       string
	ws       *websocket.Conn
	remote   string
	compress bool

	mu     deadlock.Mutex
	out    chan outMsg
	closed bool
}

func (c *conn) enqueue(kind int, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- outMsg{kind: kind, data: data}:
		return true
	default:
		return false
	}
}

func (c *conn) enqueueJSON(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal ws message", "error", err)
		return false
	}
	return c.enqueue(websocket.TextMessage, b)
}

// enqueueMap queues a MAP_INFO and its frame back to back, or neither.
func (c *conn) enqueueMap(info protocol.MapInfoMsg, frame []byte) bool {
	b, err := json.Marshal(info)
	if err != nil {
		slog.Error("marshal ws message", "error", err)
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || cap(c.out)-len(c.out) < 2 {
		return false
	}
	c.out <- outMsg{kind: websocket.TextMessage, data: b}
	c.out <- outMsg{kind: websocket.BinaryMessage, data: frame}
	return true
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Start forwards every new map to all clients until ctx ends.
func (s *Server) Start(ctx context.Context) {
	id, maps := s.svc.Subscribe()
	go func() {
		defer s.svc.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-maps:
				if !ok {
					return
				}
				s.broadcast(snap)
			}
		}
	}()
}

func (s *Server) broadcast(snap *engine.Snapshot) {
	s.mu.RLock()
	targets := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	var raw, packed []byte
	for _, c := range targets {
		var frame []byte
		if c.compress {
			if packed == nil {
				packed = protocol.MapFrame(snap.Payload, true)
			}
			frame = packed
		} else {
			if raw == nil {
				raw = protocol.MapFrame(snap.Payload, false)
			}
			frame = raw
		}
		queueMap(c, snap, frame)
	}
	slog.Debug("map broadcast", "map", snap.Record.ID, "clients", len(targets))
}

func (s *Server) sendMap(c *conn, snap *engine.Snapshot) {
	queueMap(c, snap, protocol.MapFrame(snap.Payload, c.compress))
}

func queueMap(c *conn, snap *engine.Snapshot, frame []byte) {
	if !c.enqueueMap(mapInfo(snap, len(frame)), frame) {
		slog.Warn("ws client too slow, dropping map", "conn", c.id, "map", snap.Record.ID)
	}
}

func mapInfo(snap *engine.Snapshot, size int) protocol.MapInfoMsg {
	return protocol.MapInfoMsg{
		Type:      protocol.TypeMapInfo,
		MapID:     snap.Record.ID,
		Radius:    snap.Record.Radius,
		Seed:      snap.Record.Seed,
		Mode:      snap.Record.Mode,
		Hexes:     snap.Record.HexCount,
		Bytes:     size,
		CreatedAt: snap.Record.CreatedAt,
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		wsConn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer wsConn.Close()
		if s.cfg.MaxMessageBytes > 0 {
			wsConn.SetReadLimit(s.cfg.MaxMessageBytes)
		}

		hello, ok := s.handshake(wsConn)
		if !ok {
			return
		}

		queue := s.cfg.SendQueue
		if queue <= 0 {
			queue = 8
		}
		c := &conn{
			id:       uuid.NewString(),
			ws:       wsConn,
			remote:   ratelimit.ClientIP(r),
			compress: hello.Compress,
			out:      make(chan outMsg, queue*2),
		}

		// Register and queue the current map in one step; every map published
		// after it reaches c through broadcast.
		s.mu.Lock()
		s.conns[c.id] = c
		if snap := s.svc.Current(); snap != nil {
			s.sendMap(c, snap)
		}
		s.mu.Unlock()
		slog.Info("ws client connected", "conn", c.id, "remote", c.remote, "client", hello.ClientName, "compress", c.compress)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			s.writeLoop(ctx, cancel, c)
		}()

		s.readLoop(ctx, c)

		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
		c.close()
		cancel()
		<-writerDone
		slog.Info("ws client disconnected", "conn", c.id)
	}
}

func (s *Server) handshake(wsConn *websocket.Conn) (*protocol.HelloMsg, bool) {
	_ = wsConn.SetReadDeadline(time.Now().Add(handshakeWait))
	_, msg, err := wsConn.ReadMessage()
	if err != nil {
		return nil, false
	}
	v, err := protocol.ParseControl(msg, s.maxRadius)
	hello, isHello := v.(*protocol.HelloMsg)
	if err == nil && !isHello {
		err = &protocol.Error{Code: protocol.ErrProtoBadRequest, Message: "expected HELLO"}
	}
	if err != nil {
		var pe *protocol.Error
		if errors.As(err, &pe) {
			_ = s.writeJSON(wsConn, pe.Msg())
		}
		_ = wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad handshake"),
			time.Now().Add(time.Second))
		return nil, false
	}
	return hello, true
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	readTimeout := s.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		kind, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "conn", c.id, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			c.enqueueJSON(protocol.NewError(protocol.ErrProtoBadRequest, "clients send JSON text messages"))
			continue
		}
		s.handle(ctx, c, msg)
	}
}

func (s *Server) handle(ctx context.Context, c *conn, msg []byte) {
	v, err := protocol.ParseControl(msg, s.maxRadius)
	if err != nil {
		var pe *protocol.Error
		if errors.As(err, &pe) {
			c.enqueueJSON(pe.Msg())
		}
		return
	}

	switch m := v.(type) {
	case *protocol.HelloMsg:
		c.enqueueJSON(protocol.NewError(protocol.ErrProtoBadRequest, "already greeted"))
	case *protocol.GenerateMsg:
		if s.limiter != nil && !s.limiter.Allow(c.remote) {
			c.enqueueJSON(protocol.NewError(protocol.ErrRateLimit, "too many generate requests"))
			return
		}
		// The new map reaches this client through the broadcast.
		if _, err := s.svc.Generate(ctx, engine.Request{Radius: m.Radius, Seed: m.Seed, Mode: m.Mode}); err != nil {
			code := protocol.ErrInternal
			if errors.Is(err, engine.ErrRadius) || errors.Is(err, engine.ErrMode) {
				code = protocol.ErrBadRequest
			}
			c.enqueueJSON(protocol.NewError(code, err.Error()))
		}
	case *protocol.FetchMsg:
		snap, err := s.svc.Fetch(m.MapID)
		switch {
		case errors.Is(err, persistence.ErrNotFound), errors.Is(err, engine.ErrNoMap):
			c.enqueueJSON(protocol.NewError(protocol.ErrNotFound, err.Error()))
		case err != nil:
			c.enqueueJSON(protocol.NewError(protocol.ErrInternal, err.Error()))
		default:
			s.sendMap(c, snap)
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-c.out:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
			if err := c.ws.WriteMessage(m.kind, m.data); err != nil {
				cancel()
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout())); err != nil {
				cancel()
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (s *Server) writeTimeout() time.Duration {
	if s.cfg.WriteTimeout > 0 {
		return s.cfg.WriteTimeout
	}
	return 10 * time.Second
}

func (s *Server) writeJSON(wsConn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = wsConn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
	return wsConn.WriteMessage(websocket.TextMessage, b)
}
