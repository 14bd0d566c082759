package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/hexterrain/internal/protocol"
)

// MapHandler receives each map frame with the MAP_INFO that announced it.
// The payload is the wire-encoded map, already decompressed.
type MapHandler func(info protocol.MapInfoMsg, payload []byte)

// Client is a map channel consumer.
type Client struct {
	Name     string
	Compress bool
	OnMap    MapHandler
	OnError  func(protocol.ErrorMsg)

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to url and sends HELLO.
func (c *Client) Dial(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	c.conn = conn
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      c.Name,
		Compress:        c.Compress,
	}
	if err := c.send(hello); err != nil {
		conn.Close()
		return fmt.Errorf("hello: %w", err)
	}
	return nil
}

// Generate asks the server for a new map. A negative radius leaves the
// choice to the server.
func (c *Client) Generate(radius int, seed int64, mode string) error {
	msg := protocol.GenerateMsg{Type: protocol.TypeGenerate, Seed: seed, Mode: mode}
	if radius >= 0 {
		msg.Radius = &radius
	}
	return c.send(msg)
}

// Fetch asks for an archived map; an empty id means the current one.
func (c *Client) Fetch(id string) error {
	return c.send(protocol.FetchMsg{Type: protocol.TypeFetch, MapID: id})
}

func (c *Client) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Run reads messages until ctx ends or the connection drops.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	})
	defer stop()

	var pending *protocol.MapInfoMsg
	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		switch kind {
		case websocket.TextMessage:
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				slog.Warn("bad server message", "error", err)
				continue
			}
			switch base.Type {
			case protocol.TypeMapInfo:
				var info protocol.MapInfoMsg
				if err := json.Unmarshal(msg, &info); err != nil {
					slog.Warn("bad MAP_INFO", "error", err)
					continue
				}
				pending = &info
			case protocol.TypeError:
				var e protocol.ErrorMsg
				if err := json.Unmarshal(msg, &e); err == nil && c.OnError != nil {
					c.OnError(e)
				}
			}
		case websocket.BinaryMessage:
			payload, err := protocol.MapPayload(msg)
			if err != nil {
				if errors.Is(err, protocol.ErrUnknownOpcode) {
					continue
				}
				slog.Warn("bad map frame", "error", err)
				continue
			}
			var info protocol.MapInfoMsg
			if pending != nil {
				info = *pending
				pending = nil
			}
			if c.OnMap != nil {
				c.OnMap(info, payload)
			}
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
