package protocol

import "time"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	Compress        bool   `json:"compress,omitempty"` // ask for zstd map frames
}

// GENERATE (client -> server) asks for a fresh map. Omitted fields fall back
// to the server's configuration; radius 0 is the single-hex map.
type GenerateMsg struct {
	Type   string `json:"type"`
	Radius *int   `json:"radius,omitempty"`
	Seed   int64  `json:"seed,omitempty"`
	Mode   string `json:"mode,omitempty"`
}

// FETCH (client -> server) asks for an archived map. An empty MapID means
// the current map.
type FetchMsg struct {
	Type  string `json:"type"`
	MapID string `json:"map_id,omitempty"`
}

// MAP_INFO (server -> client) precedes every map frame.
type MapInfoMsg struct {
	Type      string    `json:"type"`
	MapID     string    `json:"map_id"`
	Radius    int       `json:"radius"`
	Seed      int64     `json:"seed"`
	Mode      string    `json:"mode"`
	Hexes     int       `json:"hexes"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError builds an ERROR message.
func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Code: code, Message: message}
}
