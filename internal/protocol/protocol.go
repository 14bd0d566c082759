// Package protocol defines the messages exchanged over the map channel:
// binary map frames behind a one-byte opcode, and JSON control messages.
package protocol

import "encoding/json"

const Version = "1.0"

// Control message types.
const (
	TypeHello    = "HELLO"
	TypeGenerate = "GENERATE"
	TypeFetch    = "FETCH"
	TypeMapInfo  = "MAP_INFO"
	TypeError    = "ERROR"
)

// BaseMessage lets us route JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
