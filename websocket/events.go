package websocket

import "encoding/json"

// Event is an outbound frame.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Envelope is an inbound frame. Data is decoded by whichever hub owns Type.
type Envelope struct {
	Type  string          `json:"type"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Delivery reports whether a relay reached at least one live connection.
type Delivery int

const (
	NoActiveConnection Delivery = iota
	Delivered
)

func (d Delivery) String() string {
	if d == Delivered {
		return "delivered"
	}
	return "no_active_connection"
}
