package ynison

import (
	"encoding/json"
	"math/rand/v2"
)

const (
	appName     = "Chrome"
	deviceTitle = "Chrome Browser"
	deviceType  = "WEB"
	deviceIDLen = 16
)

// DeviceDescriptor is the ephemeral identity presented to the sync service.
// One is generated per resolution call and never persisted; a collision only
// looks like another device joining, since sessions are keyed by account.
type DeviceDescriptor struct {
	DeviceID string
}

// NewDevice generates a descriptor with a fresh 16-letter device id.
// The id has no security function, so math/rand suffices.
func NewDevice() DeviceDescriptor {
	b := make([]byte, deviceIDLen)
	for i := range b {
		b[i] = byte('a' + rand.IntN(26))
	}
	return DeviceDescriptor{DeviceID: string(b)}
}

// protocolHeader serializes the descriptor into the value of the
// Sec-WebSocket-Protocol header the service expects: "Bearer, v2, <json>".
// ticket is empty during negotiation and set during synchronization.
func (d DeviceDescriptor) protocolHeader(ticket string) (string, error) {
	info, err := json.Marshal(map[string]any{
		"app_name": appName,
		"type":     1,
	})
	if err != nil {
		return "", err
	}
	proto := map[string]string{
		"Ynison-Device-Id":   d.DeviceID,
		"Ynison-Device-Info": string(info),
	}
	if ticket != "" {
		proto["Ynison-Redirect-Ticket"] = ticket
	}
	raw, err := json.Marshal(proto)
	if err != nil {
		return "", err
	}
	return "Bearer, v2, " + string(raw), nil
}
