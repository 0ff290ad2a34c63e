package model

import "encoding/json"

// MaxPayloadBytes bounds the size of an inbound checkin payload.
const MaxPayloadBytes = 622

// CheckinMessage is a decoded checkin notification.
type CheckinMessage struct {
	Secret     int
	DeviceType DeviceType
	// Modifiers carries every other top-level field untouched.
	Modifiers map[string]json.RawMessage
}

// CheckinPayload is the wire form of a checkin notification.
type CheckinPayload struct {
	Secret     *int `json:"secret" validate:"required"`
	DeviceType *int `json:"deviceType" validate:"required"`
}
