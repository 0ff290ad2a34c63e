package model

import "time"

// DeviceIdentity decides which checkins the device accepts.
type DeviceIdentity struct {
	DeviceType     DeviceType `json:"deviceType" yaml:"device_type"`
	LockListenType DeviceType `json:"lockListenType" yaml:"lock_listen_type"`
}

// PendingIdentityChange is an identity already written to storage that only
// takes effect when the process next starts.
type PendingIdentityChange struct {
	Identity    DeviceIdentity `json:"identity"`
	RequestedAt time.Time      `json:"requestedAt"`
}
