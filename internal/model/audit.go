package model

import "time"

// Unlock sources.
const (
	UnlockSourceCheckin = "checkin"
	UnlockSourceRemote  = "remote"
)

// UnlockRecord is the audit entry written for every actuation.
type UnlockRecord struct {
	ID             string     `json:"id"`
	DeviceID       string     `json:"device_id"`
	DeviceType     DeviceType `json:"device_type"`
	LockListenType DeviceType `json:"lock_listen_type"`
	StationName    string     `json:"station_name,omitempty"`
	Source         string     `json:"source"`
	Time           time.Time  `json:"time"`
}
