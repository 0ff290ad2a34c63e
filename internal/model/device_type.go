// Package model holds the records exchanged between the lock controller's components.
package model

import "strconv"

// DeviceType identifies the role a station plays in the facility directory.
type DeviceType int

// Reserved device types. Every other code is an ordinary station type.
const (
	DeviceTypeUndefined   DeviceType = 0
	DeviceTypeCheckinOnly DeviceType = 1
)

// DeviceKind classifies a DeviceType.
type DeviceKind int

const (
	KindOther DeviceKind = iota
	KindUndefined
	KindCheckinOnly
)

func (k DeviceKind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindCheckinOnly:
		return "checkin-only"
	default:
		return "other"
	}
}

// Kind reports which variant of the enumeration t belongs to.
func (t DeviceType) Kind() DeviceKind {
	switch t {
	case DeviceTypeUndefined:
		return KindUndefined
	case DeviceTypeCheckinOnly:
		return KindCheckinOnly
	default:
		return KindOther
	}
}

// Bypass reports whether t skips the station config handshake.
func (t DeviceType) Bypass() bool {
	return t.Kind() != KindOther
}

func (t DeviceType) String() string {
	if k := t.Kind(); k != KindOther {
		return k.String()
	}
	return strconv.Itoa(int(t))
}
