package dispatch

import "time"

// Indicator is the visual liveness output.
type Indicator interface {
	Set(on bool)
}

// Heartbeat toggles an Indicator at a fixed interval.
type Heartbeat struct {
	out      Indicator
	interval time.Duration
	last     time.Time
	on       bool
}

// NewHeartbeat creates a Heartbeat. A nil Indicator or non-positive interval
// disables it.
func NewHeartbeat(out Indicator, interval time.Duration) *Heartbeat {
	return &Heartbeat{out: out, interval: interval}
}

// Tick toggles the indicator when the interval has elapsed.
func (h *Heartbeat) Tick(now time.Time) {
	if h.out == nil || h.interval <= 0 {
		return
	}
	if !h.last.IsZero() && now.Sub(h.last) < h.interval {
		return
	}
	h.last = now
	h.on = !h.on
	h.out.Set(h.on)
}

// On reports the last level written.
func (h *Heartbeat) On() bool {
	return h.on
}
