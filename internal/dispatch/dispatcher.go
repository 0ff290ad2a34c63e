// Package dispatch runs the lock controller's cooperative state machine.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"checkin-lock/internal/apperror"
	"checkin-lock/internal/checkin"
	"checkin-lock/internal/model"
	"checkin-lock/internal/slot"
)

// State is a dispatch loop state.
type State int32

const (
	StateRequestConfig State = iota
	StateWaitForConfig
	StateDeviceLoop
	StateError
)

func (s State) String() string {
	switch s {
	case StateRequestConfig:
		return "request_config"
	case StateWaitForConfig:
		return "wait_for_config"
	case StateDeviceLoop:
		return "device_loop"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handshake is the station config handshake as seen by the loop.
type Handshake interface {
	DeviceType() model.DeviceType
	RequestConfig(ctx context.Context) error
	ApplyLocal()
	IsValid() bool
	Current() model.StationConfig
}

// CheckinHandler validates one buffered checkin.
type CheckinHandler interface {
	Handle(payload []byte, station model.StationConfig) checkin.Outcome
}

// DiagPump forwards queued diagnostic lines.
type DiagPump interface {
	Pump(ctx context.Context, now time.Time)
}

// RebootChecker fires due reboots.
type RebootChecker interface {
	Check(now time.Time)
}

// Suppressor closes the diagnostic publishing gate while a callback runs.
type Suppressor interface {
	Suppress(now time.Time, window time.Duration) func()
}

// Deps are the loop's collaborators.
type Deps struct {
	Handshake Handshake
	Checkins  CheckinHandler
	Diag      DiagPump
	Gate      Suppressor
	Reboot    RebootChecker
	Indicator Indicator
}

// Options tune the loop.
type Options struct {
	TickInterval      time.Duration
	ConfigTimeout     time.Duration
	HeartbeatInterval time.Duration
	// CallbackWindow bounds how long an inbound callback holds the diagnostic gate.
	CallbackWindow time.Duration
}

// Dispatcher sequences config bring-up and then dispatches buffered checkins.
// Tick is only ever called from one goroutine; Offer may be called from any.
type Dispatcher struct {
	log       *zap.Logger
	deps      Deps
	opts      Options
	heartbeat *Heartbeat
	inbox     slot.Slot[[]byte]
	now       func() time.Time

	state       atomic.Int32
	requestedAt time.Time
}

// New creates a Dispatcher in StateRequestConfig.
func New(log *zap.Logger, deps Deps, opts Options) *Dispatcher {
	if opts.CallbackWindow <= 0 {
		opts.CallbackWindow = time.Second
	}
	return &Dispatcher{
		log:       log,
		deps:      deps,
		opts:      opts,
		heartbeat: NewHeartbeat(deps.Indicator, opts.HeartbeatInterval),
		now:       time.Now,
	}
}

// State returns the current state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

func (d *Dispatcher) setState(s State) {
	prev := State(d.state.Swap(int32(s)))
	if prev != s {
		d.log.Info("dispatch state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Offer buffers an inbound checkin payload. It never blocks; if a checkin is
// already waiting the new one is dropped and false is returned.
func (d *Dispatcher) Offer(payload []byte) bool {
	release := d.deps.Gate.Suppress(d.now(), d.opts.CallbackWindow)
	defer release()

	buf := make([]byte, len(payload))
	copy(buf, payload)
	if !d.inbox.TrySet(buf) {
		d.log.Warn("checkin buffer overrun", zap.Error(apperror.ErrBufferOverrun), zap.Int("bytes", len(payload)))
		return false
	}
	return true
}

// Tick advances the state machine once and performs the per-tick maintenance.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) {
	d.heartbeat.Tick(now)
	d.deps.Diag.Pump(ctx, now)
	d.deps.Reboot.Check(now)

	switch d.State() {
	case StateRequestConfig:
		d.requestConfig(ctx, now)
	case StateWaitForConfig:
		d.waitForConfig(now)
	case StateDeviceLoop:
		d.deviceLoop()
	case StateError:
		// terminal until the device reboots
	default:
		d.log.Error("unknown dispatch state", zap.Stringer("state", d.State()))
		d.setState(StateError)
	}
}

func (d *Dispatcher) requestConfig(ctx context.Context, now time.Time) {
	if d.deps.Handshake.DeviceType().Bypass() {
		d.deps.Handshake.ApplyLocal()
		d.setState(StateDeviceLoop)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := d.deps.Handshake.RequestConfig(reqCtx); err != nil {
		d.log.Error("station config request failed", zap.Error(err))
	}
	d.requestedAt = now
	d.setState(StateWaitForConfig)
}

func (d *Dispatcher) waitForConfig(now time.Time) {
	if d.deps.Handshake.IsValid() {
		d.setState(StateDeviceLoop)
		return
	}
	if waited := now.Sub(d.requestedAt); waited > d.opts.ConfigTimeout {
		d.log.Error("device halted, reboot required",
			zap.Error(apperror.ErrConfigTimeout),
			zap.Duration("waited", waited))
		d.setState(StateError)
	}
}

func (d *Dispatcher) deviceLoop() {
	payload, ok := d.inbox.TakeIfPresent()
	if !ok {
		return
	}
	d.deps.Checkins.Handle(payload, d.deps.Handshake.Current())
}

// Run calls Tick every TickInterval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.TickInterval)
	defer ticker.Stop()
	d.log.Info("dispatch loop started", zap.Duration("tick", d.opts.TickInterval))
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatch loop stopped", zap.Stringer("state", d.State()))
			return nil
		case now := <-ticker.C:
			d.Tick(ctx, now)
		}
	}
}
