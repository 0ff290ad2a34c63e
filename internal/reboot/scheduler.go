// Package reboot tracks the single pending restart deadline of the device.
package reboot

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Reasons recorded with a reboot.
const (
	ReasonDaily  = "daily"
	ReasonConfig = "config_change"
)

// Rebooter restarts the device.
type Rebooter interface {
	Reboot(reason string)
}

// Options configures a Scheduler.
type Options struct {
	DailyHour     int
	DailyMinute   int
	Window        time.Duration
	DeferredDelay time.Duration
}

// Scheduler fires the daily jittered reboot and deferred reboots requested
// after configuration changes. Only the earliest pending deadline is kept.
type Scheduler struct {
	log      *zap.Logger
	rebooter Rebooter
	opts     Options
	jitter   func(window time.Duration) time.Duration

	mu        sync.Mutex
	deadline  time.Time
	reason    string
	lastDaily string
}

// New creates a Scheduler for a process started now.
func New(log *zap.Logger, r Rebooter, opts Options) *Scheduler {
	return newStartedAt(log, r, opts, time.Now())
}

// newStartedAt treats a start inside the daily minute as that day's reboot,
// so a restart caused by it does not arm another one.
func newStartedAt(log *zap.Logger, r Rebooter, opts Options, started time.Time) *Scheduler {
	s := &Scheduler{
		log:      log,
		rebooter: r,
		opts:     opts,
		jitter:   randomDelay,
	}
	if s.dailyMinute(started) {
		s.lastDaily = started.Format(time.DateOnly)
		log.Info("started inside daily reboot minute, skipping today's reboot", zap.Time("started", started))
	}
	return s
}

func (s *Scheduler) dailyMinute(t time.Time) bool {
	return t.Hour() == s.opts.DailyHour && t.Minute() == s.opts.DailyMinute
}

func randomDelay(window time.Duration) time.Duration {
	if window <= 0 {
		return 0
	}
	return rand.N(window)
}

// RequestDeferred schedules a reboot DeferredDelay after now.
func (s *Scheduler) RequestDeferred(now time.Time, reason string) {
	s.schedule(now.Add(s.opts.DeferredDelay), reason)
}

// Pending returns the current deadline, if any.
func (s *Scheduler) Pending() (time.Time, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, s.reason, !s.deadline.IsZero()
}

// Check runs once per tick. It arms the daily reboot when the wall clock
// reaches the configured minute and reboots once a deadline has passed.
func (s *Scheduler) Check(now time.Time) {
	if s.dailyMinute(now) {
		day := now.Format(time.DateOnly)
		s.mu.Lock()
		armed := s.lastDaily != day
		s.lastDaily = day
		s.mu.Unlock()
		if armed {
			s.schedule(now.Add(s.jitter(s.opts.Window)), ReasonDaily)
		}
	}

	s.mu.Lock()
	due := !s.deadline.IsZero() && !now.Before(s.deadline)
	reason := s.reason
	if due {
		s.deadline = time.Time{}
		s.reason = ""
	}
	s.mu.Unlock()

	if due {
		s.log.Warn("rebooting", zap.String("reason", reason))
		s.rebooter.Reboot(reason)
	}
}

func (s *Scheduler) schedule(at time.Time, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.deadline.IsZero() && !at.Before(s.deadline) {
		s.log.Debug("reboot already pending", zap.Time("deadline", s.deadline), zap.String("reason", s.reason))
		return
	}
	s.deadline = at
	s.reason = reason
	s.log.Info("reboot scheduled", zap.Time("deadline", at), zap.String("reason", reason))
}

// RestartExitCode is the process exit status that asks the supervisor to
// start the controller again.
const RestartExitCode = 3

// ProcessRebooter restarts the controller by ending the process run and
// leaving the restart to the service supervisor.
type ProcessRebooter struct {
	cancel    context.CancelFunc
	requested atomic.Bool
}

// NewProcessRebooter returns a Rebooter that cancels the run context.
func NewProcessRebooter(cancel context.CancelFunc) *ProcessRebooter {
	return &ProcessRebooter{cancel: cancel}
}

// Reboot ends the run.
func (p *ProcessRebooter) Reboot(string) {
	p.requested.Store(true)
	p.cancel()
}

// Requested reports whether Reboot was called.
func (p *ProcessRebooter) Requested() bool {
	return p.requested.Load()
}
