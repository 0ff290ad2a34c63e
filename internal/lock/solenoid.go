// Package lock drives the door-lock solenoid and the status indicator.
package lock

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pin is a digital output line.
type Pin interface {
	Set(high bool)
}

// Solenoid energises the lock pin for a fixed pulse on every Unlock.
type Solenoid struct {
	log   *zap.Logger
	pin   Pin
	pulse time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	pulses   uint64
	unlocked bool
}

// NewSolenoid creates a Solenoid. The pin starts released.
func NewSolenoid(log *zap.Logger, pin Pin, pulse time.Duration) *Solenoid {
	pin.Set(false)
	return &Solenoid{log: log, pin: pin, pulse: pulse}
}

// Unlock energises the pin and returns at once. A second Unlock during the
// pulse extends it.
func (s *Solenoid) Unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pin.Set(true)
	s.unlocked = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pulses++
	n := s.pulses
	s.timer = time.AfterFunc(s.pulse, func() { s.release(n) })
	s.log.Info("lock open", zap.Duration("pulse", s.pulse))
}

func (s *Solenoid) release(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n != s.pulses {
		return
	}

	s.pin.Set(false)
	s.unlocked = false
	s.log.Info("lock closed")
}

// Unlocked reports whether the solenoid is energised.
func (s *Solenoid) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

// LogPin stands in for a GPIO line by logging level changes.
type LogPin struct {
	log  *zap.Logger
	name string

	mu   sync.Mutex
	high bool
}

// NewLogPin creates a LogPin.
func NewLogPin(log *zap.Logger, name string) *LogPin {
	return &LogPin{log: log, name: name}
}

func (p *LogPin) Set(high bool) {
	p.mu.Lock()
	changed := p.high != high
	p.high = high
	p.mu.Unlock()
	if changed {
		p.log.Debug("pin level", zap.String("pin", p.name), zap.Bool("high", high))
	}
}

// High reports the last level set.
func (p *LogPin) High() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.high
}
