// Package diaglog forwards diagnostic log lines to the cloud at a bounded rate.
package diaglog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Sink delivers one diagnostic line.
type Sink interface {
	PublishDiagnostic(ctx context.Context, line []byte) error
}

// Stats counts what happened to queued lines.
type Stats struct {
	Queued    int
	Published int
	Dropped   int
	Failed    int
}

// Publisher queues log lines from any goroutine and publishes them from Pump.
// Write never touches the network, so it is safe inside transport callbacks.
type Publisher struct {
	sink     Sink
	limiter  *rate.Limiter
	maxQueue int
	timeout  time.Duration

	mu              sync.Mutex
	queue           [][]byte
	holders         int
	suppressedUntil time.Time
	stats           Stats
}

// New creates a Publisher sending at most perSecond lines per second.
func New(sink Sink, perSecond float64, maxQueue int) *Publisher {
	if maxQueue <= 0 {
		maxQueue = 64
	}
	return &Publisher{
		sink:     sink,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		maxQueue: maxQueue,
		timeout:  2 * time.Second,
	}
}

// Write queues a copy of b. When the queue is full the oldest line is dropped.
func (p *Publisher) Write(b []byte) (int, error) {
	line := make([]byte, len(b))
	copy(line, b)

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) >= p.maxQueue {
		p.queue = p.queue[1:]
		p.stats.Dropped++
	}
	p.queue = append(p.queue, line)
	p.stats.Queued++
	return len(b), nil
}

// Sync is a no-op; lines leave through Pump.
func (p *Publisher) Sync() error { return nil }

// Suppress closes the publishing gate for at most window and returns the
// function that opens it again.
func (p *Publisher) Suppress(now time.Time, window time.Duration) func() {
	p.mu.Lock()
	p.holders++
	if until := now.Add(window); until.After(p.suppressedUntil) {
		p.suppressedUntil = until
	}
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.holders--
			if p.holders == 0 {
				p.suppressedUntil = time.Time{}
			}
			p.mu.Unlock()
		})
	}
}

// Allowed reports whether the gate is open at now.
func (p *Publisher) Allowed(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allowed(now)
}

func (p *Publisher) allowed(now time.Time) bool {
	return p.holders == 0 || !now.Before(p.suppressedUntil)
}

// Pump publishes at most one queued line when the gate is open and the rate
// limit allows it. It is called from the dispatch loop only.
func (p *Publisher) Pump(ctx context.Context, now time.Time) {
	p.mu.Lock()
	if len(p.queue) == 0 || !p.allowed(now) || !p.limiter.AllowN(now, 1) {
		p.mu.Unlock()
		return
	}
	line := p.queue[0]
	p.queue = p.queue[1:]
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.sink.PublishDiagnostic(ctx, line)

	p.mu.Lock()
	if err != nil {
		p.stats.Failed++
	} else {
		p.stats.Published++
	}
	p.mu.Unlock()
}

// Pending returns the number of queued lines.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stats returns a snapshot of the counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
