package diaglog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockSink struct {
	lines []string
	err   error
}

func (m *mockSink) PublishDiagnostic(_ context.Context, line []byte) error {
	if m.err != nil {
		return m.err
	}
	m.lines = append(m.lines, string(line))
	return nil
}

func TestPump_RateLimited(t *testing.T) {
	sink := &mockSink{}
	p := New(sink, 1, 10)
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	_, _ = p.Write([]byte("a"))
	_, _ = p.Write([]byte("b"))

	p.Pump(context.Background(), now)
	p.Pump(context.Background(), now.Add(100*time.Millisecond))
	assert.Equal(t, []string{"a"}, sink.lines)

	p.Pump(context.Background(), now.Add(time.Second))
	assert.Equal(t, []string{"a", "b"}, sink.lines)
	assert.Equal(t, 2, p.Stats().Published)
}

func TestPump_SuppressedWhileGateHeld(t *testing.T) {
	sink := &mockSink{}
	p := New(sink, 100, 10)
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	release := p.Suppress(now, 2*time.Second)
	_, _ = p.Write([]byte("from callback"))
	assert.False(t, p.Allowed(now))

	p.Pump(context.Background(), now.Add(time.Second))
	assert.Empty(t, sink.lines)

	release()
	release()
	assert.True(t, p.Allowed(now))
	p.Pump(context.Background(), now.Add(time.Second))
	assert.Equal(t, []string{"from callback"}, sink.lines)
}

func TestSuppress_WindowBoundsLostRelease(t *testing.T) {
	p := New(&mockSink{}, 100, 10)
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	_ = p.Suppress(now, time.Second)

	assert.False(t, p.Allowed(now.Add(500*time.Millisecond)))
	assert.True(t, p.Allowed(now.Add(time.Second)))
}

func TestWrite_DropsOldestWhenFull(t *testing.T) {
	p := New(&mockSink{}, 1, 2)

	buf := []byte("one")
	_, _ = p.Write(buf)
	buf[0] = 'X'
	_, _ = p.Write([]byte("two"))
	_, _ = p.Write([]byte("three"))

	assert.Equal(t, 2, p.Pending())
	assert.Equal(t, 1, p.Stats().Dropped)
	assert.Equal(t, "two", string(p.queue[0]))
}

func TestPump_CountsFailures(t *testing.T) {
	sink := &mockSink{err: errors.New("offline")}
	p := New(sink, 1, 2)
	_, _ = p.Write([]byte("x"))

	p.Pump(context.Background(), time.Now())

	assert.Equal(t, 1, p.Stats().Failed)
	assert.Zero(t, p.Pending())
}
