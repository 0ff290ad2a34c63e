package transport

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"checkin-lock/internal/testutil"
)

func newTestBus(t *testing.T) (*Bus, *nats.Conn) {
	srv := testutil.RunJetStreamServer(t)
	log := zaptest.NewLogger(t)
	nc, err := Connect(srv.ClientURL(), log)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return New(nc, log, "lock-1", "checkin"), testutil.Connect(t, srv)
}

func TestSubscribeCheckins(t *testing.T) {
	bus, peer := newTestBus(t)
	got := make(chan []byte, 1)
	require.NoError(t, bus.SubscribeCheckins(func(p []byte) { got <- p }))
	require.NoError(t, bus.nc.Flush())

	require.NoError(t, peer.Publish("checkin", []byte(`{"secret":1,"deviceType":2}`)))

	select {
	case p := <-got:
		assert.JSONEq(t, `{"secret":1,"deviceType":2}`, string(p))
	case <-time.After(2 * time.Second):
		t.Fatal("checkin not delivered")
	}
}

func TestStationConfigRoundTrip(t *testing.T) {
	bus, directory := newTestBus(t)

	_, err := directory.Subscribe(ConfigRequestSubject, func(m *nats.Msg) {
		_ = m.Respond([]byte(`[{"deviceType":` + string(m.Data) + `}]`))
	})
	require.NoError(t, err)
	require.NoError(t, directory.Flush())

	got := make(chan []byte, 1)
	require.NoError(t, bus.SubscribeConfigResponses(func(p []byte) { got <- p }))
	require.NoError(t, bus.nc.Flush())

	require.NoError(t, bus.RequestStationConfig(context.Background(), 105))

	select {
	case p := <-got:
		assert.JSONEq(t, `[{"deviceType":105}]`, string(p))
	case <-time.After(2 * time.Second):
		t.Fatal("config response not delivered")
	}
}

func TestPublishDiagnostic(t *testing.T) {
	bus, peer := newTestBus(t)
	sub, err := peer.SubscribeSync(DiagnosticSubject("lock-1"))
	require.NoError(t, err)
	require.NoError(t, peer.Flush())

	require.NoError(t, bus.PublishDiagnostic(context.Background(), []byte("hello")))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg.Data))
}

func TestRequestStationConfig_CanceledContext(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, bus.RequestStationConfig(ctx, 105), context.Canceled)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "lock-1.station_config.response", ConfigResponseSubject("lock-1"))
	assert.Equal(t, "lock-1.diag", DiagnosticSubject("lock-1"))
}
