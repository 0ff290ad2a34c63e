// Package transport connects the lock controller to the NATS message bus.
package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"checkin-lock/internal/model"
)

// ConfigRequestSubject carries station config requests to the facility directory.
const ConfigRequestSubject = "station_config.request"

// ConfigResponseSubject is where the directory answers this device.
func ConfigResponseSubject(deviceID string) string {
	return deviceID + ".station_config.response"
}

// DiagnosticSubject receives this device's diagnostic log lines.
func DiagnosticSubject(deviceID string) string {
	return deviceID + ".diag"
}

// Bus publishes and subscribes on behalf of one device.
type Bus struct {
	log            *zap.Logger
	nc             *nats.Conn
	deviceID       string
	checkinSubject string

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials NATS with logging connection handlers.
func Connect(natsURL string, log *zap.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("checkin-lock"),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Info("connected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// New wraps an established connection.
func New(nc *nats.Conn, log *zap.Logger, deviceID, checkinSubject string) *Bus {
	return &Bus{log: log, nc: nc, deviceID: deviceID, checkinSubject: checkinSubject}
}

// SubscribeCheckins delivers every checkin payload to handle. handle runs on
// the client's delivery goroutine and must not block.
func (b *Bus) SubscribeCheckins(handle func(payload []byte)) error {
	return b.subscribe(b.checkinSubject, handle)
}

// SubscribeConfigResponses delivers directory replies for this device.
func (b *Bus) SubscribeConfigResponses(handle func(payload []byte)) error {
	return b.subscribe(ConfigResponseSubject(b.deviceID), handle)
}

func (b *Bus) subscribe(subject string, handle func([]byte)) error {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		handle(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	b.log.Info("subscribed", zap.String("subject", subject))
	return nil
}

// RequestStationConfig publishes the local device type as the sole payload.
// The reply subject points the directory at this device's response subject.
func (b *Bus) RequestStationConfig(ctx context.Context, deviceType model.DeviceType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: ConfigRequestSubject,
		Reply:   ConfigResponseSubject(b.deviceID),
		Data:    []byte(strconv.Itoa(int(deviceType))),
	}
	if err := b.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", ConfigRequestSubject, err)
	}
	return nil
}

// PublishDiagnostic sends one diagnostic line.
func (b *Bus) PublishDiagnostic(ctx context.Context, line []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.nc.Publish(DiagnosticSubject(b.deviceID), line); err != nil {
		return fmt.Errorf("publish diagnostic: %w", err)
	}
	return nil
}

// Close drops the subscriptions and drains the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	return b.nc.Drain()
}
