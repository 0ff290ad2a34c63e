// Package station fetches and holds the station config for this device.
package station

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"checkin-lock/internal/apperror"
	"checkin-lock/internal/model"
)

// Publisher emits the outbound config request.
type Publisher interface {
	RequestStationConfig(ctx context.Context, deviceType model.DeviceType) error
}

// Handshake requests the station config keyed by the local device type and
// applies the matching response. It has no timer of its own.
type Handshake struct {
	log        *zap.Logger
	validate   *validator.Validate
	pub        Publisher
	deviceType model.DeviceType

	mu  sync.RWMutex
	cfg model.StationConfig
}

// New creates a Handshake for the local device type.
func New(log *zap.Logger, v *validator.Validate, pub Publisher, deviceType model.DeviceType) *Handshake {
	return &Handshake{log: log, validate: v, pub: pub, deviceType: deviceType}
}

// DeviceType returns the local device type the handshake is keyed by.
func (h *Handshake) DeviceType() model.DeviceType {
	return h.deviceType
}

// RequestConfig invalidates the current config and publishes one request.
func (h *Handshake) RequestConfig(ctx context.Context) error {
	h.Clear()
	if err := h.pub.RequestStationConfig(ctx, h.deviceType); err != nil {
		return fmt.Errorf("request station config: %w", err)
	}
	h.log.Info("station config requested", zap.Stringer("device_type", h.deviceType))
	return nil
}

// OnConfigResponse applies a directory reply if it is for the local device type.
func (h *Handshake) OnConfigResponse(payload []byte) error {
	var resp []model.StationConfigResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		h.log.Warn("undecodable station config response", zap.Error(err))
		return fmt.Errorf("%w: %v", apperror.ErrParse, err)
	}
	if len(resp) == 0 {
		h.log.Warn("empty station config response")
		return fmt.Errorf("%w: empty station config list", apperror.ErrParse)
	}
	if len(resp) > 1 {
		h.log.Warn("station config response has extra elements, using the first", zap.Int("elements", len(resp)))
	}
	r := resp[0]
	if err := h.validate.Struct(r); err != nil {
		h.log.Warn("invalid station config response", zap.Strings("fields", apperror.Fields(err)))
		return fmt.Errorf("%w: %v", apperror.ErrParse, apperror.Fields(err))
	}

	received := model.DeviceType(*r.DeviceType)
	if received != h.deviceType {
		h.Clear()
		h.log.Warn("station config for another device type",
			zap.Stringer("expected", h.deviceType),
			zap.Stringer("received", received))
		return fmt.Errorf("%w: expected %s, received %s", apperror.ErrConfigMismatch, h.deviceType, received)
	}

	h.set(model.StationConfig{
		IsValid:          true,
		DeviceType:       received,
		DeviceName:       r.DeviceName,
		DisplayName:      r.LCDName,
		LogEventName:     r.LogEvent,
		PhotoDisplayName: r.PhotoDisplay,
		OKKeywords:       r.OKKeywords,
	})
	h.log.Info("station config applied",
		zap.String("device_name", r.DeviceName),
		zap.String("display_name", r.LCDName))
	return nil
}

// ApplyLocal installs the synthetic config used by bypass device types.
func (h *Handshake) ApplyLocal() {
	name := h.deviceType.Kind().String()
	h.set(model.StationConfig{
		IsValid:          true,
		DeviceType:       h.deviceType,
		DeviceName:       name,
		DisplayName:      name,
		LogEventName:     name,
		PhotoDisplayName: name,
	})
	h.log.Info("station config applied locally", zap.Stringer("device_type", h.deviceType))
}

// Clear drops the current config.
func (h *Handshake) Clear() {
	h.set(model.StationConfig{})
}

// Current returns a copy of the current config.
func (h *Handshake) Current() model.StationConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// IsValid reports whether a matching config has been applied.
func (h *Handshake) IsValid() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.IsValid
}

func (h *Handshake) set(cfg model.StationConfig) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}
