// Package checkin decides whether an inbound checkin notification opens the lock.
package checkin

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"checkin-lock/internal/apperror"
	"checkin-lock/internal/model"
)

// Outcome is the verdict for one checkin payload.
type Outcome int

const (
	ParseError Outcome = iota
	SecretMismatch
	Admit
	Reject
)

func (o Outcome) String() string {
	switch o {
	case ParseError:
		return "parse_error"
	case SecretMismatch:
		return "secret_mismatch"
	case Admit:
		return "admit"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Actuator opens the lock.
type Actuator interface {
	Unlock()
}

// Auditor receives one record per unlock.
type Auditor interface {
	Add(record model.UnlockRecord)
}

// Validator gates lock actuation on the shared secret and the listen type.
type Validator struct {
	log      *zap.Logger
	validate *validator.Validate
	lock     Actuator
	audit    Auditor
	deviceID string
	secret   int
	identity model.DeviceIdentity
	now      func() time.Time
}

// New creates a Validator for the given secret and live identity.
func New(log *zap.Logger, v *validator.Validate, lock Actuator, audit Auditor, deviceID string, secret int, identity model.DeviceIdentity) *Validator {
	return &Validator{
		log:      log,
		validate: v,
		lock:     lock,
		audit:    audit,
		deviceID: deviceID,
		secret:   secret,
		identity: identity,
		now:      time.Now,
	}
}

// Parse decodes and validates a raw checkin payload.
func (v *Validator) Parse(payload []byte) (model.CheckinMessage, error) {
	if len(payload) == 0 {
		return model.CheckinMessage{}, fmt.Errorf("%w: empty payload", apperror.ErrParse)
	}
	if len(payload) > model.MaxPayloadBytes {
		return model.CheckinMessage{}, fmt.Errorf("%w: %d bytes exceeds limit of %d",
			apperror.ErrParse, len(payload), model.MaxPayloadBytes)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return model.CheckinMessage{}, fmt.Errorf("%w: %v", apperror.ErrParse, err)
	}

	var wire model.CheckinPayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		return model.CheckinMessage{}, fmt.Errorf("%w: %v", apperror.ErrParse, err)
	}
	if err := v.validate.Struct(wire); err != nil {
		return model.CheckinMessage{}, fmt.Errorf("%w: %v", apperror.ErrParse, apperror.Fields(err))
	}

	delete(fields, "secret")
	delete(fields, "deviceType")

	return model.CheckinMessage{
		Secret:     *wire.Secret,
		DeviceType: model.DeviceType(*wire.DeviceType),
		Modifiers:  fields,
	}, nil
}

// Evaluate classifies payload against the expected secret and listen type.
// The secret is checked before any other field is looked at.
func (v *Validator) Evaluate(payload []byte, secret int, listenType model.DeviceType) (Outcome, model.CheckinMessage, error) {
	msg, err := v.Parse(payload)
	if err != nil {
		return ParseError, model.CheckinMessage{}, err
	}
	if msg.Secret != secret {
		return SecretMismatch, model.CheckinMessage{}, apperror.ErrSecretMismatch
	}
	if msg.DeviceType != listenType {
		return Reject, msg, nil
	}
	return Admit, msg, nil
}

// Handle evaluates payload with the configured secret and listen type and
// unlocks on Admit.
func (v *Validator) Handle(payload []byte, station model.StationConfig) Outcome {
	outcome, msg, err := v.Evaluate(payload, v.secret, v.identity.LockListenType)

	switch outcome {
	case ParseError:
		v.log.Warn("dropping checkin", zap.Int("bytes", len(payload)), zap.Error(err))
	case SecretMismatch:
		v.log.Warn("checkin failed authentication, possible fraudulent unlock attempt", zap.Error(err))
	case Reject:
		v.log.Debug("checkin not for this lock",
			zap.Stringer("device_type", msg.DeviceType),
			zap.Stringer("listen_type", v.identity.LockListenType))
	case Admit:
		v.log.Info("checkin admitted", zap.Stringer("device_type", msg.DeviceType))
		v.unlock(model.UnlockSourceCheckin, station)
	}
	return outcome
}

// Trip opens the lock unconditionally on operator request.
func (v *Validator) Trip(station model.StationConfig) {
	v.log.Info("lock tripped remotely")
	v.unlock(model.UnlockSourceRemote, station)
}

func (v *Validator) unlock(source string, station model.StationConfig) {
	v.lock.Unlock()
	v.audit.Add(model.UnlockRecord{
		ID:             uuid.New().String(),
		DeviceID:       v.deviceID,
		DeviceType:     v.identity.DeviceType,
		LockListenType: v.identity.LockListenType,
		StationName:    station.DeviceName,
		Source:         source,
		Time:           v.now().UTC(),
	})
}
