// Package identity owns the persisted device identity and the remote
// operations that change it.
package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"checkin-lock/internal/apperror"
	"checkin-lock/internal/model"
	"checkin-lock/internal/reboot"
)

// Return values of the remote set operations.
const (
	StatusOK           = 0
	StatusInvalid      = 1
	StatusStoreFailure = 2
)

// ReadBack is the argument that reads a value without changing it.
const ReadBack = -1

// Store persists the identity record.
type Store interface {
	Load(ctx context.Context) (model.DeviceIdentity, bool, error)
	Save(ctx context.Context, id model.DeviceIdentity) error
}

// RebootRequester schedules the restart that applies a pending change.
type RebootRequester interface {
	RequestDeferred(now time.Time, reason string)
}

// Manager exposes the identity loaded at start. Changes are written to the
// store straight away but the live identity stays fixed until restart.
type Manager struct {
	log    *zap.Logger
	store  Store
	reboot RebootRequester
	live   model.DeviceIdentity
	now    func() time.Time

	mu        sync.Mutex
	persisted model.DeviceIdentity
	pending   *model.PendingIdentityChange
}

// Open loads the stored identity, seeding the store with defaults on first run.
func Open(ctx context.Context, log *zap.Logger, store Store, rb RebootRequester, defaults model.DeviceIdentity) (*Manager, error) {
	id, found, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if !found {
		id = defaults
		if err := store.Save(ctx, id); err != nil {
			return nil, fmt.Errorf("seed identity: %w", err)
		}
		log.Info("identity seeded with defaults")
	}
	log.Info("identity loaded",
		zap.Stringer("device_type", id.DeviceType),
		zap.Stringer("lock_listen_type", id.LockListenType))

	return &Manager{
		log:       log,
		store:     store,
		reboot:    rb,
		live:      id,
		persisted: id,
		now:       time.Now,
	}, nil
}

// Live returns the identity in effect for this process.
func (m *Manager) Live() model.DeviceIdentity {
	return m.live
}

// Pending returns the change waiting for a restart, if any.
func (m *Manager) Pending() (model.PendingIdentityChange, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return model.PendingIdentityChange{}, false
	}
	return *m.pending, true
}

// SetDeviceType implements the remote "set device type" operation.
func (m *Manager) SetDeviceType(ctx context.Context, arg string) int {
	return m.set(ctx, arg, "device_type",
		func(id model.DeviceIdentity) model.DeviceType { return id.DeviceType },
		func(id *model.DeviceIdentity, t model.DeviceType) { id.DeviceType = t })
}

// SetLockListenType implements the remote "set lock listen type" operation.
func (m *Manager) SetLockListenType(ctx context.Context, arg string) int {
	return m.set(ctx, arg, "lock_listen_type",
		func(id model.DeviceIdentity) model.DeviceType { return id.LockListenType },
		func(id *model.DeviceIdentity, t model.DeviceType) { id.LockListenType = t })
}

func (m *Manager) set(ctx context.Context, arg, field string,
	get func(model.DeviceIdentity) model.DeviceType,
	put func(*model.DeviceIdentity, model.DeviceType),
) int {
	v, err := ParseArgument(arg)
	if err != nil {
		m.log.Warn("rejected identity change", zap.String("field", field), zap.String("arg", arg), zap.Error(err))
		return StatusInvalid
	}
	if v == ReadBack {
		return int(get(m.live))
	}

	m.mu.Lock()
	next := m.persisted
	put(&next, model.DeviceType(v))
	if err := m.store.Save(ctx, next); err != nil {
		m.mu.Unlock()
		m.log.Error("failed to persist identity", zap.String("field", field), zap.Error(err))
		return StatusStoreFailure
	}
	now := m.now()
	m.persisted = next
	m.pending = &model.PendingIdentityChange{Identity: next, RequestedAt: now}
	m.mu.Unlock()

	m.log.Info("identity change stored, applies after reboot",
		zap.String("field", field),
		zap.Int("value", v),
		zap.Stringer("live", get(m.live)))
	m.reboot.RequestDeferred(now, reboot.ReasonConfig)
	return StatusOK
}

// ParseArgument accepts any syntactically valid integer, zero included.
func ParseArgument(arg string) (int, error) {
	s := strings.TrimSpace(arg)
	if s == "" {
		return 0, fmt.Errorf("%w: blank", apperror.ErrInvalidArgument)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", apperror.ErrInvalidArgument, s)
	}
	return v, nil
}
