package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"checkin-lock/internal/apperror"
	"checkin-lock/internal/model"
	"checkin-lock/internal/reboot"
)

type memStore struct {
	id      model.DeviceIdentity
	found   bool
	saves   int
	saveErr error
}

func (m *memStore) Load(context.Context) (model.DeviceIdentity, bool, error) {
	return m.id, m.found, nil
}

func (m *memStore) Save(_ context.Context, id model.DeviceIdentity) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.id = id
	m.found = true
	m.saves++
	return nil
}

type mockReboot struct {
	reasons []string
}

func (m *mockReboot) RequestDeferred(_ time.Time, reason string) {
	m.reasons = append(m.reasons, reason)
}

func openTestManager(t *testing.T, store *memStore) (*Manager, *mockReboot) {
	rb := &mockReboot{}
	m, err := Open(context.Background(), zaptest.NewLogger(t), store, rb, model.DeviceIdentity{})
	require.NoError(t, err)
	return m, rb
}

func TestOpen_SeedsDefaults(t *testing.T) {
	store := &memStore{}
	rb := &mockReboot{}
	defaults := model.DeviceIdentity{DeviceType: 7, LockListenType: 8}

	m, err := Open(context.Background(), zaptest.NewLogger(t), store, rb, defaults)

	require.NoError(t, err)
	assert.Equal(t, defaults, m.Live())
	assert.Equal(t, 1, store.saves)
}

func TestSetDeviceType(t *testing.T) {
	tests := []struct {
		name       string
		arg        string
		want       int
		wantStored model.DeviceType
		wantReboot bool
	}{
		{"read back", "-1", 105, 105, false},
		{"new value", "210", StatusOK, 210, true},
		{"zero is explicit", "0", StatusOK, 0, true},
		{"padded", " 42 ", StatusOK, 42, true},
		{"blank", "  ", StatusInvalid, 105, false},
		{"not a number", "abc", StatusInvalid, 105, false},
		{"float", "1.5", StatusInvalid, 105, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &memStore{id: model.DeviceIdentity{DeviceType: 105, LockListenType: 106}, found: true}
			m, rb := openTestManager(t, store)

			got := m.SetDeviceType(context.Background(), tc.arg)

			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantStored, store.id.DeviceType)
			assert.Equal(t, model.DeviceType(105), m.Live().DeviceType, "live identity must not change before reboot")
			if tc.wantReboot {
				assert.Equal(t, []string{reboot.ReasonConfig}, rb.reasons)
				p, ok := m.Pending()
				assert.True(t, ok)
				assert.Equal(t, tc.wantStored, p.Identity.DeviceType)
			} else {
				assert.Empty(t, rb.reasons)
				_, ok := m.Pending()
				assert.False(t, ok)
			}
		})
	}
}

func TestSetLockListenType_KeepsEarlierPendingChange(t *testing.T) {
	store := &memStore{id: model.DeviceIdentity{DeviceType: 105, LockListenType: 106}, found: true}
	m, rb := openTestManager(t, store)

	assert.Equal(t, StatusOK, m.SetDeviceType(context.Background(), "300"))
	assert.Equal(t, StatusOK, m.SetLockListenType(context.Background(), "301"))
	assert.Equal(t, 106, m.SetLockListenType(context.Background(), "-1"))

	assert.Equal(t, model.DeviceIdentity{DeviceType: 300, LockListenType: 301}, store.id)
	assert.Equal(t, model.DeviceIdentity{DeviceType: 105, LockListenType: 106}, m.Live())
	assert.Len(t, rb.reasons, 2)
}

func TestSet_StoreFailure(t *testing.T) {
	store := &memStore{id: model.DeviceIdentity{DeviceType: 105}, found: true}
	m, rb := openTestManager(t, store)
	store.saveErr = errors.New("disk full")

	assert.Equal(t, StatusStoreFailure, m.SetDeviceType(context.Background(), "5"))
	assert.Empty(t, rb.reasons)
	_, ok := m.Pending()
	assert.False(t, ok)
}

func TestParseArgument(t *testing.T) {
	v, err := ParseArgument("0")
	assert.NoError(t, err)
	assert.Zero(t, v)

	_, err = ParseArgument("")
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
}
