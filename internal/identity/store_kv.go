package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"checkin-lock/internal/model"
)

// KVStore keeps the identity in a JetStream key-value bucket, keyed by device id.
type KVStore struct {
	kv  jetstream.KeyValue
	key string
}

// NewKVStore binds to (creating if needed) the bucket.
func NewKVStore(ctx context.Context, js jetstream.JetStream, bucket, key string) (*KVStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket %s: %w", bucket, err)
	}
	return &KVStore{kv: kv, key: key}, nil
}

func (s *KVStore) Load(ctx context.Context) (model.DeviceIdentity, bool, error) {
	entry, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return model.DeviceIdentity{}, false, nil
	}
	if err != nil {
		return model.DeviceIdentity{}, false, fmt.Errorf("failed to get key %s: %w", s.key, err)
	}
	var id model.DeviceIdentity
	if err := json.Unmarshal(entry.Value(), &id); err != nil {
		return model.DeviceIdentity{}, false, fmt.Errorf("decode identity %s: %w", s.key, err)
	}
	return id, true, nil
}

func (s *KVStore) Save(ctx context.Context, id model.DeviceIdentity) error {
	b, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if _, err := s.kv.Put(ctx, s.key, b); err != nil {
		return fmt.Errorf("failed to put key %s: %w", s.key, err)
	}
	return nil
}
