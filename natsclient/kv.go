package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/flowrt/errors"
)

// KVStore wraps a JetStream KV bucket with per-operation timeouts.
type KVStore struct {
	bucket  jetstream.KeyValue
	timeout time.Duration
}

// NewKVStore wraps a bucket. A zero timeout disables the per-op deadline.
func (c *Client) NewKVStore(bucket jetstream.KeyValue) *KVStore {
	return &KVStore{
		bucket:  bucket,
		timeout: 5 * time.Second,
	}
}

// IsNotFound reports whether an error means the key does not exist.
func IsNotFound(err error) bool {
	return stderrors.Is(err, jetstream.ErrKeyNotFound) || stderrors.Is(err, errors.ErrKeyNotFound)
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.timeout > 0 {
		return context.WithTimeout(ctx, kv.timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value. Returns errors.ErrKeyNotFound for missing keys.
func (kv *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errors.ErrKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), nil
}

// Put creates or updates a key (last writer wins).
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if _, err := kv.bucket.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil && !stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Keys lists all keys in the bucket. An empty bucket returns no error.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	return keys, nil
}

// DeletePrefix removes every key with the given prefix.
func (kv *KVStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := kv.Keys(ctx)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := kv.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
