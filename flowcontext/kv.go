package flowcontext

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/flowrt/errors"
	"github.com/c360/flowrt/natsclient"
)

// kvKeySep separates scope, owner, and key segments in bucket keys.
// Owner and key segments are escaped so the separator stays unambiguous.
const kvKeySep = "."

// KV is a durable Store backed by a NATS JetStream key-value bucket.
// Entries are stored under "scope.owner.key" with JSON-encoded values, so
// global context survives process restarts as well as redeploys.
type KV struct {
	store *natsclient.KVStore
}

// NewKV creates (or opens) the context bucket on the given client.
func NewKV(ctx context.Context, client *natsclient.Client, bucket string) (*KV, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "flowcontext", "NewKV", "client validation")
	}
	if bucket == "" {
		bucket = "flowrt_context"
	}

	kvBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Scoped node/flow/global context entries",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "flowcontext", "NewKV", "create context bucket")
	}

	return &KV{store: client.NewKVStore(kvBucket)}, nil
}

// Get implements Store.
func (kv *KV) Get(ctx context.Context, scope Scope, owner, key string) (any, error) {
	if err := checkScope(scope, owner); err != nil {
		return nil, err
	}

	data, err := kv.store.Get(ctx, encodeKey(scope, owner, key))
	if err != nil {
		if natsclient.IsNotFound(err) {
			return nil, errors.ErrKeyNotFound
		}
		return nil, errors.WrapTransient(err, "flowcontext", "Get", "read from KV")
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, errors.WrapFatal(err, "flowcontext", "Get", "decode stored value")
	}
	return value, nil
}

// Set implements Store.
func (kv *KV) Set(ctx context.Context, scope Scope, owner, key string, value any) error {
	if err := checkScope(scope, owner); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(err, "flowcontext", "Set", "encode value")
	}

	if err := kv.store.Put(ctx, encodeKey(scope, owner, key), data); err != nil {
		return errors.WrapTransient(err, "flowcontext", "Set", "write to KV")
	}
	return nil
}

// Delete implements Store.
func (kv *KV) Delete(ctx context.Context, scope Scope, owner, key string) error {
	if err := checkScope(scope, owner); err != nil {
		return err
	}

	if err := kv.store.Delete(ctx, encodeKey(scope, owner, key)); err != nil {
		return errors.WrapTransient(err, "flowcontext", "Delete", "delete from KV")
	}
	return nil
}

// Keys implements Store.
func (kv *KV) Keys(ctx context.Context, scope Scope, owner string) ([]string, error) {
	if err := checkScope(scope, owner); err != nil {
		return nil, err
	}

	all, err := kv.store.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "flowcontext", "Keys", "list KV keys")
	}

	prefix := ownerPrefix(scope, owner)
	var keys []string
	for _, full := range all {
		if strings.HasPrefix(full, prefix) {
			keys = append(keys, decodeSegment(strings.TrimPrefix(full, prefix)))
		}
	}
	return keys, nil
}

// PurgeOwner implements Store.
func (kv *KV) PurgeOwner(ctx context.Context, scope Scope, owner string) error {
	if err := checkScope(scope, owner); err != nil {
		return err
	}

	if err := kv.store.DeletePrefix(ctx, ownerPrefix(scope, owner)); err != nil {
		return errors.WrapTransient(err, "flowcontext", "PurgeOwner", "purge owner entries")
	}
	return nil
}

func encodeKey(scope Scope, owner, key string) string {
	return fmt.Sprintf("%s%s%s%s%s", scope, kvKeySep, encodeSegment(owner), kvKeySep, encodeSegment(key))
}

func ownerPrefix(scope Scope, owner string) string {
	return fmt.Sprintf("%s%s%s%s", scope, kvKeySep, encodeSegment(owner), kvKeySep)
}

// encodeSegment makes a segment safe for NATS KV key syntax. Dots collide
// with the separator and are escaped together with other reserved runes.
func encodeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "=%04x", r)
		}
	}
	return b.String()
}

func decodeSegment(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '=' && i+5 <= len(s) {
			var r rune
			if _, err := fmt.Sscanf(s[i+1:i+5], "%04x", &r); err == nil {
				b.WriteRune(r)
				i += 5
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
