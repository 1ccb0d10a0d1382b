package flowstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/flowrt/errors"
	"github.com/c360/flowrt/natsclient"
	"github.com/c360/flowrt/node"
)

// bucketName holds one key per persisted flow.
const bucketName = "flowrt_flows"

// KV persists flows in a NATS JetStream KV bucket, one key per flow ID.
// Bucket history keeps recent versions around for recovery.
type KV struct {
	kv *natsclient.KVStore
}

// NewKV creates or opens the flow bucket on the given client.
func NewKV(ctx context.Context, client *natsclient.Client) (*KV, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "KV", "NewKV", "client validation")
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: "Deployed flow definitions",
		History:     10,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KV", "NewKV", "create flow bucket")
	}

	return &KV{kv: client.NewKVStore(bucket)}, nil
}

// Save implements Store. Flows removed from the set are deleted from the
// bucket so Load never resurrects them.
func (s *KV) Save(ctx context.Context, set node.FlowSet) error {
	keep := make(map[string]bool, len(set))
	for _, f := range set {
		data, err := json.Marshal(f)
		if err != nil {
			return errors.WrapFatal(err, "KV", "Save", "marshal flow "+f.ID)
		}
		if err := s.kv.Put(ctx, f.ID, data); err != nil {
			return errors.WrapTransient(err, "KV", "Save", "put flow "+f.ID)
		}
		keep[f.ID] = true
	}

	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return errors.WrapTransient(err, "KV", "Save", "list flow keys")
	}
	for _, key := range keys {
		if keep[key] {
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil {
			return errors.WrapTransient(err, "KV", "Save", "delete stale flow "+key)
		}
	}
	return nil
}

// Load implements Store. Flows come back sorted by ID so restarts start
// them in a stable order.
func (s *KV) Load(ctx context.Context) (node.FlowSet, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "KV", "Load", "list flow keys")
	}
	sort.Strings(keys)

	set := make(node.FlowSet, 0, len(keys))
	for _, key := range keys {
		data, err := s.kv.Get(ctx, key)
		if err != nil {
			if natsclient.IsNotFound(err) {
				continue
			}
			return nil, errors.WrapTransient(err, "KV", "Load", "get flow "+key)
		}

		var f node.FlowDefinition
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errors.WrapFatal(err, "KV", "Load", "unmarshal flow "+key)
		}
		set = append(set, f)
	}
	return set, nil
}
