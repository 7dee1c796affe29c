// Package prefs persists per-user saved search filters in the index
// service's key-value store with a rolling 30-day lifetime.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/marketsearch/internal/db"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/normalizer"
)

// TTL is how long saved filters live after the last save.
const TTL = 30 * 24 * time.Hour

const keyPrefix = "msearch:prefs:"

// Compile-time check: Store implements normalizer.PreferenceStore.
var _ normalizer.PreferenceStore = (*Store)(nil)

// Store is the KV-backed preference store.
type Store struct {
	kv db.KVStore
}

// New creates a preference store on top of kv.
func New(kv db.KVStore) *Store {
	return &Store{kv: kv}
}

// Load returns the user's saved filter map for a record type. A missing
// entry yields an empty map, not an error.
func (s *Store) Load(ctx context.Context, userID int64, rt record.Type) (map[string]any, error) {
	data, err := s.kv.Get(ctx, key(userID, rt))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return out, nil
}

// Save stores the user's filter map, refreshing the lifetime. An empty
// map removes the entry.
func (s *Store) Save(ctx context.Context, userID int64, rt record.Type, prefs map[string]any) error {
	k := key(userID, rt)

	if len(prefs) == 0 {
		if err := s.kv.Del(ctx, k); err != nil {
			return fmt.Errorf("clear preferences: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.kv.SetWithTTL(ctx, k, data, TTL); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func key(userID int64, rt record.Type) string {
	return keyPrefix + string(rt) + ":" + strconv.FormatInt(userID, 10)
}
