// Package keycache keeps an in-memory index of the keys stored in Vault and
// loads a key's type and payload the first time it is fetched.
//
// Every operation that talks to the store is serialized: a Cache never has
// more than one remote call in flight. Lookups of keys that are already
// materialized only take a read lock and never wait on the network.
package keycache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hengadev/vaultkeyring/internal/codec"
	"github.com/hengadev/vaultkeyring/internal/monitoring"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrInvalidKey  = errors.New("invalid key")
)

// Store is the remote side of the cache.
type Store interface {
	ListKeys(ctx context.Context) ([]codec.Signature, error)
	ReadKey(ctx context.Context, sig codec.Signature) (codec.KeyData, error)
	WriteKey(ctx context.Context, sig codec.Signature, keyType string, data []byte) error
	DeleteKey(ctx context.Context, sig codec.Signature) error
}

// State is the lifecycle stage of a cached key.
type State int

const (
	// StateListed means the key is known to exist but its type and data
	// have not been read yet.
	StateListed State = iota
	StateMaterialized
)

func (s State) String() string {
	switch s {
	case StateListed:
		return "listed"
	case StateMaterialized:
		return "materialized"
	default:
		return "unknown"
	}
}

// Record is a snapshot of one cached key. Type and Data are empty unless
// State is StateMaterialized.
type Record struct {
	Signature codec.Signature
	State     State
	Type      string
	Data      []byte
}

func (r Record) Materialized() bool {
	return r.State == StateMaterialized
}

type entry struct {
	state   State
	keyType string
	data    []byte
}

func (e *entry) record(sig codec.Signature) Record {
	r := Record{Signature: sig, State: e.state, Type: e.keyType}
	if e.data != nil {
		r.Data = bytes.Clone(e.data)
	}
	return r
}

// Cache is the key index. The zero value is not usable; call New.
type Cache struct {
	store   Store
	logger  monitoring.Logger
	metrics monitoring.MetricsCollector

	// callMu is held for the whole duration of every remote call.
	callMu sync.Mutex

	mu      sync.RWMutex
	entries map[codec.Signature]*entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for skipped keys and refreshes.
func WithLogger(logger monitoring.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetricsCollector sets the collector for cache counters.
func WithMetricsCollector(metrics monitoring.MetricsCollector) Option {
	return func(c *Cache) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}

// New creates an empty Cache backed by store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		logger:  monitoring.NopLogger{},
		metrics: &monitoring.NoOpMetricsCollector{},
		entries: make(map[codec.Signature]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List refreshes the index from the store and returns a snapshot of it.
// Materialized entries are kept as they are, even when the listing no longer
// mentions them; listed entries missing from the new listing are dropped.
// On failure the index is left untouched.
func (c *Cache) List(ctx context.Context) ([]Record, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.countRemoteCall("list")
	signatures, err := c.store.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	refreshed := make(map[codec.Signature]*entry, len(signatures))
	for sig, e := range c.entries {
		if e.state == StateMaterialized {
			refreshed[sig] = e
		}
	}
	for _, sig := range signatures {
		if _, ok := refreshed[sig]; !ok {
			refreshed[sig] = &entry{state: StateListed}
		}
	}
	c.entries = refreshed
	c.mu.Unlock()

	c.metrics.SetGauge("keycache.size", float64(len(refreshed)), nil)
	c.logger.Debug("Key index refreshed with %d keys listed in Vault", len(signatures))
	return c.Keys(), nil
}

// Fetch returns the key with its type and data, reading it from the store
// the first time. A failed read leaves the key listed so that it can be
// fetched again.
func (c *Cache) Fetch(ctx context.Context, sig codec.Signature) (Record, error) {
	if r, ok := c.materialized(sig); ok {
		c.metrics.IncrementCounter(monitoring.MetricCacheHit, map[string]string{"op": "fetch"})
		return r, nil
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	// another caller may have materialized the key while this one waited
	c.mu.RLock()
	e, ok := c.entries[sig]
	var snapshot Record
	if ok {
		snapshot = e.record(sig)
	}
	c.mu.RUnlock()
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrKeyNotFound, describe(sig))
	}
	if snapshot.Materialized() {
		c.metrics.IncrementCounter(monitoring.MetricCacheHit, map[string]string{"op": "fetch"})
		return snapshot, nil
	}

	c.metrics.IncrementCounter(monitoring.MetricCacheMiss, map[string]string{"op": "fetch"})
	c.countRemoteCall("read")
	data, err := c.store.ReadKey(ctx, sig)
	if err != nil {
		return Record{}, err
	}

	c.mu.Lock()
	e.state = StateMaterialized
	e.keyType = data.Type
	e.data = bytes.Clone(data.Data)
	r := e.record(sig)
	c.mu.Unlock()
	return r, nil
}

// Lookup returns the cached record without contacting the store.
func (c *Cache) Lookup(sig codec.Signature) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sig]
	if !ok {
		return Record{}, false
	}
	return e.record(sig), true
}

// Store writes the key to the store and caches it as materialized.
func (c *Cache) Store(ctx context.Context, sig codec.Signature, keyType string, data []byte) error {
	if !sig.IsValid() {
		return fmt.Errorf("%w: key id and owner are both empty", ErrInvalidKey)
	}
	if keyType == "" {
		return fmt.Errorf("%w: key type is empty for %s", ErrInvalidKey, describe(sig))
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.countRemoteCall("write")
	if err := c.store.WriteKey(ctx, sig, keyType, data); err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[sig] = &entry{state: StateMaterialized, keyType: keyType, data: bytes.Clone(data)}
	c.mu.Unlock()
	return nil
}

// Remove deletes the key from the store, then from the index. The index is
// only changed once the store confirmed the deletion.
func (c *Cache) Remove(ctx context.Context, sig codec.Signature) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.mu.RLock()
	_, ok := c.entries[sig]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, describe(sig))
	}

	c.countRemoteCall("delete")
	if err := c.store.DeleteKey(ctx, sig); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.entries, sig)
	c.mu.Unlock()
	return nil
}

// Keys returns a snapshot of every cached key, ordered by owner then id.
func (c *Cache) Keys() []Record {
	c.mu.RLock()
	records := make([]Record, 0, len(c.entries))
	for sig, e := range c.entries {
		records = append(records, e.record(sig))
	}
	c.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Signature, records[j].Signature
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		return a.KeyID < b.KeyID
	})
	return records
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) materialized(sig codec.Signature) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sig]
	if !ok || e.state != StateMaterialized {
		return Record{}, false
	}
	return e.record(sig), true
}

func (c *Cache) countRemoteCall(op string) {
	c.metrics.IncrementCounter(monitoring.MetricCacheRemoteCall, map[string]string{"op": op})
}

func describe(sig codec.Signature) string {
	return fmt.Sprintf("id %q owner %q", sig.KeyID, sig.OwnerID)
}
