package vaultkeyring

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync/atomic"

	"github.com/hengadev/vaultkeyring/internal/codec"
	"github.com/hengadev/vaultkeyring/internal/keycache"
	"github.com/hengadev/vaultkeyring/internal/mount"
	"github.com/hengadev/vaultkeyring/internal/reliability"
	"github.com/hengadev/vaultkeyring/internal/store"
)

// MountPoint is the resolved location of the keys inside Vault.
type MountPoint = mount.Point

// Key is a materialized key. Data is a private copy.
type Key struct {
	ID    string
	Owner string
	Type  string
	Data  []byte
}

// KeyMetadata describes a cached key without its payload. Type is empty
// until the key has been fetched or stored.
type KeyMetadata struct {
	ID           string `json:"id" yaml:"id"`
	Owner        string `json:"owner" yaml:"owner"`
	Type         string `json:"type,omitempty" yaml:"type,omitempty"`
	Materialized bool   `json:"materialized" yaml:"materialized"`
}

// Keyring is a client for the keys stored under one Vault mount point.
// It is safe for concurrent use.
type Keyring struct {
	creds     Credentials
	point     MountPoint
	cache     *keycache.Cache
	transport Transport
	breaker   *reliability.CircuitBreaker
	logger    Logger
	metrics   MetricsCollector
	closed    atomic.Bool
}

// New validates creds, resolves the mount point and loads the list of
// stored keys. Nothing is returned unless every step succeeded.
func New(ctx context.Context, creds Credentials, opts ...Option) (*Keyring, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	for _, warning := range creds.Warnings() {
		s.logger.Warn(warning)
	}

	transport := s.transport
	if transport == nil {
		vt, err := store.NewVaultTransport(store.VaultConfig{
			Address:    creds.VaultURL,
			CACert:     creds.CAPath,
			Token:      creds.Token,
			Timeout:    creds.EffectiveTimeout(),
			MaxRetries: s.maxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		transport = vt
	}

	var breaker *reliability.CircuitBreaker
	if s.breaker != nil {
		guarded := reliability.NewTransport(transport, *s.breaker, s.logger, s.metrics)
		breaker = guarded.Breaker()
		transport = guarded
	}

	resolver := mount.NewResolver(
		store.NewConfigProber(transport, s.logger),
		mount.WithLogger(s.logger),
		mount.WithMetricsCollector(s.metrics),
	)
	point, err := resolver.Resolve(ctx, creds.MountPointPath, creds.MountPointVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mount point %s: %w", creds.MountPointPath, err)
	}

	client := store.NewClient(transport, point,
		store.WithLogger(s.logger),
		store.WithMetricsCollector(s.metrics),
	)
	cache := keycache.New(client,
		keycache.WithLogger(s.logger),
		keycache.WithMetricsCollector(s.metrics),
	)
	if _, err := cache.List(ctx); err != nil {
		return nil, fmt.Errorf("failed to load keys from %s: %w", point, err)
	}

	s.logger.Info("Keyring ready on %s with %d keys", point, cache.Len())

	return &Keyring{
		creds:     creds,
		point:     point,
		cache:     cache,
		transport: transport,
		breaker:   breaker,
		logger:    s.logger,
		metrics:   s.metrics,
	}, nil
}

// List refreshes the key index from Vault. Keys already fetched or stored
// through this keyring stay cached even if Vault no longer lists them.
func (k *Keyring) List(ctx context.Context) ([]KeyMetadata, error) {
	if k.closed.Load() {
		return nil, ErrClosed
	}
	records, err := k.cache.List(ctx)
	if err != nil {
		return nil, err
	}
	return toMetadata(records), nil
}

// Fetch returns the key, reading it from Vault the first time.
func (k *Keyring) Fetch(ctx context.Context, id, owner string) (Key, error) {
	if k.closed.Load() {
		return Key{}, ErrClosed
	}
	record, err := k.cache.Fetch(ctx, signature(id, owner))
	if err != nil {
		return Key{}, err
	}
	return toKey(record), nil
}

// Lookup returns the key only if it is already materialized. It never
// contacts Vault.
func (k *Keyring) Lookup(id, owner string) (Key, bool) {
	if k.closed.Load() {
		return Key{}, false
	}
	record, ok := k.cache.Lookup(signature(id, owner))
	if !ok || !record.Materialized() {
		return Key{}, false
	}
	return toKey(record), true
}

// Store writes the key to Vault, overwriting any key with the same id and
// owner, and caches it.
func (k *Keyring) Store(ctx context.Context, id, owner, keyType string, data []byte) error {
	if k.closed.Load() {
		return ErrClosed
	}
	return k.cache.Store(ctx, signature(id, owner), keyType, data)
}

// Remove deletes the key from Vault and from the cache. Keys the keyring
// does not know about are reported with ErrKeyNotFound.
func (k *Keyring) Remove(ctx context.Context, id, owner string) error {
	if k.closed.Load() {
		return ErrClosed
	}
	return k.cache.Remove(ctx, signature(id, owner))
}

// Generate stores a new key of length random bytes. AES keys must be 16, 24
// or 32 bytes long; SECRET keys between 1 and MaxSecretLength bytes.
func (k *Keyring) Generate(ctx context.Context, id, owner, keyType string, length int) error {
	if k.closed.Load() {
		return ErrClosed
	}
	if err := checkGenerateLength(keyType, length); err != nil {
		return err
	}

	data := make([]byte, length)
	if _, err := rand.Read(data); err != nil {
		return fmt.Errorf("failed to generate key material: %w", err)
	}
	return k.cache.Store(ctx, signature(id, owner), keyType, data)
}

func checkGenerateLength(keyType string, length int) error {
	switch keyType {
	case KeyTypeAES:
		if length != 16 && length != 24 && length != 32 {
			return fmt.Errorf("%w: AES keys are 16, 24 or 32 bytes, got %d", ErrInvalidKeyLength, length)
		}
	case KeyTypeSecret:
		if length < 1 || length > MaxSecretLength {
			return fmt.Errorf("%w: SECRET keys are 1 to %d bytes, got %d", ErrInvalidKeyLength, MaxSecretLength, length)
		}
	default:
		return fmt.Errorf("%w: cannot generate %q keys", ErrUnsupportedKeyType, keyType)
	}
	return nil
}

// Keys returns every cached key, ordered by owner then id.
func (k *Keyring) Keys() []KeyMetadata {
	return toMetadata(k.cache.Keys())
}

func (k *Keyring) MountPoint() MountPoint {
	return k.point
}

func (k *Keyring) Credentials() Credentials {
	return k.creds
}

// Close flushes the metrics collector. Every later operation fails with
// ErrClosed.
func (k *Keyring) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := k.metrics.Flush(); err != nil {
		return fmt.Errorf("failed to flush metrics: %w", err)
	}
	return nil
}

func signature(id, owner string) codec.Signature {
	return codec.Signature{KeyID: id, OwnerID: owner}
}

func toKey(r keycache.Record) Key {
	return Key{ID: r.Signature.KeyID, Owner: r.Signature.OwnerID, Type: r.Type, Data: r.Data}
}

func toMetadata(records []keycache.Record) []KeyMetadata {
	out := make([]KeyMetadata, 0, len(records))
	for _, r := range records {
		out = append(out, KeyMetadata{
			ID:           r.Signature.KeyID,
			Owner:        r.Signature.OwnerID,
			Type:         r.Type,
			Materialized: r.Materialized(),
		})
	}
	return out
}
