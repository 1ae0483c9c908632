package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Scope selects how long a value survives.
type Scope string

const (
	// ScopeSession holds single-visit hints that expire with the visit.
	ScopeSession Scope = "session"
	// ScopeDurable holds order data kept until it is cleared or its retention ends.
	ScopeDurable Scope = "durable"
)

const (
	// DefaultSessionTTL bounds session-scoped values.
	DefaultSessionTTL = 30 * time.Minute
	// DefaultDurableTTL bounds abandoned orders.
	DefaultDurableTTL = 720 * time.Hour
)

var (
	// ErrNotFound is returned when a key holds no value.
	ErrNotFound = errors.New("bridge: not found")
	// ErrInvalidKey is returned for keys without a namespace or name.
	ErrInvalidKey = errors.New("bridge: invalid key")
	// ErrCorruptValue is returned when a stored value cannot be decoded.
	ErrCorruptValue = errors.New("bridge: corrupt value")
	// ErrUnavailable marks a transient backend outage; the operation may be retried.
	ErrUnavailable = errors.New("bridge: store unavailable")
)

// Key addresses a value. Namespace is the visitor identifier.
type Key struct {
	Scope     Scope
	Namespace string
	Name      string
}

// String renders the key as scope:namespace:name.
func (k Key) String() string {
	return string(k.Scope) + ":" + k.Namespace + ":" + k.Name
}

func (k Key) validate() error {
	switch k.Scope {
	case ScopeSession, ScopeDurable:
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidKey, k.Scope)
	}
	if strings.TrimSpace(k.Namespace) == "" || strings.TrimSpace(k.Name) == "" {
		return fmt.Errorf("%w: %s", ErrInvalidKey, k)
	}
	if strings.ContainsAny(k.Namespace, ":/") {
		return fmt.Errorf("%w: namespace %q", ErrInvalidKey, k.Namespace)
	}
	return nil
}

// Store persists raw values. A zero ttl keeps the value until it is deleted.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Put(ctx context.Context, key Key, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...Key) error
	Ping(ctx context.Context) error
}

// taker is implemented by stores that can read and delete a value atomically.
type taker interface {
	Take(ctx context.Context, key Key) ([]byte, error)
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithSessionTTL overrides the session scope lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(b *Bridge) {
		if ttl > 0 {
			b.sessionTTL = ttl
		}
	}
}

// WithDurableTTL overrides the durable scope retention. Zero disables expiry.
func WithDurableTTL(ttl time.Duration) Option {
	return func(b *Bridge) {
		if ttl >= 0 {
			b.durableTTL = ttl
		}
	}
}

// Bridge stores JSON encoded values in a Store and applies the per-scope lifetimes.
type Bridge struct {
	store      Store
	sessionTTL time.Duration
	durableTTL time.Duration
}

// New wraps store.
func New(store Store, opts ...Option) (*Bridge, error) {
	if store == nil {
		return nil, errors.New("bridge: store is required")
	}
	b := &Bridge{
		store:      store,
		sessionTTL: DefaultSessionTTL,
		durableTTL: DefaultDurableTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Store exposes the underlying store.
func (b *Bridge) Store() Store {
	return b.store
}

func (b *Bridge) ttl(scope Scope) time.Duration {
	if scope == ScopeSession {
		return b.sessionTTL
	}
	return b.durableTTL
}

// Load decodes the value at key into dst.
func (b *Bridge) Load(ctx context.Context, key Key, dst any) error {
	if err := key.validate(); err != nil {
		return err
	}
	raw, err := b.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return decode(key, raw, dst)
}

// Save encodes v and stores it at key.
func (b *Bridge) Save(ctx context.Context, key Key, v any) error {
	if err := key.validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bridge: encode %s: %w", key, err)
	}
	return b.store.Put(ctx, key, raw, b.ttl(key.Scope))
}

// Take decodes the value at key into dst and removes it.
func (b *Bridge) Take(ctx context.Context, key Key, dst any) error {
	if err := key.validate(); err != nil {
		return err
	}
	var (
		raw []byte
		err error
	)
	if t, ok := b.store.(taker); ok {
		raw, err = t.Take(ctx, key)
	} else {
		raw, err = b.store.Get(ctx, key)
		if err == nil {
			err = b.store.Delete(ctx, key)
		}
	}
	if err != nil {
		return err
	}
	return decode(key, raw, dst)
}

// Delete removes keys. Missing keys are ignored.
func (b *Bridge) Delete(ctx context.Context, keys ...Key) error {
	for _, key := range keys {
		if err := key.validate(); err != nil {
			return err
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return b.store.Delete(ctx, keys...)
}

// Ping checks the backing store.
func (b *Bridge) Ping(ctx context.Context) error {
	return b.store.Ping(ctx)
}

func decode(key Key, raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptValue, key, err)
	}
	return nil
}
