package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/rekakarya/orderflow/internal/platform/firestore"
)

// ClientProvider supplies a Firestore client.
type ClientProvider interface {
	Client(ctx context.Context) (*firestore.Client, error)
}

type firestoreEntry struct {
	Scope     string    `firestore:"scope"`
	Namespace string    `firestore:"namespace"`
	Name      string    `firestore:"name"`
	Value     []byte    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
	// ExpiresAt doubles as the Firestore TTL policy field. Zero means no expiry.
	ExpiresAt time.Time `firestore:"expiresAt,omitempty"`
}

// FirestoreStore keeps one document per key in a collection.
type FirestoreStore struct {
	provider   ClientProvider
	collection string
	now        func() time.Time
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(provider ClientProvider, collection string, clock func() time.Time) *FirestoreStore {
	if collection == "" {
		collection = "orderState"
	}
	if clock == nil {
		clock = time.Now
	}
	return &FirestoreStore{provider: provider, collection: collection, now: clock}
}

func (s *FirestoreStore) doc(ctx context.Context, key Key) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(key.String()), nil
}

// wrapFirestoreError marks transient outages with ErrUnavailable.
func wrapFirestoreError(op string, err error) error {
	wrapped := pfirestore.WrapError(op, err)
	if pfirestore.IsUnavailable(wrapped) {
		return fmt.Errorf("%w: %w", ErrUnavailable, wrapped)
	}
	return wrapped
}

// Get implements Store. Expired documents are reported as missing.
func (s *FirestoreStore) Get(ctx context.Context, key Key) ([]byte, error) {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, wrapFirestoreError("bridge.firestore.get", err)
	}
	var entry firestoreEntry
	if err := snap.DataTo(&entry); err != nil {
		return nil, wrapFirestoreError("bridge.firestore.decode", err)
	}
	if !entry.ExpiresAt.IsZero() && !s.now().UTC().Before(entry.ExpiresAt) {
		return nil, ErrNotFound
	}
	return entry.Value, nil
}

// Put implements Store.
func (s *FirestoreStore) Put(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	entry := firestoreEntry{
		Scope:     string(key.Scope),
		Namespace: key.Namespace,
		Name:      key.Name,
		Value:     value,
		UpdatedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	if _, err := ref.Set(ctx, entry); err != nil {
		return wrapFirestoreError("bridge.firestore.set", err)
	}
	return nil
}

// Take implements atomic read-and-delete inside a transaction.
func (s *FirestoreStore) Take(ctx context.Context, key Key) ([]byte, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	ref := client.Collection(s.collection).Doc(key.String())

	var value []byte
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		value = nil
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return ErrNotFound
			}
			return err
		}
		var entry firestoreEntry
		if err := snap.DataTo(&entry); err != nil {
			return err
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		if !entry.ExpiresAt.IsZero() && !s.now().UTC().Before(entry.ExpiresAt) {
			return nil
		}
		value = entry.Value
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapFirestoreError("bridge.firestore.take", err)
	}
	if value == nil {
		return nil, ErrNotFound
	}
	return value, nil
}

// Delete implements Store.
func (s *FirestoreStore) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	bw := client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(keys))
	for _, key := range keys {
		job, err := bw.Delete(client.Collection(s.collection).Doc(key.String()))
		if err != nil {
			bw.End()
			return wrapFirestoreError("bridge.firestore.delete", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil && !pfirestore.IsNotFound(err) {
			return wrapFirestoreError("bridge.firestore.delete", err)
		}
	}
	return nil
}

// Ping implements Store by reading a sentinel document.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection(s.collection).Doc("_ping").Get(ctx)
	if err != nil && !pfirestore.IsNotFound(err) {
		return wrapFirestoreError("bridge.firestore.ping", err)
	}
	return nil
}
