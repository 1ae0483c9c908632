//go:build integration

package bridge

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rekakarya/orderflow/internal/platform/config"
	pfirestore "github.com/rekakarya/orderflow/internal/platform/firestore"
)

func TestFirestoreStoreIntegration(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(config.FirestoreConfig{
		ProjectID:    "orderflow-test",
		EmulatorHost: host,
		Collection:   "orderStateTest",
	}, pfirestore.WithDialTimeout(5*time.Second))
	t.Cleanup(func() { _ = provider.Close() })

	clock := newFakeClock()
	store := NewFirestoreStore(provider, provider.Collection(), clock.Now)
	storeContract(t, store)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	key := Key{Scope: ScopeSession, Namespace: "visitor-it", Name: KeyDomainSearchTerm}
	require.NoError(t, store.Put(ctx, key, []byte(`"shop"`), time.Minute))
	value, err := store.Take(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `"shop"`, string(value))
	_, err = store.Take(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, key, []byte(`"shop"`), time.Minute))
	clock.Advance(2 * time.Minute)
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}
