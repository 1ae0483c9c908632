package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rekakarya/orderflow/internal/platform/requestctx"
)

var fixedTime = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func newRequest(visitor, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/order/payment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req.WithContext(requestctx.WithVisitor(req.Context(), visitor))
}

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client, "test"),
	}
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			calls := 0
			handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"orderId":"1"}`))
			}))

			first := httptest.NewRecorder()
			handler.ServeHTTP(first, newRequest("v1", "k1", `{"method":"card"}`))
			second := httptest.NewRecorder()
			handler.ServeHTTP(second, newRequest("v1", "k1", `{"method":"card"}`))

			assert.Equal(t, 1, calls)
			assert.Equal(t, http.StatusOK, second.Code)
			assert.Equal(t, "true", second.Header().Get(replayHeaderName))
			assert.JSONEq(t, first.Body.String(), second.Body.String())

			conflict := httptest.NewRecorder()
			handler.ServeHTTP(conflict, newRequest("v1", "k1", `{"method":"bank"}`))
			assert.Equal(t, http.StatusConflict, conflict.Code)

			other := httptest.NewRecorder()
			handler.ServeHTTP(other, newRequest("v2", "k1", `{"method":"card"}`))
			assert.Equal(t, 2, calls, "keys are scoped per visitor")
		})
	}
}

func TestMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newRequest("v1", "k", `{}`))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	}
	assert.Equal(t, 2, calls)
}

func TestMiddlewareHeaderOptionalUnlessRequired(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	Middleware(NewMemoryStore())(ok).ServeHTTP(rec, newRequest("v1", "", `{}`))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	Middleware(NewMemoryStore(), WithRequired(true))(ok).ServeHTTP(rec, newRequest("v1", "", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddlewareRejectsOversizedBody(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Middleware(store, WithMaxBodyBytes(32))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("v1", "big", `{"cardholderName":"`+strings.Repeat("a", 64)+`"}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, calls)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("v1", "big", `{}`))
	assert.Equal(t, http.StatusOK, rec.Code, "rejected requests do not reserve the key")
	assert.Equal(t, 1, calls)
}

func TestMemoryStorePendingAndCleanup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	res, err := store.Reserve(ctx, "k", "fp", fixedTime, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, res.State)

	res, err = store.Reserve(ctx, "k", "fp", fixedTime, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReservationStatePending, res.State)

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(2*time.Minute), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	res, err = store.Reserve(ctx, "k", "other", fixedTime.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, res.State)
}
