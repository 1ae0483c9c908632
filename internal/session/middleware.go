package session

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rekakarya/orderflow/internal/platform/httpx"
	"github.com/rekakarya/orderflow/internal/platform/requestctx"
)

// Middleware resolves the visitor, stores the identifier on the request context and writes the
// refreshed cookie before the handler runs.
func Middleware(m *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, err := m.Load(r)
			if errors.Is(err, ErrExpired) {
				requestctx.Logger(ctx).Info("session expired, issuing new visitor id")
			}
			if err := m.Save(w, sess); err != nil {
				requestctx.Logger(ctx).Error("session save failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.ErrInternal)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithVisitor(ctx, sess.VisitorID())))
		})
	}
}
