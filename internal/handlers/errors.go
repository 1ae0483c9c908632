package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rekakarya/orderflow/internal/bridge"
	"github.com/rekakarya/orderflow/internal/catalog"
	"github.com/rekakarya/orderflow/internal/domains"
	"github.com/rekakarya/orderflow/internal/payments"
	"github.com/rekakarya/orderflow/internal/platform/httpx"
	"github.com/rekakarya/orderflow/internal/platform/requestctx"
	"github.com/rekakarya/orderflow/internal/wizard"
)

// statusClientClosedRequest is reported when the visitor went away or cancelled the work.
const statusClientClosedRequest = 499

func writeWizardError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		validationErr *wizard.ValidationError
		stepErr       *wizard.StepError
		prereqErr     *wizard.PrerequisiteError
		declineErr    *payments.DeclineError
	)
	switch {
	case errors.As(err, &validationErr):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "some fields are invalid", http.StatusUnprocessableEntity).
			WithFieldErrors(validationErr.Result.Errors))
	case errors.As(err, &stepErr):
		httpx.WriteError(ctx, w, httpx.NewError("step_out_of_order", err.Error(), http.StatusConflict).
			WithDetails(map[string]any{"step": stepErr.Current, "requiredStep": stepErr.Required}))
	case errors.Is(err, wizard.ErrStepOutOfOrder):
		httpx.WriteError(ctx, w, httpx.NewError("step_out_of_order", err.Error(), http.StatusConflict))
	case errors.As(err, &prereqErr):
		httpx.WriteError(ctx, w, httpx.NewError("step_prerequisite_missing", err.Error(), http.StatusConflict).
			WithDetails(map[string]any{"step": prereqErr.Step, "missing": prereqErr.Missing}))
	case errors.Is(err, wizard.ErrInvalidVisitor):
		httpx.WriteError(ctx, w, httpx.NewError("visitor_required", "a visitor session is required", http.StatusUnauthorized))
	case errors.Is(err, wizard.ErrUnknownDomain):
		httpx.WriteError(ctx, w, httpx.NewError("domain_not_found", "domain is not part of the last search", http.StatusNotFound))
	case errors.Is(err, wizard.ErrDomainUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("domain_unavailable", "domain is not available", http.StatusConflict))
	case errors.Is(err, wizard.ErrUnknownTemplate):
		httpx.WriteError(ctx, w, httpx.NewError("template_not_found", "template not found", http.StatusNotFound))
	case errors.Is(err, domains.ErrEmptyQuery), errors.Is(err, domains.ErrInvalidName):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_query", err.Error(), http.StatusBadRequest))
	case errors.Is(err, catalog.ErrUnknownCategory):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_category", err.Error(), http.StatusBadRequest))
	case errors.Is(err, wizard.ErrInvalidPrice):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_price", "order cannot be priced", http.StatusUnprocessableEntity))
	case errors.Is(err, wizard.ErrPaymentInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("payment_in_progress", "a payment is already being processed", http.StatusConflict))
	case errors.Is(err, wizard.ErrPaymentDeclined):
		e := httpx.NewError("payment_declined", "payment was declined", http.StatusPaymentRequired)
		if errors.As(err, &declineErr) {
			e = e.WithDetails(map[string]any{"declineCode": declineErr.Code})
			if declineErr.Message != "" {
				e.Message = declineErr.Message
			}
		}
		httpx.WriteError(ctx, w, e)
	case errors.Is(err, wizard.ErrPaymentFailed):
		requestctx.Logger(ctx).Warn("payment failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be completed", http.StatusBadGateway))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "the request timed out", http.StatusGatewayTimeout))
	case errors.Is(err, wizard.ErrCancelled), errors.Is(err, context.Canceled):
		requestctx.Logger(ctx).Info("request cancelled", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("request_cancelled", "the request was cancelled", statusClientClosedRequest))
	case errors.Is(err, bridge.ErrUnavailable):
		requestctx.Logger(ctx).Warn("order state store unavailable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", "order storage is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("wizard request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.ErrInternal)
	}
}
