package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fjod/go_fulfill/internal/cart"
	"github.com/fjod/go_fulfill/internal/catalog"
	"github.com/fjod/go_fulfill/internal/gateway"
	"github.com/fjod/go_fulfill/internal/inventory"
	"github.com/fjod/go_fulfill/internal/logistics"
	"github.com/fjod/go_fulfill/internal/order"
	"github.com/fjod/go_fulfill/internal/payment"
	"github.com/fjod/go_fulfill/internal/repository"
	"github.com/fjod/go_fulfill/internal/webhook"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			zap.L().Warn("encode response", zap.Error(err))
		}
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondSignatureRejection is the one response for every signature problem.
// The body never varies with the mismatch reason.
func respondSignatureRejection(w http.ResponseWriter) {
	respondError(w, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
}

// handleServiceError maps sentinel errors onto stable machine-readable codes.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, webhook.ErrSignatureInvalid),
		errors.Is(err, gateway.ErrSignatureMismatch):
		respondSignatureRejection(w)

	case errors.Is(err, repository.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "cart_not_found", "cart not found")
	case errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, repository.ErrPaymentNotFound):
		respondError(w, http.StatusNotFound, "payment_not_found", "payment not found")
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, inventory.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")

	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be positive")
	case errors.Is(err, cart.ErrMissingOwner):
		respondError(w, http.StatusBadRequest, "missing_owner", "user_id or session_id is required")
	case errors.Is(err, cart.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", "item not in cart")
	case errors.Is(err, cart.ErrProductNotActive):
		respondError(w, http.StatusUnprocessableEntity, "product_inactive", "product is not sellable")

	case errors.Is(err, order.ErrEmptyOrder):
		respondError(w, http.StatusBadRequest, "empty_order", "order has no items")
	case errors.Is(err, order.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())

	case errors.Is(err, payment.ErrPaymentConflict),
		errors.Is(err, repository.ErrStaleStatus):
		respondError(w, http.StatusConflict, "payment_conflict", err.Error())
	case errors.Is(err, payment.ErrInvalidRefundAmount):
		respondError(w, http.StatusBadRequest, "invalid_refund_amount", err.Error())
	case errors.Is(err, payment.ErrRefundFailed):
		respondError(w, http.StatusUnprocessableEntity, "refund_rejected", err.Error())

	case errors.Is(err, gateway.ErrUnsupportedGateway):
		respondError(w, http.StatusBadRequest, "unsupported_gateway", err.Error())
	case errors.Is(err, gateway.ErrPartialRefundUnsupported):
		respondError(w, http.StatusUnprocessableEntity, "partial_refund_unsupported", err.Error())
	case errors.Is(err, gateway.ErrRefundUnsupported):
		respondError(w, http.StatusUnprocessableEntity, "refund_unsupported", err.Error())
	case errors.Is(err, gateway.ErrManualConfirmRequired):
		respondError(w, http.StatusBadRequest, "manual_confirm_required", err.Error())

	case errors.Is(err, logistics.ErrNoRates):
		respondError(w, http.StatusUnprocessableEntity, "no_rates", "no shipping rates available")

	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
