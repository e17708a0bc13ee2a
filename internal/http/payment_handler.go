package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/gateway"
	"github.com/fjod/go_fulfill/internal/payment"
)

type PaymentHandler struct {
	svc *payment.PaymentService
}

func NewPaymentHandler(svc *payment.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type createIntentDTO struct {
	OrderID       string            `json:"order_id"`
	Gateway       string            `json:"gateway"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type intentResponseDTO struct {
	Payment *domain.Payment        `json:"payment"`
	Result  *gateway.PaymentResult `json:"result"`
}

type confirmDTO struct {
	Data map[string]string `json:"data"`
}

type refundDTO struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason,omitempty"`
}

func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}
	kind := domain.GatewayKind(req.Gateway)
	if !kind.Valid() {
		respondError(w, http.StatusBadRequest, "unsupported_gateway", "unknown gateway")
		return
	}

	p, result, err := h.svc.CreatePaymentIntent(r.Context(), orderID, kind, req.CustomerEmail, req.Metadata)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, intentResponseDTO{Payment: p, Result: result})
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.GetPayment(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *PaymentHandler) ListByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a UUID")
		return
	}
	payments, err := h.svc.ListByOrder(r.Context(), orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

// Confirm settles a pending payment from caller-supplied confirmation data:
// wallet status+signature, COD "confirmed", bank transfer "approved". The
// card rail ignores the data and asks the processor.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(w, r)
	if !ok {
		return
	}
	var req confirmDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	p, err := h.svc.ConfirmPayment(r.Context(), id, req.Data)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(w, r)
	if !ok {
		return
	}
	var req refundDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := h.svc.ProcessRefund(r.Context(), id, req.Amount, req.Reason)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func paymentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payment_id", "payment id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
