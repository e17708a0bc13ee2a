package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/logistics"
	"github.com/fjod/go_fulfill/internal/order"
)

type OrderHandler struct {
	svc *order.OrderService
}

func NewOrderHandler(svc *order.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type createOrderDTO struct {
	CartID          string             `json:"cart_id,omitempty"`
	Items           []domain.OrderItem `json:"items,omitempty"`
	UserID          string             `json:"user_id,omitempty"`
	WebsiteID       string             `json:"website_id"`
	Currency        string             `json:"currency,omitempty"`
	ShippingAddress domain.Address     `json:"shipping_address"`
	BillingAddress  *domain.Address    `json:"billing_address,omitempty"`
}

type statusDTO struct {
	Status string `json:"status"`
}

type trackingDTO struct {
	TrackingNumber string `json:"tracking_number"`
}

type quoteDTO struct {
	Lines   []order.QuoteLine `json:"lines"`
	Address domain.Address    `json:"address"`
	Parcel  logistics.Parcel  `json:"parcel"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.CartID == "" && len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "empty_order", "cart_id or items is required")
		return
	}
	if req.ShippingAddress.Line1 == "" || req.ShippingAddress.Country == "" {
		respondError(w, http.StatusBadRequest, "invalid_address", "shipping address needs line1 and country")
		return
	}

	ord, err := h.svc.CreateOrder(r.Context(), order.CreateOrderInput{
		CartID:          req.CartID,
		Items:           req.Items,
		UserID:          req.UserID,
		WebsiteID:       req.WebsiteID,
		Currency:        req.Currency,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ord)
}

func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ord, err := h.svc.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ord)
}

func (h *OrderHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	ord, err := h.svc.FindByOrderNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ord)
}

func (h *OrderHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req statusDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	ord, err := h.svc.UpdatePaymentStatus(r.Context(), id, domain.PaymentStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ord)
}

func (h *OrderHandler) UpdateShippingStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req statusDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	ord, err := h.svc.UpdateShippingStatus(r.Context(), id, domain.ShippingStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ord)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ord, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ord)
}

func (h *OrderHandler) AddTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req trackingDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.TrackingNumber == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "tracking_number is required")
		return
	}

	ord, err := h.svc.AddTracking(r.Context(), id, req.TrackingNumber)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ord)
}

// Quote prices a prospective order at current catalog prices with a live
// shipping rate.
func (h *OrderHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	quote, err := h.svc.CalculateOrderTotal(r.Context(), req.Lines, req.Address, req.Parcel)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

func (h *OrderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), r.URL.Query().Get("website_id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
