// Package http exposes the fulfillment services to the route layer.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_fulfill/internal/cart"
	"github.com/fjod/go_fulfill/internal/domain"
)

type CartHandler struct {
	svc *cart.CartService
}

func NewCartHandler(svc *cart.CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

type createCartDTO struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	WebsiteID string `json:"website_id"`
}

type addItemDTO struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Variant   *domain.Variant `json:"variant,omitempty"`
}

type updateItemDTO struct {
	Quantity int             `json:"quantity"`
	Variant  *domain.Variant `json:"variant,omitempty"`
}

type mergeDTO struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// GetOrCreate finds the caller's live cart or opens an empty one.
func (h *CartHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	var req createCartDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	c, err := h.svc.GetOrCreate(r.Context(), req.UserID, req.SessionID, req.WebsiteID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCart(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	c, err := h.svc.AddItem(r.Context(), chi.URLParam(r, "cartID"), req.ProductID, req.Quantity, req.Variant)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// UpdateItem sets a line's quantity. Zero or negative removes the line.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	var req updateItemDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	c, err := h.svc.UpdateItem(r.Context(), chi.URLParam(r, "cartID"), productID, req.Variant, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	var variant *domain.Variant
	if sku := r.URL.Query().Get("sku"); sku != "" {
		variant = &domain.Variant{SKU: sku}
	}

	c, err := h.svc.RemoveItem(r.Context(), chi.URLParam(r, "cartID"), productID, variant)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Clear(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "cartID")); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.TargetID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "target_id is required")
		return
	}

	c, err := h.svc.Merge(r.Context(), req.SourceID, req.TargetID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CartHandler) Validate(w http.ResponseWriter, r *http.Request) {
	issues, err := h.svc.Validate(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"issues": issues})
}

func (h *CartHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetStats(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
