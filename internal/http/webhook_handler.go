package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/webhook"
)

// maxWebhookBody bounds inbound webhook payloads.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	ingestor *webhook.Ingestor
}

func NewWebhookHandler(ingestor *webhook.Ingestor) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor}
}

// CardEvent receives card-processor webhooks. The raw body is handed to the
// ingestor unmodified together with the signature header.
func (h *WebhookHandler) CardEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "unreadable body")
		return
	}

	outcome, err := h.ingestor.HandleCardEvent(r.Context(), body, r.Header.Get("X-Signature"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

// WalletACallback and WalletBCallback receive the wallets' inbound POSTs.
func (h *WebhookHandler) WalletACallback(w http.ResponseWriter, r *http.Request) {
	h.walletCallback(w, r, domain.GatewayWalletA)
}

func (h *WebhookHandler) WalletBCallback(w http.ResponseWriter, r *http.Request) {
	h.walletCallback(w, r, domain.GatewayWalletB)
}

func (h *WebhookHandler) walletCallback(w http.ResponseWriter, r *http.Request, kind domain.GatewayKind) {
	var cb webhook.WalletCallback
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&cb); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	outcome, err := h.ingestor.HandleWalletCallback(r.Context(), kind, cb)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}
