package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every handler onto one chi router. Webhooks live outside
// /api/v1 because the gateways, not our clients, call them.
func NewRouter(carts *CartHandler, orders *OrderHandler, payments *PaymentHandler, webhooks *WebhookHandler, requestTimeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/carts", func(r chi.Router) {
			r.Post("/", carts.GetOrCreate)
			r.Post("/merge", carts.Merge)
			r.Route("/{cartID}", func(r chi.Router) {
				r.Get("/", carts.GetCart)
				r.Delete("/", carts.Delete)
				r.Post("/items", carts.AddItem)
				r.Put("/items/{productID}", carts.UpdateItem)
				r.Delete("/items/{productID}", carts.RemoveItem)
				r.Post("/clear", carts.Clear)
				r.Get("/validate", carts.Validate)
				r.Get("/stats", carts.Stats)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orders.Create)
			r.Post("/quote", orders.Quote)
			r.Get("/stats", orders.Stats)
			r.Get("/number/{orderNumber}", orders.GetByNumber)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", orders.GetByID)
				r.Post("/payment-status", orders.UpdatePaymentStatus)
				r.Post("/shipping-status", orders.UpdateShippingStatus)
				r.Post("/cancel", orders.Cancel)
				r.Post("/tracking", orders.AddTracking)
				r.Get("/payments", payments.ListByOrder)
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", payments.CreateIntent)
			r.Route("/{paymentID}", func(r chi.Router) {
				r.Get("/", payments.Get)
				r.Post("/confirm", payments.Confirm)
				r.Post("/refund", payments.Refund)
			})
		})
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/card", webhooks.CardEvent)
		r.Post("/wallet-a", webhooks.WalletACallback)
		r.Post("/wallet-b", webhooks.WalletBCallback)
	})

	return r
}
