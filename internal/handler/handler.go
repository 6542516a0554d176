// Package handler exposes the order engine over HTTP with JSON bodies.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/topup-engine/internal/domain/order"
)

const defaultMaxProofBytes = 5 << 20

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// MaxProofBytes bounds the proof upload; larger bodies are rejected
	// before they are read in full.
	MaxProofBytes int64
}

// Handler serves the order API.
type Handler struct {
	orders        *order.Service
	maxProofBytes int64
}

// NewHandler constructs a Handler around the order service.
func NewHandler(cfg Config, orders *order.Service) *Handler {
	if cfg.MaxProofBytes <= 0 {
		cfg.MaxProofBytes = defaultMaxProofBytes
	}
	return &Handler{
		orders:        orders,
		maxProofBytes: cfg.MaxProofBytes,
	}
}

// Register mounts the API routes on r behind sec. Paths outside the API
// stay unauthenticated so unknown routes still answer 404.
func (h *Handler) Register(r chi.Router, sec *SecurityHandler) {
	r.Group(func(r chi.Router) {
		r.Use(sec.Authenticate)

		r.Post("/api/orders", h.CreateOrder)
		r.Get("/api/orders", h.ListOrders)
		r.Get("/api/orders/{ref}", h.GetOrder)
		r.Post("/api/orders/{ref}/proof", h.SubmitProof)
		r.Get("/api/orders/{ref}/proof", h.GetProof)
		r.Post("/api/orders/{ref}/verify", h.Verify)
	})
}

func orderRef(r *http.Request) order.Ref {
	return order.ParseRef(chi.URLParam(r, "ref"))
}
