package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/bookmarket-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса маркетплейса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	if h.collector != nil {
		r.Use(h.collector.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if h.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.metricsHandler)
	}

	if h.uploadDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.uploadDir)))
		r.Get("/uploads/*", fs.ServeHTTP)
	}

	r.Route("/auth", func(r chi.Router) {
		if h.rateLimiter != nil {
			r.Use(h.rateLimiter.Middleware)
		}
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	r.Get("/listings", h.ListListings)
	r.Get("/listings/{id}", h.GetListing)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/listings", h.CreateListing)
		r.Put("/listings/{id}", h.UpdateListing)
		r.Delete("/listings/{id}", h.DeleteListing)

		r.Get("/cart", h.GetCart)
		r.Post("/cart", h.AddToCart)
		r.Delete("/cart/{listingId}", h.RemoveFromCart)

		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.GetOrders)

		r.Get("/messages/{otherUserId}", h.GetMessageThread)
		r.Post("/messages", h.SendMessage)

		r.Get("/users/{id}", h.GetUser)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
