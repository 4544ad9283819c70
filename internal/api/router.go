/**
 * @description
 * This file sets up the HTTP router for the enrollment-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and applies
 * any necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes creates and returns the router for the enrollment service.
func Routes(h *EnrollmentHandlers, jwtSecret, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Gateway webhook deliveries: authenticated by HMAC signature, not JWT.
	r.Post("/webhooks/razorpay", h.RazorpayWebhookHandler)

	// Internal operational endpoints guarded by a shared API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))
		r.Post("/internal/enrollments/expire-stale", h.ExpireStaleEnrollmentsHandler)
	})

	// Group routes that require student authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/enrollments", h.InitiateEnrollmentHandler)
		r.Get("/enrollments", h.ListEnrollmentsHandler)
		r.Get("/enrollments/{enrollmentID}", h.GetEnrollmentHandler)

		r.Post("/payments", h.OpenPaymentHandler)
		r.Post("/payments/verify", h.VerifyPaymentHandler)
	})

	return r
}
