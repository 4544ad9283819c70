/**
 * @description
 * This file contains the HTTP handlers for the enrollment-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/yogatara/enrollment-service/internal/app"
	"github.com/yogatara/enrollment-service/internal/domain"
	"github.com/yogatara/enrollment-service/internal/store"
	"github.com/yogatara/enrollment-service/pkg/razorpay"
)

// EnrollmentHandlers holds the application service that handlers will use.
type EnrollmentHandlers struct {
	service    *app.Service
	reconciler *app.WebhookReconciler
}

// NewEnrollmentHandlers creates the handler set for the enrollment API.
func NewEnrollmentHandlers(service *app.Service) *EnrollmentHandlers {
	return &EnrollmentHandlers{
		service:    service,
		reconciler: service.WebhookReconciler(),
	}
}

// InitiateEnrollmentHandler handles POST /enrollments.
func (h *EnrollmentHandlers) InitiateEnrollmentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.EnrollmentInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CourseID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "course_id is required")
		return
	}

	enrollment, err := h.service.InitiateEnrollment(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, enrollment)
}

// ListEnrollmentsHandler handles GET /enrollments.
func (h *EnrollmentHandlers) ListEnrollmentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	enrollments, err := h.service.ListEnrollments(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if enrollments == nil {
		enrollments = []domain.Enrollment{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"enrollments": enrollments})
}

// GetEnrollmentHandler handles GET /enrollments/{enrollmentID}.
func (h *EnrollmentHandlers) GetEnrollmentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	enrollmentID, err := uuid.Parse(chi.URLParam(r, "enrollmentID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid enrollment ID")
		return
	}

	enrollment, err := h.service.GetEnrollment(r.Context(), userID, enrollmentID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, enrollment)
}

// OpenPaymentHandler handles POST /payments.
func (h *EnrollmentHandlers) OpenPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.PaymentInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.EnrollmentID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "enrollment_id is required")
		return
	}

	resp, err := h.service.OpenPayment(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// VerifyPaymentHandler handles POST /payments/verify.
func (h *EnrollmentHandlers) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.PaymentVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RazorpayOrderID == "" || req.RazorpayPaymentID == "" || req.RazorpaySignature == "" {
		h.writeError(w, http.StatusBadRequest, "razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
		return
	}

	if err := h.service.VerifyPayment(r.Context(), userID, req); err != nil {
		if errors.Is(err, app.ErrSignatureMismatch) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"status": "failed", "error": "Signature verification failed"})
			return
		}
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

// ExpireStaleEnrollmentsHandler handles POST /internal/enrollments/expire-stale.
func (h *EnrollmentHandlers) ExpireStaleEnrollmentsHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.ExpireStaleEnrollments(r.Context())
	if err != nil {
		log.Printf("level=error component=api msg=\"expiry sweep failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Expiry sweep failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"expired": count})
}

// writeServiceError maps service and store errors to HTTP status codes.
func (h *EnrollmentHandlers) writeServiceError(w http.ResponseWriter, err error) {
	var rateErr *app.RateLimitError
	if errors.As(err, &rateErr) {
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again shortly.")
		return
	}

	switch {
	case errors.Is(err, store.ErrCourseNotFound),
		errors.Is(err, store.ErrPricingNotFound),
		errors.Is(err, store.ErrCouponNotFound),
		errors.Is(err, store.ErrEnrollmentNotFound),
		errors.Is(err, store.ErrPaymentNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateEnrollment),
		errors.Is(err, store.ErrDuplicatePayment):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrEnrollmentExpired):
		h.writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, store.ErrEnrollmentNotEligible),
		errors.Is(err, app.ErrCouponNotUsable),
		errors.Is(err, app.ErrCouponNotApplicable),
		errors.Is(err, app.ErrCouponAlreadyUsed),
		errors.Is(err, app.ErrInvalidPricing):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		var gatewayErr *razorpay.ErrorResponse
		if errors.As(err, &gatewayErr) {
			h.writeError(w, http.StatusBadGateway, "Payment gateway error")
			return
		}
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *EnrollmentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *EnrollmentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
