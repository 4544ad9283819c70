/**
 * @description
 * This file contains the HTTP handler for Razorpay webhook deliveries. The
 * webhook endpoint is unauthenticated at the transport level; authenticity
 * comes from the HMAC signature over the raw request body.
 */

package api

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/yogatara/enrollment-service/internal/app"
)

// RazorpaySignatureHeader carries the gateway's HMAC over the request body.
const RazorpaySignatureHeader = "X-Razorpay-Signature"

// webhookBodyLimit caps webhook payload size. Gateway payloads are small;
// anything larger is not a legitimate delivery.
const webhookBodyLimit = 1 << 20

// RazorpayWebhookHandler handles POST /webhooks/razorpay. The gateway retries
// non-2xx responses, so only a bad signature or an unreadable body gets a
// 400; transient reconciliation failures get a 500 so the delivery is
// retried, and everything else is acknowledged with 200.
func (h *EnrollmentHandlers) RazorpayWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	signature := r.Header.Get(RazorpaySignatureHeader)
	if err := h.reconciler.HandleEvent(r.Context(), body, signature); err != nil {
		if errors.Is(err, app.ErrSignatureMismatch) {
			h.writeError(w, http.StatusBadRequest, "Invalid webhook signature")
			return
		}
		log.Printf("level=error component=api msg=\"webhook reconciliation failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
