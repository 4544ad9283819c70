package domain

// Gateway webhook event names this service reconciles. Anything else is
// acknowledged and ignored.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
)

// WebhookEvent is the JSON body of a gateway webhook delivery. Only the
// payment entity is read; the raw entity bytes are persisted verbatim on the
// payment row for audit.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// PaymentEntity is the gateway's view of one payment inside a webhook event.
type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}
