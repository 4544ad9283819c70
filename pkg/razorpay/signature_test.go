package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func hmacHex(key string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyPaymentSignature(t *testing.T) {
	secret := "key_secret"
	valid := hmacHex(secret, []byte("order_1|pay_1"))

	if !VerifyPaymentSignature("order_1", "pay_1", valid, secret) {
		t.Error("expected valid signature to verify")
	}
	if VerifyPaymentSignature("order_1", "pay_2", valid, secret) {
		t.Error("expected signature for another payment to fail")
	}
	if VerifyPaymentSignature("order_1", "pay_1", valid, "other_secret") {
		t.Error("expected signature with wrong secret to fail")
	}
	if VerifyPaymentSignature("order_1", "pay_1", "", secret) {
		t.Error("expected empty signature to fail")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "webhook_secret"
	body := []byte(`{"event":"payment.captured"}`)
	valid := hmacHex(secret, body)

	if !VerifyWebhookSignature(body, valid, secret) {
		t.Error("expected valid signature to verify")
	}
	if VerifyWebhookSignature([]byte(`{"event":"tampered"}`), valid, secret) {
		t.Error("expected tampered body to fail")
	}
	if VerifyWebhookSignature(body, valid, "other_secret") {
		t.Error("expected signature with wrong secret to fail")
	}
}
