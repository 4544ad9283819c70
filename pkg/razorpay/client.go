/**
 * @description
 * This package provides a client for interacting with the Razorpay Orders API.
 * It encapsulates the logic for making authenticated HTTP requests to Razorpay,
 * handling request body construction, and parsing responses, plus the HMAC
 * signature checks for checkout callbacks and webhook deliveries.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the Razorpay API.
type Client struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	HTTPClient *http.Client
}

// NewClient creates a new Razorpay API client.
func NewClient(baseURL, keyID, keySecret string) *Client {
	return &Client{
		BaseURL:   baseURL,
		KeyID:     keyID,
		KeySecret: keySecret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// OrderRequest represents the payload for creating a Razorpay order.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order is the expected response from Razorpay's order creation endpoint.
type Order struct {
	ID         string `json:"id"`
	Entity     string `json:"entity"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"created_at"`
}

// ErrorResponse represents an error from the Razorpay API.
type ErrorResponse struct {
	ErrorInfo struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.ErrorInfo.Code != "" || e.ErrorInfo.Description != "" {
		return fmt.Sprintf("razorpay api error: %s - %s", e.ErrorInfo.Code, e.ErrorInfo.Description)
	}
	return "unknown razorpay api error"
}

// CreateOrder sends a request to Razorpay to create a payment order. The
// amount is in integer minor units (paise for INR).
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	reqPayload := OrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/orders", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create order request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.KeyID, c.KeySecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute order request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read order response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=razorpay_client op=create_order status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=razorpay_client op=create_order status=%d code=%q detail=%q", resp.StatusCode, errResp.ErrorInfo.Code, errResp.ErrorInfo.Description)
		return nil, &errResp
	}

	var order Order
	if err := json.Unmarshal(bodyBytes, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	return &order, nil
}
