package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// PaymentClient defines the interface for communicating with the payment gateway service
type PaymentClient interface {
	// GetPaymentsByOrder retrieves payments for an order
	GetPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error)
	// CreateRefund creates a refund for a payment
	CreateRefund(ctx context.Context, paymentID string, req CreateRefundRequest) (*RefundResponse, error)
}

// CreateRefundRequest represents a request to create a refund
type CreateRefundRequest struct {
	Amount float64 `json:"amount"`
	Reason string  `json:"reason,omitempty"`
	Notes  string  `json:"notes,omitempty"`
}

// RefundResponse represents a refund response from the payment service
type RefundResponse struct {
	ID              string  `json:"id"`
	PaymentID       string  `json:"paymentId"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	GatewayRefundID string  `json:"gatewayRefundId,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	CreatedAt       string  `json:"createdAt"`
}

// Payment represents a captured payment from the payment service
type Payment struct {
	ID                   string  `json:"id"`
	OrderID              string  `json:"orderId"`
	Amount               float64 `json:"amount"`
	Currency             string  `json:"currency"`
	Status               string  `json:"status"`
	GatewayType          string  `json:"gatewayType"`
	GatewayTransactionID string  `json:"gatewayTransactionId,omitempty"`
}

type paymentClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPaymentClient creates a new payment service client
func NewPaymentClient() PaymentClient {
	baseURL := os.Getenv("PAYMENT_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://payment-service:8080"
	}

	return &paymentClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // Longer timeout for payment operations
		},
	}
}

// GetPaymentsByOrder retrieves payments for an order
func (c *paymentClient) GetPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	url := fmt.Sprintf("%s/api/v1/orders/%s/payments", c.baseURL, orderID.String())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Internal-Service", "returns-service")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call payment service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment service returned status %d: %s", resp.StatusCode, string(body))
	}

	var payments []Payment
	if err := json.Unmarshal(body, &payments); err != nil {
		return nil, fmt.Errorf("failed to parse payments response: %w", err)
	}

	return payments, nil
}

// CreateRefund creates a refund for a payment
func (c *paymentClient) CreateRefund(ctx context.Context, paymentID string, req CreateRefundRequest) (*RefundResponse, error) {
	url := fmt.Sprintf("%s/api/v1/payments/%s/refund", c.baseURL, paymentID)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refund request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Internal-Service", "returns-service")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call payment service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("payment service returned status %d: %s", resp.StatusCode, string(body))
	}

	var refund RefundResponse
	if err := json.Unmarshal(body, &refund); err != nil {
		return nil, fmt.Errorf("failed to parse refund response: %w", err)
	}

	return &refund, nil
}
