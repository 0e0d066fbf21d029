package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ShippingClient fetches carrier rates and buys return labels via the shipping-service API
type ShippingClient interface {
	// GetReturnRates fetches available carrier rates for a return shipment
	GetReturnRates(ctx context.Context, req *ReturnRateRequest) ([]ShippingRate, error)
	// GenerateReturnLabel purchases a prepaid return label for the chosen rate
	GenerateReturnLabel(ctx context.Context, req *ReturnLabelRequest) (*ReturnLabelResponse, error)
}

// shippingClient implements ShippingClient
type shippingClient struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Entry
}

// NewShippingClient creates a new shipping client
func NewShippingClient() ShippingClient {
	baseURL := os.Getenv("SHIPPING_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://shipping-service:8080"
	}
	// Shipping service routes are at /api/*, strip a configured /api/v1 suffix
	baseURL = strings.TrimSuffix(baseURL, "/api/v1")

	return &shippingClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logrus.WithField("component", "shipping_client"),
	}
}

// ShipmentAddress represents an address for shipping
type ShipmentAddress struct {
	Name       string `json:"name"`
	Company    string `json:"company,omitempty"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	Street     string `json:"street"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Parcel describes the package being shipped back
type Parcel struct {
	Weight float64 `json:"weight"`
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ReturnRateRequest asks for carrier rates on a return shipment
type ReturnRateRequest struct {
	FromAddress *ShipmentAddress `json:"fromAddress"`
	ToAddress   *ShipmentAddress `json:"toAddress"`
	Parcel      Parcel           `json:"parcel"`
}

// ShippingRate is one carrier quote for a return shipment
type ShippingRate struct {
	Carrier      string  `json:"carrier"`
	ServiceCode  string  `json:"serviceCode"`
	ServiceName  string  `json:"serviceName"`
	Cost         float64 `json:"cost"`
	Currency     string  `json:"currency"`
	EstimatedDays int    `json:"estimatedDays,omitempty"`
}

// ReturnLabelRequest purchases a label for the selected rate
type ReturnLabelRequest struct {
	ReturnID    string           `json:"returnId"`
	OrderNumber string           `json:"orderNumber"`
	FromAddress *ShipmentAddress `json:"fromAddress"`
	ToAddress   *ShipmentAddress `json:"toAddress"`
	Parcel      Parcel           `json:"parcel"`
	Carrier     string           `json:"carrier"`
	ServiceCode string           `json:"serviceCode"`
}

// ReturnLabelResponse contains the purchased label
type ReturnLabelResponse struct {
	LabelURL       string  `json:"labelUrl"`
	Carrier        string  `json:"carrier"`
	TrackingNumber string  `json:"trackingNumber,omitempty"`
	Cost           float64 `json:"cost"`
}

// GetReturnRates fetches available carrier rates for a return shipment
func (c *shippingClient) GetReturnRates(ctx context.Context, req *ReturnRateRequest) ([]ShippingRate, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/returns/rates", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Internal-Service", "returns-service")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.log.WithField("status", resp.StatusCode).Error("Rate request failed")
		return nil, fmt.Errorf("shipping-service returned status %d", resp.StatusCode)
	}

	var result struct {
		Data []ShippingRate `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Data, nil
}

// GenerateReturnLabel purchases a prepaid return label for the chosen rate
func (c *shippingClient) GenerateReturnLabel(ctx context.Context, req *ReturnLabelRequest) (*ReturnLabelResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/returns/labels", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Internal-Service", "returns-service")

	c.log.WithFields(logrus.Fields{
		"returnId": req.ReturnID,
		"carrier":  req.Carrier,
	}).Info("Purchasing return label")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		c.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"error":  errResp,
		}).Error("Label purchase failed")
		return nil, fmt.Errorf("shipping-service returned status %d", resp.StatusCode)
	}

	var result struct {
		Data *ReturnLabelResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Data, nil
}
