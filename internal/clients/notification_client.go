package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// NotificationClient sends customer emails via the notification-service API
type NotificationClient interface {
	// SendReturnConfirmation confirms a new return request was received
	SendReturnConfirmation(ctx context.Context, n *ReturnNotification) error
	// SendReturnApproved tells the customer to ship the items back
	SendReturnApproved(ctx context.Context, n *ReturnNotification) error
	// SendReturnRejected explains why the request was declined
	SendReturnRejected(ctx context.Context, n *ReturnNotification) error
	// SendReturnShipped acknowledges the customer's drop-off
	SendReturnShipped(ctx context.Context, n *ReturnNotification) error
	// SendReturnReceived confirms the warehouse received the items
	SendReturnReceived(ctx context.Context, n *ReturnNotification) error
	// SendReturnCompleted confirms the refund or exchange was issued
	SendReturnCompleted(ctx context.Context, n *ReturnNotification) error
}

// notificationClient implements NotificationClient
type notificationClient struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Entry
}

// NewNotificationClient creates a new notification client
func NewNotificationClient() NotificationClient {
	baseURL := os.Getenv("NOTIFICATION_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://notification-service:8090"
	}

	return &notificationClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: logrus.WithField("component", "notification_client"),
	}
}

// SendNotificationRequest represents the API request to notification-service
type SendNotificationRequest struct {
	Channel        string                 `json:"channel"`
	RecipientEmail string                 `json:"recipientEmail"`
	Subject        string                 `json:"subject"`
	TemplateName   string                 `json:"templateName,omitempty"`
	Variables      map[string]interface{} `json:"variables,omitempty"`
}

// ReturnNotification contains the return details rendered into customer emails
type ReturnNotification struct {
	ReturnID       string
	OrderID        string
	OrderNumber    string
	ReturnStatus   string
	ReturnType     string
	Reason         string
	CustomerEmail  string
	CustomerName   string
	RefundAmount   string
	Currency       string
	TrackingNumber string
	LabelURL       string
	AdminNotes     string
	Items          []ReturnNotificationItem
}

// ReturnNotificationItem is a line item shown in return emails
type ReturnNotificationItem struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// SendReturnConfirmation confirms a new return request was received
func (c *notificationClient) SendReturnConfirmation(ctx context.Context, n *ReturnNotification) error {
	return c.sendStatusEmail(ctx, n, "PENDING",
		fmt.Sprintf("Return Request Received - #%s", n.OrderNumber))
}

// SendReturnApproved tells the customer to ship the items back
func (c *notificationClient) SendReturnApproved(ctx context.Context, n *ReturnNotification) error {
	return c.sendStatusEmail(ctx, n, "APPROVED",
		fmt.Sprintf("Return Approved - #%s", n.OrderNumber))
}

// SendReturnRejected explains why the request was declined
func (c *notificationClient) SendReturnRejected(ctx context.Context, n *ReturnNotification) error {
	return c.sendStatusEmail(ctx, n, "REJECTED",
		fmt.Sprintf("Return Request Declined - #%s", n.OrderNumber))
}

// SendReturnShipped acknowledges the customer's drop-off
func (c *notificationClient) SendReturnShipped(ctx context.Context, n *ReturnNotification) error {
	return c.sendStatusEmail(ctx, n, "SHIPPED",
		fmt.Sprintf("Return Shipment Confirmed - #%s", n.OrderNumber))
}

// SendReturnReceived confirms the warehouse received the items
func (c *notificationClient) SendReturnReceived(ctx context.Context, n *ReturnNotification) error {
	return c.sendStatusEmail(ctx, n, "RECEIVED",
		fmt.Sprintf("Return Items Received - #%s", n.OrderNumber))
}

// SendReturnCompleted confirms the refund or exchange was issued
func (c *notificationClient) SendReturnCompleted(ctx context.Context, n *ReturnNotification) error {
	return c.sendStatusEmail(ctx, n, "COMPLETED",
		fmt.Sprintf("Return Completed - #%s", n.OrderNumber))
}

func (c *notificationClient) sendStatusEmail(ctx context.Context, n *ReturnNotification, status, subject string) error {
	if n == nil {
		c.log.Warn("Skipping return notification - payload is nil")
		return nil
	}
	if n.CustomerEmail == "" {
		c.log.WithField("returnId", n.ReturnID).Warn("Skipping return notification - no customer email")
		return nil
	}

	n.ReturnStatus = status
	req := c.buildNotificationRequest(n)
	req.Subject = subject
	req.TemplateName = "return_customer" // Unified template, uses ReturnStatus to determine content

	if err := c.send(ctx, req); err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"returnId": n.ReturnID,
			"status":   status,
		}).Error("Failed to send return notification")
		return err
	}

	c.log.WithFields(logrus.Fields{
		"returnId":  n.ReturnID,
		"status":    status,
		"recipient": MaskEmail(n.CustomerEmail),
	}).Info("Return notification sent")
	return nil
}

// buildNotificationRequest builds the notification request from return data
func (c *notificationClient) buildNotificationRequest(n *ReturnNotification) SendNotificationRequest {
	var items []map[string]interface{}
	for _, item := range n.Items {
		items = append(items, map[string]interface{}{
			"name":     item.Name,
			"sku":      item.SKU,
			"quantity": item.Quantity,
			"price":    item.Price,
		})
	}

	return SendNotificationRequest{
		Channel:        "EMAIL",
		RecipientEmail: n.CustomerEmail,
		Variables: map[string]interface{}{
			"returnId":       n.ReturnID,
			"orderId":        n.OrderID,
			"orderNumber":    n.OrderNumber,
			"returnStatus":   n.ReturnStatus,
			"returnType":     n.ReturnType,
			"reason":         n.Reason,
			"customerName":   n.CustomerName,
			"customerEmail":  n.CustomerEmail,
			"refundAmount":   n.RefundAmount,
			"currency":       n.Currency,
			"trackingNumber": n.TrackingNumber,
			"labelUrl":       n.LabelURL,
			"adminNotes":     n.AdminNotes,
			"items":          items,
		},
	}
}

func (c *notificationClient) send(ctx context.Context, req SendNotificationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/notifications/send", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Internal-Service", "returns-service")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification-service returned status %d", resp.StatusCode)
	}

	return nil
}
