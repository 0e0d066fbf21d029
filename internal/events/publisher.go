package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"returns-service/internal/models"
)

// Event types published on the returns stream
const (
	ReturnCreated       = "return.created"
	ReturnStatusChanged = "return.status_changed"
	ReturnCompleted     = "return.completed"
)

const streamName = "RETURNS"

// ReturnEvent is the wire payload for return lifecycle events
type ReturnEvent struct {
	EventID     string                 `json:"eventId"`
	EventType   string                 `json:"eventType"`
	Timestamp   string                 `json:"timestamp"`
	ReturnID    string                 `json:"returnId"`
	OrderID     string                 `json:"orderId"`
	UserID      string                 `json:"userId"`
	Type        string                 `json:"type"`
	Status      string                 `json:"status"`
	Reason      string                 `json:"reason"`
	ItemCount   int                    `json:"itemCount"`
	RefundAmount *float64              `json:"refundAmount,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Publisher publishes return lifecycle events to NATS JetStream
type Publisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Entry
}

// NewPublisher connects to NATS and ensures the returns stream exists
func NewPublisher(logger *logrus.Logger) (*Publisher, error) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		// For local development, set NATS_URL=nats://localhost:4222
		natsURL = "nats://nats:4222"
	}

	conn, err := nats.Connect(natsURL,
		nats.Name("returns-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"return.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to ensure returns stream (may already exist)")
	}

	return &Publisher{
		conn:   conn,
		js:     js,
		logger: logger.WithField("component", "returns-events"),
	}, nil
}

// Close drains and closes the NATS connection
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}

// PublishReturnCreated publishes a return.created event
func (p *Publisher) PublishReturnCreated(ret *models.ReturnRequest) {
	p.publish(p.buildEvent(ReturnCreated, ret))
}

// PublishReturnStatusChanged publishes a return.status_changed event
func (p *Publisher) PublishReturnStatusChanged(ret *models.ReturnRequest, oldStatus models.ReturnStatus) {
	event := p.buildEvent(ReturnStatusChanged, ret)
	event.Metadata = map[string]interface{}{
		"previousStatus": oldStatus,
		"newStatus":      ret.Status,
	}
	p.publish(event)
}

// PublishReturnCompleted publishes a return.completed event
func (p *Publisher) PublishReturnCompleted(ret *models.ReturnRequest) {
	p.publish(p.buildEvent(ReturnCompleted, ret))
}

func (p *Publisher) buildEvent(eventType string, ret *models.ReturnRequest) *ReturnEvent {
	return &ReturnEvent{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		ReturnID:     ret.ID.String(),
		OrderID:      ret.OrderID.String(),
		UserID:       ret.UserID.String(),
		Type:         string(ret.Type),
		Status:       string(ret.Status),
		Reason:       string(ret.Reason),
		ItemCount:    len(ret.Items),
		RefundAmount: ret.RefundAmount,
	}
}

// publish dispatches the event asynchronously so the workflow never blocks on
// the message bus
func (p *Publisher) publish(event *ReturnEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data, err := json.Marshal(event)
		if err != nil {
			p.logger.WithError(err).Error("Failed to marshal return event")
			return
		}

		if _, err := p.js.Publish(event.EventType, data, nats.Context(ctx)); err != nil {
			p.logger.WithFields(logrus.Fields{
				"eventType": event.EventType,
				"returnId":  event.ReturnID,
			}).WithError(err).Error("Failed to publish return event")
			return
		}

		p.logger.WithFields(logrus.Fields{
			"eventType": event.EventType,
			"returnId":  event.ReturnID,
		}).Info("Return event published")
	}()
}
