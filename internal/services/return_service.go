package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"returns-service/internal/clients"
	"returns-service/internal/models"
	"returns-service/internal/repository"
)

// Validation errors surfaced to the caller. Side-effect failures (notification,
// audit, refund gateway, inventory) are never returned from the workflow.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrReturnNotFound      = errors.New("return request not found")
	ErrUnauthorized        = errors.New("order does not belong to this user")
	ErrNoItems             = errors.New("at least one item must be selected")
	ErrProductNotInOrder   = errors.New("product is not part of the order")
	ErrInvalidQuantity     = errors.New("requested quantity exceeds ordered quantity")
	ErrWindowExpired       = errors.New("return window has expired")
	ErrDuplicateOpenReturn = errors.New("an open return already exists for these items")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrNoRatesAvailable    = errors.New("no shipping rates available")
)

// EventPublisher publishes return lifecycle events to the message bus.
// Implementations must not block the caller.
type EventPublisher interface {
	PublishReturnCreated(ret *models.ReturnRequest)
	PublishReturnStatusChanged(ret *models.ReturnRequest, oldStatus models.ReturnStatus)
	PublishReturnCompleted(ret *models.ReturnRequest)
}

// ExchangeOrderCreator creates a replacement order for an exchange-type request.
// Left nil until the order pipeline exposes an exchange endpoint.
type ExchangeOrderCreator interface {
	CreateExchangeOrder(ctx context.Context, ret *models.ReturnRequest, order *models.Order) (uuid.UUID, error)
}

// ReturnService orchestrates the return/exchange workflow
type ReturnService struct {
	returnRepo         repository.ReturnRepositoryInterface
	orderRepo          repository.OrderRepository
	auditRepo          repository.AuditRepositoryInterface
	paymentClient      clients.PaymentClient
	notificationClient clients.NotificationClient
	shippingClient     clients.ShippingClient
	publisher          EventPublisher
	exchangeOrders     ExchangeOrderCreator
	log                *logrus.Entry
}

// NewReturnService creates a new return service. publisher and exchangeOrders
// are optional; nil disables event publishing / exchange order creation.
func NewReturnService(
	returnRepo repository.ReturnRepositoryInterface,
	orderRepo repository.OrderRepository,
	auditRepo repository.AuditRepositoryInterface,
	paymentClient clients.PaymentClient,
	notificationClient clients.NotificationClient,
	shippingClient clients.ShippingClient,
	publisher EventPublisher,
	exchangeOrders ExchangeOrderCreator,
) *ReturnService {
	return &ReturnService{
		returnRepo:         returnRepo,
		orderRepo:          orderRepo,
		auditRepo:          auditRepo,
		paymentClient:      paymentClient,
		notificationClient: notificationClient,
		shippingClient:     shippingClient,
		publisher:          publisher,
		exchangeOrders:     exchangeOrders,
		log:                logrus.WithField("component", "return_service"),
	}
}

// DTOs

// CreateReturnInput is the payload for a new return/exchange request
type CreateReturnInput struct {
	OrderID     uuid.UUID            `json:"orderId" binding:"required"`
	UserID      uuid.UUID            `json:"-"` // From auth context, never the body
	Type        models.ReturnType    `json:"type" binding:"required"`
	Reason      models.ReturnReason  `json:"reason" binding:"required"`
	Description string               `json:"description"`
	Photos      []string             `json:"photos"`
	Items       []CreateReturnItemInput `json:"items" binding:"required"`
}

// CreateReturnItemInput is one line item of a new request
type CreateReturnItemInput struct {
	ProductID         uuid.UUID            `json:"productId" binding:"required"`
	Quantity          int                  `json:"quantity" binding:"required,min=1"`
	Reason            string               `json:"reason"`
	Condition         models.ItemCondition `json:"condition"`
	ExchangeProductID *uuid.UUID           `json:"exchangeProductId,omitempty"`
}

// UpdateReturnStatusInput is the admin payload for a status transition
type UpdateReturnStatusInput struct {
	Status      models.ReturnStatus `json:"status" binding:"required"`
	AdminNotes  string              `json:"adminNotes"`
	ProcessedBy *uuid.UUID          `json:"-"` // From auth context
}

// ReturnPolicyUpdate carries the fields of a partial policy update.
// Nil fields keep their current value.
type ReturnPolicyUpdate struct {
	ReturnWindowDays           *int                           `json:"returnWindowDays,omitempty"`
	ExchangeWindowDays         *int                           `json:"exchangeWindowDays,omitempty"`
	AllowedReasons             []string                       `json:"allowedReasons,omitempty"`
	RequiresApproval           *bool                          `json:"requiresApproval,omitempty"`
	AutoApproveReasons         []string                       `json:"autoApproveReasons,omitempty"`
	RestockingFee              *float64                       `json:"restockingFee,omitempty"`
	ShippingCostResponsibility *models.ShippingResponsibility `json:"shippingCostResponsibility,omitempty"`
	ConditionRequirements      []string                       `json:"conditionRequirements,omitempty"`
}

// ReasonCount is one entry of the top-reasons ranking
type ReasonCount struct {
	Reason models.ReturnReason `json:"reason"`
	Count  int                 `json:"count"`
}

// ReturnAnalytics aggregates return activity over a date range
type ReturnAnalytics struct {
	StartDate         time.Time     `json:"startDate"`
	EndDate           time.Time     `json:"endDate"`
	TotalRequests     int           `json:"totalRequests"`
	TotalRefunded     float64       `json:"totalRefunded"`
	TopReasons        []ReasonCount `json:"topReasons"`
	AvgProcessingDays float64       `json:"avgProcessingDays"`
	// ReturnRate needs order volume for the same range, which this service
	// does not aggregate yet. Always zero until that is wired.
	ReturnRate float64 `json:"returnRate"`
}

// CreateReturnRequest validates and persists a new return/exchange request.
// Confirmation notification, audit entry and bus event run after the record
// is saved and cannot fail the call.
func (s *ReturnService) CreateReturnRequest(ctx context.Context, input *CreateReturnInput) (*models.ReturnRequest, error) {
	order, err := s.orderRepo.GetByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.CustomerID != input.UserID {
		return nil, ErrUnauthorized
	}

	if len(input.Items) == 0 {
		return nil, ErrNoItems
	}

	policy := s.loadPolicy(ctx)

	windowDays := policy.WindowDaysFor(input.Type)
	deadline := order.CreatedAt.AddDate(0, 0, windowDays)
	if time.Now().After(deadline) {
		return nil, fmt.Errorf("%w: %d days from order date", ErrWindowExpired, windowDays)
	}

	productIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	open, err := s.returnRepo.CountOpenReturnsForProducts(ctx, order.ID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check open returns: %w", err)
	}
	if open > 0 {
		return nil, ErrDuplicateOpenReturn
	}

	ret := &models.ReturnRequest{
		OrderID:     order.ID,
		UserID:      input.UserID,
		Type:        input.Type,
		Status:      models.ReturnStatusPending,
		Reason:      input.Reason,
		Description: input.Description,
		Photos:      pq.StringArray(input.Photos),
		RequestedAt: time.Now(),
	}

	feeMultiplier := 1.0
	if input.Reason == models.ReturnReasonChangedMind {
		feeMultiplier = 1.0 - policy.RestockingFee
	}

	for _, itemInput := range input.Items {
		orderItem := order.ItemByProduct(itemInput.ProductID)
		if orderItem == nil {
			return nil, fmt.Errorf("%w: %s", ErrProductNotInOrder, itemInput.ProductID)
		}
		if itemInput.Quantity < 1 || itemInput.Quantity > orderItem.Quantity {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, itemInput.ProductID)
		}

		ret.Items = append(ret.Items, models.ReturnItem{
			ProductID:         itemInput.ProductID,
			Quantity:          itemInput.Quantity,
			Reason:            itemInput.Reason,
			Condition:         itemInput.Condition,
			OriginalPrice:     orderItem.UnitPrice,
			RefundAmount:      orderItem.UnitPrice * float64(itemInput.Quantity) * feeMultiplier,
			ExchangeProductID: itemInput.ExchangeProductID,
		})
	}

	// Auto-approved requests never pass through PENDING
	if policy.AutoApproves(input.Reason) {
		ret.Status = models.ReturnStatusApproved
		now := time.Now()
		ret.ProcessedAt = &now
	}

	if err := s.returnRepo.CreateReturn(ctx, ret); err != nil {
		return nil, fmt.Errorf("failed to create return request: %w", err)
	}

	s.notify(ctx, ret, order, s.notificationClient.SendReturnConfirmation)
	s.audit(ctx, models.AuditActionReturnRequested, ret, true, map[string]interface{}{
		"orderId":   order.ID.String(),
		"userId":    input.UserID.String(),
		"type":      ret.Type,
		"reason":    ret.Reason,
		"itemCount": len(ret.Items),
	})
	if s.publisher != nil {
		s.publisher.PublishReturnCreated(ret)
	}

	return ret, nil
}

// GetReturnRequest retrieves a return request by ID
func (s *ReturnService) GetReturnRequest(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	ret, err := s.returnRepo.GetReturnByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReturnNotFound
		}
		return nil, err
	}
	return ret, nil
}

// GetUserReturnRequests retrieves a user's return requests, newest first
func (s *ReturnService) GetUserReturnRequests(ctx context.Context, userID uuid.UUID) ([]models.ReturnRequest, error) {
	return s.returnRepo.GetReturnsByUserID(ctx, userID)
}

// ListReturnRequests retrieves return requests with pagination and filters
func (s *ReturnService) ListReturnRequests(ctx context.Context, filters repository.ReturnFilters) ([]models.ReturnRequest, int64, error) {
	return s.returnRepo.ListReturns(ctx, filters)
}

// GetReturnAuditTrail retrieves the audit entries for a return request
func (s *ReturnService) GetReturnAuditTrail(ctx context.Context, returnID uuid.UUID) ([]models.ReturnAuditLog, error) {
	if _, err := s.GetReturnRequest(ctx, returnID); err != nil {
		return nil, err
	}
	return s.auditRepo.ListByReturnID(ctx, returnID)
}

// UpdateReturnStatus transitions a return request to a new status.
// Illegal transitions are rejected against the transition table. The
// status-specific notification and the audit entry are best-effort.
func (s *ReturnService) UpdateReturnStatus(ctx context.Context, returnID uuid.UUID, input *UpdateReturnStatusInput) (*models.ReturnRequest, error) {
	ret, err := s.GetReturnRequest(ctx, returnID)
	if err != nil {
		return nil, err
	}

	oldStatus := ret.Status
	if err := models.ValidateReturnStatusTransition(oldStatus, input.Status); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, err.Error())
	}

	now := time.Now()
	ret.Status = input.Status
	if input.AdminNotes != "" {
		ret.AdminNotes = input.AdminNotes
	}
	if input.ProcessedBy != nil {
		ret.ProcessedBy = input.ProcessedBy
	}

	switch input.Status {
	case models.ReturnStatusApproved, models.ReturnStatusRejected:
		ret.ProcessedAt = &now
	case models.ReturnStatusCompleted:
		ret.CompletedAt = &now
	}

	if err := s.returnRepo.UpdateReturn(ctx, ret); err != nil {
		return nil, fmt.Errorf("failed to update return status: %w", err)
	}

	s.sendStatusNotification(ctx, ret)
	s.audit(ctx, models.AuditActionStatusChanged, ret, true, map[string]interface{}{
		"oldStatus": oldStatus,
		"newStatus": ret.Status,
	})
	if s.publisher != nil {
		s.publisher.PublishReturnStatusChanged(ret, oldStatus)
	}

	return ret, nil
}

// ProcessReturnCompletion finalizes an inspected return. For RETURN-type
// requests the refund gateway is invoked; a gateway failure is audited as
// refund_failed and the request still completes. That asymmetry keeps the
// return record the source of truth when the payment integration is degraded.
func (s *ReturnService) ProcessReturnCompletion(ctx context.Context, returnID uuid.UUID, processedBy uuid.UUID) (*models.ReturnRequest, error) {
	ret, err := s.GetReturnRequest(ctx, returnID)
	if err != nil {
		return nil, err
	}

	if ret.Status != models.ReturnStatusInspected {
		return nil, fmt.Errorf("%w: completion requires INSPECTED, current status is %s", ErrInvalidTransition, ret.Status)
	}

	if ret.Type == models.ReturnTypeReturn {
		total := ret.TotalItemRefund()
		if err := s.issueRefund(ctx, ret, total); err != nil {
			s.log.WithError(err).WithField("returnId", ret.ID).Error("Refund failed, completing return anyway")
			s.audit(ctx, models.AuditActionRefundFailed, ret, false, map[string]interface{}{
				"amount": total,
				"error":  err.Error(),
			})
		} else {
			s.audit(ctx, models.AuditActionRefundProcessed, ret, true, map[string]interface{}{
				"amount": total,
			})
		}
		ret.RefundAmount = &total
	} else if s.exchangeOrders != nil {
		s.createExchangeOrder(ctx, ret)
	}

	now := time.Now()
	ret.Status = models.ReturnStatusCompleted
	ret.CompletedAt = &now
	ret.ProcessedBy = &processedBy

	if err := s.returnRepo.UpdateReturn(ctx, ret); err != nil {
		return nil, fmt.Errorf("failed to complete return: %w", err)
	}

	// No inventory mutation API is wired yet; restoration is recorded in the
	// audit log so warehouse tooling can reconcile stock from there.
	for _, item := range ret.RestorableItems() {
		s.audit(ctx, models.AuditActionInventoryRestore, ret, true, map[string]interface{}{
			"productId": item.ProductID.String(),
			"quantity":  item.Quantity,
			"condition": item.Condition,
		})
	}

	var order *models.Order
	if o, err := s.orderRepo.GetByID(ctx, ret.OrderID); err == nil {
		order = o
	}
	s.notify(ctx, ret, order, s.notificationClient.SendReturnCompleted)
	s.audit(ctx, models.AuditActionReturnCompleted, ret, true, map[string]interface{}{
		"type":         ret.Type,
		"refundAmount": ret.RefundAmount,
	})
	if s.publisher != nil {
		s.publisher.PublishReturnCompleted(ret)
	}

	return ret, nil
}

// GenerateReturnShippingLabel buys a prepaid label for shipping the items back.
// The cheapest available rate is selected; rates are sorted here because the
// provider does not guarantee price ordering.
func (s *ReturnService) GenerateReturnShippingLabel(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error) {
	ret, err := s.GetReturnRequest(ctx, returnID)
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetByID(ctx, ret.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	from := customerAddress(order)
	to := returnsFacilityAddress()
	parcel := defaultReturnParcel()

	rates, err := s.shippingClient.GetReturnRates(ctx, &clients.ReturnRateRequest{
		FromAddress: from,
		ToAddress:   to,
		Parcel:      parcel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch return rates: %w", err)
	}
	if len(rates) == 0 {
		return nil, ErrNoRatesAvailable
	}

	sort.Slice(rates, func(i, j int) bool {
		return rates[i].Cost < rates[j].Cost
	})
	cheapest := rates[0]

	label, err := s.shippingClient.GenerateReturnLabel(ctx, &clients.ReturnLabelRequest{
		ReturnID:    ret.ID.String(),
		OrderNumber: order.OrderNumber,
		FromAddress: from,
		ToAddress:   to,
		Parcel:      parcel,
		Carrier:     cheapest.Carrier,
		ServiceCode: cheapest.ServiceCode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate return label: %w", err)
	}

	ret.ReturnShippingLabelURL = label.LabelURL
	ret.TrackingNumber = label.TrackingNumber
	if ret.TrackingNumber == "" {
		ret.TrackingNumber = fmt.Sprintf("RET%d", time.Now().Unix())
	}

	if err := s.returnRepo.UpdateReturn(ctx, ret); err != nil {
		return nil, fmt.Errorf("failed to save return label: %w", err)
	}

	s.audit(ctx, models.AuditActionLabelGenerated, ret, true, map[string]interface{}{
		"carrier":        cheapest.Carrier,
		"cost":           cheapest.Cost,
		"trackingNumber": ret.TrackingNumber,
	})

	return ret, nil
}

// GetReturnPolicy returns the stored policy, or the built-in default when no
// policy has been saved yet. The default is not persisted on read.
func (s *ReturnService) GetReturnPolicy(ctx context.Context) (*models.ReturnPolicy, error) {
	policy, err := s.returnRepo.GetReturnPolicy(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.DefaultReturnPolicy(), nil
		}
		return nil, err
	}
	return policy, nil
}

// UpdateReturnPolicy merges the provided fields over the current policy and
// overwrites the stored singleton
func (s *ReturnService) UpdateReturnPolicy(ctx context.Context, update *ReturnPolicyUpdate) (*models.ReturnPolicy, error) {
	policy, err := s.GetReturnPolicy(ctx)
	if err != nil {
		return nil, err
	}

	if update.ReturnWindowDays != nil {
		policy.ReturnWindowDays = *update.ReturnWindowDays
	}
	if update.ExchangeWindowDays != nil {
		policy.ExchangeWindowDays = *update.ExchangeWindowDays
	}
	if update.AllowedReasons != nil {
		policy.AllowedReasons = pq.StringArray(update.AllowedReasons)
	}
	if update.RequiresApproval != nil {
		policy.RequiresApproval = *update.RequiresApproval
	}
	if update.AutoApproveReasons != nil {
		policy.AutoApproveReasons = pq.StringArray(update.AutoApproveReasons)
	}
	if update.RestockingFee != nil {
		policy.RestockingFee = *update.RestockingFee
	}
	if update.ShippingCostResponsibility != nil {
		policy.ShippingCostResponsibility = *update.ShippingCostResponsibility
	}
	if update.ConditionRequirements != nil {
		policy.ConditionRequirements = pq.StringArray(update.ConditionRequirements)
	}

	if err := s.returnRepo.SaveReturnPolicy(ctx, policy); err != nil {
		return nil, err
	}

	return policy, nil
}

// GetReturnAnalytics aggregates return activity created in [start, end]
func (s *ReturnService) GetReturnAnalytics(ctx context.Context, start, end time.Time) (*ReturnAnalytics, error) {
	returns, err := s.returnRepo.ListReturnsCreatedBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}

	analytics := &ReturnAnalytics{
		StartDate:     start,
		EndDate:       end,
		TotalRequests: len(returns),
	}

	reasonCounts := make(map[models.ReturnReason]int)
	completedCount := 0
	totalProcessingDays := 0.0

	for i := range returns {
		ret := &returns[i]
		reasonCounts[ret.Reason]++

		if ret.RefundAmount != nil {
			analytics.TotalRefunded += *ret.RefundAmount
		}

		if ret.Status == models.ReturnStatusCompleted && ret.CompletedAt != nil {
			completedCount++
			totalProcessingDays += ret.CompletedAt.Sub(ret.RequestedAt).Hours() / 24
		}
	}

	for reason, count := range reasonCounts {
		analytics.TopReasons = append(analytics.TopReasons, ReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(analytics.TopReasons, func(i, j int) bool {
		if analytics.TopReasons[i].Count != analytics.TopReasons[j].Count {
			return analytics.TopReasons[i].Count > analytics.TopReasons[j].Count
		}
		return analytics.TopReasons[i].Reason < analytics.TopReasons[j].Reason
	})
	if len(analytics.TopReasons) > 5 {
		analytics.TopReasons = analytics.TopReasons[:5]
	}

	if completedCount > 0 {
		analytics.AvgProcessingDays = totalProcessingDays / float64(completedCount)
	}

	return analytics, nil
}

// Helpers

// loadPolicy returns the stored policy or the built-in default. Policy read
// failures fall back to the default so request creation stays available.
func (s *ReturnService) loadPolicy(ctx context.Context) *models.ReturnPolicy {
	policy, err := s.returnRepo.GetReturnPolicy(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.WithError(err).Warn("Failed to load return policy, using defaults")
		}
		return models.DefaultReturnPolicy()
	}
	return policy
}

func (s *ReturnService) issueRefund(ctx context.Context, ret *models.ReturnRequest, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be greater than 0")
	}
	if s.paymentClient == nil {
		return fmt.Errorf("payment client not configured")
	}

	payments, err := s.paymentClient.GetPaymentsByOrder(ctx, ret.OrderID)
	if err != nil {
		return fmt.Errorf("failed to get payments for order: %w", err)
	}

	var target *clients.Payment
	for i := range payments {
		if payments[i].Status == "COMPLETED" || payments[i].Status == "CAPTURED" {
			target = &payments[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no completed payment found for order")
	}

	refund, err := s.paymentClient.CreateRefund(ctx, target.ID, clients.CreateRefundRequest{
		Amount: amount,
		Reason: string(ret.Reason),
		Notes:  fmt.Sprintf("Return %s", ret.ID.String()),
	})
	if err != nil {
		return fmt.Errorf("refund gateway call failed: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"returnId": ret.ID,
		"refundId": refund.ID,
		"amount":   refund.Amount,
		"status":   refund.Status,
	}).Info("Refund processed")

	return nil
}

func (s *ReturnService) createExchangeOrder(ctx context.Context, ret *models.ReturnRequest) {
	order, err := s.orderRepo.GetByID(ctx, ret.OrderID)
	if err != nil {
		s.log.WithError(err).WithField("returnId", ret.ID).Error("Failed to load order for exchange")
		return
	}

	exchangeOrderID, err := s.exchangeOrders.CreateExchangeOrder(ctx, ret, order)
	if err != nil {
		s.log.WithError(err).WithField("returnId", ret.ID).Error("Failed to create exchange order")
		return
	}

	ret.ExchangeOrderID = &exchangeOrderID
}

// sendStatusNotification dispatches the email for the new status. PENDING,
// INSPECTED and CANCELLED transitions have no customer-facing email.
func (s *ReturnService) sendStatusNotification(ctx context.Context, ret *models.ReturnRequest) {
	var send func(context.Context, *clients.ReturnNotification) error
	switch ret.Status {
	case models.ReturnStatusApproved:
		send = s.notificationClient.SendReturnApproved
	case models.ReturnStatusRejected:
		send = s.notificationClient.SendReturnRejected
	case models.ReturnStatusShipped:
		send = s.notificationClient.SendReturnShipped
	case models.ReturnStatusReceived:
		send = s.notificationClient.SendReturnReceived
	case models.ReturnStatusCompleted:
		send = s.notificationClient.SendReturnCompleted
	default:
		return
	}

	var order *models.Order
	if o, err := s.orderRepo.GetByID(ctx, ret.OrderID); err == nil {
		order = o
	}
	s.notify(ctx, ret, order, send)
}

// notify sends one customer email. Failures are logged and audited as
// notification_failed, never returned.
func (s *ReturnService) notify(ctx context.Context, ret *models.ReturnRequest, order *models.Order, send func(context.Context, *clients.ReturnNotification) error) {
	if s.notificationClient == nil {
		return
	}

	n := buildReturnNotification(ret, order)
	if err := send(ctx, n); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"returnId": ret.ID,
			"status":   ret.Status,
		}).Warn("Return notification failed")
		s.audit(ctx, models.AuditActionNotificationFailed, ret, false, map[string]interface{}{
			"status": ret.Status,
			"error":  err.Error(),
		})
	}
}

// audit appends one workflow audit entry. Best-effort only.
func (s *ReturnService) audit(ctx context.Context, action string, ret *models.ReturnRequest, success bool, details map[string]interface{}) {
	if s.auditRepo == nil {
		return
	}

	entry := &models.ReturnAuditLog{
		Action:  action,
		Success: success,
	}
	if ret != nil {
		id := ret.ID
		orderID := ret.OrderID
		userID := ret.UserID
		entry.ReturnID = &id
		entry.OrderID = &orderID
		entry.UserID = &userID
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = datatypes.JSON(data)
		}
	}

	if err := s.auditRepo.Append(ctx, entry); err != nil {
		s.log.WithError(err).WithField("action", action).Warn("Audit append failed")
	}
}

func buildReturnNotification(ret *models.ReturnRequest, order *models.Order) *clients.ReturnNotification {
	n := &clients.ReturnNotification{
		ReturnID:       ret.ID.String(),
		OrderID:        ret.OrderID.String(),
		ReturnStatus:   string(ret.Status),
		ReturnType:     string(ret.Type),
		Reason:         string(ret.Reason),
		TrackingNumber: ret.TrackingNumber,
		LabelURL:       ret.ReturnShippingLabelURL,
		AdminNotes:     ret.AdminNotes,
	}
	if ret.RefundAmount != nil {
		n.RefundAmount = fmt.Sprintf("%.2f", *ret.RefundAmount)
	}

	if order != nil {
		n.OrderNumber = order.OrderNumber
		n.Currency = order.Currency
		n.CustomerName = order.CustomerName()
		if order.Customer != nil {
			n.CustomerEmail = order.Customer.Email
		}
		for _, item := range ret.Items {
			name := item.ProductID.String()
			sku := ""
			if orderItem := order.ItemByProduct(item.ProductID); orderItem != nil {
				name = orderItem.ProductName
				sku = orderItem.SKU
			}
			n.Items = append(n.Items, clients.ReturnNotificationItem{
				Name:     name,
				SKU:      sku,
				Quantity: item.Quantity,
				Price:    fmt.Sprintf("%.2f", item.OriginalPrice),
			})
		}
	}

	return n
}

func customerAddress(order *models.Order) *clients.ShipmentAddress {
	addr := &clients.ShipmentAddress{}
	if order.Shipping != nil {
		addr.Name = order.Shipping.Name
		addr.Phone = order.Shipping.Phone
		addr.Street = order.Shipping.Street
		addr.City = order.Shipping.City
		addr.State = order.Shipping.State
		addr.PostalCode = order.Shipping.PostalCode
		addr.Country = order.Shipping.Country
	}
	if addr.Name == "" {
		addr.Name = order.CustomerName()
	}
	if order.Customer != nil {
		addr.Email = order.Customer.Email
		if addr.Phone == "" {
			addr.Phone = order.Customer.Phone
		}
	}
	return addr
}

// returnsFacilityAddress is the fixed destination for all return shipments
func returnsFacilityAddress() *clients.ShipmentAddress {
	return &clients.ShipmentAddress{
		Name:       "Returns Processing Center",
		Company:    "Returns Dept",
		Phone:      "+1-800-555-0199",
		Street:     "450 Commerce Way",
		City:       "Louisville",
		State:      "KY",
		PostalCode: "40202",
		Country:    "US",
	}
}

// defaultReturnParcel is the fixed parcel used for rate quotes. Item-derived
// dimensions would need product weight data the catalog does not expose yet.
func defaultReturnParcel() clients.Parcel {
	return clients.Parcel{
		Weight: 1.5,
		Length: 30,
		Width:  22,
		Height: 12,
	}
}
