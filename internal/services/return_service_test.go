package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"returns-service/internal/clients"
	"returns-service/internal/models"
	"returns-service/internal/repository"
)

// MockReturnRepository is a mock implementation of ReturnRepositoryInterface
type MockReturnRepository struct {
	mock.Mock
}

var _ repository.ReturnRepositoryInterface = (*MockReturnRepository)(nil)

func (m *MockReturnRepository) CreateReturn(ctx context.Context, ret *models.ReturnRequest) error {
	args := m.Called(ctx, ret)
	if args.Error(0) == nil {
		ret.ID = uuid.New()
		ret.CreatedAt = time.Now()
	}
	return args.Error(0)
}

func (m *MockReturnRepository) GetReturnByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReturnRequest), args.Error(1)
}

func (m *MockReturnRepository) GetReturnsByUserID(ctx context.Context, userID uuid.UUID) ([]models.ReturnRequest, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.ReturnRequest), args.Error(1)
}

func (m *MockReturnRepository) ListReturns(ctx context.Context, filters repository.ReturnFilters) ([]models.ReturnRequest, int64, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]models.ReturnRequest), args.Get(1).(int64), args.Error(2)
}

func (m *MockReturnRepository) UpdateReturn(ctx context.Context, ret *models.ReturnRequest) error {
	args := m.Called(ctx, ret)
	return args.Error(0)
}

func (m *MockReturnRepository) CountOpenReturnsForProducts(ctx context.Context, orderID uuid.UUID, productIDs []uuid.UUID) (int64, error) {
	args := m.Called(ctx, orderID, productIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReturnRepository) ListReturnsCreatedBetween(ctx context.Context, start, end time.Time) ([]models.ReturnRequest, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).([]models.ReturnRequest), args.Error(1)
}

func (m *MockReturnRepository) GetReturnPolicy(ctx context.Context) (*models.ReturnPolicy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReturnPolicy), args.Error(1)
}

func (m *MockReturnRepository) SaveReturnPolicy(ctx context.Context, policy *models.ReturnPolicy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

// MockOrderRepository is a mock implementation of OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

var _ repository.OrderRepository = (*MockOrderRepository)(nil)

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

// MockAuditRepository records appended audit entries for assertions
type MockAuditRepository struct {
	mock.Mock
	entries []*models.ReturnAuditLog
}

var _ repository.AuditRepositoryInterface = (*MockAuditRepository)(nil)

func (m *MockAuditRepository) Append(ctx context.Context, entry *models.ReturnAuditLog) error {
	m.entries = append(m.entries, entry)
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) ListByReturnID(ctx context.Context, returnID uuid.UUID) ([]models.ReturnAuditLog, error) {
	args := m.Called(ctx, returnID)
	return args.Get(0).([]models.ReturnAuditLog), args.Error(1)
}

func (m *MockAuditRepository) actionsRecorded() []string {
	var actions []string
	for _, e := range m.entries {
		actions = append(actions, e.Action)
	}
	return actions
}

// MockPaymentClient is a mock implementation of PaymentClient
type MockPaymentClient struct {
	mock.Mock
}

var _ clients.PaymentClient = (*MockPaymentClient)(nil)

func (m *MockPaymentClient) GetPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]clients.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]clients.Payment), args.Error(1)
}

func (m *MockPaymentClient) CreateRefund(ctx context.Context, paymentID string, req clients.CreateRefundRequest) (*clients.RefundResponse, error) {
	args := m.Called(ctx, paymentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.RefundResponse), args.Error(1)
}

// MockNotificationClient is a mock implementation of NotificationClient
type MockNotificationClient struct {
	mock.Mock
}

var _ clients.NotificationClient = (*MockNotificationClient)(nil)

func (m *MockNotificationClient) SendReturnConfirmation(ctx context.Context, n *clients.ReturnNotification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotificationClient) SendReturnApproved(ctx context.Context, n *clients.ReturnNotification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotificationClient) SendReturnRejected(ctx context.Context, n *clients.ReturnNotification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotificationClient) SendReturnShipped(ctx context.Context, n *clients.ReturnNotification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotificationClient) SendReturnReceived(ctx context.Context, n *clients.ReturnNotification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotificationClient) SendReturnCompleted(ctx context.Context, n *clients.ReturnNotification) error {
	return m.Called(ctx, n).Error(0)
}

// MockShippingClient is a mock implementation of ShippingClient
type MockShippingClient struct {
	mock.Mock
}

var _ clients.ShippingClient = (*MockShippingClient)(nil)

func (m *MockShippingClient) GetReturnRates(ctx context.Context, req *clients.ReturnRateRequest) ([]clients.ShippingRate, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]clients.ShippingRate), args.Error(1)
}

func (m *MockShippingClient) GenerateReturnLabel(ctx context.Context, req *clients.ReturnLabelRequest) (*clients.ReturnLabelResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.ReturnLabelResponse), args.Error(1)
}

// Test fixtures

type serviceFixture struct {
	returnRepo   *MockReturnRepository
	orderRepo    *MockOrderRepository
	auditRepo    *MockAuditRepository
	payment      *MockPaymentClient
	notification *MockNotificationClient
	shipping     *MockShippingClient
	service      *ReturnService
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		returnRepo:   new(MockReturnRepository),
		orderRepo:    new(MockOrderRepository),
		auditRepo:    new(MockAuditRepository),
		payment:      new(MockPaymentClient),
		notification: new(MockNotificationClient),
		shipping:     new(MockShippingClient),
	}
	f.service = NewReturnService(f.returnRepo, f.orderRepo, f.auditRepo, f.payment, f.notification, f.shipping, nil, nil)
	return f
}

func makeOrder(customerID uuid.UUID, productID uuid.UUID, unitPrice float64, quantity int, ageDays int) *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-1001",
		CustomerID:  customerID,
		Currency:    "USD",
		Total:       unitPrice * float64(quantity),
		CreatedAt:   time.Now().AddDate(0, 0, -ageDays),
		Items: []models.OrderItem{
			{
				ID:          uuid.New(),
				ProductID:   productID,
				ProductName: "Trail Running Shoes",
				SKU:         "TRS-42",
				Quantity:    quantity,
				UnitPrice:   unitPrice,
				TotalPrice:  unitPrice * float64(quantity),
			},
		},
		Customer: &models.OrderCustomer{
			Email:     "jordan@example.com",
			FirstName: "Jordan",
			LastName:  "Lee",
		},
		Shipping: &models.OrderShipping{
			Name:       "Jordan Lee",
			Street:     "12 Elm St",
			City:       "Portland",
			State:      "OR",
			PostalCode: "97201",
			Country:    "US",
		},
	}
}

func makeInput(order *models.Order, reason models.ReturnReason, quantity int) *CreateReturnInput {
	return &CreateReturnInput{
		OrderID: order.ID,
		UserID:  order.CustomerID,
		Type:    models.ReturnTypeReturn,
		Reason:  reason,
		Items: []CreateReturnItemInput{
			{
				ProductID: order.Items[0].ProductID,
				Quantity:  quantity,
				Condition: models.ItemConditionNew,
			},
		},
	}
}

func expectCreateSideEffects(f *serviceFixture) {
	f.returnRepo.On("CountOpenReturnsForProducts", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	f.returnRepo.On("CreateReturn", mock.Anything, mock.Anything).Return(nil)
	f.notification.On("SendReturnConfirmation", mock.Anything, mock.Anything).Return(nil)
	f.auditRepo.On("Append", mock.Anything, mock.Anything).Return(nil)
}

// CreateReturnRequest

func TestCreateReturnRequest_RestockingFeeForChangedMind(t *testing.T) {
	f := newServiceFixture()
	customerID := uuid.New()
	productID := uuid.New()
	order := makeOrder(customerID, productID, 50.0, 2, 5)

	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(models.DefaultReturnPolicy(), nil)
	expectCreateSideEffects(f)

	ret, err := f.service.CreateReturnRequest(context.Background(), makeInput(order, models.ReturnReasonChangedMind, 2))

	assert.NoError(t, err)
	// 50 * 2 * (1 - 0.15)
	assert.InDelta(t, 85.0, ret.Items[0].RefundAmount, 0.001)
	assert.Equal(t, models.ReturnStatusPending, ret.Status)
	assert.Equal(t, 50.0, ret.Items[0].OriginalPrice)
}

func TestCreateReturnRequest_FullRefundForOtherReasons(t *testing.T) {
	f := newServiceFixture()
	customerID := uuid.New()
	productID := uuid.New()
	order := makeOrder(customerID, productID, 50.0, 2, 5)

	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(models.DefaultReturnPolicy(), nil)
	expectCreateSideEffects(f)

	ret, err := f.service.CreateReturnRequest(context.Background(), makeInput(order, models.ReturnReasonDefective, 2))

	assert.NoError(t, err)
	assert.InDelta(t, 100.0, ret.Items[0].RefundAmount, 0.001)
}

func TestCreateReturnRequest_WindowExpired(t *testing.T) {
	f := newServiceFixture()
	customerID := uuid.New()
	productID := uuid.New()
	order := makeOrder(customerID, productID, 50.0, 1, 31)

	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(models.DefaultReturnPolicy(), nil)

	_, err := f.service.CreateReturnRequest(context.Background(), makeInput(order, models.ReturnReasonDefective, 1))

	assert.ErrorIs(t, err, ErrWindowExpired)
	f.returnRepo.AssertNotCalled(t, "CreateReturn", mock.Anything, mock.Anything)
}

func TestCreateReturnRequest_OneDayBeforeExpirySucceeds(t *testing.T) {
	f := newServiceFixture()
	customerID := uuid.New()
	productID := uuid.New()
	order := makeOrder(customerID, productID, 50.0, 1, 29)

	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(models.DefaultReturnPolicy(), nil)
	expectCreateSideEffects(f)

	_, err := f.service.CreateReturnRequest(context.Background(), makeInput(order, models.ReturnReasonDefective, 1))

	assert.NoError(t, err)
}

func TestCreateReturnRequest_OrderNotFound(t *testing.T) {
	f := newServiceFixture()
	orderID := uuid.New()

	f.orderRepo.On("GetByID", mock.Anything, orderID).Return(nil, repository.ErrNotFound)

	_, err := f.service.CreateReturnRequest(context.Background(), &CreateReturnInput{
		OrderID: orderID,
		UserID:  uuid.New(),
		Type:    models.ReturnTypeReturn,
		Reason:  models.ReturnReasonDefective,
		Items:   []CreateReturnItemInput{{ProductID: uuid.New(), Quantity: 1}},
	})

	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCreateReturnRequest_Unauthorized(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 1, 5)

	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	input := makeInput(order, models.ReturnReasonDefective, 1)
	input.UserID = uuid.New() // Not the order's customer

	_, err := f.service.CreateReturnRequest(context.Background(), input)

	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateReturnRequest_ProductNotInOrder(t *testing.T) {
	f := newServiceFixture()
	customerID := uuid.New()
	order := makeOrder(customerID, uuid.New(), 50.0, 1, 5)

	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(models.DefaultReturnPolicy(), nil)
	f.returnRepo.On("CountOpenReturnsForProducts", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)

	input := makeInput(order, models.ReturnReasonDefective, 1)
	input.Items[0].ProductID = uuid.New() // Not in the order

	_, err := f.service.CreateReturnRequest(context.Background(), input)

	assert.ErrorIs(t, err, ErrProductNotInOrder)
	f.returnRepo.AssertNotCalled(t, "CreateReturn", mock.Anything, mock.Anything)
}

func TestCreateReturnRequest_QuantityExceedsOrdered(t *testing.T) {
	f := newServiceFixture()
	customerID := uuid.New()
	productID := uuid.New()
	order := makeOrder(customerID, productID, 50.0, 2, 5)

	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(models.DefaultReturnPolicy(), nil)
	f.returnRepo.On("CountOpenReturnsForProducts", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)

	_, err := f.service.CreateReturnRequest(context.Background(), makeInput(order, models.ReturnReasonDefective, 3))

	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCreateReturnRequest_DuplicateOpenReturn(t *testing.T) {
	f := newServiceFixture()
	customerID := uuid.New()
	productID := uuid.New()
	order := makeOrder(customerID, productID, 50.0, 1, 5)

	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(models.DefaultReturnPolicy(), nil)
	f.returnRepo.On("CountOpenReturnsForProducts", mock.Anything, order.ID, mock.Anything).Return(int64(1), nil)

	_, err := f.service.CreateReturnRequest(context.Background(), makeInput(order, models.ReturnReasonDefective, 1))

	assert.ErrorIs(t, err, ErrDuplicateOpenReturn)
}

func TestCreateReturnRequest_AutoApprovalSkipsPending(t *testing.T) {
	f := newServiceFixture()
	customerID := uuid.New()
	productID := uuid.New()
	order := makeOrder(customerID, productID, 50.0, 1, 5)

	policy := models.DefaultReturnPolicy()
	policy.RequiresApproval = false

	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(policy, nil)
	f.returnRepo.On("CountOpenReturnsForProducts", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	// The request must already be APPROVED when persisted, with no
	// intermediate PENDING write
	f.returnRepo.On("CreateReturn", mock.Anything, mock.MatchedBy(func(ret *models.ReturnRequest) bool {
		return ret.Status == models.ReturnStatusApproved && ret.ProcessedAt != nil
	})).Return(nil)
	f.notification.On("SendReturnConfirmation", mock.Anything, mock.Anything).Return(nil)
	f.auditRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	ret, err := f.service.CreateReturnRequest(context.Background(), makeInput(order, models.ReturnReasonDefective, 1))

	assert.NoError(t, err)
	assert.Equal(t, models.ReturnStatusApproved, ret.Status)
	assert.NotNil(t, ret.ProcessedAt)
}

func TestCreateReturnRequest_NoAutoApprovalWhenApprovalRequired(t *testing.T) {
	f := newServiceFixture()
	customerID := uuid.New()
	productID := uuid.New()
	order := makeOrder(customerID, productID, 50.0, 1, 5)

	// DEFECTIVE is listed for auto-approval, but RequiresApproval gates it
	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(models.DefaultReturnPolicy(), nil)
	expectCreateSideEffects(f)

	ret, err := f.service.CreateReturnRequest(context.Background(), makeInput(order, models.ReturnReasonDefective, 1))

	assert.NoError(t, err)
	assert.Equal(t, models.ReturnStatusPending, ret.Status)
	assert.Nil(t, ret.ProcessedAt)
}

func TestCreateReturnRequest_NotificationFailureDoesNotFailCreate(t *testing.T) {
	f := newServiceFixture()
	customerID := uuid.New()
	productID := uuid.New()
	order := makeOrder(customerID, productID, 50.0, 1, 5)

	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(models.DefaultReturnPolicy(), nil)
	f.returnRepo.On("CountOpenReturnsForProducts", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	f.returnRepo.On("CreateReturn", mock.Anything, mock.Anything).Return(nil)
	f.notification.On("SendReturnConfirmation", mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	f.auditRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	ret, err := f.service.CreateReturnRequest(context.Background(), makeInput(order, models.ReturnReasonDefective, 1))

	assert.NoError(t, err)
	assert.NotNil(t, ret)
	assert.Contains(t, f.auditRepo.actionsRecorded(), models.AuditActionNotificationFailed)
}

func TestCreateReturnRequest_PersistenceFailurePropagates(t *testing.T) {
	f := newServiceFixture()
	customerID := uuid.New()
	productID := uuid.New()
	order := makeOrder(customerID, productID, 50.0, 1, 5)

	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(models.DefaultReturnPolicy(), nil)
	f.returnRepo.On("CountOpenReturnsForProducts", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	f.returnRepo.On("CreateReturn", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := f.service.CreateReturnRequest(context.Background(), makeInput(order, models.ReturnReasonDefective, 1))

	assert.Error(t, err)
	f.notification.AssertNotCalled(t, "SendReturnConfirmation", mock.Anything, mock.Anything)
}

// UpdateReturnStatus

func pendingReturn(order *models.Order) *models.ReturnRequest {
	return &models.ReturnRequest{
		ID:          uuid.New(),
		OrderID:     order.ID,
		UserID:      order.CustomerID,
		Type:        models.ReturnTypeReturn,
		Status:      models.ReturnStatusPending,
		Reason:      models.ReturnReasonDefective,
		RequestedAt: time.Now().Add(-24 * time.Hour),
		Items: []models.ReturnItem{
			{
				ID:            uuid.New(),
				ProductID:     order.Items[0].ProductID,
				Quantity:      1,
				Condition:     models.ItemConditionNew,
				OriginalPrice: order.Items[0].UnitPrice,
				RefundAmount:  order.Items[0].UnitPrice,
			},
		},
	}
}

func TestUpdateReturnStatus_ApprovalStampsProcessedAt(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 1, 5)
	ret := pendingReturn(order)
	adminID := uuid.New()

	f.returnRepo.On("GetReturnByID", mock.Anything, ret.ID).Return(ret, nil)
	f.returnRepo.On("UpdateReturn", mock.Anything, ret).Return(nil)
	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.notification.On("SendReturnApproved", mock.Anything, mock.Anything).Return(nil)
	f.auditRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	updated, err := f.service.UpdateReturnStatus(context.Background(), ret.ID, &UpdateReturnStatusInput{
		Status:      models.ReturnStatusApproved,
		AdminNotes:  "ok to return",
		ProcessedBy: &adminID,
	})

	assert.NoError(t, err)
	assert.Equal(t, models.ReturnStatusApproved, updated.Status)
	assert.NotNil(t, updated.ProcessedAt)
	assert.Nil(t, updated.CompletedAt)
	assert.Equal(t, adminID, *updated.ProcessedBy)
	assert.Equal(t, "ok to return", updated.AdminNotes)
	f.notification.AssertCalled(t, "SendReturnApproved", mock.Anything, mock.Anything)
	assert.Contains(t, f.auditRepo.actionsRecorded(), models.AuditActionStatusChanged)
}

func TestUpdateReturnStatus_InvalidTransitionRejected(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 1, 5)
	ret := pendingReturn(order)

	f.returnRepo.On("GetReturnByID", mock.Anything, ret.ID).Return(ret, nil)

	_, err := f.service.UpdateReturnStatus(context.Background(), ret.ID, &UpdateReturnStatusInput{
		Status: models.ReturnStatusCompleted,
	})

	assert.ErrorIs(t, err, ErrInvalidTransition)
	f.returnRepo.AssertNotCalled(t, "UpdateReturn", mock.Anything, mock.Anything)
}

func TestUpdateReturnStatus_NotFound(t *testing.T) {
	f := newServiceFixture()
	id := uuid.New()

	f.returnRepo.On("GetReturnByID", mock.Anything, id).Return(nil, repository.ErrNotFound)

	_, err := f.service.UpdateReturnStatus(context.Background(), id, &UpdateReturnStatusInput{
		Status: models.ReturnStatusApproved,
	})

	assert.ErrorIs(t, err, ErrReturnNotFound)
}

func TestUpdateReturnStatus_NoNotificationForCancelled(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 1, 5)
	ret := pendingReturn(order)
	ret.Status = models.ReturnStatusShipped

	f.returnRepo.On("GetReturnByID", mock.Anything, ret.ID).Return(ret, nil)
	f.returnRepo.On("UpdateReturn", mock.Anything, ret).Return(nil)
	f.auditRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	updated, err := f.service.UpdateReturnStatus(context.Background(), ret.ID, &UpdateReturnStatusInput{
		Status: models.ReturnStatusCancelled,
	})

	assert.NoError(t, err)
	assert.Equal(t, models.ReturnStatusCancelled, updated.Status)
	f.notification.AssertExpectations(t) // No notification calls were set up
}

func TestUpdateReturnStatus_NotificationFailureSwallowed(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 1, 5)
	ret := pendingReturn(order)

	f.returnRepo.On("GetReturnByID", mock.Anything, ret.ID).Return(ret, nil)
	f.returnRepo.On("UpdateReturn", mock.Anything, ret).Return(nil)
	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.notification.On("SendReturnRejected", mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	f.auditRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	updated, err := f.service.UpdateReturnStatus(context.Background(), ret.ID, &UpdateReturnStatusInput{
		Status: models.ReturnStatusRejected,
	})

	assert.NoError(t, err)
	assert.Equal(t, models.ReturnStatusRejected, updated.Status)
	assert.Contains(t, f.auditRepo.actionsRecorded(), models.AuditActionNotificationFailed)
}

// ProcessReturnCompletion

func inspectedReturn(order *models.Order, typ models.ReturnType) *models.ReturnRequest {
	ret := pendingReturn(order)
	ret.Type = typ
	ret.Status = models.ReturnStatusInspected
	return ret
}

func TestProcessReturnCompletion_RequiresInspected(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 1, 5)
	ret := pendingReturn(order)
	ret.Status = models.ReturnStatusReceived

	f.returnRepo.On("GetReturnByID", mock.Anything, ret.ID).Return(ret, nil)

	_, err := f.service.ProcessReturnCompletion(context.Background(), ret.ID, uuid.New())

	assert.ErrorIs(t, err, ErrInvalidTransition)
	f.returnRepo.AssertNotCalled(t, "UpdateReturn", mock.Anything, mock.Anything)
}

func TestProcessReturnCompletion_RefundIssued(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 2, 5)
	ret := inspectedReturn(order, models.ReturnTypeReturn)
	ret.Items[0].Quantity = 2
	ret.Items[0].RefundAmount = 100.0
	adminID := uuid.New()

	f.returnRepo.On("GetReturnByID", mock.Anything, ret.ID).Return(ret, nil)
	f.payment.On("GetPaymentsByOrder", mock.Anything, order.ID).Return([]clients.Payment{
		{ID: "pay-1", Status: "COMPLETED", Amount: 100.0},
	}, nil)
	f.payment.On("CreateRefund", mock.Anything, "pay-1", mock.MatchedBy(func(req clients.CreateRefundRequest) bool {
		return req.Amount == 100.0
	})).Return(&clients.RefundResponse{ID: "ref-1", Amount: 100.0, Status: "COMPLETED"}, nil)
	f.returnRepo.On("UpdateReturn", mock.Anything, ret).Return(nil)
	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.notification.On("SendReturnCompleted", mock.Anything, mock.Anything).Return(nil)
	f.auditRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	updated, err := f.service.ProcessReturnCompletion(context.Background(), ret.ID, adminID)

	assert.NoError(t, err)
	assert.Equal(t, models.ReturnStatusCompleted, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
	assert.Equal(t, adminID, *updated.ProcessedBy)
	assert.NotNil(t, updated.RefundAmount)
	assert.InDelta(t, 100.0, *updated.RefundAmount, 0.001)
	assert.Contains(t, f.auditRepo.actionsRecorded(), models.AuditActionRefundProcessed)
	assert.Contains(t, f.auditRepo.actionsRecorded(), models.AuditActionReturnCompleted)
}

// A gateway failure must not block completion: the return record stays the
// source of truth and the failure is reconciled from the audit log. This is
// the intended behavior, not an accident.
func TestProcessReturnCompletion_RefundFailureStillCompletes(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 2, 5)
	ret := inspectedReturn(order, models.ReturnTypeReturn)
	ret.Items[0].Quantity = 2
	ret.Items[0].RefundAmount = 100.0

	f.returnRepo.On("GetReturnByID", mock.Anything, ret.ID).Return(ret, nil)
	f.payment.On("GetPaymentsByOrder", mock.Anything, order.ID).Return(nil, errors.New("gateway timeout"))
	f.returnRepo.On("UpdateReturn", mock.Anything, ret).Return(nil)
	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.notification.On("SendReturnCompleted", mock.Anything, mock.Anything).Return(nil)
	f.auditRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	updated, err := f.service.ProcessReturnCompletion(context.Background(), ret.ID, uuid.New())

	assert.NoError(t, err)
	assert.Equal(t, models.ReturnStatusCompleted, updated.Status)
	assert.NotNil(t, updated.RefundAmount)
	assert.InDelta(t, 100.0, *updated.RefundAmount, 0.001)
	assert.Contains(t, f.auditRepo.actionsRecorded(), models.AuditActionRefundFailed)

	// The failed refund entry carries the gateway error for reconciliation
	for _, e := range f.auditRepo.entries {
		if e.Action == models.AuditActionRefundFailed {
			assert.False(t, e.Success)
			var details map[string]interface{}
			assert.NoError(t, json.Unmarshal(e.Details, &details))
			assert.Contains(t, details["error"], "gateway timeout")
		}
	}
}

func TestProcessReturnCompletion_ExchangeSkipsRefund(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 1, 5)
	ret := inspectedReturn(order, models.ReturnTypeExchange)

	f.returnRepo.On("GetReturnByID", mock.Anything, ret.ID).Return(ret, nil)
	f.returnRepo.On("UpdateReturn", mock.Anything, ret).Return(nil)
	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.notification.On("SendReturnCompleted", mock.Anything, mock.Anything).Return(nil)
	f.auditRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	updated, err := f.service.ProcessReturnCompletion(context.Background(), ret.ID, uuid.New())

	assert.NoError(t, err)
	assert.Equal(t, models.ReturnStatusCompleted, updated.Status)
	assert.Nil(t, updated.RefundAmount)
	f.payment.AssertNotCalled(t, "GetPaymentsByOrder", mock.Anything, mock.Anything)
	f.payment.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessReturnCompletion_InventoryRestoreOnlyNewAndUsed(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 4, 5)
	ret := inspectedReturn(order, models.ReturnTypeExchange)

	newID, usedID := uuid.New(), uuid.New()
	damagedID, defectiveID := uuid.New(), uuid.New()
	ret.Items = []models.ReturnItem{
		{ProductID: newID, Quantity: 1, Condition: models.ItemConditionNew},
		{ProductID: usedID, Quantity: 1, Condition: models.ItemConditionUsed},
		{ProductID: damagedID, Quantity: 1, Condition: models.ItemConditionDamaged},
		{ProductID: defectiveID, Quantity: 1, Condition: models.ItemConditionDefective},
	}

	f.returnRepo.On("GetReturnByID", mock.Anything, ret.ID).Return(ret, nil)
	f.returnRepo.On("UpdateReturn", mock.Anything, ret).Return(nil)
	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.notification.On("SendReturnCompleted", mock.Anything, mock.Anything).Return(nil)
	f.auditRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.ProcessReturnCompletion(context.Background(), ret.ID, uuid.New())
	assert.NoError(t, err)

	var restoredProducts []string
	for _, e := range f.auditRepo.entries {
		if e.Action == models.AuditActionInventoryRestore {
			var details map[string]interface{}
			assert.NoError(t, json.Unmarshal(e.Details, &details))
			restoredProducts = append(restoredProducts, details["productId"].(string))
		}
	}

	assert.ElementsMatch(t, []string{newID.String(), usedID.String()}, restoredProducts)
}

// GenerateReturnShippingLabel

func TestGenerateReturnShippingLabel_SelectsCheapestRate(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 1, 5)
	ret := pendingReturn(order)
	ret.Status = models.ReturnStatusApproved

	f.returnRepo.On("GetReturnByID", mock.Anything, ret.ID).Return(ret, nil)
	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	// Provider does not guarantee price ordering
	f.shipping.On("GetReturnRates", mock.Anything, mock.Anything).Return([]clients.ShippingRate{
		{Carrier: "ups", ServiceCode: "ups-ground", Cost: 12.40},
		{Carrier: "usps", ServiceCode: "usps-first", Cost: 6.85},
		{Carrier: "fedex", ServiceCode: "fedex-2day", Cost: 18.10},
	}, nil)
	f.shipping.On("GenerateReturnLabel", mock.Anything, mock.MatchedBy(func(req *clients.ReturnLabelRequest) bool {
		return req.Carrier == "usps" && req.ServiceCode == "usps-first"
	})).Return(&clients.ReturnLabelResponse{
		LabelURL: "https://labels.example.com/ret-1.pdf",
		Carrier:  "usps",
	}, nil)
	f.returnRepo.On("UpdateReturn", mock.Anything, ret).Return(nil)
	f.auditRepo.On("Append", mock.Anything, mock.Anything).Return(nil)

	updated, err := f.service.GenerateReturnShippingLabel(context.Background(), ret.ID)

	assert.NoError(t, err)
	assert.Equal(t, "https://labels.example.com/ret-1.pdf", updated.ReturnShippingLabelURL)
	assert.True(t, strings.HasPrefix(updated.TrackingNumber, "RET"))
	assert.Contains(t, f.auditRepo.actionsRecorded(), models.AuditActionLabelGenerated)
}

func TestGenerateReturnShippingLabel_NoRates(t *testing.T) {
	f := newServiceFixture()
	order := makeOrder(uuid.New(), uuid.New(), 50.0, 1, 5)
	ret := pendingReturn(order)

	f.returnRepo.On("GetReturnByID", mock.Anything, ret.ID).Return(ret, nil)
	f.orderRepo.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	f.shipping.On("GetReturnRates", mock.Anything, mock.Anything).Return([]clients.ShippingRate{}, nil)

	_, err := f.service.GenerateReturnShippingLabel(context.Background(), ret.ID)

	assert.ErrorIs(t, err, ErrNoRatesAvailable)
	f.shipping.AssertNotCalled(t, "GenerateReturnLabel", mock.Anything, mock.Anything)
}

// Policy

func TestGetReturnPolicy_DefaultWhenMissing(t *testing.T) {
	f := newServiceFixture()

	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(nil, repository.ErrNotFound)

	policy, err := f.service.GetReturnPolicy(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 30, policy.ReturnWindowDays)
	assert.Equal(t, 0.15, policy.RestockingFee)
	// Lazy default: nothing is written on read
	f.returnRepo.AssertNotCalled(t, "SaveReturnPolicy", mock.Anything, mock.Anything)
}

func TestUpdateReturnPolicy_ShallowMerge(t *testing.T) {
	f := newServiceFixture()
	stored := models.DefaultReturnPolicy()
	stored.ReturnWindowDays = 45

	f.returnRepo.On("GetReturnPolicy", mock.Anything).Return(stored, nil)
	f.returnRepo.On("SaveReturnPolicy", mock.Anything, mock.Anything).Return(nil)

	fee := 0.25
	updated, err := f.service.UpdateReturnPolicy(context.Background(), &ReturnPolicyUpdate{
		RestockingFee: &fee,
	})

	assert.NoError(t, err)
	assert.Equal(t, 0.25, updated.RestockingFee)
	// Untouched fields keep their stored values
	assert.Equal(t, 45, updated.ReturnWindowDays)
	assert.True(t, updated.RequiresApproval)
	f.returnRepo.AssertCalled(t, "SaveReturnPolicy", mock.Anything, updated)
}

// Analytics

func TestGetReturnAnalytics(t *testing.T) {
	f := newServiceFixture()
	start := time.Now().AddDate(0, 0, -30)
	end := time.Now()

	completedAt := time.Now()
	refund1, refund2 := 85.0, 40.0
	returns := []models.ReturnRequest{
		{
			Status:       models.ReturnStatusCompleted,
			Reason:       models.ReturnReasonChangedMind,
			RefundAmount: &refund1,
			RequestedAt:  completedAt.AddDate(0, 0, -4),
			CompletedAt:  &completedAt,
		},
		{
			Status:       models.ReturnStatusCompleted,
			Reason:       models.ReturnReasonDefective,
			RefundAmount: &refund2,
			RequestedAt:  completedAt.AddDate(0, 0, -2),
			CompletedAt:  &completedAt,
		},
		{
			Status:      models.ReturnStatusPending,
			Reason:      models.ReturnReasonChangedMind,
			RequestedAt: time.Now(),
		},
	}

	f.returnRepo.On("ListReturnsCreatedBetween", mock.Anything, start, end).Return(returns, nil)

	analytics, err := f.service.GetReturnAnalytics(context.Background(), start, end)

	assert.NoError(t, err)
	assert.Equal(t, 3, analytics.TotalRequests)
	assert.InDelta(t, 125.0, analytics.TotalRefunded, 0.001)
	// Only completed requests count toward processing time: (4 + 2) / 2
	assert.InDelta(t, 3.0, analytics.AvgProcessingDays, 0.01)
	assert.Equal(t, models.ReturnReasonChangedMind, analytics.TopReasons[0].Reason)
	assert.Equal(t, 2, analytics.TopReasons[0].Count)
	assert.Equal(t, 0.0, analytics.ReturnRate)
}
