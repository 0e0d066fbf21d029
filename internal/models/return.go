package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReturnStatus represents the status of a return/exchange request
type ReturnStatus string

const (
	ReturnStatusPending   ReturnStatus = "PENDING"   // Request submitted, awaiting review
	ReturnStatusApproved  ReturnStatus = "APPROVED"  // Approved, waiting for items to be shipped back
	ReturnStatusRejected  ReturnStatus = "REJECTED"  // Request rejected
	ReturnStatusShipped   ReturnStatus = "SHIPPED"   // Items being shipped back to the returns facility
	ReturnStatusReceived  ReturnStatus = "RECEIVED"  // Items received, inspection pending
	ReturnStatusInspected ReturnStatus = "INSPECTED" // Items quality-checked, eligible for completion
	ReturnStatusCompleted ReturnStatus = "COMPLETED" // Return processed, refund issued
	ReturnStatusCancelled ReturnStatus = "CANCELLED" // Request cancelled
)

// ReturnReason represents the reason for a return/exchange request
type ReturnReason string

const (
	ReturnReasonDefective         ReturnReason = "DEFECTIVE"
	ReturnReasonWrongItem         ReturnReason = "WRONG_ITEM"
	ReturnReasonNotAsDescribed    ReturnReason = "NOT_AS_DESCRIBED"
	ReturnReasonDamagedInShipping ReturnReason = "DAMAGED_IN_SHIPPING"
	ReturnReasonChangedMind       ReturnReason = "CHANGED_MIND"
	ReturnReasonSizeIssue         ReturnReason = "SIZE_ISSUE"
	ReturnReasonQualityIssue      ReturnReason = "QUALITY_ISSUE"
	ReturnReasonLateDelivery      ReturnReason = "LATE_DELIVERY"
	ReturnReasonOther             ReturnReason = "OTHER"
)

// ReturnType represents the processing path of a request
type ReturnType string

const (
	ReturnTypeReturn   ReturnType = "RETURN"   // Refund to original payment method
	ReturnTypeExchange ReturnType = "EXCHANGE" // Exchange for another product
)

// ItemCondition represents the declared physical condition of a returned item.
// DAMAGED and DEFECTIVE items are excluded from inventory restoration.
type ItemCondition string

const (
	ItemConditionNew       ItemCondition = "NEW"
	ItemConditionUsed      ItemCondition = "USED"
	ItemConditionDamaged   ItemCondition = "DAMAGED"
	ItemConditionDefective ItemCondition = "DEFECTIVE"
)

// ShippingResponsibility indicates who pays for return shipping (informational)
type ShippingResponsibility string

const (
	ShippingResponsibilityCustomer ShippingResponsibility = "CUSTOMER"
	ShippingResponsibilityMerchant ShippingResponsibility = "MERCHANT"
	ShippingResponsibilityShared   ShippingResponsibility = "SHARED"
)

// ReturnRequest represents one customer-initiated return or exchange against an order
type ReturnRequest struct {
	ID          uuid.UUID    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderID     uuid.UUID    `json:"orderId" gorm:"type:uuid;not null;index:idx_return_requests_order"`
	UserID      uuid.UUID    `json:"userId" gorm:"type:uuid;not null;index:idx_return_requests_user"`
	Type        ReturnType   `json:"type" gorm:"type:varchar(20);not null;default:'RETURN'"`
	Status      ReturnStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index:idx_return_requests_status"`
	Reason      ReturnReason `json:"reason" gorm:"type:varchar(30);not null"`
	Description string       `json:"description" gorm:"type:text"`
	Photos      pq.StringArray `json:"photos" gorm:"type:text[]"` // Evidence photo URLs
	AdminNotes  string       `json:"adminNotes" gorm:"type:text"`

	// RefundAmount is only set when Type == RETURN and the request completes
	RefundAmount *float64 `json:"refundAmount,omitempty" gorm:"type:decimal(10,2)"`

	// Exchange linkage; populated by the exchange-order integration when wired
	ExchangeOrderID *uuid.UUID `json:"exchangeOrderId,omitempty" gorm:"type:uuid"`

	// Return shipping
	TrackingNumber         string `json:"trackingNumber"`
	ReturnShippingLabelURL string `json:"returnShippingLabelUrl"`

	ProcessedBy *uuid.UUID `json:"processedBy,omitempty" gorm:"type:uuid"` // Admin who approved/rejected/completed

	RequestedAt time.Time      `json:"requestedAt" gorm:"not null"`
	ProcessedAt *time.Time     `json:"processedAt,omitempty"` // Set on transition into APPROVED or REJECTED
	CompletedAt *time.Time     `json:"completedAt,omitempty"` // Set on transition into COMPLETED
	CreatedAt   time.Time      `json:"createdAt" gorm:"index:idx_return_requests_created,sort:desc"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	Items []ReturnItem `json:"items" gorm:"foreignKey:ReturnRequestID;constraint:OnDelete:CASCADE"`
}

// ReturnItem represents one line item being returned or exchanged
type ReturnItem struct {
	ID              uuid.UUID     `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ReturnRequestID uuid.UUID     `json:"returnRequestId" gorm:"type:uuid;not null;index"`
	ProductID       uuid.UUID     `json:"productId" gorm:"type:uuid;not null"`
	Quantity        int           `json:"quantity" gorm:"not null"`
	Reason          string        `json:"reason" gorm:"type:text"` // Free text specific to the item
	Condition       ItemCondition `json:"condition" gorm:"type:varchar(20)"`

	// OriginalPrice is copied from the order at request time and never recomputed,
	// so later catalog price changes cannot alter the refund owed.
	OriginalPrice float64 `json:"originalPrice" gorm:"type:decimal(10,2);not null"`

	// RefundAmount is computed once at request creation:
	// originalPrice * quantity, reduced by the restocking fee for CHANGED_MIND requests.
	RefundAmount float64 `json:"refundAmount" gorm:"type:decimal(10,2)"`

	// ExchangeProductID is only meaningful when the parent request type is EXCHANGE
	ExchangeProductID *uuid.UUID `json:"exchangeProductId,omitempty" gorm:"type:uuid"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReturnPolicyID is the key of the singleton policy row
const ReturnPolicyID = "default"

// ReturnPolicy represents the store-wide return policy configuration.
// A single row keyed ReturnPolicyID; reads fall back to DefaultReturnPolicy
// when no row exists, and the row is only written on an explicit admin update.
type ReturnPolicy struct {
	ID                         string                 `json:"id" gorm:"type:varchar(32);primary_key"`
	ReturnWindowDays           int                    `json:"returnWindowDays" gorm:"default:30"`
	ExchangeWindowDays         int                    `json:"exchangeWindowDays" gorm:"default:30"`
	AllowedReasons             pq.StringArray         `json:"allowedReasons" gorm:"type:text[]"`
	RequiresApproval           bool                   `json:"requiresApproval" gorm:"default:true"`
	AutoApproveReasons         pq.StringArray         `json:"autoApproveReasons" gorm:"type:text[]"`
	RestockingFee              float64                `json:"restockingFee" gorm:"type:decimal(5,4);default:0"` // Fraction in [0,1]
	ShippingCostResponsibility ShippingResponsibility `json:"shippingCostResponsibility" gorm:"type:varchar(20);default:'CUSTOMER'"`
	ConditionRequirements      pq.StringArray         `json:"conditionRequirements" gorm:"type:text[]"`
	CreatedAt                  time.Time              `json:"createdAt"`
	UpdatedAt                  time.Time              `json:"updatedAt"`
}

// DefaultReturnPolicy returns the built-in policy used until an admin saves one
func DefaultReturnPolicy() *ReturnPolicy {
	return &ReturnPolicy{
		ID:                 ReturnPolicyID,
		ReturnWindowDays:   30,
		ExchangeWindowDays: 30,
		AllowedReasons: pq.StringArray{
			string(ReturnReasonDefective),
			string(ReturnReasonWrongItem),
			string(ReturnReasonNotAsDescribed),
			string(ReturnReasonDamagedInShipping),
			string(ReturnReasonChangedMind),
			string(ReturnReasonSizeIssue),
			string(ReturnReasonQualityIssue),
			string(ReturnReasonLateDelivery),
			string(ReturnReasonOther),
		},
		RequiresApproval: true,
		AutoApproveReasons: pq.StringArray{
			string(ReturnReasonDefective),
			string(ReturnReasonWrongItem),
			string(ReturnReasonDamagedInShipping),
		},
		RestockingFee:              0.15,
		ShippingCostResponsibility: ShippingResponsibilityCustomer,
		ConditionRequirements: pq.StringArray{
			"Items must be unworn and unwashed",
			"Original tags and packaging must be included",
			"Hygiene seals must be intact",
		},
	}
}

// WindowDaysFor returns the eligibility window in days for the given request type
func (p *ReturnPolicy) WindowDaysFor(t ReturnType) int {
	if t == ReturnTypeExchange {
		return p.ExchangeWindowDays
	}
	return p.ReturnWindowDays
}

// AutoApproves reports whether a request with the given reason skips manual review
func (p *ReturnPolicy) AutoApproves(reason ReturnReason) bool {
	if p.RequiresApproval {
		return false
	}
	for _, r := range p.AutoApproveReasons {
		if ReturnReason(r) == reason {
			return true
		}
	}
	return false
}

// TableName specifies the table name for ReturnRequest
func (ReturnRequest) TableName() string {
	return "return_requests"
}

// TableName specifies the table name for ReturnItem
func (ReturnItem) TableName() string {
	return "return_items"
}

// TableName specifies the table name for ReturnPolicy
func (ReturnPolicy) TableName() string {
	return "return_policies"
}

// TotalItemRefund sums the per-item refund amounts computed at creation time
func (r *ReturnRequest) TotalItemRefund() float64 {
	total := 0.0
	for _, item := range r.Items {
		total += item.RefundAmount
	}
	return total
}

// RestorableItems returns the items eligible for inventory restoration.
// Only NEW and USED conditions go back to stock; DAMAGED and DEFECTIVE do not.
func (r *ReturnRequest) RestorableItems() []ReturnItem {
	var items []ReturnItem
	for _, item := range r.Items {
		if item.Condition == ItemConditionNew || item.Condition == ItemConditionUsed {
			items = append(items, item)
		}
	}
	return items
}

// IsFinalized checks if the request is in a terminal state
func (r *ReturnRequest) IsFinalized() bool {
	return r.Status == ReturnStatusCompleted ||
		r.Status == ReturnStatusRejected ||
		r.Status == ReturnStatusCancelled
}

// ReturnAuditLog is an append-only record of a workflow action.
// Writes are best-effort and must never block or fail the primary operation.
type ReturnAuditLog struct {
	ID       uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Action   string         `json:"action" gorm:"type:varchar(50);not null;index"`
	ReturnID *uuid.UUID     `json:"returnId,omitempty" gorm:"type:uuid;index"`
	OrderID  *uuid.UUID     `json:"orderId,omitempty" gorm:"type:uuid"`
	UserID   *uuid.UUID     `json:"userId,omitempty" gorm:"type:uuid"`
	Success  bool           `json:"success" gorm:"default:true"`
	Details  datatypes.JSON `json:"details,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Audit actions recorded by the return workflow
const (
	AuditActionReturnRequested    = "return_requested"
	AuditActionStatusChanged      = "status_changed"
	AuditActionRefundProcessed    = "refund_processed"
	AuditActionRefundFailed       = "refund_failed"
	AuditActionInventoryRestore   = "inventory_restore"
	AuditActionReturnCompleted    = "return_completed"
	AuditActionLabelGenerated     = "label_generated"
	AuditActionNotificationFailed = "notification_failed"
)

// TableName specifies the table name for ReturnAuditLog
func (ReturnAuditLog) TableName() string {
	return "return_audit_logs"
}
