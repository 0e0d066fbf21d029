package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderStatus represents the lifecycle status of an order
type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "PLACED"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order is the read-side view of an order used to validate return requests.
// The order pipeline owns these rows; the return workflow only reads them,
// so the order's CreatedAt anchors the return/exchange eligibility window.
type Order struct {
	ID          uuid.UUID   `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderNumber string      `json:"orderNumber" gorm:"not null;uniqueIndex"`
	CustomerID  uuid.UUID   `json:"customerId" gorm:"type:uuid;not null;index"`
	Status      OrderStatus `json:"status" gorm:"type:varchar(20);not null;default:'PLACED'"`
	Currency    string      `json:"currency" gorm:"type:varchar(3);not null;default:'USD'"`
	Subtotal    float64     `json:"subtotal" gorm:"type:decimal(10,2);not null"`
	Total       float64     `json:"total" gorm:"type:decimal(10,2);not null"`

	CreatedAt time.Time      `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Items    []OrderItem    `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Customer *OrderCustomer `json:"customer,omitempty" gorm:"foreignKey:OrderID"`
	Shipping *OrderShipping `json:"shipping,omitempty" gorm:"foreignKey:OrderID"`
}

// OrderItem represents a line item in an order
type OrderItem struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderID     uuid.UUID `json:"orderId" gorm:"type:uuid;not null;index"`
	ProductID   uuid.UUID `json:"productId" gorm:"type:uuid;not null"`
	ProductName string    `json:"productName" gorm:"not null"`
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity" gorm:"not null"`
	UnitPrice   float64   `json:"unitPrice" gorm:"type:decimal(10,2);not null"`
	TotalPrice  float64   `json:"totalPrice" gorm:"type:decimal(10,2);not null"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OrderCustomer holds the customer contact snapshot taken at checkout
type OrderCustomer struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderID   uuid.UUID `json:"orderId" gorm:"type:uuid;not null;uniqueIndex"`
	Email     string    `json:"email" gorm:"not null"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Phone     string    `json:"phone"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OrderShipping holds the shipping address the order was delivered to
type OrderShipping struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderID    uuid.UUID `json:"orderId" gorm:"type:uuid;not null;uniqueIndex"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Street     string    `json:"street"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postalCode"`
	Country    string    `json:"country"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Order
func (Order) TableName() string {
	return "orders"
}

// TableName specifies the table name for OrderItem
func (OrderItem) TableName() string {
	return "order_items"
}

// TableName specifies the table name for OrderCustomer
func (OrderCustomer) TableName() string {
	return "order_customers"
}

// TableName specifies the table name for OrderShipping
func (OrderShipping) TableName() string {
	return "order_shipping"
}

// ItemByProduct returns the order line for a product, or nil if the product
// was not part of the order
func (o *Order) ItemByProduct(productID uuid.UUID) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return &o.Items[i]
		}
	}
	return nil
}

// CustomerName returns the customer's display name from the checkout snapshot
func (o *Order) CustomerName() string {
	if o.Customer == nil {
		return ""
	}
	name := o.Customer.FirstName
	if o.Customer.LastName != "" {
		if name != "" {
			name += " "
		}
		name += o.Customer.LastName
	}
	return name
}
