package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"returns-service/internal/models"
)

// OrderRepository provides read access to the orders owned by the order pipeline.
// The return workflow validates requests against these rows but never writes them.
type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new read-only order repository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// GetByID retrieves an order with its items, customer snapshot and shipping address
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Customer").
		Preload("Shipping").
		First(&order, "id = ?", id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &order, nil
}
