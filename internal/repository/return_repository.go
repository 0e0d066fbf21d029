package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"returns-service/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

const (
	policyCacheKey = "returns:policy:default"
	policyCacheTTL = 5 * time.Minute
)

// ReturnFilters represents filters for querying return requests
type ReturnFilters struct {
	Status *models.ReturnStatus
	Type   *models.ReturnType
	Reason *models.ReturnReason
	UserID *uuid.UUID
	Page   int
	Limit  int
}

// ReturnRepositoryInterface abstracts return request persistence
type ReturnRepositoryInterface interface {
	CreateReturn(ctx context.Context, ret *models.ReturnRequest) error
	GetReturnByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	GetReturnsByUserID(ctx context.Context, userID uuid.UUID) ([]models.ReturnRequest, error)
	ListReturns(ctx context.Context, filters ReturnFilters) ([]models.ReturnRequest, int64, error)
	UpdateReturn(ctx context.Context, ret *models.ReturnRequest) error
	CountOpenReturnsForProducts(ctx context.Context, orderID uuid.UUID, productIDs []uuid.UUID) (int64, error)
	ListReturnsCreatedBetween(ctx context.Context, start, end time.Time) ([]models.ReturnRequest, error)
	GetReturnPolicy(ctx context.Context) (*models.ReturnPolicy, error)
	SaveReturnPolicy(ctx context.Context, policy *models.ReturnPolicy) error
}

type returnRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewReturnRepository creates a new return repository.
// The redis client is optional; a nil client disables policy caching.
func NewReturnRepository(db *gorm.DB, redisClient *redis.Client) ReturnRepositoryInterface {
	return &returnRepository{db: db, redis: redisClient}
}

// CreateReturn persists a new return request with its items
func (r *returnRepository) CreateReturn(ctx context.Context, ret *models.ReturnRequest) error {
	if err := r.db.WithContext(ctx).Create(ret).Error; err != nil {
		return fmt.Errorf("failed to create return request: %w", err)
	}
	return nil
}

// GetReturnByID retrieves a return request by ID with its items
func (r *returnRepository) GetReturnByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var ret models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&ret, "id = ?", id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &ret, nil
}

// GetReturnsByUserID retrieves all return requests for a user, newest first
func (r *returnRepository) GetReturnsByUserID(ctx context.Context, userID uuid.UUID) ([]models.ReturnRequest, error) {
	var returns []models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&returns).Error

	if err != nil {
		return nil, err
	}

	return returns, nil
}

// ListReturns retrieves return requests with pagination and filters
func (r *returnRepository) ListReturns(ctx context.Context, filters ReturnFilters) ([]models.ReturnRequest, int64, error) {
	var returns []models.ReturnRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ReturnRequest{})

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.Reason != nil {
		query = query.Where("reason = ?", *filters.Reason)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	limit := filters.Limit
	if limit < 1 || limit > 100 {
		limit = 10
	}

	err := query.
		Preload("Items").
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&returns).Error

	if err != nil {
		return nil, 0, err
	}

	return returns, total, nil
}

// UpdateReturn saves the full return request, including item changes
func (r *returnRepository) UpdateReturn(ctx context.Context, ret *models.ReturnRequest) error {
	return r.db.WithContext(ctx).Save(ret).Error
}

// CountOpenReturnsForProducts counts non-terminal return requests against the
// given order that include any of the given products. Used to reject duplicate
// open requests for the same items, so one item set cannot be refunded twice.
func (r *returnRepository) CountOpenReturnsForProducts(ctx context.Context, orderID uuid.UUID, productIDs []uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Joins("JOIN return_items ON return_items.return_request_id = return_requests.id").
		Where("return_requests.order_id = ?", orderID).
		Where("return_requests.status NOT IN ?", []models.ReturnStatus{
			models.ReturnStatusCompleted,
			models.ReturnStatusRejected,
			models.ReturnStatusCancelled,
		}).
		Where("return_items.product_id IN ?", productIDs).
		Distinct("return_requests.id").
		Count(&count).Error

	if err != nil {
		return 0, err
	}

	return count, nil
}

// ListReturnsCreatedBetween retrieves all return requests created in [start, end]
// for analytics aggregation. The full range is loaded without pagination.
func (r *returnRepository) ListReturnsCreatedBetween(ctx context.Context, start, end time.Time) ([]models.ReturnRequest, error) {
	var returns []models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("created_at >= ? AND created_at <= ?", start, end).
		Order("created_at DESC").
		Find(&returns).Error

	if err != nil {
		return nil, err
	}

	return returns, nil
}

// GetReturnPolicy retrieves the stored policy singleton, checking the cache first.
// Returns ErrNotFound when no policy row has been written yet.
func (r *returnRepository) GetReturnPolicy(ctx context.Context) (*models.ReturnPolicy, error) {
	if cached := r.policyFromCache(ctx); cached != nil {
		return cached, nil
	}

	var policy models.ReturnPolicy
	err := r.db.WithContext(ctx).First(&policy, "id = ?", models.ReturnPolicyID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	r.cachePolicy(ctx, &policy)
	return &policy, nil
}

// SaveReturnPolicy overwrites the policy singleton and invalidates the cache
func (r *returnRepository) SaveReturnPolicy(ctx context.Context, policy *models.ReturnPolicy) error {
	policy.ID = models.ReturnPolicyID
	if err := r.db.WithContext(ctx).Save(policy).Error; err != nil {
		return fmt.Errorf("failed to save return policy: %w", err)
	}

	if r.redis != nil {
		r.redis.Del(ctx, policyCacheKey)
	}

	return nil
}

func (r *returnRepository) policyFromCache(ctx context.Context) *models.ReturnPolicy {
	if r.redis == nil {
		return nil
	}

	data, err := r.redis.Get(ctx, policyCacheKey).Bytes()
	if err != nil {
		return nil
	}

	var policy models.ReturnPolicy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil
	}

	return &policy
}

func (r *returnRepository) cachePolicy(ctx context.Context, policy *models.ReturnPolicy) {
	if r.redis == nil {
		return
	}

	data, err := json.Marshal(policy)
	if err != nil {
		return
	}

	// Cache failures only cost a database read next time
	r.redis.Set(ctx, policyCacheKey, data, policyCacheTTL)
}
