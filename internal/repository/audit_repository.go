package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"returns-service/internal/models"
)

// AuditRepositoryInterface abstracts the append-only audit log
type AuditRepositoryInterface interface {
	Append(ctx context.Context, entry *models.ReturnAuditLog) error
	ListByReturnID(ctx context.Context, returnID uuid.UUID) ([]models.ReturnAuditLog, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit log repository
func NewAuditRepository(db *gorm.DB) AuditRepositoryInterface {
	return &auditRepository{db: db}
}

// Append writes one audit entry. Entries are never updated or deleted.
func (r *auditRepository) Append(ctx context.Context, entry *models.ReturnAuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByReturnID retrieves the audit trail for a return request, oldest first
func (r *auditRepository) ListByReturnID(ctx context.Context, returnID uuid.UUID) ([]models.ReturnAuditLog, error) {
	var entries []models.ReturnAuditLog
	err := r.db.WithContext(ctx).
		Where("return_id = ?", returnID).
		Order("created_at ASC").
		Find(&entries).Error

	if err != nil {
		return nil, err
	}

	return entries, nil
}
