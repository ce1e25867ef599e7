package services

import (
	"context"

	"github.com/filedepot/backend/internal/apperrors"
	"github.com/filedepot/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QuotaService struct {
	DB *gorm.DB
}

func NewQuotaService(db *gorm.DB) *QuotaService {
	return &QuotaService{DB: db}
}

// Increment applies delta to the quota's used bytes as a single guarded
// UPDATE, so concurrent increments on the same row can never lose updates.
// The predicate enforces 0 <= used+delta <= allowed in the statement itself;
// a positive delta that would not fit fails with QuotaExceededError and a
// negative delta that would drive used below zero is an integrity error.
//
// Must run inside the caller's transaction (tx) so a failed increment rolls
// back the whole enclosing operation.
func (s *QuotaService) Increment(ctx context.Context, tx *gorm.DB, quotaID uuid.UUID, delta int64) error {
	if delta == 0 {
		return nil
	}

	res := tx.WithContext(ctx).
		Model(&models.Quota{}).
		Where("id = ?", quotaID).
		Where("used + ? >= 0", delta).
		Where("used + ? <= allowed", delta).
		UpdateColumn("used", gorm.Expr("used + ?", delta))
	if res.Error != nil {
		return &apperrors.IntegrityError{Err: res.Error}
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// The guarded update matched nothing: either the row is gone or the
	// predicate failed. Reload to decide which.
	var quota models.Quota
	if err := tx.WithContext(ctx).First(&quota, "id = ?", quotaID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return &apperrors.NotFoundError{Resource: "quota"}
		}
		return &apperrors.IntegrityError{Err: err}
	}

	if delta > 0 {
		return &apperrors.QuotaExceededError{
			Attempted: quota.Used + delta,
			Allowed:   quota.Allowed,
		}
	}
	return &apperrors.IntegrityError{Err: &apperrors.ValidationError{
		Fields: map[string]string{"used": "decrement would drive quota usage below zero"},
	}}
}

// Get loads the quota for a tree.
func (s *QuotaService) Get(ctx context.Context, treeID uuid.UUID) (*models.Quota, error) {
	var quota models.Quota
	if err := s.DB.WithContext(ctx).First(&quota, "tree_id = ?", treeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &apperrors.NotFoundError{Resource: "quota"}
		}
		return nil, err
	}
	return &quota, nil
}

// SetAllowed changes a quota's allowance. Lowering it below current usage is
// rejected so the used <= allowed invariant holds at every committed state.
func (s *QuotaService) SetAllowed(ctx context.Context, treeID uuid.UUID, allowed int64) (*models.Quota, error) {
	if allowed < 0 {
		return nil, apperrors.NewValidation("allowed", "must not be negative")
	}

	var quota models.Quota
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&quota, "tree_id = ?", treeID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return &apperrors.NotFoundError{Resource: "quota"}
			}
			return err
		}

		res := tx.Model(&models.Quota{}).
			Where("id = ?", quota.ID).
			Where("used <= ?", allowed).
			UpdateColumn("allowed", allowed)
		if res.Error != nil {
			return &apperrors.IntegrityError{Err: res.Error}
		}
		if res.RowsAffected == 0 {
			return apperrors.NewValidation("allowed", "must not be less than the used amount")
		}

		quota.Allowed = allowed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &quota, nil
}
