package services

import (
	"context"
	"strings"

	"github.com/filedepot/backend/internal/apperrors"
	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TermsService struct {
	DB    *gorm.DB
	Perms *PermissionService
}

func NewTermsService(db *gorm.DB, perms *PermissionService) *TermsService {
	return &TermsService{DB: db, Perms: perms}
}

// Set creates or replaces a tree's terms-of-use text. Admin only. Editing
// the text changes the checksum, which silently invalidates every agreement
// recorded against the previous version.
func (s *TermsService) Set(ctx context.Context, user *models.User, treeID uuid.UUID, text string) (*models.Terms, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidation("text", "must not be empty")
	}
	if err := authorizeTree(ctx, s.Perms, user, treeID, models.PermissionAdmin); err != nil {
		return nil, err
	}

	var terms models.Terms
	err := s.DB.WithContext(ctx).First(&terms, "tree_id = ?", treeID).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		terms = models.Terms{TreeID: treeID, Text: text}
		if err := s.DB.WithContext(ctx).Create(&terms).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		terms.Text = text
		if err := s.DB.WithContext(ctx).Save(&terms).Error; err != nil {
			return nil, err
		}
	}

	logger.InfoWithUser(user.ID.String(), "terms_set", map[string]interface{}{
		"tree_id":  treeID.String(),
		"checksum": terms.Checksum,
	})
	return &terms, nil
}

// Get returns the tree's terms, or NotFound if the tree has none.
// Requires read access so trees stay invisible to outsiders.
func (s *TermsService) Get(ctx context.Context, user *models.User, treeID uuid.UUID) (*models.Terms, error) {
	if err := authorizeTree(ctx, s.Perms, user, treeID, models.PermissionRead); err != nil {
		return nil, err
	}
	var terms models.Terms
	if err := s.DB.WithContext(ctx).First(&terms, "tree_id = ?", treeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &apperrors.NotFoundError{Resource: "terms"}
		}
		return nil, err
	}
	return &terms, nil
}

// Clear removes a tree's terms and all agreements against them. Admin only.
func (s *TermsService) Clear(ctx context.Context, user *models.User, treeID uuid.UUID) error {
	if err := authorizeTree(ctx, s.Perms, user, treeID, models.PermissionAdmin); err != nil {
		return err
	}

	var terms models.Terms
	if err := s.DB.WithContext(ctx).First(&terms, "tree_id = ?", treeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return &apperrors.NotFoundError{Resource: "terms"}
		}
		return err
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.TermsAgreement{}, "terms_id = ?", terms.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Terms{}, "id = ?", terms.ID).Error
	})
}

// Agree records the user's consent to the tree's current terms. The caller
// submits the checksum of the version they were shown; a mismatch means the
// terms changed underneath them and the agreement is rejected.
func (s *TermsService) Agree(ctx context.Context, user *models.User, treeID uuid.UUID, checksum string) (*models.TermsAgreement, error) {
	if err := authorizeTree(ctx, s.Perms, user, treeID, models.PermissionRead); err != nil {
		return nil, err
	}

	var terms models.Terms
	if err := s.DB.WithContext(ctx).First(&terms, "tree_id = ?", treeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &apperrors.NotFoundError{Resource: "terms"}
		}
		return nil, err
	}
	if checksum != terms.Checksum {
		return nil, apperrors.NewValidation("checksum", "does not match the current terms")
	}

	// One agreement row per (user, terms); re-agreeing after an edit
	// refreshes the stored checksum on the same row.
	var agreement models.TermsAgreement
	err := s.DB.WithContext(ctx).
		First(&agreement, "user_id = ? AND terms_id = ?", user.ID, terms.ID).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		agreement = models.TermsAgreement{UserID: user.ID, TermsID: terms.ID, Checksum: checksum}
		if err := translateConstraint(s.DB.WithContext(ctx).Create(&agreement).Error); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := s.DB.WithContext(ctx).
			Model(&models.TermsAgreement{}).
			Where("id = ?", agreement.ID).
			UpdateColumn("checksum", checksum).Error; err != nil {
			return nil, err
		}
		agreement.Checksum = checksum
	}

	logger.InfoWithUser(user.ID.String(), "terms_agreed", map[string]interface{}{
		"tree_id":  treeID.String(),
		"checksum": checksum,
	})
	return &agreement, nil
}

// NeedsAgreement reports whether the user still has to accept the tree's
// terms: true when terms exist and the user holds no agreement matching the
// current checksum. Trees without terms never require agreement.
func (s *TermsService) NeedsAgreement(ctx context.Context, user *models.User, treeID uuid.UUID) (bool, error) {
	var terms models.Terms
	if err := s.DB.WithContext(ctx).First(&terms, "tree_id = ?", treeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}
	if user == nil {
		return true, nil
	}

	var agreement models.TermsAgreement
	err := s.DB.WithContext(ctx).
		First(&agreement, "user_id = ? AND terms_id = ?", user.ID, terms.ID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return true, nil
		}
		return false, err
	}
	return !agreement.Current(&terms), nil
}
