package services

import (
	"context"

	"github.com/filedepot/backend/internal/apperrors"
	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TreeService struct {
	DB     *gorm.DB
	Perms  *PermissionService
	Quotas *QuotaService
}

func NewTreeService(db *gorm.DB, perms *PermissionService, quotas *QuotaService) *TreeService {
	return &TreeService{DB: db, Perms: perms, Quotas: quotas}
}

// Get returns the tree with its quota, for readers.
func (s *TreeService) Get(ctx context.Context, user *models.User, treeID uuid.UUID) (*models.Tree, error) {
	if err := authorizeTree(ctx, s.Perms, user, treeID, models.PermissionRead); err != nil {
		return nil, err
	}

	var tree models.Tree
	err := s.DB.WithContext(ctx).
		Preload("Quota").
		First(&tree, "id = ?", treeID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &apperrors.NotFoundError{Resource: "tree"}
		}
		return nil, err
	}
	return &tree, nil
}

// SetPublic toggles anonymous read access for the tree. Admin only.
func (s *TreeService) SetPublic(ctx context.Context, user *models.User, treeID uuid.UUID, public bool) (*models.Tree, error) {
	if err := authorizeTree(ctx, s.Perms, user, treeID, models.PermissionAdmin); err != nil {
		return nil, err
	}

	if err := s.DB.WithContext(ctx).
		Model(&models.Tree{}).
		Where("id = ?", treeID).
		UpdateColumn("public", public).Error; err != nil {
		return nil, err
	}

	logger.InfoWithUser(user.ID.String(), "tree_visibility_changed", map[string]interface{}{
		"tree_id": treeID.String(),
		"public":  public,
	})
	return s.Get(ctx, user, treeID)
}

// GetQuota returns the tree's quota row, for readers.
func (s *TreeService) GetQuota(ctx context.Context, user *models.User, treeID uuid.UUID) (*models.Quota, error) {
	if err := authorizeTree(ctx, s.Perms, user, treeID, models.PermissionRead); err != nil {
		return nil, err
	}
	return s.Quotas.Get(ctx, treeID)
}

// Grants lists the tree's explicit permission grants. Admin only.
func (s *TreeService) Grants(ctx context.Context, user *models.User, treeID uuid.UUID) ([]models.PermissionGrant, error) {
	if err := authorizeTree(ctx, s.Perms, user, treeID, models.PermissionAdmin); err != nil {
		return nil, err
	}
	return s.Perms.ListGrants(ctx, treeID)
}

// Grant sets one principal's explicit level on the tree, replacing any
// previous grant that principal held. Admin only.
func (s *TreeService) Grant(ctx context.Context, user *models.User, treeID uuid.UUID, grant GrantInput) error {
	if err := authorizeTree(ctx, s.Perms, user, treeID, models.PermissionAdmin); err != nil {
		return err
	}
	return s.Perms.GrantPermission(ctx, treeID, grant)
}

// SetGrants replaces the tree's whole grant list atomically. Admin only.
func (s *TreeService) SetGrants(ctx context.Context, user *models.User, treeID uuid.UUID, grants []GrantInput) error {
	if err := authorizeTree(ctx, s.Perms, user, treeID, models.PermissionAdmin); err != nil {
		return err
	}
	return s.Perms.SetPermissionList(ctx, treeID, grants)
}

// Revoke removes one principal's grant from the tree. Admin only.
func (s *TreeService) Revoke(ctx context.Context, user *models.User, treeID uuid.UUID, grant GrantInput) error {
	if err := authorizeTree(ctx, s.Perms, user, treeID, models.PermissionAdmin); err != nil {
		return err
	}
	return s.Perms.RemovePermission(ctx, treeID, grant)
}
