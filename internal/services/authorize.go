package services

import (
	"context"
	"strings"

	"github.com/filedepot/backend/internal/apperrors"
	"github.com/filedepot/backend/internal/models"
	"github.com/google/uuid"
)

// authorizeTree checks the acting user against a tree. Callers without read
// access get NotFoundError so the tree's existence is never revealed; callers
// who can read but lack the required level get PermissionDeniedError.
func authorizeTree(ctx context.Context, perms *PermissionService, user *models.User, treeID uuid.UUID, level models.PermissionLevel) error {
	ok, err := perms.HasPermission(ctx, user, treeID, level)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	readable, err := perms.HasPermission(ctx, user, treeID, models.PermissionRead)
	if err != nil {
		return err
	}
	if !readable {
		return &apperrors.NotFoundError{}
	}
	return &apperrors.PermissionDeniedError{}
}

// validateEntityName applies the shared folder/file name rules: non-empty,
// at most 255 characters, no forward slashes.
func validateEntityName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.NewValidation("name", "must not be empty")
	}
	if len(name) > 255 {
		return "", apperrors.NewValidation("name", "must be at most 255 characters")
	}
	if strings.Contains(name, "/") {
		return "", apperrors.NewValidation("name", "may not contain forward slashes")
	}
	return name, nil
}
