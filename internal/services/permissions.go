package services

import (
	"context"
	"strings"

	"github.com/filedepot/backend/internal/apperrors"
	"github.com/filedepot/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Principal identifies the target of a permission grant: exactly one of a
// user or a group.
type Principal struct {
	Kind models.PrincipalKind
	ID   uuid.UUID
}

func UserPrincipal(id uuid.UUID) Principal {
	return Principal{Kind: models.PrincipalUser, ID: id}
}

func GroupPrincipal(id uuid.UUID) Principal {
	return Principal{Kind: models.PrincipalGroup, ID: id}
}

// GrantInput names a principal and the level to grant, as submitted by a
// caller replacing or extending a tree's ACL.
type GrantInput struct {
	Principal Principal
	Level     models.PermissionLevel
}

type PermissionService struct {
	DB *gorm.DB
}

func NewPermissionService(db *gorm.DB) *PermissionService {
	return &PermissionService{DB: db}
}

// HasPermission reports whether the principal satisfies level on the tree,
// either through an explicit grant (direct or via group membership, with
// implication admin > write > read) or, for read, through the tree being
// public. A nil user is an anonymous caller: public read only.
func (s *PermissionService) HasPermission(ctx context.Context, user *models.User, treeID uuid.UUID, level models.PermissionLevel) (bool, error) {
	if !level.Valid() {
		return false, nil
	}

	if level == models.PermissionRead {
		var tree models.Tree
		if err := s.DB.WithContext(ctx).Select("id", "public").First(&tree, "id = ?", treeID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return false, &apperrors.NotFoundError{Resource: "tree"}
			}
			return false, err
		}
		if tree.Public {
			return true, nil
		}
	}

	if user == nil {
		return false, nil
	}

	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.PermissionGrant{}).
		Where("tree_id = ?", treeID).
		Where("level IN ?", levelStrings(level.ImpliedBy())).
		Where(
			s.DB.Where("user_id = ?", user.ID).
				Or("group_id IN (?)", s.membershipSubquery(user.ID)),
		).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GrantPermission idempotently sets the principal's grant for the tree to
// exactly {level}, replacing any prior grant in the same transaction.
func (s *PermissionService) GrantPermission(ctx context.Context, treeID uuid.UUID, grant GrantInput) error {
	if !grant.Level.Valid() {
		return apperrors.NewValidation("level", "must be one of read, write, admin")
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.grantInTx(tx, treeID, grant)
	})
}

// RemovePermission removes the principal's grant for the tree if present;
// no-op otherwise. With a level given, only a grant at exactly that level is
// removed; with no level, whatever single grant the principal holds goes.
func (s *PermissionService) RemovePermission(ctx context.Context, treeID uuid.UUID, grant GrantInput) error {
	query := s.principalScope(s.DB.WithContext(ctx), grant.Principal).
		Where("tree_id = ?", treeID)
	if grant.Level != "" {
		query = query.Where("level = ?", grant.Level)
	}
	return query.Delete(&models.PermissionGrant{}).Error
}

// SetPermissionList replaces the tree's entire ACL with exactly the given
// grants. The whole replacement is one transaction: a failure partway leaves
// the previous ACL intact.
func (s *PermissionService) SetPermissionList(ctx context.Context, treeID uuid.UUID, grants []GrantInput) error {
	seen := make(map[Principal]bool, len(grants))
	for _, g := range grants {
		if !g.Level.Valid() {
			return apperrors.NewValidation("level", "must be one of read, write, admin")
		}
		if seen[g.Principal] {
			return apperrors.NewValidation("grants", "duplicate principal in grant list")
		}
		seen[g.Principal] = true
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, g := range grants {
			if err := s.grantInTx(tx, treeID, g); err != nil {
				return err
			}
		}

		var existing []models.PermissionGrant
		if err := tx.Where("tree_id = ?", treeID).Find(&existing).Error; err != nil {
			return err
		}
		for _, e := range existing {
			p := Principal{Kind: e.PrincipalKind()}
			if e.UserID != nil {
				p.ID = *e.UserID
			} else if e.GroupID != nil {
				p.ID = *e.GroupID
			}
			if !seen[p] {
				if err := tx.Delete(&models.PermissionGrant{}, "id = ?", e.ID).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ListGrants returns every active (principal, level) pair for the tree,
// user- and group-scoped alike.
func (s *PermissionService) ListGrants(ctx context.Context, treeID uuid.UUID) ([]models.PermissionGrant, error) {
	var grants []models.PermissionGrant
	err := s.DB.WithContext(ctx).
		Preload("User").
		Preload("Group").
		Where("tree_id = ?", treeID).
		Order("created_at ASC").
		Find(&grants).Error
	return grants, err
}

// ResolvePrincipal resolves a principal name (user email or group name) to an
// identity. Unknown names are a validation error, never a partial success.
func (s *PermissionService) ResolvePrincipal(ctx context.Context, kind models.PrincipalKind, name string) (Principal, error) {
	name = strings.TrimSpace(name)
	switch kind {
	case models.PrincipalUser:
		var user models.User
		if err := s.DB.WithContext(ctx).Select("id").First(&user, "email = ?", strings.ToLower(name)).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return Principal{}, apperrors.NewValidation("principal", "no user with that email")
			}
			return Principal{}, err
		}
		return UserPrincipal(user.ID), nil
	case models.PrincipalGroup:
		var group models.Group
		if err := s.DB.WithContext(ctx).Select("id").First(&group, "name = ?", name).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return Principal{}, apperrors.NewValidation("principal", "no group with that name")
			}
			return Principal{}, err
		}
		return GroupPrincipal(group.ID), nil
	default:
		return Principal{}, apperrors.NewValidation("principal", "kind must be user or group")
	}
}

// FilterFolders narrows a folder query to trees where the user satisfies
// level. Implemented as index-backed tree-id set membership, not per-row
// permission checks, so it stays sub-linear in the candidate tree count.
func (s *PermissionService) FilterFolders(user *models.User, level models.PermissionLevel, tx *gorm.DB) *gorm.DB {
	return tx.Where(s.treeScope(user, level, "folders.tree_id"))
}

// FilterFiles narrows a file query the same way, joining through the owning
// folder for the tree id.
func (s *PermissionService) FilterFiles(user *models.User, level models.PermissionLevel, tx *gorm.DB) *gorm.DB {
	return tx.
		Joins("JOIN folders ON folders.id = files.folder_id").
		Where(s.treeScope(user, level, "folders.tree_id"))
}

// PurgeTreeGrants removes every grant referencing a tree. Called from tree
// cascade deletion so no dangling ACL rows survive.
func (s *PermissionService) PurgeTreeGrants(tx *gorm.DB, treeID uuid.UUID) error {
	return tx.Where("tree_id = ?", treeID).Delete(&models.PermissionGrant{}).Error
}

func (s *PermissionService) grantInTx(tx *gorm.DB, treeID uuid.UUID, grant GrantInput) error {
	if err := s.principalScope(tx, grant.Principal).
		Where("tree_id = ?", treeID).
		Delete(&models.PermissionGrant{}).Error; err != nil {
		return err
	}

	row := models.PermissionGrant{TreeID: treeID, Level: grant.Level}
	switch grant.Principal.Kind {
	case models.PrincipalUser:
		id := grant.Principal.ID
		row.UserID = &id
	case models.PrincipalGroup:
		id := grant.Principal.ID
		row.GroupID = &id
	default:
		return apperrors.NewValidation("principal", "kind must be user or group")
	}
	return tx.Create(&row).Error
}

func (s *PermissionService) principalScope(tx *gorm.DB, p Principal) *gorm.DB {
	if p.Kind == models.PrincipalGroup {
		return tx.Where("group_id = ?", p.ID)
	}
	return tx.Where("user_id = ?", p.ID)
}

// treeScope builds the tree-membership condition for column (e.g.
// "folders.tree_id"): trees granted to the user or their groups at a
// satisfying level, unioned with public trees when level is read.
func (s *PermissionService) treeScope(user *models.User, level models.PermissionLevel, column string) *gorm.DB {
	publicTrees := s.DB.Model(&models.Tree{}).Select("id").Where("public = ?", true)

	if user == nil {
		if level == models.PermissionRead {
			return s.DB.Where(column+" IN (?)", publicTrees)
		}
		// Anonymous callers never satisfy write or admin.
		return s.DB.Where("1 = 0")
	}

	granted := s.DB.Model(&models.PermissionGrant{}).
		Select("tree_id").
		Where("level IN ?", levelStrings(level.ImpliedBy())).
		Where(
			s.DB.Where("user_id = ?", user.ID).
				Or("group_id IN (?)", s.membershipSubquery(user.ID)),
		)

	scope := s.DB.Where(column+" IN (?)", granted)
	if level == models.PermissionRead {
		scope = scope.Or(column+" IN (?)", publicTrees)
	}
	return s.DB.Where(scope)
}

func (s *PermissionService) membershipSubquery(userID uuid.UUID) *gorm.DB {
	return s.DB.Model(&models.GroupMembership{}).Select("group_id").Where("user_id = ?", userID)
}

func levelStrings(levels []models.PermissionLevel) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}
