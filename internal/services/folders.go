package services

import (
	"context"

	"github.com/filedepot/backend/internal/apperrors"
	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FolderService struct {
	DB                *gorm.DB
	Perms             *PermissionService
	Quotas            *QuotaService
	DefaultQuotaBytes int64
}

func NewFolderService(db *gorm.DB, perms *PermissionService, quotas *QuotaService, defaultQuotaBytes int64) *FolderService {
	return &FolderService{DB: db, Perms: perms, Quotas: quotas, DefaultQuotaBytes: defaultQuotaBytes}
}

type CreateFolderInput struct {
	Name        string
	Description string
	ParentID    *uuid.UUID
	Metadata    models.JSONObject
}

type UpdateFolderInput struct {
	Name        *string
	Description *string
	Metadata    models.JSONObject
}

// DeletedSubtree describes the outcome of a folder deletion: the blob paths
// that should be removed from the backing store once the transaction has
// committed.
type DeletedSubtree struct {
	RootDeleted  bool
	StoragePaths []string
}

// Create makes a folder. With no parent it anchors a new tree: tree, quota
// and root folder are allocated in one transaction and the creator receives
// an admin grant. With a parent it joins the parent's tree at depth
// parent.depth+1, subject to the depth ceiling and sibling name rules.
func (s *FolderService) Create(ctx context.Context, creator *models.User, input CreateFolderInput) (*models.Folder, error) {
	name, err := validateEntityName(input.Name)
	if err != nil {
		return nil, err
	}
	if input.Metadata == nil {
		input.Metadata = models.JSONObject{}
	}

	var folder *models.Folder
	if input.ParentID == nil {
		folder, err = s.createRoot(ctx, creator, name, input)
	} else {
		folder, err = s.createChild(ctx, creator, name, *input.ParentID, input)
	}
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(creator.ID.String(), "folder_created", map[string]interface{}{
		"folder_id": folder.ID.String(),
		"tree_id":   folder.TreeID.String(),
		"depth":     folder.Depth,
		"root":      folder.IsRoot(),
	})
	return folder, nil
}

func (s *FolderService) createRoot(ctx context.Context, creator *models.User, name string, input CreateFolderInput) (*models.Folder, error) {
	var taken int64
	if err := s.DB.WithContext(ctx).Model(&models.Folder{}).
		Where("parent_id IS NULL AND name = ?", name).
		Count(&taken).Error; err != nil {
		return nil, err
	}
	if taken > 0 {
		return nil, apperrors.NewValidation("name", "a root folder with that name already exists")
	}

	folder := &models.Folder{
		Name:        name,
		Description: input.Description,
		Depth:       0,
		Metadata:    input.Metadata,
		CreatorID:   creator.ID,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tree := models.Tree{}
		if err := tx.Create(&tree).Error; err != nil {
			return err
		}

		quota := models.Quota{TreeID: tree.ID, Allowed: s.DefaultQuotaBytes}
		if err := tx.Create(&quota).Error; err != nil {
			return err
		}

		folder.TreeID = tree.ID
		if err := tx.Create(folder).Error; err != nil {
			return translateConstraint(err)
		}

		return s.Perms.grantInTx(tx, tree.ID, GrantInput{
			Principal: UserPrincipal(creator.ID),
			Level:     models.PermissionAdmin,
		})
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

func (s *FolderService) createChild(ctx context.Context, creator *models.User, name string, parentID uuid.UUID, input CreateFolderInput) (*models.Folder, error) {
	parent, err := s.loadFolder(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTree(ctx, s.Perms, creator, parent.TreeID, models.PermissionWrite); err != nil {
		return nil, err
	}

	depth := parent.Depth + 1
	if depth > models.MaxFolderDepth {
		return nil, &apperrors.MaxDepthExceededError{Max: models.MaxFolderDepth}
	}

	folder := &models.Folder{
		Name:        name,
		Description: input.Description,
		Depth:       depth,
		Metadata:    input.Metadata,
		TreeID:      parent.TreeID,
		ParentID:    &parent.ID,
		CreatorID:   creator.ID,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkSiblingNames(tx, parent.ID, name); err != nil {
			return err
		}
		return translateConstraint(tx.Create(folder).Error)
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// checkSiblingNames enforces the cross-type collision rule: a folder and a
// file may not share a name under the same parent. Per-type uniqueness is
// also covered by declared constraints; the cross-type direction needs this
// explicit query since folders and files are distinct tables.
func (s *FolderService) checkSiblingNames(tx *gorm.DB, parentID uuid.UUID, name string) error {
	var folders int64
	if err := tx.Model(&models.Folder{}).
		Where("parent_id = ? AND name = ?", parentID, name).
		Count(&folders).Error; err != nil {
		return err
	}
	if folders > 0 {
		return apperrors.NewValidation("name", "a folder with that name already exists here")
	}

	var files int64
	if err := tx.Model(&models.File{}).
		Where("folder_id = ? AND name = ?", parentID, name).
		Count(&files).Error; err != nil {
		return err
	}
	if files > 0 {
		return apperrors.NewValidation("name", "a file with that name already exists here")
	}
	return nil
}

// Get returns the folder if the user can read its tree; otherwise NotFound,
// never a permission error, so unreadable trees stay invisible.
func (s *FolderService) Get(ctx context.Context, user *models.User, folderID uuid.UUID) (*models.Folder, error) {
	folder, err := s.loadFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}

	ok, err := s.Perms.HasPermission(ctx, user, folder.TreeID, models.PermissionRead)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "folder"}
	}
	return folder, nil
}

// Roots lists the root folders readable by the user.
func (s *FolderService) Roots(ctx context.Context, user *models.User) ([]models.Folder, error) {
	var folders []models.Folder
	err := s.Perms.FilterFolders(user, models.PermissionRead,
		s.DB.WithContext(ctx).Model(&models.Folder{})).
		Where("folders.parent_id IS NULL").
		Order("folders.name ASC").
		Find(&folders).Error
	return folders, err
}

// Children lists a folder's subfolders.
func (s *FolderService) Children(ctx context.Context, user *models.User, folderID uuid.UUID) ([]models.Folder, error) {
	folder, err := s.Get(ctx, user, folderID)
	if err != nil {
		return nil, err
	}

	var children []models.Folder
	err = s.DB.WithContext(ctx).
		Where("parent_id = ?", folder.ID).
		Order("name ASC").
		Find(&children).Error
	return children, err
}

// PathToRoot returns the ordered path from the tree's root down to the
// folder. The parent walk is hard-capped: a chain longer than the depth
// ceiling means the hierarchy is corrupt, which is fatal, never silently
// truncated.
func (s *FolderService) PathToRoot(ctx context.Context, folder *models.Folder) ([]models.Folder, error) {
	return pathToRoot(ctx, s.DB, folder)
}

// pathToRoot walks the parent chain on the given handle so callers already
// inside a transaction see the chain at their own isolation level.
func pathToRoot(ctx context.Context, db *gorm.DB, folder *models.Folder) ([]models.Folder, error) {
	path := []models.Folder{*folder}
	current := folder

	for current.ParentID != nil {
		if len(path) > models.MaxFolderDepth {
			return nil, &apperrors.IntegrityError{
				Err: &apperrors.MaxDepthExceededError{Max: models.MaxFolderDepth},
			}
		}

		var parent models.Folder
		if err := db.WithContext(ctx).First(&parent, "id = ?", *current.ParentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, &apperrors.IntegrityError{Err: err}
			}
			return nil, err
		}
		path = append(path, parent)
		current = &parent
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// IncrementSize applies a byte delta to the folder and every ancestor up to
// the root as one UPDATE over the ancestor id set, then drives the tree
// quota's increment inside the same transaction. Any failure, including
// quota overflow, rolls back both together.
func (s *FolderService) IncrementSize(ctx context.Context, tx *gorm.DB, folder *models.Folder, delta int64) error {
	if delta == 0 {
		return nil
	}

	path, err := pathToRoot(ctx, tx, folder)
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, len(path))
	for i, f := range path {
		ids[i] = f.ID
	}

	res := tx.WithContext(ctx).
		Model(&models.Folder{}).
		Where("id IN ?", ids).
		UpdateColumn("size", gorm.Expr("size + ?", delta))
	if res.Error != nil {
		return &apperrors.IntegrityError{Err: res.Error}
	}
	if res.RowsAffected != int64(len(ids)) {
		return &apperrors.IntegrityError{Err: gorm.ErrRecordNotFound}
	}

	var quota models.Quota
	if err := tx.WithContext(ctx).Select("id").First(&quota, "tree_id = ?", folder.TreeID).Error; err != nil {
		return &apperrors.IntegrityError{Err: err}
	}
	return s.Quotas.Increment(ctx, tx, quota.ID, delta)
}

// Update changes name, description or metadata. Parent and the computed
// fields (depth, size) are not updatable; re-parenting is unsupported.
func (s *FolderService) Update(ctx context.Context, user *models.User, folderID uuid.UUID, input UpdateFolderInput) (*models.Folder, error) {
	folder, err := s.Get(ctx, user, folderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTree(ctx, s.Perms, user, folder.TreeID, models.PermissionWrite); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		name, err := validateEntityName(*input.Name)
		if err != nil {
			return nil, err
		}
		if name != folder.Name {
			updates["name"] = name
		}
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Metadata != nil {
		updates["metadata"] = input.Metadata
	}
	if len(updates) == 0 {
		return folder, nil
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if newName, ok := updates["name"].(string); ok {
			if folder.ParentID != nil {
				if err := s.checkSiblingNames(tx, *folder.ParentID, newName); err != nil {
					return err
				}
			} else {
				var taken int64
				if err := tx.Model(&models.Folder{}).
					Where("parent_id IS NULL AND name = ? AND id <> ?", newName, folder.ID).
					Count(&taken).Error; err != nil {
					return err
				}
				if taken > 0 {
					return apperrors.NewValidation("name", "a root folder with that name already exists")
				}
			}
		}
		return translateConstraint(tx.Model(&models.Folder{}).Where("id = ?", folder.ID).Updates(updates).Error)
	})
	if err != nil {
		return nil, err
	}

	return s.loadFolder(ctx, folder.ID)
}

// Delete removes a folder and its whole subtree. Deleting a root folder
// requires admin and cascades to the tree: grants, quota, terms and
// agreements all go with it, with no separate usage decrement since the
// quota itself is discarded. Deleting a non-root folder requires write and
// symmetrically decrements the surviving ancestors and the tree quota by the
// subtree's aggregate size.
func (s *FolderService) Delete(ctx context.Context, user *models.User, folderID uuid.UUID) (*DeletedSubtree, error) {
	folder, err := s.Get(ctx, user, folderID)
	if err != nil {
		return nil, err
	}

	required := models.PermissionWrite
	if folder.IsRoot() {
		required = models.PermissionAdmin
	}
	if err := authorizeTree(ctx, s.Perms, user, folder.TreeID, required); err != nil {
		return nil, err
	}

	result := &DeletedSubtree{RootDeleted: folder.IsRoot()}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-read the size at the transaction's isolation level so a
		// registration that landed in the subtree since the pre-flight load
		// is decremented too.
		var current models.Folder
		if err := tx.Select("size").First(&current, "id = ?", folder.ID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return &apperrors.NotFoundError{Resource: "folder"}
			}
			return err
		}
		removedSize := current.Size

		levels, err := s.collectSubtree(tx, folder.ID)
		if err != nil {
			return err
		}

		allIDs := make([]uuid.UUID, 0)
		for _, level := range levels {
			allIDs = append(allIDs, level...)
		}

		var files []models.File
		if err := tx.Select("id", "storage_path").Where("folder_id IN ?", allIDs).Find(&files).Error; err != nil {
			return err
		}
		for _, f := range files {
			if f.StoragePath != "" {
				result.StoragePaths = append(result.StoragePaths, f.StoragePath)
			}
		}
		if err := tx.Where("folder_id IN ?", allIDs).Delete(&models.File{}).Error; err != nil {
			return err
		}
		if err := tx.Where("folder_id IN ?", allIDs).Delete(&models.AuthorizedUpload{}).Error; err != nil {
			return err
		}

		// Deepest level first so parent foreign keys stay satisfied.
		for i := len(levels) - 1; i >= 0; i-- {
			if err := tx.Where("id IN ?", levels[i]).Delete(&models.Folder{}).Error; err != nil {
				return err
			}
		}

		if folder.IsRoot() {
			return s.deleteTree(tx, folder.TreeID)
		}

		if removedSize > 0 {
			var parent models.Folder
			if err := tx.First(&parent, "id = ?", *folder.ParentID).Error; err != nil {
				return &apperrors.IntegrityError{Err: err}
			}
			return s.IncrementSize(ctx, tx, &parent, -removedSize)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(user.ID.String(), "folder_deleted", map[string]interface{}{
		"folder_id":    folderID.String(),
		"tree_id":      folder.TreeID.String(),
		"root_deleted": result.RootDeleted,
		"blob_count":   len(result.StoragePaths),
	})
	return result, nil
}

// collectSubtree gathers the subtree's folder ids grouped by level, starting
// at the target folder. The loop is bounded by the depth ceiling; running
// past it means a cyclic parent chain.
func (s *FolderService) collectSubtree(tx *gorm.DB, rootID uuid.UUID) ([][]uuid.UUID, error) {
	levels := [][]uuid.UUID{{rootID}}
	frontier := []uuid.UUID{rootID}

	for len(frontier) > 0 {
		if len(levels) > models.MaxFolderDepth+1 {
			return nil, &apperrors.IntegrityError{
				Err: &apperrors.MaxDepthExceededError{Max: models.MaxFolderDepth},
			}
		}

		var children []models.Folder
		if err := tx.Select("id").Where("parent_id IN ?", frontier).Find(&children).Error; err != nil {
			return nil, err
		}
		if len(children) == 0 {
			break
		}

		next := make([]uuid.UUID, len(children))
		for i, c := range children {
			next[i] = c.ID
		}
		levels = append(levels, next)
		frontier = next
	}
	return levels, nil
}

// deleteTree purges everything scoped to a tree. Quota usage is not
// decremented on the way out; the whole ledger is discarded with the tree.
func (s *FolderService) deleteTree(tx *gorm.DB, treeID uuid.UUID) error {
	if err := s.Perms.PurgeTreeGrants(tx, treeID); err != nil {
		return err
	}

	var terms models.Terms
	if err := tx.First(&terms, "tree_id = ?", treeID).Error; err == nil {
		if err := tx.Where("terms_id = ?", terms.ID).Delete(&models.TermsAgreement{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Terms{}, "id = ?", terms.ID).Error; err != nil {
			return err
		}
	} else if err != gorm.ErrRecordNotFound {
		return err
	}

	if err := tx.Where("tree_id = ?", treeID).Delete(&models.Quota{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Tree{}, "id = ?", treeID).Error
}

func (s *FolderService) loadFolder(ctx context.Context, folderID uuid.UUID) (*models.Folder, error) {
	var folder models.Folder
	if err := s.DB.WithContext(ctx).First(&folder, "id = ?", folderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &apperrors.NotFoundError{Resource: "folder"}
		}
		return nil, err
	}
	return &folder, nil
}

// translateConstraint turns a storage-level constraint breach into the fatal
// integrity error shape. Pre-validation should have caught the condition, so
// reaching this path is an application bug; the handler logs it loudly and
// answers generically.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	return &apperrors.IntegrityError{Err: err}
}
