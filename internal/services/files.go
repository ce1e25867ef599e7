package services

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/filedepot/backend/internal/apperrors"
	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/internal/storage"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FileService struct {
	DB      *gorm.DB
	Perms   *PermissionService
	Folders *FolderService
	Blobs   storage.BlobStore
}

func NewFileService(db *gorm.DB, perms *PermissionService, folders *FolderService, blobs storage.BlobStore) *FileService {
	return &FileService{DB: db, Perms: perms, Folders: folders, Blobs: blobs}
}

type RegisterFileInput struct {
	FolderID    uuid.UUID
	Name        string
	Description string
	ContentType string
	Size        int64
	Metadata    models.JSONObject
}

type UpdateFileInput struct {
	Name        *string
	Description *string
	Metadata    models.JSONObject
}

// Register creates a file in the pending state: metadata and declared size
// are recorded and the quota is charged immediately, content arrives later
// via AttachContent. A registration that would overflow the quota rolls back
// entirely, folder sizes included.
func (s *FileService) Register(ctx context.Context, creator *models.User, input RegisterFileInput) (*models.File, error) {
	name, err := validateEntityName(input.Name)
	if err != nil {
		return nil, err
	}
	if input.Size < 0 {
		return nil, apperrors.NewValidation("size", "must not be negative")
	}
	if input.ContentType == "" {
		input.ContentType = "application/octet-stream"
	}
	if input.Metadata == nil {
		input.Metadata = models.JSONObject{}
	}

	folder, err := s.Folders.loadFolder(ctx, input.FolderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTree(ctx, s.Perms, creator, folder.TreeID, models.PermissionWrite); err != nil {
		return nil, err
	}

	file := &models.File{
		Name:        name,
		Description: input.Description,
		ContentType: input.ContentType,
		Size:        input.Size,
		Metadata:    input.Metadata,
		FolderID:    folder.ID,
		CreatorID:   creator.ID,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkSiblingNames(tx, folder.ID, name, uuid.Nil); err != nil {
			return err
		}
		if err := translateConstraint(tx.Create(file).Error); err != nil {
			return err
		}
		return s.Folders.IncrementSize(ctx, tx, folder, input.Size)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(creator.ID.String(), "file_registered", map[string]interface{}{
		"file_id":   file.ID.String(),
		"folder_id": folder.ID.String(),
		"size":      file.Size,
	})
	return file, nil
}

// checkSiblingNames is the file-side collision rule: no sibling file and no
// child folder of the parent may share the name. excludeID skips the file
// being renamed.
func (s *FileService) checkSiblingNames(tx *gorm.DB, folderID uuid.UUID, name string, excludeID uuid.UUID) error {
	query := tx.Model(&models.File{}).Where("folder_id = ? AND name = ?", folderID, name)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	var files int64
	if err := query.Count(&files).Error; err != nil {
		return err
	}
	if files > 0 {
		return apperrors.NewValidation("name", "a file with that name already exists here")
	}

	var folders int64
	if err := tx.Model(&models.Folder{}).
		Where("parent_id = ? AND name = ?", folderID, name).
		Count(&folders).Error; err != nil {
		return err
	}
	if folders > 0 {
		return apperrors.NewValidation("name", "a folder with that name already exists here")
	}
	return nil
}

// AttachContent stores the file's content exactly once. The uploaded byte
// count must equal the declared size; a second attach fails with
// ContentAlreadySet since content is immutable after creation.
func (s *FileService) AttachContent(ctx context.Context, user *models.User, fileID uuid.UUID, reader io.Reader, size int64, contentType string) (*models.File, error) {
	file, err := s.loadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	folder, err := s.Folders.loadFolder(ctx, file.FolderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTree(ctx, s.Perms, user, folder.TreeID, models.PermissionWrite); err != nil {
		return nil, err
	}

	if !file.Pending() {
		return nil, &apperrors.ContentAlreadySetError{}
	}
	if size != file.Size {
		return nil, apperrors.NewValidation("size",
			fmt.Sprintf("content is %d bytes but %d were declared", size, file.Size))
	}

	if contentType == "" {
		contentType = file.ContentType
	}
	objectName := fmt.Sprintf("trees/%s/%s/%s", folder.TreeID.String(), file.ID.String(), file.Name)
	if err := s.Blobs.Upload(ctx, objectName, reader, size, contentType); err != nil {
		return nil, err
	}

	// Guarded update keeps the attach-once rule under concurrent attaches:
	// only the transition from empty storage_path can win.
	res := s.DB.WithContext(ctx).
		Model(&models.File{}).
		Where("id = ? AND storage_path = ''", file.ID).
		UpdateColumn("storage_path", objectName)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		_ = s.Blobs.Delete(ctx, objectName)
		return nil, &apperrors.ContentAlreadySetError{}
	}

	file.StoragePath = objectName
	logger.InfoWithUser(user.ID.String(), "file_content_attached", map[string]interface{}{
		"file_id": file.ID.String(),
		"size":    size,
	})
	return file, nil
}

// Get returns the file if the user can read its tree; NotFound otherwise.
func (s *FileService) Get(ctx context.Context, user *models.User, fileID uuid.UUID) (*models.File, error) {
	file, err := s.loadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	folder, err := s.Folders.loadFolder(ctx, file.FolderID)
	if err != nil {
		return nil, err
	}
	ok, err := s.Perms.HasPermission(ctx, user, folder.TreeID, models.PermissionRead)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "file"}
	}
	return file, nil
}

// ListFolder lists the files under a folder, read-filtered.
func (s *FileService) ListFolder(ctx context.Context, user *models.User, folderID uuid.UUID) ([]models.File, error) {
	folder, err := s.Folders.Get(ctx, user, folderID)
	if err != nil {
		return nil, err
	}

	var files []models.File
	err = s.DB.WithContext(ctx).
		Where("folder_id = ?", folder.ID).
		Order("name ASC").
		Find(&files).Error
	return files, err
}

// FindByChecksum looks files up by content digest, filtered by the caller's
// read access. Files in unreadable trees are simply absent from the result,
// so the digest index cannot be used as an existence oracle.
func (s *FileService) FindByChecksum(ctx context.Context, user *models.User, digest string) ([]models.File, error) {
	var files []models.File
	err := s.Perms.FilterFiles(user, models.PermissionRead,
		s.DB.WithContext(ctx).Model(&models.File{})).
		Where("files.sha512 = ?", digest).
		Order("files.name ASC").
		Find(&files).Error
	return files, err
}

// Update changes name, description or metadata. The owning folder, size and
// checksum are immutable.
func (s *FileService) Update(ctx context.Context, user *models.User, fileID uuid.UUID, input UpdateFileInput) (*models.File, error) {
	file, err := s.Get(ctx, user, fileID)
	if err != nil {
		return nil, err
	}

	folder, err := s.Folders.loadFolder(ctx, file.FolderID)
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
		if name != file.Name {
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
		return file, nil
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if newName, ok := updates["name"].(string); ok {
			if err := s.checkSiblingNames(tx, file.FolderID, newName, file.ID); err != nil {
				return err
			}
		}
		return translateConstraint(tx.Model(&models.File{}).Where("id = ?", file.ID).Updates(updates).Error)
	})
	if err != nil {
		return nil, err
	}
	return s.loadFile(ctx, file.ID)
}

// Delete removes the file and symmetrically decrements the folder chain and
// tree quota by its size. The blob path is returned for post-commit cleanup.
func (s *FileService) Delete(ctx context.Context, user *models.User, fileID uuid.UUID) (string, error) {
	file, err := s.Get(ctx, user, fileID)
	if err != nil {
		return "", err
	}

	folder, err := s.Folders.loadFolder(ctx, file.FolderID)
	if err != nil {
		return "", err
	}
	if err := authorizeTree(ctx, s.Perms, user, folder.TreeID, models.PermissionWrite); err != nil {
		return "", err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.File{}, "id = ?", file.ID).Error; err != nil {
			return err
		}
		return s.Folders.IncrementSize(ctx, tx, folder, -file.Size)
	})
	if err != nil {
		return "", err
	}

	logger.InfoWithUser(user.ID.String(), "file_deleted", map[string]interface{}{
		"file_id": file.ID.String(),
		"size":    file.Size,
	})
	return file.StoragePath, nil
}

// ComputeChecksum streams the file's content and stores its sha512 hex
// digest. It is the entry point the deferred dispatcher invokes
// at-least-once, so every early return keeps it idempotent: a deleted file,
// a still-pending file and an already-computed digest are all no-ops.
func (s *FileService) ComputeChecksum(ctx context.Context, fileID uuid.UUID) error {
	var file models.File
	if err := s.DB.WithContext(ctx).First(&file, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	if file.Pending() || file.Sha512 != "" {
		return nil
	}

	blob, err := s.Blobs.Open(ctx, file.StoragePath)
	if err != nil {
		return err
	}
	defer blob.Close()

	hasher := sha512.New()
	if _, err := io.Copy(hasher, blob); err != nil {
		return err
	}
	digest := hex.EncodeToString(hasher.Sum(nil))

	if err := s.DB.WithContext(ctx).
		Model(&models.File{}).
		Where("id = ?", file.ID).
		UpdateColumn("sha512", digest).Error; err != nil {
		return err
	}

	logger.Info("file_checksum_computed", map[string]interface{}{
		"file_id": file.ID.String(),
		"sha512":  digest[:10],
	})
	return nil
}

func (s *FileService) loadFile(ctx context.Context, fileID uuid.UUID) (*models.File, error) {
	var file models.File
	if err := s.DB.WithContext(ctx).First(&file, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &apperrors.NotFoundError{Resource: "file"}
		}
		return nil, err
	}
	return &file, nil
}
