package services

import (
	"context"
	"time"

	"github.com/filedepot/backend/internal/apperrors"
	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/filedepot/backend/pkg/uploadtoken"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuthorizedUploadService struct {
	DB      *gorm.DB
	Perms   *PermissionService
	Folders *FolderService
	Files   *FileService
	TTL     time.Duration
}

func NewAuthorizedUploadService(db *gorm.DB, perms *PermissionService, folders *FolderService, files *FileService, ttl time.Duration) *AuthorizedUploadService {
	return &AuthorizedUploadService{DB: db, Perms: perms, Folders: folders, Files: files, TTL: ttl}
}

// MintedUpload pairs the persisted authorization with its one-off bearer
// token. The token is only returned here, at mint time.
type MintedUpload struct {
	Upload *models.AuthorizedUpload `json:"upload"`
	Token  string                   `json:"token"`
}

// Create mints an upload authorization for a folder the creator can write
// to. The returned capability token lets an unauthenticated party register
// and upload files into that folder until the authorization expires.
func (s *AuthorizedUploadService) Create(ctx context.Context, creator *models.User, folderID uuid.UUID) (*MintedUpload, error) {
	folder, err := s.Folders.loadFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTree(ctx, s.Perms, creator, folder.TreeID, models.PermissionWrite); err != nil {
		return nil, err
	}

	upload := &models.AuthorizedUpload{
		FolderID:  folder.ID,
		CreatorID: creator.ID,
		ExpiresAt: time.Now().UTC().Add(s.TTL),
	}
	if err := s.DB.WithContext(ctx).Create(upload).Error; err != nil {
		return nil, err
	}

	token, err := uploadtoken.Sign(upload.ID, upload.ExpiresAt)
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(creator.ID.String(), "authorized_upload_created", map[string]interface{}{
		"upload_id":  upload.ID.String(),
		"folder_id":  folder.ID.String(),
		"expires_at": upload.ExpiresAt.Format(time.RFC3339),
	})
	return &MintedUpload{Upload: upload, Token: token}, nil
}

// Redeem validates a bearer token against the authorization it names and
// returns the authorization if it is still live. Any failure, including a
// deleted or expired authorization, reads as NotFound so tokens cannot be
// probed for detail.
func (s *AuthorizedUploadService) Redeem(ctx context.Context, uploadID uuid.UUID, token string) (*models.AuthorizedUpload, error) {
	if err := uploadtoken.Verify(token, uploadID); err != nil {
		return nil, &apperrors.NotFoundError{Resource: "authorized upload"}
	}

	var upload models.AuthorizedUpload
	err := s.DB.WithContext(ctx).
		Preload("Creator").
		First(&upload, "id = ?", uploadID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &apperrors.NotFoundError{Resource: "authorized upload"}
		}
		return nil, err
	}
	if upload.Expired(time.Now().UTC()) {
		return nil, &apperrors.NotFoundError{Resource: "authorized upload"}
	}
	return &upload, nil
}

// RegisterFile registers a pending file through a redeemed authorization.
// The file is created as the authorization's creator, under the folder the
// authorization names; the bearer cannot pick another folder.
func (s *AuthorizedUploadService) RegisterFile(ctx context.Context, upload *models.AuthorizedUpload, input RegisterFileInput) (*models.File, error) {
	input.FolderID = upload.FolderID
	return s.Files.Register(ctx, &upload.Creator, input)
}

// Get returns an authorization visible to the caller: its creator, or
// anyone who can read the target folder's tree.
func (s *AuthorizedUploadService) Get(ctx context.Context, user *models.User, uploadID uuid.UUID) (*models.AuthorizedUpload, error) {
	upload, err := s.loadUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	folder, err := s.Folders.loadFolder(ctx, upload.FolderID)
	if err != nil {
		return nil, err
	}
	ok, err := s.Perms.HasPermission(ctx, user, folder.TreeID, models.PermissionRead)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "authorized upload"}
	}
	return upload, nil
}

// ListFolder lists the live authorizations targeting a folder.
func (s *AuthorizedUploadService) ListFolder(ctx context.Context, user *models.User, folderID uuid.UUID) ([]models.AuthorizedUpload, error) {
	folder, err := s.Folders.Get(ctx, user, folderID)
	if err != nil {
		return nil, err
	}

	var uploads []models.AuthorizedUpload
	err = s.DB.WithContext(ctx).
		Preload("Creator").
		Where("folder_id = ? AND expires_at > ?", folder.ID, time.Now().UTC()).
		Order("created_at ASC").
		Find(&uploads).Error
	return uploads, err
}

// Delete revokes an authorization, invalidating its outstanding token.
// Allowed for the creator and for tree admins.
func (s *AuthorizedUploadService) Delete(ctx context.Context, user *models.User, uploadID uuid.UUID) error {
	upload, err := s.loadUpload(ctx, uploadID)
	if err != nil {
		return err
	}
	folder, err := s.Folders.loadFolder(ctx, upload.FolderID)
	if err != nil {
		return err
	}

	if upload.CreatorID != user.ID {
		if err := authorizeTree(ctx, s.Perms, user, folder.TreeID, models.PermissionAdmin); err != nil {
			return err
		}
	}

	if err := s.DB.WithContext(ctx).Delete(&models.AuthorizedUpload{}, "id = ?", upload.ID).Error; err != nil {
		return err
	}
	logger.InfoWithUser(user.ID.String(), "authorized_upload_deleted", map[string]interface{}{
		"upload_id": upload.ID.String(),
	})
	return nil
}

// PruneExpired removes authorizations past their expiry.
func (s *AuthorizedUploadService) PruneExpired(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Delete(&models.AuthorizedUpload{}, "expires_at <= ?", time.Now().UTC())
	return res.RowsAffected, res.Error
}

func (s *AuthorizedUploadService) loadUpload(ctx context.Context, uploadID uuid.UUID) (*models.AuthorizedUpload, error) {
	var upload models.AuthorizedUpload
	err := s.DB.WithContext(ctx).Preload("Creator").First(&upload, "id = ?", uploadID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &apperrors.NotFoundError{Resource: "authorized upload"}
		}
		return nil, err
	}
	return &upload, nil
}
