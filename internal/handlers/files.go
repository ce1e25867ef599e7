package handlers

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/filedepot/backend/internal/middleware"
	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/internal/services"
	"github.com/filedepot/backend/internal/storage"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/filedepot/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type FilesHandler struct {
	Files     *services.FileService
	Checksums *services.ChecksumQueueService
	Storage   storage.BlobStore
}

func NewFilesHandler(files *services.FileService, checksums *services.ChecksumQueueService, store storage.BlobStore) *FilesHandler {
	return &FilesHandler{Files: files, Checksums: checksums, Storage: store}
}

type registerFileRequest struct {
	FolderID    uuid.UUID         `json:"folderID"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	ContentType string            `json:"contentType"`
	Size        int64             `json:"size"`
	Metadata    models.JSONObject `json:"metadata"`
}

// Register declares a file before its content arrives. The declared size is
// charged against the tree quota right away; the content follows via
// AttachContent.
func (h *FilesHandler) Register(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req registerFileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	file, err := h.Files.Register(c.Context(), currentUser, services.RegisterFileInput{
		FolderID:    req.FolderID,
		Name:        req.Name,
		Description: req.Description,
		ContentType: req.ContentType,
		Size:        req.Size,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return utils.Success(c, fiber.StatusCreated, file)
}

// AttachContent uploads the declared bytes for a pending file, as a
// multipart "file" part. Content is write-once.
func (h *FilesHandler) AttachContent(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(fileHeader.Filename))
	}

	file, err := h.Files.AttachContent(c.Context(), currentUser, fileID, stream, fileHeader.Size, contentType)
	if err != nil {
		return respondServiceError(c, err)
	}

	h.Checksums.Enqueue(file.ID)

	return utils.Success(c, fiber.StatusOK, file)
}

func (h *FilesHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	file, err := h.Files.Get(c.Context(), currentUser, fileID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, file)
}

func (h *FilesHandler) ListFolder(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	files, err := h.Files.ListFolder(c.Context(), currentUser, folderID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, files)
}

// Search locates files by sha512 digest across every tree the caller can
// read.
func (h *FilesHandler) Search(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	digest := strings.ToLower(strings.TrimSpace(c.Query("sha512")))
	if len(digest) != 128 {
		return utils.Error(c, fiber.StatusBadRequest, "sha512 query parameter must be a 128-character hex digest")
	}

	files, err := h.Files.FindByChecksum(c.Context(), currentUser, digest)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, files)
}

func (h *FilesHandler) Download(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	file, err := h.Files.Get(c.Context(), currentUser, fileID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if file.Pending() {
		return utils.Error(c, fiber.StatusConflict, "file has no content yet")
	}

	obj, err := h.Storage.Open(c.Context(), file.StoragePath)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening file content")
	}

	if currentUser != nil {
		logger.InfoWithUser(currentUser.ID.String(), "file_downloaded", map[string]interface{}{
			"file_id":   file.ID.String(),
			"file_name": file.Name,
			"file_size": file.Size,
		})
	}

	c.Set("Content-Type", file.ContentType)
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	return c.SendStream(obj, int(file.Size))
}

type updateFileRequest struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Metadata    models.JSONObject `json:"metadata"`
}

func (h *FilesHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var req updateFileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	file, err := h.Files.Update(c.Context(), currentUser, fileID, services.UpdateFileInput{
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, file)
}

func (h *FilesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	storagePath, err := h.Files.Delete(c.Context(), currentUser, fileID)
	if err != nil {
		return respondServiceError(c, err)
	}

	if storagePath != "" {
		if err := h.Storage.Delete(c.Context(), storagePath); err != nil {
			logger.Error("blob_cleanup_failed", err, map[string]interface{}{
				"storage_path": storagePath,
			})
		}
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}
