package handlers

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/filedepot/backend/internal/middleware"
	"github.com/filedepot/backend/internal/services"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/filedepot/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type AuthorizedUploadsHandler struct {
	Uploads   *services.AuthorizedUploadService
	Files     *services.FileService
	Checksums *services.ChecksumQueueService
}

func NewAuthorizedUploadsHandler(uploads *services.AuthorizedUploadService, files *services.FileService, checksums *services.ChecksumQueueService) *AuthorizedUploadsHandler {
	return &AuthorizedUploadsHandler{Uploads: uploads, Files: files, Checksums: checksums}
}

type createAuthorizedUploadRequest struct {
	FolderID string `json:"folderID"`
}

func (h *AuthorizedUploadsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createAuthorizedUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	folderID, err := parseUUID(req.FolderID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	minted, err := h.Uploads.Create(c.Context(), currentUser, folderID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, minted)
}

func (h *AuthorizedUploadsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	uploadID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid upload id")
	}

	upload, err := h.Uploads.Get(c.Context(), currentUser, uploadID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, upload)
}

func (h *AuthorizedUploadsHandler) ListFolder(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	uploads, err := h.Uploads.ListFolder(c.Context(), currentUser, folderID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, uploads)
}

func (h *AuthorizedUploadsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	uploadID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid upload id")
	}

	if err := h.Uploads.Delete(c.Context(), currentUser, uploadID); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

// Receive is the unauthenticated drop-box endpoint. The bearer presents the
// capability token minted at Create time plus a multipart "file" part; the
// file lands in the authorization's folder as its creator with content
// attached in the same request.
func (h *AuthorizedUploadsHandler) Receive(c *fiber.Ctx) error {
	uploadID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid upload id")
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return utils.Error(c, fiber.StatusUnauthorized, "token is required")
	}

	upload, err := h.Uploads.Redeem(c.Context(), uploadID, token)
	if err != nil {
		return respondServiceError(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	name := filepath.Base(strings.TrimSpace(fileHeader.Filename))
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}

	file, err := h.Uploads.RegisterFile(c.Context(), upload, services.RegisterFileInput{
		Name:        name,
		ContentType: contentType,
		Size:        fileHeader.Size,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	file, err = h.Files.AttachContent(c.Context(), &upload.Creator, file.ID, stream, fileHeader.Size, contentType)
	if err != nil {
		return respondServiceError(c, err)
	}

	h.Checksums.Enqueue(file.ID)

	logger.Info("authorized_upload_received", map[string]interface{}{
		"upload_id": upload.ID.String(),
		"file_id":   file.ID.String(),
		"size":      file.Size,
	})

	return utils.Success(c, fiber.StatusCreated, file)
}
