package handlers

import (
	"github.com/filedepot/backend/internal/middleware"
	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/internal/services"
	"github.com/filedepot/backend/internal/storage"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/filedepot/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type FoldersHandler struct {
	Folders *services.FolderService
	Storage storage.BlobStore
}

func NewFoldersHandler(folders *services.FolderService, store storage.BlobStore) *FoldersHandler {
	return &FoldersHandler{Folders: folders, Storage: store}
}

type createFolderRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	ParentID    *uuid.UUID        `json:"parentID"`
	Metadata    models.JSONObject `json:"metadata"`
}

func (h *FoldersHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	folder, err := h.Folders.Create(c.Context(), currentUser, services.CreateFolderInput{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return utils.Success(c, fiber.StatusCreated, folder)
}

func (h *FoldersHandler) ListRoots(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	roots, err := h.Folders.Roots(c.Context(), currentUser)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, roots)
}

func (h *FoldersHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	folder, err := h.Folders.Get(c.Context(), currentUser, folderID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, folder)
}

func (h *FoldersHandler) Children(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	children, err := h.Folders.Children(c.Context(), currentUser, folderID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, children)
}

// Path returns the folder chain from the tree root down to the folder.
func (h *FoldersHandler) Path(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	folder, err := h.Folders.Get(c.Context(), currentUser, folderID)
	if err != nil {
		return respondServiceError(c, err)
	}

	path, err := h.Folders.PathToRoot(c.Context(), folder)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, path)
}

type updateFolderRequest struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Metadata    models.JSONObject `json:"metadata"`
}

func (h *FoldersHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	var req updateFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	folder, err := h.Folders.Update(c.Context(), currentUser, folderID, services.UpdateFolderInput{
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, folder)
}

func (h *FoldersHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folderID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	subtree, err := h.Folders.Delete(c.Context(), currentUser, folderID)
	if err != nil {
		return respondServiceError(c, err)
	}

	// Blob removal happens after the rows are gone; a failure here leaves
	// an orphaned object, not a dangling row.
	for _, path := range subtree.StoragePaths {
		if err := h.Storage.Delete(c.Context(), path); err != nil {
			logger.Error("blob_cleanup_failed", err, map[string]interface{}{
				"storage_path": path,
			})
		}
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"deleted":     true,
		"rootDeleted": subtree.RootDeleted,
	})
}
