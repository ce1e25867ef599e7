package handlers

import (
	"strings"

	"github.com/filedepot/backend/internal/middleware"
	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/internal/services"
	"github.com/filedepot/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type TreesHandler struct {
	Trees  *services.TreeService
	Quotas *services.QuotaService
	Perms  *services.PermissionService
}

func NewTreesHandler(trees *services.TreeService, quotas *services.QuotaService, perms *services.PermissionService) *TreesHandler {
	return &TreesHandler{Trees: trees, Quotas: quotas, Perms: perms}
}

func (h *TreesHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	tree, err := h.Trees.Get(c.Context(), currentUser, treeID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, tree)
}

type setPublicRequest struct {
	Public bool `json:"public"`
}

func (h *TreesHandler) SetPublic(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	var req setPublicRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	tree, err := h.Trees.SetPublic(c.Context(), currentUser, treeID, req.Public)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, tree)
}

func (h *TreesHandler) GetQuota(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	quota, err := h.Trees.GetQuota(c.Context(), currentUser, treeID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, quota)
}

type setQuotaRequest struct {
	Allowed int64 `json:"allowed"`
}

// SetQuota changes the tree's allowance. Routed behind AdminOnly: quota
// policy belongs to site operators, tree admins only consume it.
func (h *TreesHandler) SetQuota(c *fiber.Ctx) error {
	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	var req setQuotaRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	quota, err := h.Quotas.SetAllowed(c.Context(), treeID, req.Allowed)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, quota)
}

func (h *TreesHandler) ListGrants(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	grants, err := h.Trees.Grants(c.Context(), currentUser, treeID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, grants)
}

type grantRequest struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Level string `json:"level"`
}

func (h *TreesHandler) parseGrant(c *fiber.Ctx, req grantRequest) (services.GrantInput, bool, error) {
	kind := models.PrincipalKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if kind != models.PrincipalUser && kind != models.PrincipalGroup {
		return services.GrantInput{}, false, utils.Error(c, fiber.StatusBadRequest, "kind must be user or group")
	}
	level := models.PermissionLevel(strings.ToLower(strings.TrimSpace(req.Level)))
	if !level.Valid() {
		return services.GrantInput{}, false, utils.Error(c, fiber.StatusBadRequest, "level must be read, write or admin")
	}

	principal, err := h.Perms.ResolvePrincipal(c.Context(), kind, req.Name)
	if err != nil {
		return services.GrantInput{}, false, respondServiceError(c, err)
	}
	return services.GrantInput{Principal: principal, Level: level}, true, nil
}

func (h *TreesHandler) Grant(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	var req grantRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	grant, ok, respErr := h.parseGrant(c, req)
	if !ok {
		return respErr
	}

	if err := h.Trees.Grant(c.Context(), currentUser, treeID, grant); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, fiber.Map{"granted": true})
}

type setGrantsRequest struct {
	Grants []grantRequest `json:"grants"`
}

// SetGrants replaces the tree's entire grant list in one call.
func (h *TreesHandler) SetGrants(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	var req setGrantsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	grants := make([]services.GrantInput, 0, len(req.Grants))
	for _, raw := range req.Grants {
		grant, ok, respErr := h.parseGrant(c, raw)
		if !ok {
			return respErr
		}
		grants = append(grants, grant)
	}

	if err := h.Trees.SetGrants(c.Context(), currentUser, treeID, grants); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"set": len(grants)})
}

func (h *TreesHandler) Revoke(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	kind := models.PrincipalKind(strings.ToLower(strings.TrimSpace(c.Query("kind"))))
	if kind != models.PrincipalUser && kind != models.PrincipalGroup {
		return utils.Error(c, fiber.StatusBadRequest, "kind must be user or group")
	}

	principalID, err := parseUUID(c.Query("principalID"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid principal id")
	}

	grant := services.GrantInput{Principal: services.Principal{Kind: kind, ID: principalID}}
	if level := strings.ToLower(strings.TrimSpace(c.Query("level"))); level != "" {
		grant.Level = models.PermissionLevel(level)
		if !grant.Level.Valid() {
			return utils.Error(c, fiber.StatusBadRequest, "level must be one of read, write, admin")
		}
	}
	if err := h.Trees.Revoke(c.Context(), currentUser, treeID, grant); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"revoked": true})
}
