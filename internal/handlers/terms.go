package handlers

import (
	"github.com/filedepot/backend/internal/middleware"
	"github.com/filedepot/backend/internal/services"
	"github.com/filedepot/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type TermsHandler struct {
	Terms *services.TermsService
}

func NewTermsHandler(terms *services.TermsService) *TermsHandler {
	return &TermsHandler{Terms: terms}
}

func (h *TermsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	terms, err := h.Terms.Get(c.Context(), currentUser, treeID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, terms)
}

type setTermsRequest struct {
	Text string `json:"text"`
}

func (h *TermsHandler) Set(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	var req setTermsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	terms, err := h.Terms.Set(c.Context(), currentUser, treeID, req.Text)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, terms)
}

func (h *TermsHandler) Clear(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	if err := h.Terms.Clear(c.Context(), currentUser, treeID); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"cleared": true})
}

type agreeTermsRequest struct {
	Checksum string `json:"checksum"`
}

// Agree records the caller's consent to the checksum they were shown.
func (h *TermsHandler) Agree(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	var req agreeTermsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	agreement, err := h.Terms.Agree(c.Context(), currentUser, treeID, req.Checksum)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, agreement)
}

// Status reports whether the caller still owes an agreement for this tree.
func (h *TermsHandler) Status(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	treeID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid tree id")
	}

	needed, err := h.Terms.NeedsAgreement(c.Context(), currentUser, treeID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"agreementRequired": needed})
}
