package handlers

import (
	"strings"

	"github.com/filedepot/backend/internal/apperrors"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/filedepot/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// respondServiceError maps a service error onto the HTTP surface. Quota and
// depth breaches come back as 409 since the request was well-formed but lost
// to the domain's limits; fallback is a 500 with no internal detail.
func respondServiceError(c *fiber.Ctx, err error) error {
	if vErr, ok := apperrors.IsValidation(err); ok {
		return utils.FieldErrors(c, fiber.StatusBadRequest, vErr.Fields)
	}
	if nfErr, ok := apperrors.IsNotFound(err); ok {
		return utils.Error(c, fiber.StatusNotFound, nfErr.Error())
	}
	if pdErr, ok := apperrors.IsPermissionDenied(err); ok {
		return utils.Error(c, fiber.StatusForbidden, pdErr.Error())
	}
	if qErr, ok := apperrors.IsQuotaExceeded(err); ok {
		return utils.Error(c, fiber.StatusConflict, qErr.Error())
	}
	if dErr, ok := apperrors.IsMaxDepthExceeded(err); ok {
		return utils.Error(c, fiber.StatusConflict, dErr.Error())
	}
	if _, ok := apperrors.IsContentAlreadySet(err); ok {
		return utils.Error(c, fiber.StatusConflict, "file content is already set")
	}
	if iErr, ok := apperrors.IsIntegrity(err); ok {
		// A constraint breach that pre-validation should have caught: an
		// application bug, not caller input. Log it, answer generically.
		logger.Error("integrity_violation", iErr, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "internal server error")
	}
	return utils.Error(c, fiber.StatusInternalServerError, "internal server error")
}
