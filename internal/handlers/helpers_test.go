package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/filedepot/backend/internal/apperrors"
	"github.com/gofiber/fiber/v2"
)

func TestRespondServiceError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"validation", apperrors.NewValidation("name", "is required"), http.StatusBadRequest, ""},
		{"not found", &apperrors.NotFoundError{Resource: "folder"}, http.StatusNotFound, "folder not found"},
		{"permission denied", &apperrors.PermissionDeniedError{}, http.StatusForbidden, "permission denied"},
		{"quota exceeded", &apperrors.QuotaExceededError{Attempted: 1200, Allowed: 1000}, http.StatusConflict, ""},
		{"content already set", &apperrors.ContentAlreadySetError{}, http.StatusConflict, "file content is already set"},
		{"integrity stays generic", &apperrors.IntegrityError{Err: errors.New("UNIQUE constraint failed: folders.name")}, http.StatusInternalServerError, "internal server error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return respondServiceError(c, tc.err)
			})

			resp := performRequest(t, app, http.MethodGet, "/", nil, nil)
			assertStatus(t, resp, tc.wantStatus)

			payload := decodeJSONMap(t, resp)
			if payload["success"] != false {
				t.Fatalf("expected success=false, got %v", payload)
			}
			if tc.wantError != "" && payload["error"] != tc.wantError {
				t.Fatalf("expected error %q, got %v", tc.wantError, payload["error"])
			}
			// Storage error text never reaches the caller.
			if msg, _ := payload["error"].(string); tc.name == "integrity stays generic" && msg != "internal server error" {
				t.Fatalf("expected raw constraint text hidden, got %q", msg)
			}
		})
	}
}
