package handlers

import (
	"net/http"
	"testing"

	"github.com/filedepot/backend/internal/models"
)

func TestAuthHandler_RegisterAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"email":     "Alice@Example.com",
		"password":  "supersecret",
		"firstName": "Alice",
		"lastName":  "Smith",
	}, nil)
	assertStatus(t, resp, http.StatusCreated)
	payload := decodeJSONMap(t, resp)
	data := dataMap(t, payload)
	if data["token"] == "" || data["token"] == nil {
		t.Fatal("expected a token in the register response")
	}

	t.Run("email stored lowercased", func(t *testing.T) {
		var user models.User
		if err := env.db.First(&user, "email = ?", "alice@example.com").Error; err != nil {
			t.Fatalf("expected lowercased email lookup to succeed: %v", err)
		}
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":     "alice@example.com",
			"password":  "supersecret",
			"firstName": "Alice",
			"lastName":  "Smith",
		}, nil)
		assertStatus(t, resp, http.StatusConflict)
	})

	t.Run("short password rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":     "bob@example.com",
			"password":  "short",
			"firstName": "Bob",
			"lastName":  "Jones",
		}, nil)
		assertStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("login and me", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "alice@example.com",
			"password": "supersecret",
		}, nil)
		assertStatus(t, resp, http.StatusOK)
		data := dataMap(t, decodeJSONMap(t, resp))
		token, _ := data["token"].(string)
		if token == "" {
			t.Fatal("expected a login token")
		}

		resp = performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)
		me := dataMap(t, decodeJSONMap(t, resp))
		if me["email"] != "alice@example.com" {
			t.Fatalf("expected own profile, got %v", me["email"])
		}
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "alice@example.com",
			"password": "wrong-password",
		}, nil)
		assertStatus(t, resp, http.StatusUnauthorized)
	})

	t.Run("me requires a token", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, nil)
		assertStatus(t, resp, http.StatusUnauthorized)
	})
}
