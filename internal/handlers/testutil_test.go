package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/filedepot/backend/internal/database"
	"github.com/filedepot/backend/internal/middleware"
	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/internal/services"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/filedepot/backend/pkg/uploadtoken"
	"github.com/filedepot/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	blobs *memoryBlobStore
	queue *services.ChecksumQueueService
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
		uploadtoken.SetSecret("test-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	blobs := newMemoryBlobStore()

	permService := services.NewPermissionService(db)
	quotaService := services.NewQuotaService(db)
	treeService := services.NewTreeService(db, permService, quotaService)
	folderService := services.NewFolderService(db, permService, quotaService, 1000)
	fileService := services.NewFileService(db, permService, folderService, blobs)
	checksumQueue := services.NewChecksumQueueService(db, fileService, 10)
	termsService := services.NewTermsService(db, permService)
	uploadService := services.NewAuthorizedUploadService(db, permService, folderService, fileService, time.Hour)

	t.Cleanup(checksumQueue.Stop)

	authHandler := NewAuthHandler(db)
	usersHandler := NewUsersHandler(db)
	groupsHandler := NewGroupsHandler(db)
	foldersHandler := NewFoldersHandler(folderService, blobs)
	filesHandler := NewFilesHandler(fileService, checksumQueue, blobs)
	treesHandler := NewTreesHandler(treeService, quotaService, permService)
	termsHandler := NewTermsHandler(termsService)
	uploadsHandler := NewAuthorizedUploadsHandler(uploadService, fileService, checksumQueue)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.RequestLogger())

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, middleware.AdminOnly)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", groupsHandler.Create)
	groupRoutes.Get("/", groupsHandler.List)
	groupRoutes.Get("/:id", groupsHandler.Get)
	groupRoutes.Delete("/:id", groupsHandler.Delete)
	groupRoutes.Post("/:id/members", groupsHandler.AddMember)
	groupRoutes.Delete("/:id/members/:userID", groupsHandler.RemoveMember)

	folderRoutes := api.Group("/folders")
	folderRoutes.Post("/", authMiddleware.RequireAuth, foldersHandler.Create)
	folderRoutes.Get("/", authMiddleware.OptionalAuth, foldersHandler.ListRoots)
	folderRoutes.Get("/:id", authMiddleware.OptionalAuth, foldersHandler.Get)
	folderRoutes.Get("/:id/children", authMiddleware.OptionalAuth, foldersHandler.Children)
	folderRoutes.Get("/:id/path", authMiddleware.OptionalAuth, foldersHandler.Path)
	folderRoutes.Get("/:id/files", authMiddleware.OptionalAuth, filesHandler.ListFolder)
	folderRoutes.Get("/:id/uploads", authMiddleware.OptionalAuth, uploadsHandler.ListFolder)
	folderRoutes.Put("/:id", authMiddleware.RequireAuth, foldersHandler.Update)
	folderRoutes.Delete("/:id", authMiddleware.RequireAuth, foldersHandler.Delete)

	fileRoutes := api.Group("/files")
	fileRoutes.Post("/", authMiddleware.RequireAuth, filesHandler.Register)
	fileRoutes.Get("/search", authMiddleware.OptionalAuth, filesHandler.Search)
	fileRoutes.Get("/:id", authMiddleware.OptionalAuth, filesHandler.Get)
	fileRoutes.Get("/:id/download", authMiddleware.OptionalAuth, filesHandler.Download)
	fileRoutes.Put("/:id/content", authMiddleware.RequireAuth, filesHandler.AttachContent)
	fileRoutes.Put("/:id", authMiddleware.RequireAuth, filesHandler.Update)
	fileRoutes.Delete("/:id", authMiddleware.RequireAuth, filesHandler.Delete)

	treeRoutes := api.Group("/trees")
	treeRoutes.Get("/:id", authMiddleware.OptionalAuth, treesHandler.Get)
	treeRoutes.Put("/:id/public", authMiddleware.RequireAuth, treesHandler.SetPublic)
	treeRoutes.Get("/:id/quota", authMiddleware.OptionalAuth, treesHandler.GetQuota)
	treeRoutes.Put("/:id/quota", authMiddleware.RequireAuth, middleware.AdminOnly, treesHandler.SetQuota)
	treeRoutes.Get("/:id/grants", authMiddleware.RequireAuth, treesHandler.ListGrants)
	treeRoutes.Post("/:id/grants", authMiddleware.RequireAuth, treesHandler.Grant)
	treeRoutes.Put("/:id/grants", authMiddleware.RequireAuth, treesHandler.SetGrants)
	treeRoutes.Delete("/:id/grants", authMiddleware.RequireAuth, treesHandler.Revoke)
	treeRoutes.Get("/:id/terms", authMiddleware.OptionalAuth, termsHandler.Get)
	treeRoutes.Put("/:id/terms", authMiddleware.RequireAuth, termsHandler.Set)
	treeRoutes.Delete("/:id/terms", authMiddleware.RequireAuth, termsHandler.Clear)
	treeRoutes.Post("/:id/terms/agree", authMiddleware.RequireAuth, termsHandler.Agree)
	treeRoutes.Get("/:id/terms/status", authMiddleware.OptionalAuth, termsHandler.Status)

	uploadRoutes := api.Group("/uploads")
	uploadRoutes.Post("/", authMiddleware.RequireAuth, uploadsHandler.Create)
	uploadRoutes.Get("/:id", authMiddleware.OptionalAuth, uploadsHandler.Get)
	uploadRoutes.Delete("/:id", authMiddleware.RequireAuth, uploadsHandler.Delete)
	uploadRoutes.Post("/:id/files", uploadsHandler.Receive)

	return &testEnv{app: app, db: db, blobs: blobs, queue: checksumQueue}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func performMultipartUpload(t *testing.T, app *fiber.App, method, path, filename string, content []byte, headers map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed creating form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed writing form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	requestHeaders := map[string]string{"Content-Type": writer.FormDataContentType()}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	return performRequest(t, app, method, path, &buf, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func dataMap(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	data, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected object data field, got %v", payload)
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
