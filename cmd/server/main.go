package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filedepot/backend/internal/config"
	"github.com/filedepot/backend/internal/database"
	"github.com/filedepot/backend/internal/handlers"
	"github.com/filedepot/backend/internal/middleware"
	"github.com/filedepot/backend/internal/services"
	"github.com/filedepot/backend/internal/storage"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/filedepot/backend/pkg/uploadtoken"
	"github.com/filedepot/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	uploadtoken.SetSecret(cfg.JWT.Secret)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	permService := services.NewPermissionService(db)
	quotaService := services.NewQuotaService(db)
	treeService := services.NewTreeService(db, permService, quotaService)
	folderService := services.NewFolderService(db, permService, quotaService, cfg.Depot.DefaultQuotaBytes)
	fileService := services.NewFileService(db, permService, folderService, storageClient)
	checksumQueue := services.NewChecksumQueueService(db, fileService, cfg.Depot.ChecksumQueueSize)
	checksumQueue.RecoverPending()
	termsService := services.NewTermsService(db, permService)
	uploadService := services.NewAuthorizedUploadService(db, permService, folderService, fileService, cfg.Depot.AuthorizedUploadTTL)

	authHandler := handlers.NewAuthHandler(db)
	usersHandler := handlers.NewUsersHandler(db)
	groupsHandler := handlers.NewGroupsHandler(db)
	foldersHandler := handlers.NewFoldersHandler(folderService, storageClient)
	filesHandler := handlers.NewFilesHandler(fileService, checksumQueue, storageClient)
	treesHandler := handlers.NewTreesHandler(treeService, quotaService, permService)
	termsHandler := handlers.NewTermsHandler(termsService)
	uploadsHandler := handlers.NewAuthorizedUploadsHandler(uploadService, fileService, checksumQueue)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.CORSOrigins))
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

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

	// Reads run with optional auth so public trees stay reachable
	// anonymously; mutations always require a user.
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

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			checksumQueue.Stop()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
