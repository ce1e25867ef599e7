package services

import (
	"bytes"
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/filedepot/backend/internal/database"
	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/pkg/logger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var testSetupOnce sync.Once

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
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

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "Test",
		LastName:     "User",
		Role:         models.UserRoleUser,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user %s: %v", email, err)
	}
	return user
}

func createTestGroup(t *testing.T, db *gorm.DB, name string, owner *models.User, members ...*models.User) *models.Group {
	t.Helper()
	group := &models.Group{Name: name, CreatedByID: owner.ID}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed creating group %s: %v", name, err)
	}
	for _, member := range members {
		membership := &models.GroupMembership{UserID: member.ID, GroupID: group.ID, Role: models.GroupRoleMember}
		if err := db.Create(membership).Error; err != nil {
			t.Fatalf("failed adding member to group %s: %v", name, err)
		}
	}
	return group
}

type testServices struct {
	Perms   *PermissionService
	Quotas  *QuotaService
	Trees   *TreeService
	Folders *FolderService
	Files   *FileService
	Terms   *TermsService
	Blobs   *memoryBlobStore
}

const testQuotaBytes = int64(1000)

func newTestServices(db *gorm.DB) *testServices {
	perms := NewPermissionService(db)
	quotas := NewQuotaService(db)
	folders := NewFolderService(db, perms, quotas, testQuotaBytes)
	blobs := newMemoryBlobStore()
	files := NewFileService(db, perms, folders, blobs)
	return &testServices{
		Perms:   perms,
		Quotas:  quotas,
		Trees:   NewTreeService(db, perms, quotas),
		Folders: folders,
		Files:   files,
		Terms:   NewTermsService(db, perms),
		Blobs:   blobs,
	}
}

func createTestRoot(t *testing.T, svc *testServices, creator *models.User, name string) *models.Folder {
	t.Helper()
	root, err := svc.Folders.Create(context.Background(), creator, CreateFolderInput{Name: name})
	if err != nil {
		t.Fatalf("failed creating root folder %s: %v", name, err)
	}
	return root
}

func createTestChild(t *testing.T, svc *testServices, creator *models.User, parent *models.Folder, name string) *models.Folder {
	t.Helper()
	child, err := svc.Folders.Create(context.Background(), creator, CreateFolderInput{Name: name, ParentID: &parent.ID})
	if err != nil {
		t.Fatalf("failed creating child folder %s: %v", name, err)
	}
	return child
}

func registerTestFile(t *testing.T, svc *testServices, creator *models.User, folder *models.Folder, name string, size int64) *models.File {
	t.Helper()
	file, err := svc.Files.Register(context.Background(), creator, RegisterFileInput{
		FolderID: folder.ID,
		Name:     name,
		Size:     size,
	})
	if err != nil {
		t.Fatalf("failed registering file %s: %v", name, err)
	}
	return file
}

// memoryBlobStore is an in-process stand-in for the object store.
type memoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{objects: map[string][]byte{}}
}

func (m *memoryBlobStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectName] = data
	return nil
}

func (m *memoryBlobStore) Open(_ context.Context, objectName string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryBlobStore) Size(_ context.Context, objectName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectName]
	if !ok {
		return 0, fmt.Errorf("object %s not found", objectName)
	}
	return int64(len(data)), nil
}

func (m *memoryBlobStore) Delete(_ context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectName)
	return nil
}

func (m *memoryBlobStore) has(objectName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[objectName]
	return ok
}

func loadQuota(t *testing.T, db *gorm.DB, treeID uuid.UUID) *models.Quota {
	t.Helper()
	var quota models.Quota
	if err := db.First(&quota, "tree_id = ?", treeID).Error; err != nil {
		t.Fatalf("failed loading quota for tree %s: %v", treeID, err)
	}
	return &quota
}
