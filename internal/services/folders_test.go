package services

import (
	"context"
	"testing"

	"github.com/filedepot/backend/internal/apperrors"
	"github.com/filedepot/backend/internal/models"
)

func TestFolderService_CreateRoot(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestServices(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner@example.com")
	root := createTestRoot(t, svc, owner, "workspace")

	if !root.IsRoot() || root.Depth != 0 {
		t.Fatalf("expected a depth-0 root folder, got depth=%d parent=%v", root.Depth, root.ParentID)
	}

	quota := loadQuota(t, db, root.TreeID)
	if quota.Allowed != testQuotaBytes || quota.Used != 0 {
		t.Fatalf("expected fresh quota %d/0, got %d/%d", testQuotaBytes, quota.Allowed, quota.Used)
	}

	ok, err := svc.Perms.HasPermission(ctx, owner, root.TreeID, models.PermissionAdmin)
	if err != nil || !ok {
		t.Fatalf("expected creator admin grant, got ok=%v err=%v", ok, err)
	}

	t.Run("root names are globally unique", func(t *testing.T) {
		other := createTestUser(t, db, "other@example.com")
		_, err := svc.Folders.Create(ctx, other, CreateFolderInput{Name: "workspace"})
		if _, ok := apperrors.IsValidation(err); !ok {
			t.Fatalf("expected ValidationError for duplicate root name, got %v", err)
		}
	})

	t.Run("name validation", func(t *testing.T) {
		for _, name := range []string{"", "   ", "a/b"} {
			if _, err := svc.Folders.Create(ctx, owner, CreateFolderInput{Name: name}); err == nil {
				t.Fatalf("expected error for name %q", name)
			}
		}
	})
}

func TestFolderService_CreateChild(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestServices(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner@example.com")
	root := createTestRoot(t, svc, owner, "workspace")
	child := createTestChild(t, svc, owner, root, "docs")

	if child.Depth != 1 || child.TreeID != root.TreeID {
		t.Fatalf("expected depth-1 child in the parent's tree, got depth=%d", child.Depth)
	}

	t.Run("sibling folder names collide", func(t *testing.T) {
		_, err := svc.Folders.Create(ctx, owner, CreateFolderInput{Name: "docs", ParentID: &root.ID})
		if _, ok := apperrors.IsValidation(err); !ok {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("same name under a different parent is fine", func(t *testing.T) {
		if _, err := svc.Folders.Create(ctx, owner, CreateFolderInput{Name: "docs", ParentID: &child.ID}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("folder name collides with a sibling file", func(t *testing.T) {
		registerTestFile(t, svc, owner, root, "report.pdf", 10)
		_, err := svc.Folders.Create(ctx, owner, CreateFolderInput{Name: "report.pdf", ParentID: &root.ID})
		if _, ok := apperrors.IsValidation(err); !ok {
			t.Fatalf("expected ValidationError for cross-type collision, got %v", err)
		}
	})

	t.Run("write access is required", func(t *testing.T) {
		stranger := createTestUser(t, db, "stranger@example.com")
		_, err := svc.Folders.Create(ctx, stranger, CreateFolderInput{Name: "intruder", ParentID: &root.ID})
		if _, ok := apperrors.IsNotFound(err); !ok {
			t.Fatalf("expected NotFoundError for unreadable tree, got %v", err)
		}
	})

	t.Run("reader cannot create but sees a permission error", func(t *testing.T) {
		reader := createTestUser(t, db, "reader@example.com")
		if err := svc.Perms.GrantPermission(ctx, root.TreeID, GrantInput{Principal: UserPrincipal(reader.ID), Level: models.PermissionRead}); err != nil {
			t.Fatalf("failed granting read: %v", err)
		}
		_, err := svc.Folders.Create(ctx, reader, CreateFolderInput{Name: "blocked", ParentID: &root.ID})
		if _, ok := apperrors.IsPermissionDenied(err); !ok {
			t.Fatalf("expected PermissionDeniedError, got %v", err)
		}
	})
}

func TestFolderService_DepthCeiling(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestServices(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner@example.com")
	folder := createTestRoot(t, svc, owner, "deep")

	for depth := 1; depth <= models.MaxFolderDepth; depth++ {
		folder = createTestChild(t, svc, owner, folder, "level")
	}
	if folder.Depth != models.MaxFolderDepth {
		t.Fatalf("expected to reach depth %d, got %d", models.MaxFolderDepth, folder.Depth)
	}

	_, err := svc.Folders.Create(ctx, owner, CreateFolderInput{Name: "too-deep", ParentID: &folder.ID})
	if _, ok := apperrors.IsMaxDepthExceeded(err); !ok {
		t.Fatalf("expected MaxDepthExceededError, got %v", err)
	}
}

func TestFolderService_PathToRoot(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestServices(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner@example.com")
	root := createTestRoot(t, svc, owner, "workspace")
	docs := createTestChild(t, svc, owner, root, "docs")
	reports := createTestChild(t, svc, owner, docs, "reports")

	path, err := svc.Folders.PathToRoot(ctx, reports)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected a 3-element path, got %d", len(path))
	}
	if path[0].ID != root.ID || path[1].ID != docs.ID || path[2].ID != reports.ID {
		t.Fatal("expected root-first ordering")
	}
}

func TestFolderService_SizePropagation(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestServices(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner@example.com")
	root := createTestRoot(t, svc, owner, "workspace")
	docs := createTestChild(t, svc, owner, root, "docs")
	reports := createTestChild(t, svc, owner, docs, "reports")

	registerTestFile(t, svc, owner, reports, "q1.pdf", 100)
	registerTestFile(t, svc, owner, docs, "readme.md", 40)

	assertSize := func(folderID interface{}, want int64) {
		t.Helper()
		var folder models.Folder
		if err := db.First(&folder, "id = ?", folderID).Error; err != nil {
			t.Fatalf("failed loading folder: %v", err)
		}
		if folder.Size != want {
			t.Fatalf("expected size %d, got %d", want, folder.Size)
		}
	}

	assertSize(reports.ID, 100)
	assertSize(docs.ID, 140)
	assertSize(root.ID, 140)

	quota := loadQuota(t, db, root.TreeID)
	if quota.Used != 140 {
		t.Fatalf("expected quota used 140, got %d", quota.Used)
	}

	t.Run("quota overflow rolls back folder sizes", func(t *testing.T) {
		_, err := svc.Files.Register(ctx, owner, RegisterFileInput{
			FolderID: reports.ID,
			Name:     "huge.bin",
			Size:     testQuotaBytes,
		})
		if _, ok := apperrors.IsQuotaExceeded(err); !ok {
			t.Fatalf("expected QuotaExceededError, got %v", err)
		}

		assertSize(reports.ID, 100)
		assertSize(root.ID, 140)
		quota := loadQuota(t, db, root.TreeID)
		if quota.Used != 140 {
			t.Fatalf("expected quota unchanged at 140, got %d", quota.Used)
		}

		var count int64
		if err := db.Model(&models.File{}).Where("name = ?", "huge.bin").Count(&count).Error; err != nil {
			t.Fatalf("failed counting files: %v", err)
		}
		if count != 0 {
			t.Fatal("expected the rejected file row to be rolled back")
		}
	})
}

func TestFolderService_Update(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestServices(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner@example.com")
	root := createTestRoot(t, svc, owner, "workspace")
	docs := createTestChild(t, svc, owner, root, "docs")
	createTestChild(t, svc, owner, root, "media")

	newName := "documents"
	updated, err := svc.Folders.Update(ctx, owner, docs.ID, UpdateFolderInput{
		Name:     &newName,
		Metadata: models.JSONObject{"color": "blue"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "documents" {
		t.Fatalf("expected renamed folder, got %q", updated.Name)
	}
	if updated.Metadata["color"] != "blue" {
		t.Fatalf("expected metadata to persist, got %v", updated.Metadata)
	}

	t.Run("rename onto a sibling collides", func(t *testing.T) {
		taken := "media"
		_, err := svc.Folders.Update(ctx, owner, docs.ID, UpdateFolderInput{Name: &taken})
		if _, ok := apperrors.IsValidation(err); !ok {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestFolderService_Delete(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestServices(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner@example.com")
	root := createTestRoot(t, svc, owner, "workspace")
	docs := createTestChild(t, svc, owner, root, "docs")
	reports := createTestChild(t, svc, owner, docs, "reports")
	registerTestFile(t, svc, owner, reports, "q1.pdf", 100)
	registerTestFile(t, svc, owner, root, "keep.txt", 10)

	t.Run("subtree delete decrements ancestors and quota", func(t *testing.T) {
		subtree, err := svc.Folders.Delete(ctx, owner, docs.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if subtree.RootDeleted {
			t.Fatal("expected a non-root deletion")
		}

		var folderCount int64
		db.Model(&models.Folder{}).Where("tree_id = ?", root.TreeID).Count(&folderCount)
		if folderCount != 1 {
			t.Fatalf("expected only the root to remain, got %d folders", folderCount)
		}

		var rootRow models.Folder
		if err := db.First(&rootRow, "id = ?", root.ID).Error; err != nil {
			t.Fatalf("failed loading root: %v", err)
		}
		if rootRow.Size != 10 {
			t.Fatalf("expected root size 10 after deletion, got %d", rootRow.Size)
		}
		quota := loadQuota(t, db, root.TreeID)
		if quota.Used != 10 {
			t.Fatalf("expected quota used 10, got %d", quota.Used)
		}
	})

	t.Run("decrement follows the size stored at delete time", func(t *testing.T) {
		archive := createTestChild(t, svc, owner, root, "archive")
		registerTestFile(t, svc, owner, archive, "a.bin", 40)

		// A registration landing just before the delete must be part of the
		// decrement: the delete reads the size inside its own transaction,
		// never from an earlier snapshot.
		registerTestFile(t, svc, owner, archive, "b.bin", 25)

		if _, err := svc.Folders.Delete(ctx, owner, archive.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var rootRow models.Folder
		if err := db.First(&rootRow, "id = ?", root.ID).Error; err != nil {
			t.Fatalf("failed loading root: %v", err)
		}
		if rootRow.Size != 10 {
			t.Fatalf("expected root back at size 10, got %d", rootRow.Size)
		}
		quota := loadQuota(t, db, root.TreeID)
		if quota.Used != 10 {
			t.Fatalf("expected quota back at 10, got %d", quota.Used)
		}
	})

	t.Run("root delete requires admin and removes the tree", func(t *testing.T) {
		writer := createTestUser(t, db, "writer@example.com")
		if err := svc.Perms.GrantPermission(ctx, root.TreeID, GrantInput{Principal: UserPrincipal(writer.ID), Level: models.PermissionWrite}); err != nil {
			t.Fatalf("failed granting write: %v", err)
		}
		if _, err := svc.Folders.Delete(ctx, writer, root.ID); err == nil {
			t.Fatal("expected root deletion by a writer to fail")
		}

		subtree, err := svc.Folders.Delete(ctx, owner, root.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !subtree.RootDeleted {
			t.Fatal("expected RootDeleted")
		}

		var trees, quotas, grants int64
		db.Model(&models.Tree{}).Where("id = ?", root.TreeID).Count(&trees)
		db.Model(&models.Quota{}).Where("tree_id = ?", root.TreeID).Count(&quotas)
		db.Model(&models.PermissionGrant{}).Where("tree_id = ?", root.TreeID).Count(&grants)
		if trees != 0 || quotas != 0 || grants != 0 {
			t.Fatalf("expected tree/quota/grants gone, got %d/%d/%d", trees, quotas, grants)
		}
	})
}
