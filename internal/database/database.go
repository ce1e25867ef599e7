package database

import (
	"fmt"

	"github.com/filedepot/backend/internal/config"
	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := applyPostgresConstraints(db); err != nil {
		return nil, err
	}

	if err := seedAdminUser(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the schema, including the declared uniqueness and check
// constraints. Portable across postgres and the in-memory sqlite used by
// tests.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.GroupMembership{},
		&models.Tree{},
		&models.Quota{},
		&models.Folder{},
		&models.File{},
		&models.PermissionGrant{},
		&models.Terms{},
		&models.TermsAgreement{},
		&models.AuthorizedUpload{},
	)
}

// applyPostgresConstraints adds the constraints AutoMigrate cannot express.
// The grant target check guarantees a grant names exactly one principal even
// if application code regresses.
func applyPostgresConstraints(db *gorm.DB) error {
	constraint := `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1
    FROM pg_constraint
    WHERE conname = 'grant_principal_check'
  ) THEN
    ALTER TABLE permission_grants
    ADD CONSTRAINT grant_principal_check
    CHECK (
      (user_id IS NOT NULL AND group_id IS NULL)
      OR
      (user_id IS NULL AND group_id IS NOT NULL)
    );
  END IF;
END $$;`

	return db.Exec(constraint).Error
}

func seedAdminUser(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := models.User{
		Email:        "admin@filedepot.local",
		PasswordHash: hash,
		FirstName:    "System",
		LastName:     "Admin",
		Role:         models.UserRoleAdmin,
	}

	return db.Create(&admin).Error
}
