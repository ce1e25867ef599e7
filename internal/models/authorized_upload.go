package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthorizedUpload authorizes a third party to upload into a folder on the
// creator's behalf. The bearer credential is a signed, expiring capability
// token minted from this record (pkg/uploadtoken).
type AuthorizedUpload struct {
	BaseModel
	FolderID  uuid.UUID `json:"folderID" gorm:"type:uuid;not null;index"`
	CreatorID uuid.UUID `json:"creatorID" gorm:"type:uuid;not null;index"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null"`
	Folder    Folder    `json:"-" gorm:"foreignKey:FolderID"`
	Creator   User      `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
}

func (u *AuthorizedUpload) Expired(now time.Time) bool {
	return now.After(u.ExpiresAt)
}
