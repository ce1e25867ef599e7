package models

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Terms is tree-scoped terms-of-use text. The checksum tracks the text, so
// editing the terms invalidates every prior agreement.
type Terms struct {
	BaseModel
	TreeID   uuid.UUID `json:"treeID" gorm:"type:uuid;not null;uniqueIndex"`
	Text     string    `json:"text" gorm:"type:text;not null"`
	Checksum string    `json:"checksum" gorm:"type:varchar(32);not null"`
}

func (Terms) TableName() string {
	return "terms"
}

// TermsChecksum hashes terms text. MD5 is sufficient since this is not a
// cryptographic use case.
func TermsChecksum(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (t *Terms) BeforeSave(_ *gorm.DB) error {
	t.Text = strings.TrimSpace(t.Text)
	t.Checksum = TermsChecksum(t.Text)
	return nil
}
