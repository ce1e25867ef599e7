package models

import "github.com/google/uuid"

type File struct {
	BaseModel
	Name        string     `json:"name" gorm:"type:varchar(255);not null;uniqueIndex:idx_file_siblings_name"`
	Description string     `json:"description" gorm:"type:text"`
	ContentType string     `json:"contentType" gorm:"type:varchar(255);not null;default:'application/octet-stream'"`
	Size        int64      `json:"size" gorm:"not null"`
	Sha512      string     `json:"sha512" gorm:"type:varchar(128);not null;default:'';index"`
	Metadata    JSONObject `json:"metadata" gorm:"not null;default:'{}'"`
	FolderID    uuid.UUID  `json:"folderID" gorm:"type:uuid;not null;index;uniqueIndex:idx_file_siblings_name"`
	CreatorID   uuid.UUID  `json:"creatorID" gorm:"type:uuid;not null;index"`
	StoragePath string     `json:"-" gorm:"type:text;not null;default:''"`

	Folder  Folder `json:"-" gorm:"foreignKey:FolderID"`
	Creator User   `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
}

// Pending reports whether the file was registered but has no content yet.
func (f *File) Pending() bool {
	return f.StoragePath == ""
}

// ShortChecksum returns a 10-character digest prefix for display, or "" when
// the checksum has not been computed.
func (f *File) ShortChecksum() string {
	if len(f.Sha512) < 10 {
		return ""
	}
	return f.Sha512[:10]
}
