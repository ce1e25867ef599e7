package models

import "github.com/google/uuid"

// MaxFolderDepth caps the folder tree height. Depth is fixed at creation and
// the same constant bounds every ancestor walk, so a corrupted parent chain
// can never loop forever.
const MaxFolderDepth = 30

type Folder struct {
	BaseModel
	Name        string     `json:"name" gorm:"type:varchar(255);not null;uniqueIndex:idx_folder_siblings_name;index:idx_root_folder_name,unique,where:parent_id IS NULL"`
	Description string     `json:"description" gorm:"type:text"`
	Depth       int        `json:"depth" gorm:"not null"`
	Size        int64      `json:"size" gorm:"not null;default:0"`
	Metadata    JSONObject `json:"metadata" gorm:"not null;default:'{}'"`
	TreeID      uuid.UUID  `json:"treeID" gorm:"type:uuid;not null;index"`
	ParentID    *uuid.UUID `json:"parentID,omitempty" gorm:"type:uuid;uniqueIndex:idx_folder_siblings_name"`
	CreatorID   uuid.UUID  `json:"creatorID" gorm:"type:uuid;not null;index"`

	Tree     Tree     `json:"-" gorm:"foreignKey:TreeID"`
	Parent   *Folder  `json:"-" gorm:"foreignKey:ParentID"`
	Children []Folder `json:"-" gorm:"foreignKey:ParentID"`
	Files    []File   `json:"-" gorm:"foreignKey:FolderID"`
	Creator  User     `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
}

// IsRoot reports whether this folder anchors its tree.
func (f *Folder) IsRoot() bool {
	return f.ParentID == nil
}
