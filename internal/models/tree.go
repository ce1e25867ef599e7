package models

// Tree is the unit of permission and quota scope. A tree is created with its
// root folder and never standalone; deleting the root folder deletes the tree
// and everything scoped to it.
type Tree struct {
	BaseModel
	Public bool              `json:"public" gorm:"not null;default:false;index"`
	Quota  *Quota            `json:"quota,omitempty" gorm:"foreignKey:TreeID"`
	Terms  *Terms            `json:"-" gorm:"foreignKey:TreeID"`
	Grants []PermissionGrant `json:"-" gorm:"foreignKey:TreeID"`
}
