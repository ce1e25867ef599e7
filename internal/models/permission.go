package models

import "github.com/google/uuid"

// PermissionLevel is the tree access level. Higher levels imply the lower
// ones: admin implies write implies read.
type PermissionLevel string

const (
	PermissionRead  PermissionLevel = "read"
	PermissionWrite PermissionLevel = "write"
	PermissionAdmin PermissionLevel = "admin"
)

func (l PermissionLevel) Valid() bool {
	switch l {
	case PermissionRead, PermissionWrite, PermissionAdmin:
		return true
	default:
		return false
	}
}

func (l PermissionLevel) rank() int {
	switch l {
	case PermissionRead:
		return 1
	case PermissionWrite:
		return 2
	case PermissionAdmin:
		return 3
	default:
		return 0
	}
}

// Satisfies reports whether a holder of l also satisfies required.
func (l PermissionLevel) Satisfies(required PermissionLevel) bool {
	return l.rank() >= required.rank() && required.rank() > 0
}

// ImpliedBy returns every level whose holders satisfy l. Grant lookups match
// against this set rather than duplicating implication logic at call sites.
func (l PermissionLevel) ImpliedBy() []PermissionLevel {
	switch l {
	case PermissionRead:
		return []PermissionLevel{PermissionRead, PermissionWrite, PermissionAdmin}
	case PermissionWrite:
		return []PermissionLevel{PermissionWrite, PermissionAdmin}
	case PermissionAdmin:
		return []PermissionLevel{PermissionAdmin}
	default:
		return nil
	}
}

type PrincipalKind string

const (
	PrincipalUser  PrincipalKind = "user"
	PrincipalGroup PrincipalKind = "group"
)

// PermissionGrant is a single (principal, level) pair scoped to a tree.
// Exactly one of UserID and GroupID is set; a principal holds at most one
// explicit level per tree, implied levels are derived.
type PermissionGrant struct {
	BaseModel
	TreeID  uuid.UUID       `json:"treeID" gorm:"type:uuid;not null;index;uniqueIndex:idx_tree_user_grant;uniqueIndex:idx_tree_group_grant"`
	UserID  *uuid.UUID      `json:"userID,omitempty" gorm:"type:uuid;index;uniqueIndex:idx_tree_user_grant"`
	GroupID *uuid.UUID      `json:"groupID,omitempty" gorm:"type:uuid;index;uniqueIndex:idx_tree_group_grant"`
	Level   PermissionLevel `json:"level" gorm:"type:varchar(20);not null"`
	Tree    Tree            `json:"-" gorm:"foreignKey:TreeID"`
	User    *User           `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Group   *Group          `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

func (PermissionGrant) TableName() string {
	return "permission_grants"
}

func (g *PermissionGrant) PrincipalKind() PrincipalKind {
	if g.GroupID != nil {
		return PrincipalGroup
	}
	return PrincipalUser
}
