package models

import "github.com/google/uuid"

// Quota tracks live content bytes for one tree. The used <= allowed and
// used >= 0 invariants are declared as storage-level check constraints in
// addition to the guarded update in the quota service.
type Quota struct {
	BaseModel
	TreeID  uuid.UUID `json:"treeID" gorm:"type:uuid;not null;uniqueIndex"`
	Used    int64     `json:"used" gorm:"not null;default:0;check:quota_used_nonnegative,used >= 0;check:quota_used_lte_allowed,used <= allowed"`
	Allowed int64     `json:"allowed" gorm:"not null"`
}

func (q *Quota) Remaining() int64 {
	return q.Allowed - q.Used
}
