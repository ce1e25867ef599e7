package models

import "github.com/google/uuid"

// TermsAgreement records one user's consent to one version of a tree's terms.
// It is valid only while its checksum matches the current terms checksum.
type TermsAgreement struct {
	BaseModel
	UserID   uuid.UUID `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_terms_agreement"`
	TermsID  uuid.UUID `json:"termsID" gorm:"type:uuid;not null;index;uniqueIndex:idx_terms_agreement"`
	Checksum string    `json:"checksum" gorm:"type:varchar(32);not null"`
	User     User      `json:"-" gorm:"foreignKey:UserID"`
	Terms    Terms     `json:"-" gorm:"foreignKey:TermsID"`
}

func (a *TermsAgreement) Current(terms *Terms) bool {
	return terms != nil && a.Checksum == terms.Checksum
}
