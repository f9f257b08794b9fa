package models

import (
	"gorm.io/gorm"
)

// SignedArtifact holds the signed document bytes. Stored in its own table so
// the audit record stays small; both rows are written in one transaction.
type SignedArtifact struct {
	gorm.Model
	Filename string `gorm:"not null"`
	Content  []byte `gorm:"type:bytea;not null"`
	Size     int64  `gorm:"not null"`
}
