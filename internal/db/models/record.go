package models

import (
	"time"

	"gorm.io/gorm"
)

// SignatureRecord is the durable audit trace of one successful signing. It is
// created exactly once per document identifier; the unique index on
// DocumentID is what serializes concurrent attempts to sign the same
// document. It never stores the passphrase, private key or raw container.
type SignatureRecord struct {
	gorm.Model
	DocumentID         string `gorm:"uniqueIndex;not null"`
	ContentHash        string `gorm:"not null"` // hex digest of the signed bytes
	HashAlgorithm      string `gorm:"not null;default:'SHA-256'"`
	SignatureAlgorithm string `gorm:"not null"`

	// Display identity printed on the stamp. ClinicianID is nullable so the
	// record survives removal of the clinician account.
	SignerName    string
	SignerLicense string
	ClinicianID   *uint `gorm:"index"`

	SignedAt         time.Time `gorm:"not null"`
	TimestampApplied bool      `gorm:"not null;default:false"`
	Reason           string
	Location         string

	ArtifactID uint `gorm:"not null"`
	IsSigned   bool `gorm:"not null;default:false"`
}
