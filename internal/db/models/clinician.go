package models

import (
	"time"

	"gorm.io/gorm"
)

// Clinician is the identity-collaborator row a signature record points back
// to. Authentication and role checks happen outside this service; the record
// only needs a stable reference and the display fields printed on the stamp.
type Clinician struct {
	gorm.Model
	FullName      string `gorm:"not null"`
	LicenseNumber string `gorm:"unique;not null"` // CRM, e.g. "CRM-SP 123456"
	Specialty     string
	Email         string
	ActiveStatus  bool `gorm:"not null;default:true"`
	LastSignedAt  time.Time

	SignatureRecords []SignatureRecord
}
