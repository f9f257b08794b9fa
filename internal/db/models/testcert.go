package models

import (
	"time"

	"gorm.io/gorm"
)

// TestCertificate records metadata about a self-signed certificate issued by
// the dev certificate generator. Only facts a verifier could read off the
// certificate itself are kept; the PKCS#12 bundle and its passphrase are
// returned to the caller once and never persisted.
type TestCertificate struct {
	gorm.Model
	Subject       string `gorm:"not null"`
	SerialNumber  string `gorm:"not null"`
	LicenseNumber string
	NotBefore     time.Time `gorm:"not null"`
	NotAfter      time.Time `gorm:"not null"`
	Filename      string
}
