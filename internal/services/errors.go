package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingInput       = errors.New("required input missing or empty")
	ErrInvalidPassphrase  = errors.New("invalid passphrase or corrupted certificate container")
	ErrIncompleteMaterial = errors.New("certificate container is missing the certificate or private key")
	ErrMalformedDocument  = errors.New("document bytes are not a parseable PDF")
	ErrSigningFailed      = errors.New("signing failed")
	ErrAlreadySigned      = errors.New("document already signed")
	ErrRecordNotFound     = errors.New("signature record not found")
)

// ValidityWindowError reports a certificate used outside its validity window.
// Both bounds are carried for diagnostics.
type ValidityWindowError struct {
	NotBefore time.Time
	NotAfter  time.Time
	Now       time.Time
}

func (e *ValidityWindowError) Error() string {
	return fmt.Sprintf("certificate expired or not yet valid: valid from %s to %s, checked at %s",
		e.NotBefore.UTC().Format(time.RFC3339),
		e.NotAfter.UTC().Format(time.RFC3339),
		e.Now.UTC().Format(time.RFC3339))
}
