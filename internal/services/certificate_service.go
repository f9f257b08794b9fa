package services

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"software.sslmate.com/src/go-pkcs12"
)

// CertificateMaterial is the request-scoped result of unwrapping a PKCS#12
// container. It is never persisted; every signing request defers Destroy.
type CertificateMaterial struct {
	Signer      crypto.Signer
	Certificate *x509.Certificate
	Chain       []*x509.Certificate

	Subject      string
	Issuer       string
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
}

// Destroy drops the key material references. Go cannot scrub memory the
// runtime already copied, but after this call nothing reachable from the
// service holds the private key.
func (m *CertificateMaterial) Destroy() {
	if m == nil {
		return
	}
	m.Signer = nil
	m.Certificate = nil
	m.Chain = nil
}

// CertificateFacts are the display-only certificate fields printed on the
// verification stamp.
type CertificateFacts struct {
	Subject      string
	Issuer       string
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
}

func (m *CertificateMaterial) Facts() *CertificateFacts {
	if m == nil {
		return nil
	}
	return &CertificateFacts{
		Subject:      m.Subject,
		Issuer:       m.Issuer,
		SerialNumber: m.SerialNumber,
		NotBefore:    m.NotBefore,
		NotAfter:     m.NotAfter,
	}
}

type CertificateService struct {
	logger *zap.Logger
}

func NewCertificateService(logger *zap.Logger) *CertificateService {
	return &CertificateService{
		logger: logger.With(zap.String("service", "certificate_service")),
	}
}

// LoadMaterial unwraps a PKCS#12 container. The passphrase is used only for
// the decode call; neither it nor the container bytes are logged or retained.
func (cs *CertificateService) LoadMaterial(containerBytes []byte, passphrase string) (*CertificateMaterial, error) {
	if len(containerBytes) == 0 || passphrase == "" {
		return nil, ErrMissingInput
	}

	key, cert, chain, err := pkcs12.DecodeChain(containerBytes, passphrase)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, ErrInvalidPassphrase
		}
		// A trust-store container decodes fine but carries no private key.
		if _, tsErr := pkcs12.DecodeTrustStore(containerBytes, passphrase); tsErr == nil {
			return nil, ErrIncompleteMaterial
		}
		cs.logger.Warn("PKCS#12 decode failed", zap.Error(err))
		return nil, ErrInvalidPassphrase
	}

	if cert == nil || key == nil {
		return nil, ErrIncompleteMaterial
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: private key type %T cannot sign", ErrIncompleteMaterial, key)
	}

	material := &CertificateMaterial{
		Signer:       signer,
		Certificate:  cert,
		Chain:        chain,
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		SerialNumber: cert.SerialNumber.String(),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
	}

	cs.logger.Info("Certificate material loaded",
		zap.String("subject", material.Subject),
		zap.String("serial", material.SerialNumber),
		zap.Int("chain_length", len(chain)),
	)
	return material, nil
}

// ValidateMaterial enforces the validity window at a caller-supplied instant.
// The returned advisory notes flag structural extensions that are commonly
// absent from self-signed test certificates; they never block signing.
func (cs *CertificateService) ValidateMaterial(material *CertificateMaterial, now time.Time) ([]string, error) {
	if material == nil || material.Certificate == nil {
		return nil, ErrIncompleteMaterial
	}

	if now.Before(material.NotBefore) || now.After(material.NotAfter) {
		return nil, &ValidityWindowError{
			NotBefore: material.NotBefore,
			NotAfter:  material.NotAfter,
			Now:       now,
		}
	}

	var notes []string
	cert := material.Certificate
	if !cert.BasicConstraintsValid {
		notes = append(notes, "certificate has no basic constraints extension")
	}
	if len(cert.PolicyIdentifiers) == 0 {
		notes = append(notes, "certificate declares no certificate policies")
	}
	if cert.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		notes = append(notes, "certificate key usage does not assert digital signature")
	}

	return notes, nil
}
