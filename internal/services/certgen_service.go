package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/LinikerOliva/tcc-back/internal/db/models"
)

// CertificateDirectory persists issued-certificate metadata. The PKCS#12
// bundle itself is handed to the caller exactly once.
type CertificateDirectory interface {
	SaveTestCertificate(ctx context.Context, cert *models.TestCertificate) error
	ListTestCertificates(ctx context.Context) ([]models.TestCertificate, error)
}

type TestCertRequest struct {
	DoctorName    string
	LicenseNumber string
	Passphrase    string
	ValidDays     int
}

type TestCertResult struct {
	ContainerBytes []byte
	Filename       string
	Subject        string
	SerialNumber   string
	NotBefore      time.Time
	NotAfter       time.Time
}

// CertGenService issues self-signed test certificates so the signing flow can
// be exercised without ICP-Brasil material. Not for production use.
type CertGenService struct {
	directory CertificateDirectory
	logger    *zap.Logger
	keyBits   int
}

func NewCertGenService(directory CertificateDirectory, logger *zap.Logger, keyBits int) *CertGenService {
	if keyBits == 0 {
		keyBits = 2048
	}
	return &CertGenService{
		directory: directory,
		logger:    logger.With(zap.String("service", "certgen_service")),
		keyBits:   keyBits,
	}
}

func (gs *CertGenService) IssueTestCertificate(ctx context.Context, req TestCertRequest) (*TestCertResult, error) {
	if req.DoctorName == "" || req.Passphrase == "" {
		return nil, ErrMissingInput
	}
	if req.ValidDays <= 0 {
		req.ValidDays = 365
	}

	priv, err := rsa.GenerateKey(rand.Reader, gs.keyBits)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("serial generation failed: %w", err)
	}

	notBefore := time.Now().UTC()
	notAfter := notBefore.AddDate(0, 0, req.ValidDays)

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Country:            []string{"BR"},
			Organization:       []string{"Sistema Medico TCC"},
			OrganizationalUnit: []string{"Certificados de Teste"},
			CommonName:         req.DoctorName,
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("certificate creation failed: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("certificate parse-back failed: %w", err)
	}

	pfx, err := pkcs12.Modern.Encode(priv, cert, nil, req.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("PKCS#12 encoding failed: %w", err)
	}

	filename := fmt.Sprintf("certificado-medico-%s.pfx", notBefore.Format("2006-01-02T15-04-05"))
	row := &models.TestCertificate{
		Subject:       cert.Subject.String(),
		SerialNumber:  cert.SerialNumber.String(),
		LicenseNumber: req.LicenseNumber,
		NotBefore:     notBefore,
		NotAfter:      notAfter,
		Filename:      filename,
	}
	if err := gs.directory.SaveTestCertificate(ctx, row); err != nil {
		return nil, err
	}

	gs.logger.Info("Test certificate issued",
		zap.String("subject", row.Subject),
		zap.String("serial", row.SerialNumber),
		zap.Time("not_after", notAfter),
	)

	return &TestCertResult{
		ContainerBytes: pfx,
		Filename:       filename,
		Subject:        row.Subject,
		SerialNumber:   row.SerialNumber,
		NotBefore:      notBefore,
		NotAfter:       notAfter,
	}, nil
}

func (gs *CertGenService) ListIssued(ctx context.Context) ([]models.TestCertificate, error) {
	return gs.directory.ListTestCertificates(ctx)
}
