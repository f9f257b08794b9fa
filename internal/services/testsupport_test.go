package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/LinikerOliva/tcc-back/internal/db/models"
	"github.com/LinikerOliva/tcc-back/pkg/metrics"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

// sharedTestKey amortizes RSA key generation across the package tests.
func sharedTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return testKey
}

// newTestPDF renders a small real PDF with the given number of pages.
func newTestPDF(t *testing.T, pages int) []byte {
	t.Helper()
	doc := gofpdf.New("P", "pt", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.Text(48, 60, "Receituario de teste")
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func newTestCertificate(t *testing.T, notBefore, notAfter time.Time, commonName string) *x509.Certificate {
	t.Helper()
	key := sharedTestKey(t)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Country:      []string{"BR"},
			Organization: []string{"Clinica de Teste"},
			CommonName:   commonName,
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

// newTestContainer builds a PKCS#12 bundle holding the shared key and a
// self-signed certificate valid between the given bounds.
func newTestContainer(t *testing.T, notBefore, notAfter time.Time, passphrase, commonName string) []byte {
	t.Helper()
	cert := newTestCertificate(t, notBefore, notAfter, commonName)
	pfx, err := pkcs12.Modern.Encode(sharedTestKey(t), cert, nil, passphrase)
	require.NoError(t, err)
	return pfx
}

// memoryStore is an in-memory SignatureStore and CertificateDirectory with
// the same duplicate-rejection contract as the database store.
type memoryStore struct {
	mu        sync.Mutex
	records   map[string]*models.SignatureRecord
	artifacts map[uint]*models.SignedArtifact
	certs     []models.TestCertificate
	nextID    uint
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		records:   make(map[string]*models.SignatureRecord),
		artifacts: make(map[uint]*models.SignedArtifact),
	}
}

func (ms *memoryStore) CreateSigned(ctx context.Context, record *models.SignatureRecord, artifact *models.SignedArtifact) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.records[record.DocumentID]; exists {
		return ErrAlreadySigned
	}
	ms.nextID++
	artifact.ID = ms.nextID
	record.ArtifactID = artifact.ID
	ms.artifacts[artifact.ID] = artifact
	ms.records[record.DocumentID] = record
	return nil
}

func (ms *memoryStore) GetRecord(ctx context.Context, documentID string) (*models.SignatureRecord, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	record, ok := ms.records[documentID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

func (ms *memoryStore) GetArtifact(ctx context.Context, artifactID uint) (*models.SignedArtifact, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	artifact, ok := ms.artifacts[artifactID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return artifact, nil
}

func (ms *memoryStore) IsSigned(ctx context.Context, documentID string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	record, ok := ms.records[documentID]
	return ok && record.IsSigned, nil
}

func (ms *memoryStore) SaveTestCertificate(ctx context.Context, cert *models.TestCertificate) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.certs = append(ms.certs, *cert)
	return nil
}

func (ms *memoryStore) ListTestCertificates(ctx context.Context) ([]models.TestCertificate, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]models.TestCertificate(nil), ms.certs...), nil
}

func newTestSigningService(store SignatureStore, tsaURL string) *SigningService {
	logger := zap.NewNop()
	return NewSigningService(
		store,
		NewCertificateService(logger),
		NewStampService(logger, "http://localhost:8000"),
		logger,
		metrics.NewMetricsCollector(),
		tsaURL,
		time.Second,
	)
}
