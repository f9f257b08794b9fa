package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/LinikerOliva/tcc-back/internal/api/middleware"
	"github.com/LinikerOliva/tcc-back/internal/db/models"
	"github.com/LinikerOliva/tcc-back/internal/services"
	"github.com/LinikerOliva/tcc-back/pkg/metrics"
)

// memoryStore mirrors the database store contract for handler tests.
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
		return services.ErrAlreadySigned
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
		return nil, services.ErrRecordNotFound
	}
	return record, nil
}

func (ms *memoryStore) GetArtifact(ctx context.Context, artifactID uint) (*models.SignedArtifact, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	artifact, ok := ms.artifacts[artifactID]
	if !ok {
		return nil, services.ErrRecordNotFound
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

type testEnv struct {
	store  *memoryStore
	engine *gin.Engine
}

// newTestEnv wires real services over the in-memory store and mounts the
// route surface with a stubbed identity.
func newTestEnv(t *testing.T, withIdentity bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	store := newMemoryStore()
	certService := services.NewCertificateService(logger)
	stampService := services.NewStampService(logger, "http://localhost:8000")
	signingService := services.NewSigningService(store, certService, stampService, logger,
		metrics.NewMetricsCollector(), "", time.Second)
	verificationService := services.NewVerificationService(store, logger, metrics.NewMetricsCollector())
	certGenService := services.NewCertGenService(store, logger, 2048)

	docHandler := NewDocumentHandler(signingService, verificationService, logger)
	verifyHandler := NewVerificationHandler(verificationService, logger)
	certHandler := NewCertificateHandler(certGenService, logger)

	engine := gin.New()
	if withIdentity {
		engine.Use(func(c *gin.Context) {
			middleware.StoreClinician(c, middleware.ClinicianIdentity{
				ID:      7,
				Name:    "Dr. Ana Souza",
				License: "CRM-SP 123456",
			})
		})
	}
	engine.POST("/api/documents/sign", docHandler.SignDocument)
	engine.GET("/api/documents/verify/:id", verifyHandler.VerifyDocument)
	engine.GET("/api/documents/:id/artifact", docHandler.DownloadArtifact)
	engine.POST("/api/certificates/test", certHandler.IssueTestCertificate)
	engine.GET("/api/certificates", certHandler.ListCertificates)

	return &testEnv{store: store, engine: engine}
}

func testPDF(t *testing.T) []byte {
	t.Helper()
	doc := gofpdf.New("P", "pt", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	doc.AddPage()
	doc.Text(48, 60, "Receituario de teste")
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func testPFX(t *testing.T, passphrase string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Country: []string{"BR"}, CommonName: "Dr. Ana Souza"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pfx, err := pkcs12.Modern.Encode(key, cert, nil, passphrase)
	require.NoError(t, err)
	return pfx
}

func signForm(t *testing.T, document, container []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if document != nil {
		part, err := writer.CreateFormFile("document", "laudo.pdf")
		require.NoError(t, err)
		_, err = part.Write(document)
		require.NoError(t, err)
	}
	if container != nil {
		part, err := writer.CreateFormFile("certificate_container", "certificado.pfx")
		require.NoError(t, err)
		_, err = part.Write(container)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestSignDocumentEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	body, contentType := signForm(t, testPDF(t), testPFX(t, "teste123"), map[string]string{
		"passphrase":          "teste123",
		"reason":              "Emissao de receituario",
		"location":            "Sao Paulo",
		"document_identifier": "rec-200",
		"response":            "json",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/sign", body)
	req.Header.Set("Content-Type", contentType)
	env.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Status               string `json:"status"`
		SignedDocumentBase64 string `json:"signed_document_base64"`
		Filename             string `json:"filename"`
		DocumentIdentifier   string `json:"document_identifier"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.SignedDocumentBase64)
	assert.Equal(t, "documento_rec-200_assinado.pdf", resp.Filename)
	assert.Equal(t, "rec-200", resp.DocumentIdentifier)

	record, err := env.store.GetRecord(context.Background(), "rec-200")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Ana Souza", record.SignerName)
	assert.Equal(t, "CRM-SP 123456", record.SignerLicense)
}

func TestSignDocumentAttachmentResponse(t *testing.T) {
	env := newTestEnv(t, true)

	body, contentType := signForm(t, testPDF(t), testPFX(t, "teste123"), map[string]string{
		"passphrase":          "teste123",
		"document_identifier": "rec-201",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/sign", body)
	req.Header.Set("Content-Type", contentType)
	env.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "documento_rec-201_assinado.pdf")
	assert.Equal(t, "rec-201", w.Header().Get("X-Document-Identifier"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestSignDocumentWithoutIdentity(t *testing.T) {
	env := newTestEnv(t, false)

	body, contentType := signForm(t, testPDF(t), testPFX(t, "teste123"), map[string]string{
		"passphrase": "teste123",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/sign", body)
	req.Header.Set("Content-Type", contentType)
	env.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignDocumentErrorMapping(t *testing.T) {
	document := testPDF(t)
	container := testPFX(t, "teste123")

	cases := []struct {
		name       string
		document   []byte
		container  []byte
		passphrase string
		wantStatus int
	}{
		{"missing document", nil, container, "teste123", http.StatusBadRequest},
		{"missing container", document, nil, "teste123", http.StatusBadRequest},
		{"missing passphrase", document, container, "", http.StatusBadRequest},
		{"wrong passphrase", document, container, "senha-errada", http.StatusBadRequest},
		{"not a pdf", []byte("nao e pdf"), container, "teste123", http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			body, contentType := signForm(t, tc.document, tc.container, map[string]string{
				"passphrase": tc.passphrase,
			})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/documents/sign", body)
			req.Header.Set("Content-Type", contentType)
			env.engine.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestSignDocumentExpiredCertificate(t *testing.T) {
	env := newTestEnv(t, true)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "Dr. Ana Souza"},
		NotBefore:    time.Now().AddDate(-2, 0, 0),
		NotAfter:     time.Now().AddDate(-1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	expired, err := pkcs12.Modern.Encode(key, cert, nil, "teste123")
	require.NoError(t, err)

	body, contentType := signForm(t, testPDF(t), expired, map[string]string{"passphrase": "teste123"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/sign", body)
	req.Header.Set("Content-Type", contentType)
	env.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestSignDocumentConflict(t *testing.T) {
	env := newTestEnv(t, true)
	container := testPFX(t, "teste123")
	document := testPDF(t)

	for i, wantStatus := range []int{http.StatusOK, http.StatusConflict} {
		body, contentType := signForm(t, document, container, map[string]string{
			"passphrase":          "teste123",
			"document_identifier": "rec-204",
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/documents/sign", body)
		req.Header.Set("Content-Type", contentType)
		env.engine.ServeHTTP(w, req)
		assert.Equal(t, wantStatus, w.Code, "attempt %d: %s", i, w.Body.String())
	}
}

func TestVerifyEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	signedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, env.store.CreateSigned(context.Background(),
		&models.SignatureRecord{
			DocumentID:         "rec-300",
			ContentHash:        "abc123",
			HashAlgorithm:      "SHA-256",
			SignatureAlgorithm: "SHA256-RSA",
			SignerName:         "Dr. Ana Souza",
			SignedAt:           signedAt,
			IsSigned:           true,
		},
		&models.SignedArtifact{Filename: "documento_rec-300_assinado.pdf", Content: []byte("%PDF"), Size: 4},
	))

	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/verify/rec-300", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var facts map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &facts))
	assert.Equal(t, "Dr. Ana Souza", facts["signer_display_name"])
	assert.Equal(t, "abc123", facts["content_hash"])
	assert.Equal(t, true, facts["is_signed"])
}

func TestVerifyEndpointNotFound(t *testing.T) {
	env := newTestEnv(t, false)

	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/verify/nunca-assinado", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadArtifactEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	require.NoError(t, env.store.CreateSigned(context.Background(),
		&models.SignatureRecord{DocumentID: "rec-301", IsSigned: true},
		&models.SignedArtifact{Filename: "documento_rec-301_assinado.pdf", Content: []byte("%PDF conteudo"), Size: 13},
	))

	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/rec-301/artifact", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "documento_rec-301_assinado.pdf")
	assert.Equal(t, []byte("%PDF conteudo"), w.Body.Bytes())

	w = httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/rec-999/artifact", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueTestCertificateEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	payload := `{"doctor_name":"Dr. Carlos Lima","license_number":"CRM-RJ 654321","passphrase":"teste123","valid_days":30}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/certificates/test", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	env.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/x-pkcs12", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())

	// The returned bundle opens with the declared passphrase.
	key, cert, err := pkcs12.Decode(w.Body.Bytes(), "teste123")
	require.NoError(t, err)
	assert.NotNil(t, key)
	assert.Contains(t, cert.Subject.String(), "Dr. Carlos Lima")

	w = httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/certificates", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Certificates []map[string]any `json:"certificates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Certificates, 1)
	assert.Equal(t, "CRM-RJ 654321", list.Certificates[0]["license_number"])
}

func TestIssueTestCertificateMissingFields(t *testing.T) {
	env := newTestEnv(t, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/certificates/test", bytes.NewBufferString(`{"doctor_name":"Dr. Carlos Lima"}`))
	req.Header.Set("Content-Type", "application/json")
	env.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
