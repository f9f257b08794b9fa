package services

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	pdfparse "github.com/digitorus/pdf"
	"github.com/digitorus/pdfsign/sign"
	"github.com/digitorus/timestamp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LinikerOliva/tcc-back/internal/db/models"
	"github.com/LinikerOliva/tcc-back/pkg/metrics"
)

// SignatureStore is the storage collaborator. CreateSigned must write the
// artifact and the record atomically and reject a duplicate document
// identifier with ErrAlreadySigned.
type SignatureStore interface {
	CreateSigned(ctx context.Context, record *models.SignatureRecord, artifact *models.SignedArtifact) error
	GetRecord(ctx context.Context, documentID string) (*models.SignatureRecord, error)
	GetArtifact(ctx context.Context, artifactID uint) (*models.SignedArtifact, error)
	IsSigned(ctx context.Context, documentID string) (bool, error)
}

type SignRequest struct {
	DocumentBytes  []byte
	ContainerBytes []byte
	Passphrase     string
	Reason         string
	Location       string

	// DocumentID is optional; a fresh identifier is minted when empty.
	DocumentID string

	SignerName    string
	SignerLicense string
	ClinicianID   *uint
}

type SignResult struct {
	DocumentID       string
	SignedBytes      []byte
	ContentHash      string
	SignedAt         time.Time
	TimestampApplied bool
	AdvisoryNotes    []string
	Filename         string
}

type SigningService struct {
	store   SignatureStore
	certs   *CertificateService
	stamps  *StampService
	logger  *zap.Logger
	metrics *metrics.MetricsCollector

	tsaURL     string
	tsaTimeout time.Duration

	now func() time.Time
}

func NewSigningService(
	store SignatureStore,
	certs *CertificateService,
	stamps *StampService,
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
	tsaURL string,
	tsaTimeout time.Duration,
) *SigningService {
	if tsaTimeout <= 0 {
		tsaTimeout = 3 * time.Second
	}
	return &SigningService{
		store:      store,
		certs:      certs,
		stamps:     stamps,
		logger:     logger.With(zap.String("service", "signing_service")),
		metrics:    metricsCollector,
		tsaURL:     tsaURL,
		tsaTimeout: tsaTimeout,
		now:        time.Now,
	}
}

// SetClock overrides the signing clock. Used by tests to pin signing time.
func (ps *SigningService) SetClock(now func() time.Time) {
	ps.now = now
}

// Sign runs the whole pipeline: unwrap and validate the certificate material,
// append the verification stamp, embed the signature, persist artifact and
// audit record in one transaction. Material is destroyed on every exit path.
func (ps *SigningService) Sign(ctx context.Context, req SignRequest) (*SignResult, error) {
	start := ps.now()

	if len(req.DocumentBytes) == 0 {
		return nil, ErrMissingInput
	}

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.New().String()
	}

	// Fast pre-check; the unique index still decides races.
	if signed, err := ps.store.IsSigned(ctx, docID); err != nil {
		return nil, err
	} else if signed {
		return nil, ErrAlreadySigned
	}

	material, err := ps.certs.LoadMaterial(req.ContainerBytes, req.Passphrase)
	if err != nil {
		return nil, err
	}
	defer material.Destroy()

	signedAt := start.UTC()
	notes, err := ps.certs.ValidateMaterial(material, signedAt)
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		ps.logger.Info("Certificate advisory", zap.String("document_id", docID), zap.String("note", note))
	}

	meta := DisplayMetadata{
		SignerName:    req.SignerName,
		SignerLicense: req.SignerLicense,
		Reason:        req.Reason,
		Location:      req.Location,
	}
	stamped, err := ps.stamps.Render(req.DocumentBytes, docID, meta, material.Facts(), signedAt)
	if err != nil {
		return nil, err
	}

	signedBytes, timestamped, err := ps.embedSignature(stamped, material, req.Reason, req.Location, signedAt)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(signedBytes)
	contentHash := hex.EncodeToString(digest[:])
	filename := fmt.Sprintf("documento_%s_assinado.pdf", docID)

	artifact := &models.SignedArtifact{
		Filename: filename,
		Content:  signedBytes,
		Size:     int64(len(signedBytes)),
	}
	record := &models.SignatureRecord{
		DocumentID:         docID,
		ContentHash:        contentHash,
		HashAlgorithm:      "SHA-256",
		SignatureAlgorithm: signatureAlgorithmName(material.Signer),
		SignerName:         req.SignerName,
		SignerLicense:      req.SignerLicense,
		ClinicianID:        req.ClinicianID,
		SignedAt:           signedAt,
		TimestampApplied:   timestamped,
		Reason:             req.Reason,
		Location:           req.Location,
		IsSigned:           true,
	}

	if err := ps.store.CreateSigned(ctx, record, artifact); err != nil {
		return nil, err
	}

	ps.metrics.IncrementCounter("documents_signed", nil)
	ps.metrics.ObserveSize("signed_document_size", float64(len(signedBytes)))
	ps.metrics.ObserveLatency("document_signing", time.Since(start))

	ps.logger.Info("Document signed",
		zap.String("document_id", docID),
		zap.String("content_hash", contentHash),
		zap.Bool("timestamp_applied", timestamped),
	)

	return &SignResult{
		DocumentID:       docID,
		SignedBytes:      signedBytes,
		ContentHash:      contentHash,
		SignedAt:         signedAt,
		TimestampApplied: timestamped,
		AdvisoryNotes:    notes,
		Filename:         filename,
	}, nil
}

// embedSignature writes the PAdES-style signature over the stamped bytes.
// When a timestamp authority is configured, its token is included only if the
// authority answers the reachability probe; an unreachable authority degrades
// to signing without a token instead of failing the request.
func (ps *SigningService) embedSignature(stamped []byte, material *CertificateMaterial, reason, location string, signedAt time.Time) ([]byte, bool, error) {
	if material == nil || material.Signer == nil || material.Certificate == nil {
		return nil, false, ErrIncompleteMaterial
	}

	input := bytes.NewReader(stamped)
	rdr, err := pdfparse.NewReader(input, int64(len(stamped)))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	signData := sign.SignData{
		Signature: sign.SignDataSignature{
			CertType:   sign.ApprovalSignature,
			DocMDPPerm: sign.AllowFillingExistingFormFieldsAndSignaturesPerms,
			Info: sign.SignDataSignatureInfo{
				Name:     material.Subject,
				Location: location,
				Reason:   reason,
				Date:     signedAt,
			},
		},
		Signer:          material.Signer,
		DigestAlgorithm: crypto.SHA256,
		Certificate:     material.Certificate,
	}
	if len(material.Chain) > 0 {
		chain := append([]*x509.Certificate{material.Certificate}, material.Chain...)
		signData.CertificateChains = [][]*x509.Certificate{chain}
	}

	timestamped := false
	if ps.tsaURL != "" {
		if ps.probeTimestampAuthority(ps.tsaURL) {
			signData.TSA = sign.TSA{URL: ps.tsaURL}
			timestamped = true
		} else {
			ps.logger.Warn("Timestamp authority unreachable, signing without token",
				zap.String("tsa_url", ps.tsaURL))
		}
	}

	var out bytes.Buffer
	if err := sign.Sign(input, &out, rdr, int64(len(stamped)), signData); err != nil {
		if timestamped {
			// Degrade rather than fail when the token fetch broke mid-sign.
			ps.logger.Warn("Signing with timestamp failed, retrying without", zap.Error(err))
			timestamped = false
			signData.TSA = sign.TSA{}
			out.Reset()
			if err := sign.Sign(input, &out, rdr, int64(len(stamped)), signData); err != nil {
				return nil, false, fmt.Errorf("%w: %v", ErrSigningFailed, err)
			}
		} else {
			return nil, false, fmt.Errorf("%w: %v", ErrSigningFailed, err)
		}
	}

	return out.Bytes(), timestamped, nil
}

// probeTimestampAuthority sends a throwaway RFC 3161 request with a short
// timeout so a dead authority cannot stall the signing request.
func (ps *SigningService) probeTimestampAuthority(url string) bool {
	reqBytes, err := timestamp.CreateRequest(bytes.NewReader([]byte("tsa-probe")), &timestamp.RequestOptions{
		Hash:         crypto.SHA256,
		Certificates: true,
	})
	if err != nil {
		return false
	}

	client := &http.Client{Timeout: ps.tsaTimeout}
	resp, err := client.Post(url, "application/timestamp-query", bytes.NewReader(reqBytes))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false
	}
	_, err = timestamp.ParseResponse(body)
	return err == nil
}

func signatureAlgorithmName(signer crypto.Signer) string {
	if signer == nil {
		return "SHA256"
	}
	switch signer.Public().(type) {
	case *rsa.PublicKey:
		return "SHA256-RSA"
	case *ecdsa.PublicKey:
		return "SHA256-ECDSA"
	default:
		return "SHA256"
	}
}
