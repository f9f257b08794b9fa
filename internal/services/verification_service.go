package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/LinikerOliva/tcc-back/pkg/metrics"
)

// VerificationFacts is everything an unauthenticated holder of a document
// identifier gets back. Only persisted audit fields, never key material.
type VerificationFacts struct {
	DocumentID         string    `json:"document_identifier"`
	SignerDisplayName  string    `json:"signer_display_name"`
	ContentHash        string    `json:"content_hash"`
	HashAlgorithm      string    `json:"hash_algorithm"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	SignedAt           time.Time `json:"signed_at"`
	IsSigned           bool      `json:"is_signed"`
	TimestampApplied   bool      `json:"timestamp_applied"`
}

type VerificationService struct {
	store   SignatureStore
	logger  *zap.Logger
	metrics *metrics.MetricsCollector
}

func NewVerificationService(store SignatureStore, logger *zap.Logger, metricsCollector *metrics.MetricsCollector) *VerificationService {
	return &VerificationService{
		store:   store,
		logger:  logger.With(zap.String("service", "verification_service")),
		metrics: metricsCollector,
	}
}

// Verify returns the persisted signing facts for a document identifier.
// A missing record means "never signed", reported as ErrRecordNotFound; it is
// a distinct outcome from tampering, which shows up as a hash mismatch when
// the caller re-hashes the bytes they hold.
func (vs *VerificationService) Verify(ctx context.Context, documentID string) (*VerificationFacts, error) {
	if documentID == "" {
		return nil, ErrMissingInput
	}

	record, err := vs.store.GetRecord(ctx, documentID)
	if err != nil {
		return nil, err
	}

	vs.metrics.IncrementCounter("documents_verified", nil)
	vs.logger.Info("Document verification served", zap.String("document_id", documentID))

	return &VerificationFacts{
		DocumentID:         record.DocumentID,
		SignerDisplayName:  record.SignerName,
		ContentHash:        record.ContentHash,
		HashAlgorithm:      record.HashAlgorithm,
		SignatureAlgorithm: record.SignatureAlgorithm,
		SignedAt:           record.SignedAt,
		IsSigned:           record.IsSigned,
		TimestampApplied:   record.TimestampApplied,
	}, nil
}

// SignedArtifactFor fetches the stored signed bytes for download.
func (vs *VerificationService) SignedArtifactFor(ctx context.Context, documentID string) (string, []byte, error) {
	record, err := vs.store.GetRecord(ctx, documentID)
	if err != nil {
		return "", nil, err
	}
	artifact, err := vs.store.GetArtifact(ctx, record.ArtifactID)
	if err != nil {
		return "", nil, err
	}
	return artifact.Filename, artifact.Content, nil
}
