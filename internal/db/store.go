package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/LinikerOliva/tcc-back/internal/db/models"
	"github.com/LinikerOliva/tcc-back/internal/services"
)

// Store is the gorm-backed storage collaborator for the signing core.
type Store struct {
	db *gorm.DB
}

var (
	_ services.SignatureStore       = (*Store)(nil)
	_ services.CertificateDirectory = (*Store)(nil)
)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateSigned writes the signed bytes and the audit record in a single
// transaction; partial writes are never observable. The unique index on
// document_id turns the loser of a concurrent double-sign into ErrAlreadySigned.
func (s *Store) CreateSigned(ctx context.Context, record *models.SignatureRecord, artifact *models.SignedArtifact) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(artifact).Error; err != nil {
			return translateError(err)
		}
		record.ArtifactID = artifact.ID
		if err := tx.Create(record).Error; err != nil {
			return translateError(err)
		}
		return nil
	})
}

func (s *Store) GetRecord(ctx context.Context, documentID string) (*models.SignatureRecord, error) {
	var record models.SignatureRecord
	err := s.db.WithContext(ctx).First(&record, "document_id = ?", documentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *Store) GetArtifact(ctx context.Context, artifactID uint) (*models.SignedArtifact, error) {
	var artifact models.SignedArtifact
	err := s.db.WithContext(ctx).First(&artifact, artifactID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrRecordNotFound
		}
		return nil, err
	}
	return &artifact, nil
}

func (s *Store) IsSigned(ctx context.Context, documentID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.SignatureRecord{}).
		Where("document_id = ? AND is_signed = ?", documentID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) SaveTestCertificate(ctx context.Context, cert *models.TestCertificate) error {
	return s.db.WithContext(ctx).Create(cert).Error
}

func (s *Store) ListTestCertificates(ctx context.Context) ([]models.TestCertificate, error) {
	var certs []models.TestCertificate
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&certs).Error
	return certs, err
}

func translateError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return services.ErrAlreadySigned
	}
	return err
}
