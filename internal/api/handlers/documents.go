package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LinikerOliva/tcc-back/internal/api/middleware"
	"github.com/LinikerOliva/tcc-back/internal/services"
)

// maxDocumentSize caps uploaded PDFs at 20 MiB, matching the gateway limit.
const maxDocumentSize = 20 << 20

type DocumentHandler struct {
	signingService      *services.SigningService
	verificationService *services.VerificationService
	logger              *zap.Logger
}

func NewDocumentHandler(
	signingService *services.SigningService,
	verificationService *services.VerificationService,
	logger *zap.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		signingService:      signingService,
		verificationService: verificationService,
		logger:              logger.With(zap.String("handler", "document")),
	}
}

// SignDocument receives a PDF plus a PKCS#12 container, produces the stamped
// and signed document and records the signature. The passphrase only lives in
// the request scope; it is never logged or persisted.
func (h *DocumentHandler) SignDocument(c *gin.Context) {
	clinician, ok := middleware.ClinicianFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  "error",
			"message": "Missing clinician identity",
		})
		return
	}

	docHeader, err := c.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Envie o documento PDF a ser assinado",
		})
		return
	}
	if ext := strings.ToLower(filepath.Ext(docHeader.Filename)); ext != ".pdf" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Apenas arquivos PDF sao aceitos",
		})
		return
	}
	document, err := h.readFormFile(c, "document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Envie o documento PDF a ser assinado",
		})
		return
	}

	container, err := h.readFormFile(c, "certificate_container")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Envie o certificado digital (.pfx)",
		})
		return
	}

	passphrase := c.PostForm("passphrase")
	if passphrase == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Informe a senha do certificado",
		})
		return
	}

	clinicianID := clinician.ID
	result, err := h.signingService.Sign(c.Request.Context(), services.SignRequest{
		DocumentBytes:  document,
		ContainerBytes: container,
		Passphrase:     passphrase,
		DocumentID:     c.PostForm("document_identifier"),
		Reason:         c.PostForm("reason"),
		Location:       c.PostForm("location"),
		SignerName:     clinician.Name,
		SignerLicense:  clinician.License,
		ClinicianID:    &clinicianID,
	})
	if err != nil {
		status, message := signingFailure(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("signing failed",
				zap.Error(err),
				zap.Uint("clinician_id", clinician.ID),
			)
		} else {
			h.logger.Warn("signing rejected",
				zap.Error(err),
				zap.Uint("clinician_id", clinician.ID),
			)
		}
		c.JSON(status, gin.H{
			"status":  "error",
			"message": message,
		})
		return
	}

	h.logger.Info("document signed",
		zap.String("document_id", result.DocumentID),
		zap.Uint("clinician_id", clinician.ID),
		zap.Bool("timestamp_applied", result.TimestampApplied),
	)

	if c.PostForm("response") == "json" || c.Query("response") == "json" {
		c.JSON(http.StatusOK, gin.H{
			"status":                 "success",
			"message":                "Documento assinado com sucesso",
			"signed_document_base64": base64.StdEncoding.EncodeToString(result.SignedBytes),
			"filename":               result.Filename,
			"document_identifier":    result.DocumentID,
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("X-Document-Identifier", result.DocumentID)
	c.Data(http.StatusOK, "application/pdf", result.SignedBytes)
}

// DownloadArtifact streams the stored signed PDF for a document identifier.
func (h *DocumentHandler) DownloadArtifact(c *gin.Context) {
	id := c.Param("id")

	filename, content, err := h.verificationService.SignedArtifactFor(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "error",
				"message": "Documento nao encontrado",
			})
			return
		}
		h.logger.Error("artifact lookup failed", zap.Error(err), zap.String("document_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Erro ao recuperar o documento assinado",
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", content)
}

func (h *DocumentHandler) readFormFile(c *gin.Context, field string) ([]byte, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	if header.Size > maxDocumentSize {
		return nil, fmt.Errorf("file %s exceeds size limit", field)
	}

	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(io.LimitReader(f, maxDocumentSize+1))
}

// signingFailure maps service errors onto HTTP responses. Messages mirror the
// front end's expectations and never include certificate or key material.
func signingFailure(err error) (int, string) {
	var window *services.ValidityWindowError

	switch {
	case errors.Is(err, services.ErrMissingInput):
		return http.StatusBadRequest, "Documento ou certificado ausente"
	case errors.Is(err, services.ErrInvalidPassphrase):
		return http.StatusBadRequest, "PIN do certificado invalido ou arquivo PFX corrompido"
	case errors.Is(err, services.ErrIncompleteMaterial):
		return http.StatusBadRequest, "O certificado enviado nao contem chave privada e certificado"
	case errors.Is(err, services.ErrMalformedDocument):
		return http.StatusBadRequest, "O arquivo enviado nao e um PDF valido"
	case errors.As(err, &window):
		return http.StatusUnprocessableEntity, window.Error()
	case errors.Is(err, services.ErrAlreadySigned):
		return http.StatusConflict, "Este documento ja foi assinado"
	default:
		return http.StatusInternalServerError, "Erro ao assinar o documento"
	}
}
