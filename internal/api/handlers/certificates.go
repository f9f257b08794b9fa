package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LinikerOliva/tcc-back/internal/services"
)

type CertificateHandler struct {
	certGenService *services.CertGenService
	logger         *zap.Logger
}

func NewCertificateHandler(certGenService *services.CertGenService, logger *zap.Logger) *CertificateHandler {
	return &CertificateHandler{
		certGenService: certGenService,
		logger:         logger.With(zap.String("handler", "certificate")),
	}
}

// IssueTestCertificate generates a self-signed PKCS#12 container for local
// testing. The container bytes are returned once and never stored.
func (h *CertificateHandler) IssueTestCertificate(c *gin.Context) {
	var req struct {
		DoctorName    string `json:"doctor_name" binding:"required"`
		LicenseNumber string `json:"license_number"`
		Passphrase    string `json:"passphrase" binding:"required"`
		ValidDays     int    `json:"valid_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Informe doctor_name e passphrase",
		})
		return
	}
	if req.ValidDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "valid_days deve ser um inteiro positivo",
		})
		return
	}

	result, err := h.certGenService.IssueTestCertificate(c.Request.Context(), services.TestCertRequest{
		DoctorName:    req.DoctorName,
		LicenseNumber: req.LicenseNumber,
		Passphrase:    req.Passphrase,
		ValidDays:     req.ValidDays,
	})
	if err != nil {
		if errors.Is(err, services.ErrMissingInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": "Informe doctor_name e passphrase",
			})
			return
		}
		h.logger.Error("test certificate issuance failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Erro ao gerar o certificado de teste",
		})
		return
	}

	h.logger.Info("test certificate issued",
		zap.String("subject", result.Subject),
		zap.String("serial_number", result.SerialNumber),
	)

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("X-Certificate-Serial", result.SerialNumber)
	c.Data(http.StatusOK, "application/x-pkcs12", result.ContainerBytes)
}

// ListCertificates returns metadata for previously issued test certificates.
// Only public fields; no key material is ever persisted.
func (h *CertificateHandler) ListCertificates(c *gin.Context) {
	certs, err := h.certGenService.ListIssued(c.Request.Context())
	if err != nil {
		h.logger.Error("certificate listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Erro ao listar certificados",
		})
		return
	}

	summaries := make([]gin.H, len(certs))
	for i, cert := range certs {
		summaries[i] = gin.H{
			"subject":        cert.Subject,
			"serial_number":  cert.SerialNumber,
			"license_number": cert.LicenseNumber,
			"not_before":     cert.NotBefore,
			"not_after":      cert.NotAfter,
			"filename":       cert.Filename,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"certificates": summaries,
	})
}
