package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LinikerOliva/tcc-back/internal/services"
)

type VerificationHandler struct {
	verificationService *services.VerificationService
	logger              *zap.Logger
}

func NewVerificationHandler(verificationService *services.VerificationService, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{
		verificationService: verificationService,
		logger:              logger.With(zap.String("handler", "verification")),
	}
}

// VerifyDocument answers the public question "was this identifier signed
// here, by whom, and over which content hash". Unauthenticated by design:
// anyone scanning the stamp QR code can check a document.
func (h *VerificationHandler) VerifyDocument(c *gin.Context) {
	id := c.Param("id")

	facts, err := h.verificationService.Verify(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingInput):
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": "Informe o identificador do documento",
			})
		case errors.Is(err, services.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "error",
				"message": "Nenhuma assinatura registrada para este documento",
			})
		default:
			h.logger.Error("verification lookup failed", zap.Error(err), zap.String("document_id", id))
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "Erro ao consultar o documento",
			})
		}
		return
	}

	c.JSON(http.StatusOK, facts)
}
