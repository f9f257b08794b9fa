package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/LinikerOliva/tcc-back/internal/db/models"
)

const (
	clinicianIDKey      = "clinicianID"
	clinicianNameKey    = "clinicianName"
	clinicianLicenseKey = "clinicianLicense"

	// ClinicianHeader is set by the identity collaborator (the gateway that
	// authenticated the caller and checked the signing role) before requests
	// reach this service.
	ClinicianHeader = "X-Clinician-ID"
)

type IdentityMiddleware struct {
	db *gorm.DB
}

func NewIdentityMiddleware(db *gorm.DB) *IdentityMiddleware {
	return &IdentityMiddleware{db: db}
}

// RequireClinician resolves the forwarded clinician identity and rejects
// requests without one. The signing core does not authenticate; it only
// checks that an upstream identity was supplied and refers to an active row.
func (im *IdentityMiddleware) RequireClinician() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(ClinicianHeader)
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Missing clinician identity",
			})
			return
		}

		id, err := strconv.ParseUint(header, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Invalid clinician identity",
			})
			return
		}

		var clinician models.Clinician
		if err := im.db.First(&clinician, uint(id)).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Unknown clinician",
			})
			return
		}
		if !clinician.ActiveStatus {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"status":  "error",
				"message": "Clinician account is inactive",
			})
			return
		}

		StoreClinician(c, ClinicianIdentity{
			ID:      clinician.ID,
			Name:    clinician.FullName,
			License: clinician.LicenseNumber,
		})
		c.Next()
	}
}

// ClinicianIdentity carries the resolved clinician row fields to handlers.
type ClinicianIdentity struct {
	ID      uint
	Name    string
	License string
}

// StoreClinician attaches a resolved identity to the request context.
func StoreClinician(c *gin.Context, identity ClinicianIdentity) {
	c.Set(clinicianIDKey, identity.ID)
	c.Set(clinicianNameKey, identity.Name)
	c.Set(clinicianLicenseKey, identity.License)
}

// ClinicianFrom returns the clinician resolved by RequireClinician.
func ClinicianFrom(c *gin.Context) (ClinicianIdentity, bool) {
	id, exists := c.Get(clinicianIDKey)
	if !exists {
		return ClinicianIdentity{}, false
	}
	return ClinicianIdentity{
		ID:      id.(uint),
		Name:    c.GetString(clinicianNameKey),
		License: c.GetString(clinicianLicenseKey),
	}, true
}
