package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LinikerOliva/tcc-back/internal/api"
	"github.com/LinikerOliva/tcc-back/internal/config"
	"github.com/LinikerOliva/tcc-back/internal/db"
	"github.com/LinikerOliva/tcc-back/internal/db/models"
	"github.com/LinikerOliva/tcc-back/internal/services"
	"github.com/LinikerOliva/tcc-back/pkg/logger"
	"github.com/LinikerOliva/tcc-back/pkg/metrics"
)

func main() {
	// Local development reads a .env file; in containers the variables come
	// from the environment directly.
	_ = godotenv.Load()

	cfg := config.Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	zapLogger, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	config.LogConfig(cfg, zapLogger)

	database, err := db.Initialize(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to initialize database", zap.Error(err))
	}

	metricsCollector := metrics.NewMetricsCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedDatabase(ctx, database, zapLogger); err != nil {
		zapLogger.Fatal("Failed to seed database", zap.Error(err))
	}

	store := db.NewStore(database)
	certificateService := services.NewCertificateService(zapLogger)
	stampService := services.NewStampService(zapLogger, cfg.Signing.VerificationBaseURL)
	signingService := services.NewSigningService(
		store,
		certificateService,
		stampService,
		zapLogger,
		metricsCollector,
		cfg.Signing.TSAURL,
		cfg.Signing.TSATimeout,
	)
	verificationService := services.NewVerificationService(store, zapLogger, metricsCollector)
	certGenService := services.NewCertGenService(store, zapLogger, cfg.Signing.TestCertKeyBits)

	router := api.NewRouter(zapLogger, metricsCollector, signingService, verificationService, certGenService, database)
	router.SetupRoutes()

	go func() {
		if err := router.Run(":" + cfg.Server.Port); err != nil {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	zapLogger.Info("Server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	sqlDB, err := database.DB()
	if err == nil {
		sqlDB.Close()
	}
	zapLogger.Info("Server gracefully stopped")
}

// seedDatabase creates a couple of clinicians so the identity header has
// rows to resolve against in a fresh environment.
func seedDatabase(ctx context.Context, database *gorm.DB, logger *zap.Logger) error {
	var count int64
	database.WithContext(ctx).Model(&models.Clinician{}).Count(&count)
	if count > 0 {
		logger.Info("Database already seeded, skipping")
		return nil
	}
	logger.Info("Seeding database with initial data")

	clinicians := []models.Clinician{
		{FullName: "Dr. Ana Souza", LicenseNumber: "CRM-SP 123456", Specialty: "Clinica Geral", Email: "ana.souza@clinica.local", ActiveStatus: true},
		{FullName: "Dr. Carlos Lima", LicenseNumber: "CRM-RJ 654321", Specialty: "Cardiologia", Email: "carlos.lima@clinica.local", ActiveStatus: true},
	}

	if err := database.WithContext(ctx).Create(&clinicians).Error; err != nil {
		return err
	}
	logger.Info("Created initial clinicians", zap.Int("count", len(clinicians)))
	return nil
}
