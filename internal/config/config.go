package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

type Configuration struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Signing  SigningConfig  `json:"signing"`
	Logging  LoggingConfig  `json:"logging"`
}

type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

type DatabaseConfig struct {
	Host            string `json:"host"`
	Port            string `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	SSLMode         string `json:"ssl_mode"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	MaxOpenConns    int    `json:"max_open_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime"`
}

type SigningConfig struct {
	// VerificationBaseURL is the public prefix printed on the stamp page;
	// the document identifier is appended to it.
	VerificationBaseURL string        `json:"verification_base_url"`
	TSAURL              string        `json:"tsa_url"`
	TSATimeout          time.Duration `json:"tsa_timeout"`
	TestCertKeyBits     int           `json:"test_cert_key_bits"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns the configuration used when no file is supplied. Values
// can still be overridden by environment variables via ApplyEnv.
func Default() *Configuration {
	return &Configuration{
		Server: ServerConfig{
			Port:         "8000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            "5432",
			Username:        "postgres",
			Password:        "password",
			Name:            "tcc_back",
			SSLMode:         "disable",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: 300,
		},
		Signing: SigningConfig{
			VerificationBaseURL: "http://localhost:8000",
			TSAURL:              "",
			TSATimeout:          3 * time.Second,
			TestCertKeyBits:     2048,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a JSON configuration file on top of the defaults.
func Load(filePath string) (*Configuration, error) {
	cfg := Default()

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables onto the configuration. Callers
// typically run godotenv.Load first so a local .env file is honored.
func (cfg *Configuration) ApplyEnv() {
	setIfPresent := func(target *string, key string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setIfPresent(&cfg.Server.Port, "PORT")
	setIfPresent(&cfg.Database.Host, "DB_HOST")
	setIfPresent(&cfg.Database.Port, "DB_PORT")
	setIfPresent(&cfg.Database.Username, "DB_USER")
	setIfPresent(&cfg.Database.Password, "DB_PASSWORD")
	setIfPresent(&cfg.Database.Name, "DB_NAME")
	setIfPresent(&cfg.Database.SSLMode, "DB_SSLMODE")
	setIfPresent(&cfg.Signing.VerificationBaseURL, "VERIFICATION_BASE_URL")
	setIfPresent(&cfg.Signing.TSAURL, "TSA_URL")
	setIfPresent(&cfg.Logging.Level, "LOG_LEVEL")
}

// LogConfig reports the effective configuration with secrets redacted.
func LogConfig(cfg *Configuration, logger *zap.Logger) {
	logger.Info("Application configuration",
		zap.String("port", cfg.Server.Port),
		zap.Duration("read_timeout", cfg.Server.ReadTimeout),
		zap.Duration("write_timeout", cfg.Server.WriteTimeout),
		zap.String("database_host", cfg.Database.Host),
		zap.String("database_name", cfg.Database.Name),
		zap.String("database_password", "[REDACTED]"),
		zap.String("verification_base_url", cfg.Signing.VerificationBaseURL),
		zap.String("tsa_url", cfg.Signing.TSAURL),
		zap.Duration("tsa_timeout", cfg.Signing.TSATimeout),
	)
}
