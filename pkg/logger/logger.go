package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Level values ("debug", "info", ...)
// select verbosity; "production" switches to the JSON production encoder.
func NewLogger(level string) (*zap.Logger, error) {
	var config zap.Config

	if level == "production" {
		config = zap.NewProductionConfig()
		config.DisableCaller = false
		config.DisableStacktrace = false
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(level)); err == nil {
			config.Level.SetLevel(parsed)
		}
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(envLevel)); err == nil {
			config.Level.SetLevel(parsed)
		}
	}

	return config.Build()
}
