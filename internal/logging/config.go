package logging

import (
	"ixperf/internal/config"
)

// DevelopmentLoggingConfig returns logging configuration for local runs
func DevelopmentLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:  "debug",
		Format: "console", // Human-readable format for development
		Output: "stderr",
	}
}

// CILoggingConfig returns logging configuration for unattended benchmark
// runs whose logs are collected by machines
func CILoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stderr",
	}
}

// TestLoggingConfig returns logging configuration optimized for testing
func TestLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:  "error", // Minimal logging during tests
		Format: "json",
		Output: "stderr",
	}
}

// QuietLoggingConfig only reports problems
func QuietLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:  "warn",
		Format: "text",
		Output: "stderr",
	}
}

// SetupEnvironmentLogging configures logging based on environment
func SetupEnvironmentLogging(cfg *config.Config, environment string) {
	switch environment {
	case "development", "dev":
		cfg.Logging = DevelopmentLoggingConfig()
	case "ci":
		cfg.Logging = CILoggingConfig()
	case "test", "testing":
		cfg.Logging = TestLoggingConfig()
	case "quiet":
		cfg.Logging = QuietLoggingConfig()
	}
}
