package config

import (
	"os"
	"strings"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// GetEnv returns an environment variable's value, falling back to
// defaultValue when unset or empty.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// RequireEnv returns an environment variable's value and panics when it is
// missing. Reserve this for settings production cannot run without.
func RequireEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic("required environment variable not set: " + key)
	}
	return value
}

// GetEnvironment returns the lowercased current environment, defaulting to
// development.
func GetEnvironment() string {
	return strings.ToLower(GetEnv("PHARMATRACK_SERVER_ENVIRONMENT", EnvDevelopment))
}

// IsDevelopment reports whether the current environment is development.
func IsDevelopment() bool {
	return GetEnvironment() == EnvDevelopment
}

// IsStaging reports whether the current environment is staging.
func IsStaging() bool {
	return GetEnvironment() == EnvStaging
}

// IsProduction reports whether the current environment is production.
func IsProduction() bool {
	return GetEnvironment() == EnvProduction
}

// IsProductionLike reports whether production-grade configuration rules
// should apply (staging or production).
func IsProductionLike() bool {
	return IsStaging() || IsProduction()
}
