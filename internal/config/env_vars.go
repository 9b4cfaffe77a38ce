package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	appNameVar        = "APP_NAME"
	folderEnvVar      = "DATA_FOLDER"
	logLevelVar       = "LOG_LEVEL"
	backendURLVar     = "BACKEND_BASE_URL"
	requestTimeoutVar = "REQUEST_TIMEOUT_MS"
)

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDataFolder() string
	GetBackendBaseURL() string
	GetRequestTimeout() time.Duration
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "API Dashboard")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

// GetBackendBaseURL returns the versioned API origin (e.g., "https://api.example.com").
// Resource paths such as /b/projects/ are appended to it.
func (EnvVars) GetBackendBaseURL() string {
	return strings.TrimSuffix(GetEnv(backendURLVar, ""), "/")
}

func (EnvVars) GetRequestTimeout() time.Duration {
	return time.Duration(GetEnvInt(requestTimeoutVar, 30000)) * time.Millisecond
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvInt(envVar string, defaultValue int) int {
	if value := os.Getenv(envVar); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
