package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	appNameVar  = "MAILAUTH_APP_NAME"
	logLevelVar = "MAILAUTH_LOG_LEVEL"
)

type EnvVars struct {
	file *File
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, orDefault(e.file.AppName, "Mail OAuth"))
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, orDefault(e.file.LogLevel, "info"))
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvList splits a space or comma separated variable.
func GetEnvList(envVar string, defaultValue []string) []string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == ','
	})
}

func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return d
}

func GetEnvBool(envVar string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return b
}

func orDefault[T comparable](value, defaultValue T) T {
	var zero T
	if value == zero {
		return defaultValue
	}
	return value
}
