package config

import (
	"os"
	"strconv"
	"time"

	"github.com/brightloop/schedulerd/internal/platform/logger"
)

// getEnv reads a string env var, logging (at debug level) whether it was
// found or defaulted, the pattern internal/utils/env.go's GetEnv follows.
func getEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	if log != nil {
		log.Debug("environment variable found", "value", val)
	}
	return val
}

func getEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		if log != nil {
			log.With("env_var", key).Debug("could not parse as int, using default", "provided", valStr, "default", defaultVal)
		}
		return defaultVal
	}
	return i
}

func getEnvAsFloat(key string, defaultVal float64, log *logger.Logger) float64 {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	f, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		if log != nil {
			log.With("env_var", key).Debug("could not parse as float, using default", "provided", valStr, "default", defaultVal)
		}
		return defaultVal
	}
	return f
}

func getEnvAsBool(key string, defaultVal bool, log *logger.Logger) bool {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	b, err := strconv.ParseBool(valStr)
	if err != nil {
		if log != nil {
			log.With("env_var", key).Debug("could not parse as bool, using default", "provided", valStr, "default", defaultVal)
		}
		return defaultVal
	}
	return b
}

// getEnvAsDuration parses a millisecond integer env var into a
// time.Duration; every *Ms configuration key in the external-interfaces
// section is stored this way.
func getEnvAsDuration(key string, defaultMs int, log *logger.Logger) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultMs, log)) * time.Millisecond
}
