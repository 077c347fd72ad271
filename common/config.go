package common

import (
	"os"
	"strconv"
)

// Env returns the value of an environment variable or a fallback.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvBool parses a boolean environment variable ("true", "1", "yes").
func EnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch v {
	case "true", "True", "TRUE", "1", "yes":
		return true
	}
	return false
}

// EnvInt parses an integer environment variable.
func EnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// AppName is used in page titles and outgoing mail.
func AppName() string {
	return Env("APP_NAME", "Inkwell")
}
