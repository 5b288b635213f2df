package utils

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file into the process environment. The error is
// informational: deployments without a .env file configure through real
// environment variables.
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnv returns the variable's value, or fallback when unset.
func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// GetEnvInt returns the variable parsed as an integer, or fallback when
// unset or unparsable.
func GetEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
