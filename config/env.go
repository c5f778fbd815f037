package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads key=value pairs from a .env file into the process
// environment. Variables that are already set are left untouched and a
// missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: failed to load %s, %v", ErrConfiguration, path, err)
	}
	return nil
}

// GetEnv returns the value of key or a configuration error when it is
// unset or blank.
func GetEnv(key string) (string, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: environment variable %s not set", ErrConfiguration, key)
	}
	return value, nil
}
