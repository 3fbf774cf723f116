// Package testenv prepares integration tests: it loads .env.test and
// serializes access to the shared test database.
package testenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const envFile = ".env.test"

// ErrNoEnvFile means no .env.test exists, so integration tests cannot run.
var ErrNoEnvFile = errors.New("env file not found: " + envFile)

// Load finds .env.test in the working directory or a parent and applies it,
// overriding variables already set.
func Load() error {
	path, err := findUp(envFile)
	if err != nil {
		return err
	}
	return LoadFile(path)
}

func LoadFile(path string) error {
	if err := godotenv.Overload(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func findUp(filename string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}
	for {
		path := filepath.Join(dir, filename)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoEnvFile
		}
		dir = parent
	}
}
