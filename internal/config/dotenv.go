package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotenv reads a .env file and sets environment variables that are not already defined.
// Missing file is silently ignored. Existing env vars are never overridden.
func LoadDotenv(path string) error {
	if !exists(path) {
		return nil
	}
	return godotenv.Load(path)
}

// ReloadDotenv re-reads a .env file, overriding variables it defines.
// Missing file is silently ignored.
func ReloadDotenv(path string) error {
	if !exists(path) {
		return nil
	}
	return godotenv.Overload(path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
