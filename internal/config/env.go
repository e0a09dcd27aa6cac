package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; values already present in the process
// environment win.
var envFiles = []string{".env", ".env.local"}

// LoadEnv loads TDRDIFF_* (and any other) variables from .env files in the
// current directory. It returns the files that were loaded.
func LoadEnv() ([]string, error) {
	var loaded []string
	for _, name := range envFiles {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, err
		}
		loaded = append(loaded, name)
	}
	return loaded, nil
}
