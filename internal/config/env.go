package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// DefaultEnvFiles are read by LoadEnv when no files are given.
var DefaultEnvFiles = []string{".env", ".secrets"}

// LoadEnv loads KEY=VALUE files into the process environment.
// Variables already set in the environment win; missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}

	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	return nil
}

// Load reads the config file when path is non-empty or the default file exists,
// and falls back to Default() otherwise.
func Load(path string) (*Config, string, error) {
	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			return Default(), "", nil
		}

		path = DefaultPath
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, path, err
	}

	return cfg, path, nil
}

// DefaultPath is the config file looked up when -config is not given.
const DefaultPath = "configs/crawler.yaml"
