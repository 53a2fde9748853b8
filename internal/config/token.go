package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tokenFileName = ".lichess_token"

// DefaultTokenPath returns the credential location under the invoking user's home directory.
func DefaultTokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: resolve home directory: %v", ErrConfiguration, err)
	}
	return filepath.Join(home, tokenFileName), nil
}

// LoadToken reads the API token once at startup. A single trailing newline is stripped.
func LoadToken(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: token path is empty", ErrConfiguration)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read token %s: %v", ErrConfiguration, path, err)
	}
	token := strings.TrimSuffix(string(raw), "\n")
	if token == "" {
		return "", fmt.Errorf("%w: token file %s is empty", ErrConfiguration, path)
	}
	return token, nil
}
