// Package security guards reads of operator-supplied files.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrForbiddenPath is returned for paths carrying shell metacharacters.
var ErrForbiddenPath = errors.New("forbidden character in path")

const forbidden = ";&|$`(){}<>!\n\r"

// ValidateFilePath returns the absolute, symlink-resolved form of path.
// A path that does not exist yet is returned cleaned but unresolved.
func ValidateFilePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("file path cannot be empty")
	}
	if i := strings.IndexAny(path, forbidden); i >= 0 {
		return "", fmt.Errorf("%w %q: %s", ErrForbiddenPath, path[i], path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, os.ErrNotExist) {
		return abs, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return resolved, nil
}

// SafeReadFile validates path and reads it. When exts is non-empty the file
// extension must be one of them.
func SafeReadFile(path string, exts ...string) ([]byte, error) {
	clean, err := ValidateFilePath(path)
	if err != nil {
		return nil, err
	}
	if len(exts) > 0 && !hasExt(clean, exts) {
		return nil, fmt.Errorf("%s: expected one of %s", clean, strings.Join(exts, ", "))
	}
	// #nosec G304 - path is validated above
	return os.ReadFile(clean)
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
