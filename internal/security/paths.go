// Package security guards file paths built from user-supplied identifiers.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned for a path that resolves outside its directory.
var ErrPathEscape = errors.New("path escapes directory")

// maxIDLen bounds sanitized identifiers.
const maxIDLen = 64

// WithinDir returns an error unless path resolves inside dir. Symlinks in
// the longest existing ancestor of path are resolved first, so a linked
// directory cannot redirect a new file elsewhere.
func WithinDir(path, dir string) error {
	canonicalDir, err := canonical(dir)
	if err != nil {
		return fmt.Errorf("resolve directory %s: %w", dir, err)
	}
	canonicalPath, err := canonical(path)
	if err != nil {
		return fmt.Errorf("resolve path %s: %w", path, err)
	}
	rel, err := filepath.Rel(canonicalDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPathEscape, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathEscape, path, dir)
	}
	return nil
}

// canonical returns the absolute form of p with symlinks resolved in its
// longest existing prefix.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	existing, rest := abs, ""
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

// SanitizeID maps an identifier to a file-name-safe form. ASCII letters,
// digits, '_' and '-' are kept and every other run of characters becomes
// a single '_'. The result is never empty.
func SanitizeID(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxIDLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "unknown"
	}
	return out
}

// FileFor returns dir/<SanitizeID(id)><ext> after checking it stays in dir.
func FileFor(dir, id, ext string) (string, error) {
	path := filepath.Join(dir, SanitizeID(id)+ext)
	if err := WithinDir(path, dir); err != nil {
		return "", err
	}
	return path, nil
}
