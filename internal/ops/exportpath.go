package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/errors"
)

// exportPolicy decides where export files may be written. Files must sit
// directly inside one of dirs; nested directories are refused so that no
// intermediate component can be swapped for a symlink after validation.
type exportPolicy struct {
	dirs   []string
	unsafe bool
}

func newExportPolicy(cfg *config.Config) (*exportPolicy, error) {
	if cfg != nil && cfg.AllowUnsafePaths {
		return &exportPolicy{unsafe: true}, nil
	}

	home, err := DefaultExportsDir()
	if err != nil {
		return nil, err
	}
	candidates := []string{home}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			// Relative entries would depend on the working directory.
			if filepath.IsAbs(p) {
				candidates = append(candidates, p)
			}
		}
	}

	p := &exportPolicy{dirs: make([]string, 0, len(candidates))}
	for _, c := range candidates {
		dir, err := filepath.Abs(filepath.Clean(c))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if isSymlink(dir) {
			if dir, err = filepath.EvalSymlinks(dir); err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
		}
		p.dirs = append(p.dirs, dir)
	}
	return p, nil
}

func (p *exportPolicy) admits(dir string) bool {
	return p.unsafe || slices.Contains(p.dirs, filepath.Clean(dir))
}

// ValidatePath checks an export destination. The path must be free of ".."
// components, end in .jsonl, and not be a symlink. Unless AllowUnsafePaths
// is set it must also name a file directly inside ~/.leadcap/exports or an
// absolute allowed_paths entry, and that directory must not be a symlink.
func ValidatePath(path string, cfg *config.Config) error {
	switch {
	case path == "":
		return errors.NewInvalidRequest("path is required")
	case containsTraversal(path):
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	case filepath.Ext(filepath.Clean(path)) != ".jsonl":
		return errors.NewInvalidRequest("path must have .jsonl extension")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	policy, err := newExportPolicy(cfg)
	if err != nil {
		return err
	}
	parent := filepath.Dir(abs)
	if !policy.admits(parent) {
		return errors.NewInvalidRequest(fmt.Sprintf(
			"file must be directly in an allowed directory (no subdirectories); allowed: %v", policy.dirs))
	}
	if !policy.unsafe && isSymlink(parent) {
		return errors.NewInvalidRequest("parent directory must not be a symlink")
	}
	if isSymlink(abs) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// DefaultExportsDir returns ~/.leadcap/exports.
func DefaultExportsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(home, ".leadcap", "exports"), nil
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// containsTraversal reports whether any component of path is "..". Both
// separators are checked since callers may send either form.
func containsTraversal(path string) bool {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	return slices.Contains(parts, "..")
}

// fileSafe lowercases s and reduces it to [a-z0-9_] runs joined by single
// dashes, for use inside generated file names.
func fileSafe(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "session"
	}
	return b.String()
}
