// Package scanner discovers archive files to deploy under a root directory.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrDirectoryNotFound is returned when the scan root does not exist.
	ErrDirectoryNotFound = errors.New("directory not found")

	// ErrNotDirectory is returned when the scan root exists but is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)

// Extensions lists the supported archive suffixes, longest compound suffixes first
// so that Stem strips ".tar.gz" rather than ".gz".
var Extensions = []string{".tar.bz2", ".tar.gz", ".tbz2", ".tgz", ".tar", ".zip"}

// Archive is a discovered archive file.
type Archive struct {
	Path string // path as found under the scan root
	Name string // base file name
	Stem string // base name without the archive extension
	Size int64
}

// MatchExtension returns the archive extension name ends with, compared
// case-insensitively, or "" when it is not a supported archive.
func MatchExtension(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range Extensions {
		if strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
			return ext
		}
	}
	return ""
}

// IsHidden reports whether name is a hidden or editor temporary file.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~")
}

// Scanner walks a directory tree looking for archives.
type Scanner struct {
	logger *slog.Logger
}

// New creates a scanner that reports skipped entries to logger.
func New(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{logger: logger}
}

// Scan returns the archives under root in lexical walk order.
//
// A missing root yields no archives and ErrDirectoryNotFound; callers treat
// that as nothing to deploy. Unreadable subdirectories are logged and skipped.
func (s *Scanner) Scan(root string) ([]Archive, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, root)
		}
		return nil, fmt.Errorf("failed to stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	var archives []Archive
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			s.logger.Warn("Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		ext := MatchExtension(name)
		if ext == "" || IsHidden(name) {
			return nil
		}

		// Resolve symlinks so only links to regular files count
		fi, err := os.Stat(path)
		if err != nil {
			s.logger.Warn("Skipping unreadable archive", "path", path, "error", err)
			return nil
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		archives = append(archives, Archive{
			Path: path,
			Name: name,
			Stem: name[:len(name)-len(ext)],
			Size: fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	s.logger.Info("Found archive files", "count", len(archives), "dir", root)
	return archives, nil
}
