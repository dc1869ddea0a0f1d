package utils

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/toyz/loom/internal/errors"
)

// FileFilter decides whether a file is collected
type FileFilter func(path string, info fs.DirEntry) bool

// DirectoryFilter decides whether a directory is descended into
type DirectoryFilter func(path string, info fs.DirEntry) bool

// FileWalkOptions configures file walking behavior
type FileWalkOptions struct {
	FileFilter      FileFilter
	DirectoryFilter DirectoryFilter
	SkipErrors      bool
}

// DefaultGoFileFilter accepts .go files, excluding tests
func DefaultGoFileFilter() FileFilter {
	return func(path string, info fs.DirEntry) bool {
		if info.IsDir() {
			return false
		}
		name := info.Name()
		return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
	}
}

// DefaultDirectoryFilter skips hidden directories and ones that never hold package sources
func DefaultDirectoryFilter() DirectoryFilter {
	skipDirs := map[string]bool{
		"vendor":       true,
		"node_modules": true,
		"testdata":     true,
		"build":        true,
		"dist":         true,
	}

	return func(path string, info fs.DirEntry) bool {
		if !info.IsDir() {
			return true
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") && name != "." && name != ".." {
			return false
		}
		if strings.HasPrefix(name, "_") {
			return false
		}
		return !skipDirs[name]
	}
}

// WalkFiles walks rootDir and returns the files accepted by options, sorted
func WalkFiles(rootDir string, options FileWalkOptions) ([]string, error) {
	var matched []string

	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if options.SkipErrors {
				return nil
			}
			return err
		}

		if d.IsDir() {
			if path != rootDir && options.DirectoryFilter != nil && !options.DirectoryFilter(path, d) {
				return filepath.SkipDir
			}
			return nil
		}

		if options.FileFilter == nil || options.FileFilter(path, d) {
			matched = append(matched, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapConfigurationError(rootDir, "walk", err)
	}

	sort.Strings(matched)
	return matched, nil
}

// ExpandGoPatterns turns command line patterns into Go source files.
// "dir/..." walks recursively, a directory lists its own files and a
// file path is taken as is. Duplicates are dropped.
func ExpandGoPatterns(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{"."}
	}

	seen := make(map[string]bool)
	var files []string
	add := func(paths ...string) {
		for _, p := range paths {
			p = filepath.Clean(p)
			if !seen[p] {
				seen[p] = true
				files = append(files, p)
			}
		}
	}

	for _, pattern := range patterns {
		if root, ok := strings.CutSuffix(pattern, "..."); ok {
			root = strings.TrimSuffix(root, "/")
			if root == "" {
				root = "."
			}
			found, err := WalkFiles(root, FileWalkOptions{
				FileFilter:      DefaultGoFileFilter(),
				DirectoryFilter: DefaultDirectoryFilter(),
			})
			if err != nil {
				return nil, err
			}
			add(found...)
			continue
		}

		info, err := os.Stat(pattern)
		if err != nil {
			return nil, errors.WrapConfigurationError(pattern, "stat", err)
		}
		if !info.IsDir() {
			add(pattern)
			continue
		}

		entries, err := os.ReadDir(pattern)
		if err != nil {
			return nil, errors.WrapConfigurationError(pattern, "read", err)
		}
		filter := DefaultGoFileFilter()
		for _, entry := range entries {
			if filter(filepath.Join(pattern, entry.Name()), entry) {
				add(filepath.Join(pattern, entry.Name()))
			}
		}
	}
	return files, nil
}
