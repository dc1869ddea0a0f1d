package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestWalkFiles_DefaultFilters(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":              "package main",
		"main_test.go":         "package main",
		"README.md":            "# readme",
		"service/service.go":   "package service",
		"vendor/dep/dep.go":    "package dep",
		".hidden/x.go":         "package x",
		"testdata/fixture.go":  "package fixture",
		"_scratch/scratch.go":  "package scratch",
		"service/deep/deep.go": "package deep",
	})

	files, err := WalkFiles(root, FileWalkOptions{
		FileFilter:      DefaultGoFileFilter(),
		DirectoryFilter: DefaultDirectoryFilter(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "main.go"),
		filepath.Join(root, "service", "deep", "deep.go"),
		filepath.Join(root, "service", "service.go"),
	}, files)
}

func TestWalkFiles_MissingRoot(t *testing.T) {
	_, err := WalkFiles(filepath.Join(t.TempDir(), "missing"), FileWalkOptions{})
	assert.Error(t, err)

	files, err := WalkFiles(filepath.Join(t.TempDir(), "missing"), FileWalkOptions{SkipErrors: true})
	assert.NoError(t, err)
	assert.Empty(t, files)
}

func TestExpandGoPatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.go":       "package a",
		"a_test.go":  "package a",
		"sub/b.go":   "package sub",
		"sub/c/c.go": "package c",
	})

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{
			name:     "directory lists own files",
			patterns: []string{root},
			want:     []string{filepath.Join(root, "a.go")},
		},
		{
			name:     "recursive pattern",
			patterns: []string{filepath.Join(root, "sub") + "/..."},
			want:     []string{filepath.Join(root, "sub", "b.go"), filepath.Join(root, "sub", "c", "c.go")},
		},
		{
			name:     "explicit file and duplicates",
			patterns: []string{filepath.Join(root, "sub", "b.go"), filepath.Join(root, "sub") + "/..."},
			want:     []string{filepath.Join(root, "sub", "b.go"), filepath.Join(root, "sub", "c", "c.go")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := ExpandGoPatterns(tt.patterns)
			require.NoError(t, err)
			assert.Equal(t, tt.want, files)
		})
	}

	_, err := ExpandGoPatterns([]string{filepath.Join(root, "nope")})
	assert.Error(t, err)
}
