package utils

import (
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"

	"github.com/toyz/loom/internal/errors"
)

// ParseModuleName extracts the module path from a go.mod file
func ParseModuleName(goModPath string) (string, error) {
	cleanPath := filepath.Clean(goModPath)
	if filepath.Base(cleanPath) != "go.mod" {
		return "", errors.Newf(errors.ConfigurationErrorCode, "file is not a go.mod file: %s", goModPath)
	}

	content, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", errors.WrapConfigurationError(cleanPath, "read", err)
	}

	modFile, err := modfile.Parse(cleanPath, content, nil)
	if err != nil {
		return "", errors.WrapConfigurationError(cleanPath, "parse", err)
	}
	if modFile.Module == nil {
		return "", errors.Newf(errors.ConfigurationErrorCode, "no module declaration found in %s", cleanPath)
	}
	return modFile.Module.Mod.Path, nil
}

// FindGoModFile searches for go.mod starting at startDir and walking up
func FindGoModFile(startDir string) (string, error) {
	currentDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", errors.WrapConfigurationError(startDir, "resolve", err)
	}

	for {
		goModPath := filepath.Join(currentDir, "go.mod")
		if info, err := os.Stat(goModPath); err == nil && !info.IsDir() {
			return goModPath, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}
	return "", errors.Newf(errors.ConfigurationErrorCode, "go.mod not found above %s", startDir)
}
