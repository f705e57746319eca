package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/grove/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// ConfigFile is the file name grove init writes.
const ConfigFile = "grove.yml"

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes a starter grove.yml into dir and returns the paths it
// created. If force is true an existing grove.yml is replaced.
func Initialize(dir string, force bool) ([]string, error) {
	if force {
		if err := handleForce(dir); err != nil {
			return nil, err
		}
	}

	files, err := getTemplateFiles(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := writeFiles(files); err != nil {
		return nil, err
	}

	if err := validateCreatedFiles(dir); err != nil {
		return nil, err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

// handleForce removes an existing grove.yml
func handleForce(dir string) error {
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("⚠️  Removing existing %s...\n", path)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// getTemplateFiles reads the embedded templates
func getTemplateFiles(dir string) ([]FileInfo, error) {
	groveYml, err := templatesFS.ReadFile("templates/grove.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read grove.yml template: %w", err)
	}

	return []FileInfo{{
		Path:        filepath.Join(dir, ConfigFile),
		Content:     groveYml,
		Permissions: 0644,
	}}, nil
}

func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}
	return nil
}

// validateCreatedFiles loads and builds the written grove.yml, so a broken
// template never reaches a user's workspace unnoticed.
func validateCreatedFiles(dir string) error {
	path := filepath.Join(dir, ConfigFile)
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("created %s is invalid: %w", path, err)
	}
	if _, err := cfg.Build(nil); err != nil {
		return fmt.Errorf("created %s does not build: %w", path, err)
	}
	return nil
}
