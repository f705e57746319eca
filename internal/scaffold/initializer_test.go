package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/grove/internal/config"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		setupFunc func(dir string)
		wantErr   bool
	}{
		{
			name:      "fresh initialization",
			setupFunc: func(dir string) {},
		},
		{
			name:  "creates a missing directory",
			force: false,
			setupFunc: func(dir string) {
				require.NoError(t, os.RemoveAll(dir))
			},
		},
		{
			name:  "force replaces an existing grove.yml",
			force: true,
			setupFunc: func(dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("old content"), 0644))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "project")
			require.NoError(t, os.MkdirAll(dir, 0755))
			tt.setupFunc(dir)

			paths, err := Initialize(dir, tt.force)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			path := filepath.Join(dir, ConfigFile)
			assert.Equal(t, []string{path}, paths)

			cfg, err := config.Load(path)
			require.NoError(t, err, "starter grove.yml should load")
			assert.Equal(t, "guard", cfg.Agent.Tree)

			bundle, err := cfg.Build(nil)
			require.NoError(t, err, "starter grove.yml should build")
			assert.ElementsMatch(t, []string{"guard", "walk"}, bundle.Library.Names())
		})
	}
}

func TestHandleForce(t *testing.T) {
	t.Run("removes existing grove.yml", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ConfigFile)
		require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

		require.NoError(t, handleForce(dir))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "grove.yml should have been removed")
	})

	t.Run("handles a missing file", func(t *testing.T) {
		assert.NoError(t, handleForce(t.TempDir()))
	})
}

func TestGetTemplateFiles(t *testing.T) {
	files, err := getTemplateFiles("proj")
	require.NoError(t, err)
	require.Len(t, files, 1)

	assert.Equal(t, filepath.Join("proj", ConfigFile), files[0].Path)
	assert.Equal(t, os.FileMode(0644), files[0].Permissions)
	assert.Contains(t, string(files[0].Content), `version: "1.0"`)
}

func TestValidateCreatedFiles_RejectsBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("version: \"2.0\"\n"), 0644))

	err := validateCreatedFiles(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is invalid")
}
