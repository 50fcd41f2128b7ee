package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// configNames are the file names searched for in the toolbox directory, in
// order of preference.
var configNames = []string{
	"toolboxes.json",
	"toolboxes.jsonc",
	"toolboxes.yaml",
	"toolboxes.yml",
}

// GetToolboxDir returns the directory where mcp-toolbox configuration lives.
// It checks the MCP_TOOLBOX_DIR environment variable first, then falls back to ~/.mcp-toolbox
func GetToolboxDir() (string, error) {
	var toolboxDir string

	// Check for environment variable override first
	if envDir := os.Getenv("MCP_TOOLBOX_DIR"); envDir != "" {
		toolboxDir = envDir
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		toolboxDir = filepath.Join(homeDir, ".mcp-toolbox")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(toolboxDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create toolbox directory: %w", err)
	}

	return toolboxDir, nil
}

// GetConfigPath returns the full path to the toolbox configuration file.
// The first existing candidate wins; when none exist the JSON path is
// returned so callers get a meaningful "file not found" error.
func GetConfigPath() (string, error) {
	toolboxDir, err := GetToolboxDir()
	if err != nil {
		return "", err
	}

	for _, name := range configNames {
		candidate := filepath.Join(toolboxDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return filepath.Join(toolboxDir, configNames[0]), nil
}
