package launchconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/ctagard/dbgpd/internal/errors"
)

const (
	// LaunchJSONFileName is the standard name for VS Code launch configuration file.
	LaunchJSONFileName = "launch.json"
	// VSCodeDirName is the VS Code configuration directory name.
	VSCodeDirName = ".vscode"
)

// LoadFromPath loads a launch.json file from an explicit path. Comments and
// trailing commas are accepted, as VS Code does.
func LoadFromPath(path string) (*LaunchJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch.json: %w", err)
	}
	return Parse(data)
}

// Parse decodes launch.json content.
func Parse(data []byte) (*LaunchJSON, error) {
	var lj LaunchJSON
	if err := json.Unmarshal(jsonc.ToJSON(data), &lj); err != nil {
		return nil, fmt.Errorf("failed to parse launch.json: %w", err)
	}
	return &lj, nil
}

// Discover searches for a .vscode/launch.json file starting from the given path
// and walking up the directory tree until found or reaching the root.
func Discover(startPath string) (string, error) {
	if startPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		startPath = cwd
	}

	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// If startPath is a file, start from its directory
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		absPath = filepath.Dir(absPath)
	}

	current := absPath
	for {
		launchPath := filepath.Join(current, VSCodeDirName, LaunchJSONFileName)
		if _, err := os.Stat(launchPath); err == nil {
			return launchPath, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no %s/%s found in %s or parent directories", VSCodeDirName, LaunchJSONFileName, startPath)
}

// Load reads the launch.json at path, or discovers one from the working
// directory when path is empty. It returns the file's location along with it.
func Load(path string) (*LaunchJSON, string, error) {
	if path == "" {
		found, err := Discover("")
		if err != nil {
			return nil, "", err
		}
		path = found
	}

	lj, err := LoadFromPath(path)
	if err != nil {
		return nil, "", err
	}
	return lj, path, nil
}

// FindConfiguration finds a configuration by name. An empty name selects the
// first Go launch configuration.
func FindConfiguration(lj *LaunchJSON, name string) (*DebugConfiguration, error) {
	for i := range lj.Configurations {
		cfg := &lj.Configurations[i]
		if name == "" && cfg.IsGo() && cfg.IsLaunchRequest() {
			return cfg, nil
		}
		if name != "" && cfg.Name == name {
			return cfg, nil
		}
	}
	return nil, errors.ConfigNotFound(name, ListConfigurationNames(lj))
}

// ListConfigurationNames returns the names of all configurations.
func ListConfigurationNames(lj *LaunchJSON) []string {
	names := make([]string, len(lj.Configurations))
	for i, cfg := range lj.Configurations {
		names[i] = cfg.Name
	}
	return names
}

// GetWorkspaceFolder derives the workspace folder from the launch.json path
// (the parent of the .vscode directory).
func GetWorkspaceFolder(launchJSONPath string) string {
	dir := filepath.Dir(launchJSONPath)
	if filepath.Base(dir) == VSCodeDirName {
		return filepath.Dir(dir)
	}
	return dir
}

// ValidateConfiguration checks that a configuration can be launched by Delve.
func ValidateConfiguration(cfg *DebugConfiguration) error {
	if cfg.Name == "" {
		return errors.ConfigInvalid("name", "configuration has no name")
	}
	if !cfg.IsGo() {
		return errors.ConfigInvalid("type", fmt.Sprintf("configuration %q has type %q, only \"go\" is supported", cfg.Name, cfg.Type))
	}
	if !cfg.IsLaunchRequest() {
		return errors.ConfigInvalid("request", fmt.Sprintf("configuration %q must be a launch request", cfg.Name))
	}
	if cfg.Program == "" {
		return errors.ConfigInvalid("program", fmt.Sprintf("configuration %q has no program", cfg.Name))
	}
	return nil
}
