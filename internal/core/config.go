package core

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// GlobalConfig tracks every ken workspace this machine knows about, so
// the CLI can be pointed at one by name from outside its directory tree.
type GlobalConfig struct {
	Version    int                        `json:"version"`
	Workspaces map[string]GlobalWorkspace `json:"workspaces"`
}

// GlobalWorkspace records a named workspace's root directory.
type GlobalWorkspace struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".config", "ken")
	return filepath.Join(configDir, "ken-config.json"), nil
}

func ensureConfigDir() (string, error) {
	path, err := globalConfigPath()
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// ReadGlobalConfig reads the global config file if present.
func ReadGlobalConfig() (*GlobalConfig, error) {
	path, err := globalConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	if config.Workspaces == nil {
		config.Workspaces = map[string]GlobalWorkspace{}
	}
	return &config, nil
}

// WriteGlobalConfig writes the global config to disk.
func WriteGlobalConfig(config GlobalConfig) error {
	path, err := ensureConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

// RegisterWorkspace adds or updates a workspace in the global config.
func RegisterWorkspace(id, name, root string) (*GlobalConfig, error) {
	config, err := ReadGlobalConfig()
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = &GlobalConfig{Version: 1, Workspaces: map[string]GlobalWorkspace{}}
	}
	if config.Version == 0 {
		config.Version = 1
	}
	if config.Workspaces == nil {
		config.Workspaces = map[string]GlobalWorkspace{}
	}

	config.Workspaces[id] = GlobalWorkspace{Name: name, Path: root}

	if err := WriteGlobalConfig(*config); err != nil {
		return nil, err
	}
	return config, nil
}

// FindWorkspaceByRef resolves a workspace by id or name.
func FindWorkspaceByRef(ref string, config *GlobalConfig) (string, GlobalWorkspace, bool) {
	if config == nil {
		return "", GlobalWorkspace{}, false
	}
	if ws, ok := config.Workspaces[ref]; ok {
		return ref, ws, true
	}
	for id, ws := range config.Workspaces {
		if ws.Name == ref {
			return id, ws, true
		}
	}
	return "", GlobalWorkspace{}, false
}
