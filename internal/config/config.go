package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Port      int
	DataDir   string
	ModelPath string
	Version   string
}

// Settings are the user overrides persisted between runs
type Settings struct {
	DatasetDir string `yaml:"dataset_dir,omitempty" json:"dataset_dir,omitempty"`
	ModelPath  string `yaml:"model_path,omitempty" json:"model_path,omitempty"`
}

const settingsFileName = "settings.yml"

// settingsDirOverride lets tests redirect the settings location
var settingsDirOverride string

// DataStoreDir returns the per-user directory holding settings and state.
func DataStoreDir() (string, error) {
	if settingsDirOverride != "" {
		return settingsDirOverride, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config dir: %w", err)
	}
	return filepath.Join(base, "funding-explorer"), nil
}

// SettingsPath returns the full path of the settings file
func SettingsPath() (string, error) {
	dir, err := DataStoreDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, settingsFileName), nil
}

// LoadSettings reads the settings file. A missing file yields empty settings.
func LoadSettings() (Settings, error) {
	var settings Settings

	path, err := SettingsPath()
	if err != nil {
		return settings, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return settings, nil
}

// SaveSettings writes the settings file, creating its directory if needed
func SaveSettings(settings Settings) error {
	path, err := SettingsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create settings directory: %w", err)
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// ResolvePaths picks the dataset directory and model path:
// 1. Explicit flags take priority
// 2. Otherwise, the saved settings (installed dataset, chosen model)
// 3. Fall back to ./data and ./data/model.json when they exist
func ResolvePaths(dataDir, modelPath string) (string, string) {
	if dataDir == "" || modelPath == "" {
		settings, err := LoadSettings()
		if err != nil {
			log.Printf("Warning: could not load settings: %v", err)
		} else {
			if dataDir == "" && settings.DatasetDir != "" {
				if _, err := os.Stat(settings.DatasetDir); err == nil {
					dataDir = settings.DatasetDir
					log.Printf("Using installed dataset: %s", dataDir)
				} else {
					log.Printf("Warning: saved dataset path no longer exists: %s", settings.DatasetDir)
				}
			}
			if modelPath == "" {
				modelPath = settings.ModelPath
			}
		}
	}

	if dataDir == "" {
		dataDir = "./data"
	}
	if modelPath == "" {
		candidate := filepath.Join(dataDir, "model.json")
		if _, err := os.Stat(candidate); err == nil {
			modelPath = candidate
		}
	}
	return dataDir, modelPath
}
