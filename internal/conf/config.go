// config.go: settings struct and functions to load and save the application configuration.
package conf

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
)

// LogConfig contains log file rotation settings.
type LogConfig struct {
	Path       string // log file directory
	MaxSize    int    // maximum size in megabytes before rotation
	MaxBackups int    // maximum number of rotated files to keep
	MaxAge     int    // maximum age in days of rotated files
}

// DatabaseSettings selects and configures the relational store backend.
type DatabaseSettings struct {
	SQLite struct {
		Enabled bool   // true to use SQLite
		Path    string // path to the SQLite database file
	}
	MySQL struct {
		Enabled  bool   // true to use MySQL
		Username string // MySQL username
		Password string // MySQL password
		Host     string // MySQL host
		Port     string // MySQL port
		Database string // MySQL database name
	}
}

// StoreSettings configures the image object store.
type StoreSettings struct {
	Path          string // root directory of the disk-backed object store
	PublicBaseURL string // base URL downstream consumers fetch objects from
}

// CaptureSettings configures the webcam snapshot loop.
type CaptureSettings struct {
	Enabled         bool // true to capture webcam images
	IntervalSeconds int  // default capture interval for webcams without their own
	TimeoutSeconds  int  // per-request HTTP timeout
	Concurrency     int  // maximum webcams fetched at once
	DaylightOnly    bool // skip captures outside the padded daylight window
}

// AnimationSettings configures job scheduling and queue advancement.
type AnimationSettings struct {
	Enabled          bool   // true to schedule and advance animation jobs
	FrameRate        int    // output frames per second
	AdvanceBatchSize int    // maximum queue entries advanced per tick
	EncodeBatchSize  int    // maximum ready jobs handed to the encoder per tick
	FFmpegPath       string // path to the ffmpeg binary
	WorkDir          string // scratch directory for encoder frame staging
}

// RetentionSettings configures solar landmark image tagging.
type RetentionSettings struct {
	Enabled bool // true to run the retention selectors each tick
}

// WebSettings configures the HTTP API server.
type WebSettings struct {
	Enabled bool   // true to start the HTTP server
	Host    string // listen address
	Port    string // listen port
}

// WebcamDefinition is one configured webcam; imported into the datastore at
// startup, never deleted from it.
type WebcamDefinition struct {
	Name            string // stable identifier, unique
	DisplayName     string // human friendly name
	NationalPark    string // park grouping used in storage keys
	SnapshotURL     string // still image URL
	Location        string // "lat,lon", empty disables solar scheduling
	Timezone        string // IANA timezone name, empty disables solar scheduling
	Enabled         bool
	IntervalSeconds int // capture interval override, 0 uses the default
}

// Settings is the root configuration structure.
type Settings struct {
	Debug bool // true to enable debug logging

	Main struct {
		Name string    // node name, used to identify this instance
		Log  LogConfig // log rotation settings
	}

	Database  DatabaseSettings
	Store     StoreSettings
	Capture   CaptureSettings
	Animation AnimationSettings
	Retention RetentionSettings
	Web       WebSettings
	Webcams   []WebcamDefinition
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter, defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config anywhere on the search path; write the defaults so
			// the operator has a file to edit.
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the default settings to the user config
// directory and points viper at the new file.
func createDefaultConfig() error {
	configDir := "."
	if homeDir, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(homeDir, ".config", "webcam-animator")
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error unmarshaling default config: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if err := SaveYAMLConfig(configPath, settings); err != nil {
		return err
	}

	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// GetSettings returns the current settings instance under the read lock.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetSettings replaces the settings instance, used by tests.
func SetSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}

// GetDefaultConfigPaths returns the configuration search paths: the
// executable's directory, $HOME/.config/webcam-animator and the working
// directory.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	exePath, err := os.Executable()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-executable-path").
			Build()
	}
	configPaths = append(configPaths, filepath.Dir(exePath))

	if homeDir, err := os.UserHomeDir(); err == nil {
		configPaths = append(configPaths, filepath.Join(homeDir, ".config", "webcam-animator"))
	}

	configPaths = append(configPaths, ".")
	return configPaths, nil
}

// SaveYAMLConfig writes the settings to a YAML configuration file. The write
// goes through a temporary file to be atomic.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary config file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		os.Remove(tempName)
		return fmt.Errorf("error writing temporary config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error closing temporary config file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
