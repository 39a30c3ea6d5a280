package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Tasaveer/internal/api"
	"github.com/hbomb79/Tasaveer/internal/ingest"
	"github.com/hbomb79/Tasaveer/internal/tools"
	"github.com/hbomb79/Tasaveer/internal/watch"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

const (
	TASAVEER_USER_DIR_SUFFIX = "tasaveer"
	settingsFileName         = "settings.json"

	ReaderNative   = "native"
	ReaderExiftool = "exiftool"
	ReaderAuto     = "auto"
)

// TasaveerConfig is the struct used to contain the
// various user config supplied by file, or
// manually inside the code.
type TasaveerConfig struct {
	SettingsPath string         `yaml:"settings_path" env:"SETTINGS_PATH"`
	ArchiveDir   string         `yaml:"archive_dir" env:"ARCHIVE_DIR"`
	Ingest       ingest.Config  `yaml:"ingest"`
	Tools        ToolsConfig    `yaml:"tools"`
	Scan         ScanConfig     `yaml:"scan"`
	RestConfig   api.RestConfig `yaml:"api"`
	Watch        WatchConfig    `yaml:"watch"`
}

// ToolsConfig controls where the external tools are found and how they
// are invoked. Any template left empty uses the built-in default.
type ToolsConfig struct {
	// Paths maps a tool name (e.g. "exiftool") to the binary to use for it.
	Paths     map[string]string `yaml:"paths"`
	BundleDir string            `yaml:"bundle_dir" env:"TOOLS_BUNDLE_DIR"`

	Copy     tools.CommandTemplate `yaml:"copy"`
	Organize tools.CommandTemplate `yaml:"organize"`
	Cleanup  tools.CommandTemplate `yaml:"cleanup"`

	// Keywords may be disabled entirely, in which case the tagging step
	// is skipped.
	DisableKeywords bool `yaml:"disable_keywords" env:"TOOLS_DISABLE_KEYWORDS" env-default:"false"`
}

type ScanConfig struct {
	Reader string `yaml:"reader" env:"SCAN_READER" env-default:"auto" validate:"oneof=native exiftool auto"`
}

type WatchConfig struct {
	watch.Config `yaml:",inline"`
	Targets      []watch.Target `yaml:"targets" validate:"dive"`
}

// Loads a configuration file formatted in YAML in to a
// TasaveerConfig struct. An empty path, or a path which does not
// exist, loads the configuration purely from the environment.
func (config *TasaveerConfig) LoadFromFile(configPath string) error {
	var err error
	if configPath != "" && fileExists(configPath) {
		err = cleanenv.ReadConfig(configPath, config)
	} else {
		err = cleanenv.ReadEnv(config)
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration - %w", err)
	}

	return config.normalise()
}

// normalise expands user paths, fills in defaults which cannot be
// expressed as struct tags and validates the result.
func (config *TasaveerConfig) normalise() error {
	if config.SettingsPath == "" {
		config.SettingsPath = filepath.Join(DefaultConfigDir(), settingsFileName)
	}

	var errs []error
	expand := func(path *string) {
		if *path == "" {
			return
		}
		expanded, err := homedir.Expand(*path)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*path = expanded
	}

	expand(&config.SettingsPath)
	expand(&config.ArchiveDir)
	expand(&config.Tools.BundleDir)
	for i := range config.Watch.Targets {
		expand(&config.Watch.Targets[i].Source)
		expand(&config.Watch.Targets[i].Destination)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to expand configured path - %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("invalid configuration - %w", err)
	}

	return nil
}

func (config ToolsConfig) copyTemplate() tools.CommandTemplate {
	if config.Copy.IsZero() {
		return tools.DefaultCopyTemplate()
	}
	return config.Copy
}

func (config ToolsConfig) organizeTemplate() tools.CommandTemplate {
	if config.Organize.IsZero() {
		return tools.DefaultOrganizeTemplate()
	}
	return config.Organize
}

// DefaultConfigDir returns the directory Tasaveer keeps its configuration and
// settings document in. If the default cannot be derived due to an error,
// a panic will occur.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		panic(fmt.Sprintf("FAILURE to derive user config dir %s", err))
	}

	return filepath.Join(dir, TASAVEER_USER_DIR_SUFFIX)
}

// DefaultConfigPath is the config file read when none is given.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Destination returns the given destination, or the configured archive
// directory when none is given.
func (config *TasaveerConfig) Destination(given string) (string, error) {
	if given != "" {
		return homedir.Expand(given)
	}
	if config.ArchiveDir == "" {
		return "", errors.New("no destination given and no archive_dir configured")
	}

	return config.ArchiveDir, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
