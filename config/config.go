package config

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/cellkernel/errors"
	"github.com/grovetools/cellkernel/pkg/paths"
	"github.com/grovetools/cellkernel/schema"
	"github.com/grovetools/cellkernel/util/pathutil"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames are searched in order in every directory.
var configNames = []string{
	"cellkernel.yml",
	"cellkernel.yaml",
	".cellkernel.yml",
	".cellkernel.yaml",
	"cellkernel.toml",
	".cellkernel.toml",
}

// Load reads, defaults and validates a single configuration file.
func Load(path string) (*Config, error) {
	cfg, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	return finalize(cfg)
}

// LoadFromBytes parses YAML configuration from memory.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg, err := parse(data, false)
	if err != nil {
		return nil, err
	}
	return finalize(cfg)
}

// LoadDefault finds and loads the configuration for the working directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadOrDefault behaves like LoadFrom but returns the built-in defaults
// when no configuration file exists anywhere on the search path.
func LoadOrDefault(startDir string, logger *logrus.Logger) (*Config, string, error) {
	path, err := FindConfigFile(startDir)
	if err != nil {
		if errors.Is(err, errors.ErrCodeConfigNotFound) {
			cfg := &Config{}
			cfg.SetDefaults()
			return cfg, "", nil
		}
		return nil, "", err
	}
	cfg, err := loadLayered(path, logger)
	return cfg, path, err
}

// LoadFrom loads configuration starting the search from the given directory
func LoadFrom(startDir string) (*Config, error) {
	return LoadFromWithLogger(startDir, logrus.New())
}

// LoadFromWithLogger loads configuration with layering and logging:
// 1. Global config (~/.config/cellkernel/cellkernel.yml) - base layer
// 2. Project config found upward from startDir - overrides global
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	projectPath, err := FindConfigFile(startDir)
	if err != nil {
		return nil, err
	}
	return loadLayered(projectPath, logger)
}

func loadLayered(projectPath string, logger *logrus.Logger) (*Config, error) {
	logger.WithField("path", projectPath).Debug("Loading project configuration")

	project, err := readRaw(projectPath)
	if err != nil {
		return nil, err
	}

	final := project
	if globalPath := GlobalConfigPath(); globalPath != "" && !pathutil.SamePath(globalPath, projectPath) {
		if _, statErr := os.Stat(globalPath); statErr == nil {
			logger.WithField("path", globalPath).Debug("Loading global configuration")
			global, err := readRaw(globalPath)
			if err != nil {
				logger.WithError(err).Warn("Failed to load global configuration, continuing without it")
			} else {
				final = mergeConfigs(global, project)
			}
		}
	}

	cfg, err := finalize(final)
	if err != nil {
		return nil, err
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(cfg); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return cfg, nil
}

// finalize applies defaults and runs schema and semantic validation.
func finalize(cfg *Config) (*Config, error) {
	cfg.SetDefaults()

	validator, err := schema.Default()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create validator")
	}
	if err := validator.Validate(cfg); err != nil {
		kerr := errors.Wrap(err, errors.ErrCodeConfigValidation, "schema validation failed")
		if verr, ok := err.(*schema.ValidationError); ok {
			kerr = kerr.WithDetail("violations", verr.Violations)
		}
		return nil, kerr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readRaw parses one file without defaults or validation.
func readRaw(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := parse(data, isTOML(path))
	if err != nil {
		if kerr, ok := errors.As(err); ok {
			return nil, kerr.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// parse decodes YAML or TOML after environment expansion.
func parse(data []byte, asTOML bool) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	var cfg Config
	if !asTOML {
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
		return &cfg, nil
	}

	if err := toml.NewDecoder(bytes.NewReader(expanded)).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
	}
	// go-toml has no inline remainder; collect unknown tables by hand.
	var all map[string]interface{}
	if err := toml.Unmarshal(expanded, &all); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
	}
	for key, value := range all {
		switch key {
		case "version", "server", "toolchain", "artifacts":
			continue
		}
		if cfg.Extensions == nil {
			cfg.Extensions = make(map[string]interface{})
		}
		cfg.Extensions[key] = value
	}
	return &cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// FindConfigFile searches for cellkernel configuration files with the
// following precedence:
// 1. Current directory up to filesystem root
// 2. XDG config directory (~/.config/cellkernel/)
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		if path := findIn(dir); path != "" {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if path := GlobalConfigPath(); path != "" {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

func findIn(dir string) string {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// GlobalConfigPath returns the global configuration file, preferring an
// existing file in the config directory and defaulting to cellkernel.yml.
func GlobalConfigPath() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	if path := findIn(dir); path != "" {
		return path
	}
	return filepath.Join(dir, configNames[0])
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}
