package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

//go:generate sh -c "cd .. && go run ./tools/schema-generator/"

// Location values for artifacts.location.
const (
	LocationTemp      = "temp"
	LocationWorkspace = "workspace"
)

// Framing values for server.framing.
const (
	FramingHTTP = "http"
	FramingNUL  = "nul"
)

// ServerConfig configures the kernel's listeners.
type ServerConfig struct {
	Address          string `yaml:"address,omitempty" toml:"address,omitempty" json:"address,omitempty" jsonschema:"description=host:port for the HTTP API (default: 127.0.0.1:8787)"`
	Framing          string `yaml:"framing,omitempty" toml:"framing,omitempty" json:"framing,omitempty" jsonschema:"enum=http,enum=nul,description=Request framing for editor clients: http (JSON over HTTP) or nul (NUL-delimited TCP)"`
	NulAddress       string `yaml:"nul_address,omitempty" toml:"nul_address,omitempty" json:"nul_address,omitempty" jsonschema:"description=host:port for the NUL-delimited listener when framing is nul (default: 127.0.0.1:8788)"`
	ConfigDebounceMs int    `yaml:"config_debounce_ms,omitempty" toml:"config_debounce_ms,omitempty" json:"config_debounce_ms,omitempty" jsonschema:"description=Debounce window for config file changes in milliseconds (default: 100)"`
}

// ToolchainConfig configures the external build-and-run tool.
type ToolchainConfig struct {
	Binary         string            `yaml:"binary,omitempty" toml:"binary,omitempty" json:"binary,omitempty" jsonschema:"description=Toolchain executable (default: cargo)"`
	Args           []string          `yaml:"args,omitempty" toml:"args,omitempty" json:"args,omitempty" jsonschema:"description=Arguments selecting the build-and-run verb (default: [run])"`
	Env            map[string]string `yaml:"env,omitempty" toml:"env,omitempty" json:"env,omitempty" jsonschema:"description=Extra environment variables for the toolchain"`
	EnvFile        string            `yaml:"env_file,omitempty" toml:"env_file,omitempty" json:"env_file,omitempty" jsonschema:"description=Dotenv file loaded into the toolchain environment"`
	Timeout        string            `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"description=Maximum run time per invocation (e.g. 2m); empty means no limit"`
	FailureMarkers []string          `yaml:"failure_markers,omitempty" toml:"failure_markers,omitempty" json:"failure_markers,omitempty" jsonschema:"description=Stderr substrings that mark a failed build or run"`
}

// ArtifactsConfig configures where and how the assembled program is written.
type ArtifactsConfig struct {
	Location       string `yaml:"location,omitempty" toml:"location,omitempty" json:"location,omitempty" jsonschema:"enum=temp,enum=workspace,description=Write artifacts under the temp directory or the editor workspace"`
	Subdir         string `yaml:"subdir,omitempty" toml:"subdir,omitempty" json:"subdir,omitempty" jsonschema:"description=Directory below the workspace root used when location is workspace (default: .cellkernel)"`
	TempRoot       string `yaml:"temp_root,omitempty" toml:"temp_root,omitempty" json:"temp_root,omitempty" jsonschema:"description=Overrides the system temp directory"`
	SourceFile     string `yaml:"source_file,omitempty" toml:"source_file,omitempty" json:"source_file,omitempty" jsonschema:"description=Program source file name (default: main.rs)"`
	ManifestFile   string `yaml:"manifest_file,omitempty" toml:"manifest_file,omitempty" json:"manifest_file,omitempty" jsonschema:"description=Manifest file name (default: Cargo.toml)"`
	PackageName    string `yaml:"package_name,omitempty" toml:"package_name,omitempty" json:"package_name,omitempty" jsonschema:"description=Package name written to the manifest (default: output)"`
	PackageVersion string `yaml:"package_version,omitempty" toml:"package_version,omitempty" json:"package_version,omitempty" jsonschema:"description=Package version written to the manifest (default: 0.0.1)"`
	Edition        string `yaml:"edition,omitempty" toml:"edition,omitempty" json:"edition,omitempty" jsonschema:"description=Language edition written to the manifest (default: 2021)"`
	BeginMarker    string `yaml:"begin_marker,omitempty" toml:"begin_marker,omitempty" json:"begin_marker,omitempty" jsonschema:"description=Sentinel printed before the active cell"`
	EndMarker      string `yaml:"end_marker,omitempty" toml:"end_marker,omitempty" json:"end_marker,omitempty" jsonschema:"description=Sentinel printed after the active cell"`
}

// Config represents the cellkernel.yml configuration
type Config struct {
	Version   string          `yaml:"version" toml:"version" json:"version" jsonschema:"description=Configuration version (e.g. 1.0)"`
	Server    ServerConfig    `yaml:"server,omitempty" toml:"server,omitempty" json:"server" jsonschema:"description=Listener settings"`
	Toolchain ToolchainConfig `yaml:"toolchain,omitempty" toml:"toolchain,omitempty" json:"toolchain" jsonschema:"description=External build-and-run tool"`
	Artifacts ArtifactsConfig `yaml:"artifacts,omitempty" toml:"artifacts,omitempty" json:"artifacts" jsonschema:"description=Assembled program layout"`

	// Extensions captures all other top-level keys (such as logging).
	Extensions map[string]interface{} `yaml:",inline" toml:"-" json:"-" jsonschema:"-"`
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}

	if c.Server.Address == "" {
		c.Server.Address = "127.0.0.1:8787"
	}
	if c.Server.Framing == "" {
		c.Server.Framing = FramingHTTP
	}
	if c.Server.NulAddress == "" {
		c.Server.NulAddress = "127.0.0.1:8788"
	}
	if c.Server.ConfigDebounceMs == 0 {
		c.Server.ConfigDebounceMs = 100
	}

	if c.Toolchain.Binary == "" {
		c.Toolchain.Binary = "cargo"
	}
	if len(c.Toolchain.Args) == 0 {
		c.Toolchain.Args = []string{"run"}
	}
	if len(c.Toolchain.FailureMarkers) == 0 {
		c.Toolchain.FailureMarkers = []string{"error:", "error[", "panicked at"}
	}

	a := &c.Artifacts
	if a.Location == "" {
		a.Location = LocationTemp
	}
	if a.Subdir == "" {
		a.Subdir = ".cellkernel"
	}
	if a.SourceFile == "" {
		a.SourceFile = "main.rs"
	}
	if a.ManifestFile == "" {
		a.ManifestFile = "Cargo.toml"
	}
	if a.PackageName == "" {
		a.PackageName = "output"
	}
	if a.PackageVersion == "" {
		a.PackageVersion = "0.0.1"
	}
	if a.Edition == "" {
		a.Edition = "2021"
	}
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded cellkernel.yml into the provided target struct. The target must be
// a pointer. A missing key leaves target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
