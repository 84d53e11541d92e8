package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grovetools/cellkernel/errors"
)

// markerForbidden are characters that would break the generated print
// statement or be read as format placeholders.
const markerForbidden = "{}\"\\\n"

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validateServer(&c.Server); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid server configuration")
	}
	if err := validateToolchain(&c.Toolchain); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid toolchain configuration")
	}
	if err := validateArtifacts(&c.Artifacts); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid artifacts configuration")
	}
	return nil
}

func validateServer(s *ServerConfig) error {
	if err := validateAddress("server.address", s.Address); err != nil {
		return err
	}
	switch s.Framing {
	case FramingHTTP:
	case FramingNUL:
		if err := validateAddress("server.nul_address", s.NulAddress); err != nil {
			return err
		}
		if s.NulAddress == s.Address {
			return errors.New(errors.ErrCodeConfigValidation, "server.nul_address must differ from server.address")
		}
	default:
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("unknown framing: %s", s.Framing)).
			WithDetail("framing", s.Framing)
	}
	if s.ConfigDebounceMs < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "server.config_debounce_ms cannot be negative")
	}
	return nil
}

func validateAddress(field, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("%s must be host:port", field)).
			WithDetail("address", addr)
	}
	return nil
}

func validateToolchain(t *ToolchainConfig) error {
	if strings.TrimSpace(t.Binary) == "" {
		return errors.New(errors.ErrCodeConfigValidation, "toolchain.binary cannot be empty")
	}
	if _, err := t.TimeoutDuration(); err != nil {
		return err
	}
	for _, m := range t.FailureMarkers {
		if m == "" {
			return errors.New(errors.ErrCodeConfigValidation, "toolchain.failure_markers cannot contain empty entries")
		}
	}
	return nil
}

// TimeoutDuration parses Timeout. Empty means no limit.
func (t *ToolchainConfig) TimeoutDuration() (time.Duration, error) {
	if t.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(t.Timeout)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid toolchain.timeout").
			WithDetail("timeout", t.Timeout)
	}
	if d < 0 {
		return 0, errors.New(errors.ErrCodeConfigValidation, "toolchain.timeout cannot be negative")
	}
	return d, nil
}

func validateArtifacts(a *ArtifactsConfig) error {
	switch a.Location {
	case LocationTemp, LocationWorkspace:
	default:
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("unknown artifacts.location: %s", a.Location)).
			WithDetail("location", a.Location)
	}

	for field, name := range map[string]string{
		"artifacts.source_file":   a.SourceFile,
		"artifacts.manifest_file": a.ManifestFile,
	} {
		if strings.ContainsAny(name, `/\`) {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s must be a bare file name", field)).
				WithDetail("value", name)
		}
	}
	if a.SourceFile == a.ManifestFile {
		return errors.New(errors.ErrCodeConfigValidation, "artifacts.source_file and artifacts.manifest_file must differ")
	}

	if (a.BeginMarker == "") != (a.EndMarker == "") {
		return errors.New(errors.ErrCodeConfigValidation, "artifacts.begin_marker and artifacts.end_marker must be set together")
	}
	if a.BeginMarker != "" {
		if a.BeginMarker == a.EndMarker {
			return errors.New(errors.ErrCodeConfigValidation, "sentinel markers must differ")
		}
		for _, m := range []string{a.BeginMarker, a.EndMarker} {
			if strings.ContainsAny(m, markerForbidden) {
				return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("sentinel marker %q contains a forbidden character", m))
			}
		}
	}
	return nil
}
