package config

import (
	"github.com/grovetools/cellkernel/errors"
	"github.com/grovetools/cellkernel/internal/daemon/engine"
	"github.com/grovetools/cellkernel/pkg/assemble"
	"github.com/grovetools/cellkernel/pkg/notebook"
	"github.com/grovetools/cellkernel/pkg/toolchain"
	"github.com/grovetools/cellkernel/util/pathutil"
)

// EngineOptions converts the configuration into pipeline settings.
func (c *Config) EngineOptions() (engine.Options, error) {
	timeout, err := c.Toolchain.TimeoutDuration()
	if err != nil {
		return engine.Options{}, err
	}
	envFile, err := pathutil.ExpandOptional(c.Toolchain.EnvFile)
	if err != nil {
		return engine.Options{}, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid toolchain.env_file")
	}
	tempRoot, err := pathutil.ExpandOptional(c.Artifacts.TempRoot)
	if err != nil {
		return engine.Options{}, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid artifacts.temp_root")
	}

	a := c.Artifacts
	opts := engine.Options{
		Layout: notebook.Layout{
			Location: a.Location,
			TempRoot: tempRoot,
			Subdir:   a.Subdir,
		},
		Markers: assemble.Markers{Begin: a.BeginMarker, End: a.EndMarker},
		Package: assemble.PackageInfo{
			Name:       a.PackageName,
			Version:    a.PackageVersion,
			Edition:    a.Edition,
			SourceFile: a.SourceFile,
		},
		Files: assemble.FileNames{
			Source:   a.SourceFile,
			Manifest: a.ManifestFile,
		},
		Toolchain: toolchain.Options{
			Binary:  c.Toolchain.Binary,
			Args:    c.Toolchain.Args,
			Env:     c.Toolchain.Env,
			EnvFile: envFile,
			Timeout: timeout,
		},
		FailureMarkers: c.Toolchain.FailureMarkers,
	}
	if opts.Markers.Begin == "" {
		opts.Markers = assemble.DefaultMarkers()
	}
	return opts, nil
}
