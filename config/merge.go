package config

// mergeConfigs merges override configuration into base. Scalars and lists
// from override win when set; maps are merged key by key.
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}
	result.Server = mergeServer(result.Server, override.Server)
	result.Toolchain = mergeToolchain(result.Toolchain, override.Toolchain)
	result.Artifacts = mergeArtifacts(result.Artifacts, override.Artifacts)
	result.Extensions = mergeExtensions(result.Extensions, override.Extensions)

	return &result
}

func mergeServer(base, override ServerConfig) ServerConfig {
	result := base

	if override.Address != "" {
		result.Address = override.Address
	}
	if override.Framing != "" {
		result.Framing = override.Framing
	}
	if override.NulAddress != "" {
		result.NulAddress = override.NulAddress
	}
	if override.ConfigDebounceMs != 0 {
		result.ConfigDebounceMs = override.ConfigDebounceMs
	}

	return result
}

func mergeToolchain(base, override ToolchainConfig) ToolchainConfig {
	result := base

	if override.Binary != "" {
		result.Binary = override.Binary
	}
	if len(override.Args) > 0 {
		result.Args = override.Args
	}
	if len(override.Env) > 0 {
		env := make(map[string]string, len(base.Env)+len(override.Env))
		for k, v := range base.Env {
			env[k] = v
		}
		for k, v := range override.Env {
			env[k] = v
		}
		result.Env = env
	}
	if override.EnvFile != "" {
		result.EnvFile = override.EnvFile
	}
	if override.Timeout != "" {
		result.Timeout = override.Timeout
	}
	if len(override.FailureMarkers) > 0 {
		result.FailureMarkers = override.FailureMarkers
	}

	return result
}

func mergeArtifacts(base, override ArtifactsConfig) ArtifactsConfig {
	result := base

	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&result.Location, override.Location)
	pick(&result.Subdir, override.Subdir)
	pick(&result.TempRoot, override.TempRoot)
	pick(&result.SourceFile, override.SourceFile)
	pick(&result.ManifestFile, override.ManifestFile)
	pick(&result.PackageName, override.PackageName)
	pick(&result.PackageVersion, override.PackageVersion)
	pick(&result.Edition, override.Edition)
	pick(&result.BeginMarker, override.BeginMarker)
	pick(&result.EndMarker, override.EndMarker)

	return result
}

func mergeExtensions(base, override map[string]interface{}) map[string]interface{} {
	if len(override) == 0 {
		return base
	}

	result := make(map[string]interface{}, len(base)+len(override))
	for key, value := range base {
		result[key] = value
	}
	for key, value := range override {
		// If both base and override have the same extension key, merge them
		if baseMap, ok := result[key].(map[string]interface{}); ok {
			if overrideMap, ok := value.(map[string]interface{}); ok {
				merged := make(map[string]interface{}, len(baseMap)+len(overrideMap))
				for k, v := range baseMap {
					merged[k] = v
				}
				for k, v := range overrideMap {
					merged[k] = v
				}
				result[key] = merged
				continue
			}
		}
		result[key] = value
	}
	return result
}
