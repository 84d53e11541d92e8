package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillFromBuildInfo(t *testing.T) {
	info := Info{Version: "dev", Commit: "none", BuildDate: "unknown"}
	fillFromBuildInfo(&info, &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	assert.Equal(t, "v0.3.1", info.Version)
	assert.Equal(t, "0123456789ab", info.Commit)
	assert.Equal(t, "2026-10-01T12:00:00Z", info.BuildDate)
	assert.True(t, info.Modified)
}

func TestLinkerValuesWin(t *testing.T) {
	info := Info{Version: "v1.0.0", Commit: "abc123", BuildDate: "today"}
	fillFromBuildInfo(&info, &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffff"}},
	})

	assert.Equal(t, "v1.0.0", info.Version)
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, "today", info.BuildDate)
}

func TestShort(t *testing.T) {
	info := Info{Version: "v1.0.0", Commit: "abc123", Platform: "linux/amd64"}
	assert.Equal(t, "v1.0.0 (abc123, linux/amd64)", info.Short())

	info.Modified = true
	assert.Equal(t, "v1.0.0 (abc123-dirty, linux/amd64)", info.Short())
}

func TestString(t *testing.T) {
	out := GetInfo().String()
	assert.True(t, strings.HasPrefix(out, "Version:"))
	assert.Contains(t, out, "Go Version:")
	assert.Contains(t, out, "Platform:")
}
