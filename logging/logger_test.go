package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/cellkernel/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the state dir at a temp dir and clears cached loggers.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("CELLKERNEL_HOME", home)
	t.Setenv("CELLKERNEL_LOG_LEVEL", "")
	t.Setenv("CELLKERNEL_LOG_CALLER", "")
	Reset()
	t.Cleanup(Reset)
	return home
}

func installConfig(t *testing.T, yaml string) {
	t.Helper()
	cfg, err := config.LoadFromBytes([]byte(yaml))
	require.NoError(t, err)
	require.NoError(t, SetConfig(cfg))
}

func TestNewLoggerCachesPerComponent(t *testing.T) {
	isolate(t)
	installConfig(t, "version: \"1.0\"\n")

	a := NewLogger("engine")
	b := NewLogger("engine")
	c := NewLogger("server")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "engine", a.Data["component"])
}

func TestLevelFromConfigAndEnv(t *testing.T) {
	isolate(t)
	installConfig(t, "version: \"1.0\"\nlogging:\n  level: warn\n")

	assert.Equal(t, logrus.WarnLevel, NewLogger("from-config").Logger.GetLevel())

	t.Setenv("CELLKERNEL_LOG_LEVEL", "debug")
	t.Setenv("CELLKERNEL_LOG_CALLER", "true")
	logger := NewLogger("from-env")
	assert.Equal(t, logrus.DebugLevel, logger.Logger.GetLevel())
	assert.True(t, logger.Logger.ReportCaller)
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	isolate(t)
	installConfig(t, "version: \"1.0\"\nlogging:\n  level: loud\n")

	assert.Equal(t, logrus.InfoLevel, NewLogger("x").Logger.GetLevel())
}

func TestDefaultFileSink(t *testing.T) {
	home := isolate(t)
	installConfig(t, "version: \"1.0\"\nlogging:\n  format:\n    structured_to_stderr: never\n")

	NewLogger("server").Info("listening")

	path := LogFilePath("server", time.Now())
	assert.Equal(t, filepath.Join(home, "state", "cellkernel", "logs"), filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "listening")
	assert.Contains(t, string(data), "[INFO]")
}

func TestJSONFileSink(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "kernel.log")
	installConfig(t, "version: \"1.0\"\nlogging:\n  file:\n    path: "+path+"\n    format: json\n  format:\n    structured_to_stderr: never\n")

	NewLogger("engine").WithField("phase", "invoking").Info("cycle")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "cycle", line["msg"])
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "invoking", line["phase"])
}

func TestFileSinkDisabled(t *testing.T) {
	isolate(t)
	installConfig(t, "version: \"1.0\"\nlogging:\n  file:\n    disabled: true\n  format:\n    structured_to_stderr: never\n")

	NewLogger("quiet").Info("nothing")

	_, err := os.Stat(LogFilePath("quiet", time.Now()))
	assert.True(t, os.IsNotExist(err))
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		entry   *logrus.Entry
		want    []string
		notWant []string
	}{
		{
			name:   "default format",
			config: FormatConfig{},
			entry: &logrus.Entry{
				Level:   logrus.InfoLevel,
				Message: "cycle finished",
				Data:    logrus.Fields{"component": "engine", "outcome": "success"},
			},
			want: []string{"[INFO]", "engine", "cycle finished", "outcome=success"},
		},
		{
			name:   "without timestamp and component",
			config: FormatConfig{DisableTimestamp: true, DisableComponent: true},
			entry: &logrus.Entry{
				Level:   logrus.WarnLevel,
				Message: "slow toolchain",
				Data:    logrus.Fields{"component": "engine"},
			},
			want:    []string{"[WARN] slow toolchain"},
			notWant: []string{"engine"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.entry.Time = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			out, err := (&TextFormatter{Config: tt.config}).Format(tt.entry)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, string(out), w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, string(out), nw)
			}
			assert.True(t, strings.HasSuffix(string(out), "\n"))
		})
	}
}

func TestTextFormatterSortsFields(t *testing.T) {
	entry := &logrus.Entry{
		Level:   logrus.InfoLevel,
		Message: "m",
		Data:    logrus.Fields{"zeta": 1, "alpha": 2, "mid": 3},
	}
	out, err := (&TextFormatter{Config: FormatConfig{DisableTimestamp: true}}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[INFO] m alpha=2 mid=3 zeta=1\n", string(out))
}

func TestNewFormatterPresets(t *testing.T) {
	assert.IsType(t, &logrus.JSONFormatter{}, newFormatter(FormatConfig{Preset: "json"}))

	simple, ok := newFormatter(FormatConfig{Preset: "simple"}).(*TextFormatter)
	require.True(t, ok)
	assert.True(t, simple.Config.DisableTimestamp)
	assert.True(t, simple.Config.DisableComponent)
}

func TestShouldLogToStderr(t *testing.T) {
	assert.True(t, shouldLogToStderr("always", logrus.InfoLevel))
	assert.False(t, shouldLogToStderr("never", logrus.DebugLevel))
	assert.True(t, shouldLogToStderr("auto", logrus.DebugLevel))
}

func TestPrettyLogger(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrettyLogger().WithWriter(&buf)

	p.Success("outcome ready")
	p.Field("phase", "success")
	p.Code("line one\nline two\n")
	p.Error("run failed", assert.AnError)

	out := buf.String()
	assert.Contains(t, out, "outcome ready")
	assert.Contains(t, out, "phase:")
	assert.Contains(t, out, "  line one\n")
	assert.Contains(t, out, "  line two\n")
	assert.Contains(t, out, assert.AnError.Error())
}
