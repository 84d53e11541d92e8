package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/cellkernel/config"
	"github.com/grovetools/cellkernel/pkg/paths"
	"github.com/grovetools/cellkernel/util/pathutil"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	// active is the logging section in effect; nil until loaded or set.
	active *Config
)

// SetConfig installs the logging section of cfg for loggers created
// afterwards. Commands call it once the --config flag has been resolved.
func SetConfig(cfg *config.Config) error {
	var logCfg Config
	if cfg != nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			return err
		}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	active = &logCfg
	return nil
}

// Reset drops cached loggers and the installed configuration.
func Reset() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	loggers = make(map[string]*logrus.Entry)
	active = nil
}

// loadConfig must be called with loggersMu held.
func loadConfig() Config {
	if active != nil {
		return *active
	}

	var logCfg Config
	cwd, err := os.Getwd()
	if err == nil {
		quiet := logrus.New()
		quiet.SetOutput(io.Discard)
		if cfg, _, err := config.LoadOrDefault(cwd, quiet); err == nil {
			if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
				logrus.Warnf("Failed to parse 'logging' config: %v", err)
			}
		}
	}
	active = &logCfg
	return logCfg
}

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logCfg := loadConfig()
	logger := logrus.New()

	levelStr := "info"
	if env := os.Getenv("CELLKERNEL_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("CELLKERNEL_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	logger.SetFormatter(newFormatter(logCfg.Format))

	var writers []io.Writer

	if !logCfg.File.Disabled {
		logFilePath, err := pathutil.ExpandOptional(logCfg.File.Path)
		if err != nil {
			logFilePath = logCfg.File.Path
		}
		if logFilePath == "" {
			logFilePath = LogFilePath(component, time.Now())
		}
		if w := openLogFile(logFilePath); w != nil {
			if logCfg.File.Format == "json" {
				// The hook keeps the file in JSON while stderr uses the text preset.
				logger.AddHook(&fileHook{out: w, formatter: &logrus.JSONFormatter{}})
			} else {
				writers = append(writers, w)
			}
		}
	}

	if shouldLogToStderr(logCfg.Format.StructuredToStderr, logger.GetLevel()) {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// shouldLogToStderr decides the stderr sink. In "auto" mode structured logs
// go to stderr only when debugging or when stderr is not a terminal.
func shouldLogToStderr(mode string, level logrus.Level) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	isDebug := os.Getenv("CELLKERNEL_DEBUG") == "1" || level >= logrus.DebugLevel
	isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return isDebug || !isInteractive
}

// LogFilePath returns the default log file for a component on a given day.
func LogFilePath(component string, day time.Time) string {
	dir := paths.LogDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", component, day.Format("2006-01-02")))
}

func openLogFile(path string) io.Writer {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil
	}
	return file
}

