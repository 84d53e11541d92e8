package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ConfigWatcher watches configuration files and reports changes after a
// quiet period. It watches the parent directories, so editors that save by
// renaming a temp file over the original are noticed too.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logrus.Entry
	onReload func(file string)

	// files maps every watched path (and symlink target) to the path
	// reported to onReload.
	files map[string]string

	mu      sync.Mutex
	timer   *time.Timer
	pending string
}

// NewConfigWatcher creates a watcher for files. Files whose directory does
// not exist are skipped. onReload runs on the watcher's timer goroutine.
func NewConfigWatcher(files []string, debounceMs int, logger *logrus.Entry, onReload func(string)) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if debounceMs <= 0 {
		debounceMs = 100
	}

	w := &ConfigWatcher{
		watcher:  watcher,
		debounce: time.Duration(debounceMs) * time.Millisecond,
		logger:   logger,
		onReload: onReload,
		files:    make(map[string]string),
	}

	watchedDirs := make(map[string]bool)
	watchDir := func(dir string) {
		if watchedDirs[dir] {
			return
		}
		if err := watcher.Add(dir); err != nil {
			logger.WithError(err).WithField("dir", dir).Debug("Not watching config directory")
			return
		}
		watchedDirs[dir] = true
	}

	for _, file := range files {
		if file == "" {
			continue
		}
		file = filepath.Clean(file)
		w.files[file] = file
		watchDir(filepath.Dir(file))

		// fsnotify doesn't follow symlinks, so watch the target as well.
		if info, err := os.Lstat(file); err == nil && info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(file)
			if err != nil {
				logger.WithError(err).Warnf("Failed to resolve symlink %s", file)
				continue
			}
			w.files[target] = file
			watchDir(filepath.Dir(target))
		}
	}

	return w, nil
}

// Files returns the number of watched paths.
func (w *ConfigWatcher) Files() int {
	return len(w.files)
}

// Start processes events until ctx is cancelled.
func (w *ConfigWatcher) Start(ctx context.Context) {
	defer w.stop()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			file, ok := w.files[filepath.Clean(event.Name)]
			if !ok {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			w.schedule(file)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

// schedule (re)arms the debounce timer for file.
func (w *ConfigWatcher) schedule(file string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = file
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *ConfigWatcher) fire() {
	w.mu.Lock()
	file := w.pending
	w.pending = ""
	w.timer = nil
	w.mu.Unlock()

	if file == "" {
		return
	}
	w.logger.Infof("Config changed: %s", filepath.Base(file))
	if w.onReload != nil {
		w.onReload(file)
	}
}

func (w *ConfigWatcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = ""
	w.mu.Unlock()
	w.watcher.Close()
}

// Close stops the watcher and releases resources.
func (w *ConfigWatcher) Close() error {
	return w.watcher.Close()
}
