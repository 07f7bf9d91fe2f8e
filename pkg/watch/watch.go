// Package watch recompiles sources when they change on disk.
//
// A Watcher wraps fsnotify and debounces bursts of events (editors often
// write a file several times per save) into one callback per quiet period.
// A single file is watched through its directory, so editors that save by
// renaming a temporary file over the original keep triggering rebuilds.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gsm-lang/gsmc/pkg/logger"
)

type Config struct {
	// Path is the file or directory to watch.
	Path string

	// Debounce is the quiet period after the last event before the
	// callback runs.
	Debounce time.Duration

	// Extensions filters events by file suffix. Ignored when Path is a file.
	Extensions []string

	// SkipHidden ignores dot files and directories.
	SkipHidden bool
}

// DefaultConfig returns the default watcher configuration for path.
func DefaultConfig(path string) *Config {
	return &Config{
		Path:       path,
		Debounce:   200 * time.Millisecond,
		Extensions: []string{".gsm"},
		SkipHidden: true,
	}
}

// Watcher watches source files and triggers rebuilds.
type Watcher struct {
	watcher  *fsnotify.Watcher
	config   *Config
	debounce *Debouncer

	// file is set when Path names a single file.
	file string

	mu      sync.Mutex
	running bool
}

func New(config *Config) (*Watcher, error) {
	if config == nil || config.Path == "" {
		return nil, errors.New("watch: no path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  watcher,
		config:   config,
		debounce: NewDebouncer(config.Debounce),
	}, nil
}

// Watch blocks until ctx is cancelled, calling onChange with the most
// recently changed path after each burst of events. Errors from onChange
// are logged and watching continues.
func (w *Watcher) Watch(ctx context.Context, onChange func(path string) error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.debounce.Stop()
		w.watcher.Close()
	}()

	if err := w.addPath(w.config.Path); err != nil {
		return fmt.Errorf("failed to watch path: %w", err)
	}

	logger.Info("File watcher started",
		"path", w.config.Path,
		"debounce_ms", w.config.Debounce.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("File watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.shouldProcessEvent(event) {
				continue
			}

			logger.Debug("File event detected", "path", event.Name, "op", event.Op.String())

			if event.Op&fsnotify.Create != 0 && w.file == "" {
				if isDir, _ := isDirectory(event.Name); isDir {
					_ = w.addDirectory(event.Name)
					continue
				}
			}

			path := event.Name
			w.debounce.Trigger(func() {
				if err := onChange(path); err != nil {
					logger.Error("Rebuild failed", "path", path, "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			logger.Error("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) addPath(path string) error {
	isDir, err := isDirectory(path)
	if err != nil {
		return err
	}
	if isDir {
		return w.addDirectory(path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.file = abs
	return w.watcher.Add(filepath.Dir(abs))
}

// addDirectory adds a directory and all subdirectories to the watcher.
func (w *Watcher) addDirectory(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if w.config.SkipHidden && path != dir && strings.HasPrefix(filepath.Base(path), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %q: %w", path, err)
		}
		logger.Debug("Watching directory", "path", path)
		return nil
	})
}

func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	if w.file != "" {
		abs, err := filepath.Abs(event.Name)
		return err == nil && abs == w.file
	}

	if w.config.SkipHidden && strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	if event.Op&fsnotify.Create != 0 {
		if isDir, _ := isDirectory(event.Name); isDir {
			return true
		}
	}
	return w.hasValidExtension(strings.ToLower(filepath.Ext(event.Name)))
}

func (w *Watcher) hasValidExtension(ext string) bool {
	for _, valid := range w.config.Extensions {
		if ext == strings.ToLower(valid) {
			return true
		}
	}
	return false
}

// Debouncer collects rapid events and runs the latest callback only after
// a quiet period.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopped  bool
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger replaces the pending callback and restarts the quiet period.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		d.callback = nil
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}

func isDirectory(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
