package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the credential file when it changes on disk.
//
// The containing directory is watched so that atomic replacements
// (write to temp file, rename over target) are observed.
type Watcher struct {
	path     string
	logger   *slog.Logger
	mu       sync.RWMutex
	current  *CredentialFile
	onChange func(*CredentialFile)
}

// NewWatcher creates a watcher for the credential file at path.
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: filepath.Clean(path), logger: logger}
}

// OnChange registers a callback invoked after each reload. A nil argument
// means the file was removed.
func (w *Watcher) OnChange(fn func(*CredentialFile)) {
	w.onChange = fn
}

// Load reads the credential file and records it as current.
func (w *Watcher) Load() (*CredentialFile, error) {
	f, err := LoadCredentials(w.path)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			w.set(nil)
		}
		return nil, err
	}
	w.set(f)
	return f, nil
}

// Current returns the most recently loaded credential file, or nil.
func (w *Watcher) Current() *CredentialFile {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) set(f *CredentialFile) {
	w.mu.Lock()
	w.current = f
	w.mu.Unlock()
}

// Watch blocks until done is closed, reloading on every change to the file.
func (w *Watcher) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %s: %w", dir, err)
	}

	w.logger.Info("watching credential file", "path", w.path)

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Info("credential file change detected", "op", event.Op.String())
			f, err := w.Load()
			if err != nil && !errors.Is(err, ErrNotConfigured) {
				w.logger.Error("failed to reload credentials", "error", err)
				continue
			}
			if w.onChange != nil {
				w.onChange(f)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}
