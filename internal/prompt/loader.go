package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Loader serves the system prompt from a file, reloading it when the file
// changes. With no file it serves DefaultSystem.
type Loader struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	text string
}

// NewLoader reads path once. An empty path uses the built-in prompt.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{path: path, logger: logger, text: defaultSystem}
	if path == "" {
		return l, nil
	}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Current returns the latest system prompt.
func (l *Loader) Current() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.text
}

func (l *Loader) reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read system prompt: %w", err)
	}
	l.mu.Lock()
	l.text = string(data)
	l.mu.Unlock()
	return nil
}

// Watch reloads the prompt on every change until ctx is done. The
// directory is watched rather than the file so editors that replace the
// file on save are handled.
func (l *Loader) Watch(ctx context.Context) error {
	if l.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("watch %s: %w", l.path, err)
	}
	target := filepath.Clean(l.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := l.reload(); err != nil {
				l.logger.Warn("system prompt reload failed", "path", l.path, "error", err)
				continue
			}
			l.logger.Info("system prompt reloaded", "path", l.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("system prompt watcher error", "error", err)
		}
	}
}
