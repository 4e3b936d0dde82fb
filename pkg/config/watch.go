package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the config file at path whenever it changes on disk and
// delivers every valid result on the returned channel. Invalid edits are
// logged and skipped. The channel closes when ctx is done.
//
// The parent directory is watched rather than the file so that editors which
// replace the file by rename are still observed.
func Watch(ctx context.Context, path string, logger *zap.Logger) (<-chan Config, error) {
	if path == "" {
		return nil, fmt.Errorf("watch config: path must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	logger = logger.With(zap.String("component", "config-watch"), zap.String("path", abs))
	out := make(chan Config)

	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(abs)
				if err != nil {
					logger.Warn("ignoring invalid config change", zap.Error(err))
					continue
				}
				logger.Info("config reloaded")
				select {
				case out <- cfg:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", zap.Error(err))
			}
		}
	}()

	return out, nil
}
