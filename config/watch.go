package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file whenever it is written and hands the
// validated result to a callback. The parent directory is watched so that
// editors replacing the file by rename are picked up too.
type Watcher struct {
	Path     string
	Cooldown time.Duration
	OnError  func(error)
	// Check 默认为 Validate；dry-run 传 ValidateParams。
	Check func(AppConfig) error
}

// Start blocks until ctx is done.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if w.Cooldown > 0 && time.Since(last) < w.Cooldown {
				continue
			}
			cfg, err := readWithEnv(target)
			if err == nil {
				err = w.check(cfg)
			}
			if err != nil {
				w.reportError(err)
				continue
			}
			last = time.Now()
			if onUpdate != nil {
				onUpdate(cfg)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.reportError(err)
		}
	}
}

func (w Watcher) check(cfg AppConfig) error {
	if w.Check != nil {
		return w.Check(cfg)
	}
	return Validate(cfg)
}

func (w Watcher) reportError(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}
