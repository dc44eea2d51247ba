package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/latchgrid/pkg/source"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Watch reloads the session whenever a file behind the source changes,
// calling fn with each result. It blocks until ctx is done. Sources that
// are not file-backed are rejected.
func (s *Session) Watch(ctx context.Context, debounce time.Duration, fn func(*Snapshot, error)) error {
	w, ok := s.src.(source.Watchable)
	if !ok || len(w.WatchPaths()) == 0 {
		return fmt.Errorf("source does not support watching")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// editors often replace files, so watch the directory and match names
	targets := make(map[string]bool)
	for _, p := range w.WatchPaths() {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		targets[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}
	s.logger.Debug("watching source files", "files", len(targets))

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !targets[abs] {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if ctx.Err() != nil {
					return
				}
				s.logger.Debug("source changed", "file", filepath.Base(abs))
				snap, err := s.Load(ctx)
				if fn != nil {
					fn(snap, err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}
