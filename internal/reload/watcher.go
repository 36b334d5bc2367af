// Package reload drives pull-model hot reload: it watches the contract
// artifact and policy bundle on disk and triggers the owning component's
// reload when a file changes. There is no inbound push endpoint; file watch
// is the only update path.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Target is a reloadable component. Reload must build the replacement fully
// before swapping it in, and must keep the previous state on failure.
type Target struct {
	// Name identifies the component in logs and failure reports.
	Name string

	// Path is the file or directory to watch.
	Path string

	// Reload is invoked after a write to Path.
	Reload func(ctx context.Context) error
}

// Reporter receives reload failures. Failures are never fatal; the component
// keeps serving its last-known-good state.
type Reporter interface {
	ReloadFailed(component string, err error)
}

// Watcher multiplexes fsnotify events to reload targets.
type Watcher struct {
	targets  []Target
	reporter Reporter
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// NewWatcher registers the targets with a shared fsnotify watcher.
func NewWatcher(targets []Target, reporter Reporter, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	watched := make(map[string]bool)
	for _, t := range targets {
		fi, err := os.Stat(t.Path)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", t.Path, err)
		}
		// File targets watch the parent directory: an atomic-rename deploy
		// replaces the file's inode, which would silently end a direct
		// watch. Events are filtered back to the target path at dispatch.
		watch := t.Path
		if !fi.IsDir() {
			watch = filepath.Dir(t.Path)
		}
		if !watched[watch] {
			if err := fsw.Add(watch); err != nil {
				fsw.Close()
				return nil, fmt.Errorf("watch %s: %w", watch, err)
			}
			watched[watch] = true
		}
		logger.Info("watching for changes", slog.String("component", t.Name), slog.String("path", t.Path))
	}
	return &Watcher{targets: targets, reporter: reporter, logger: logger, fsw: fsw}, nil
}

// Run processes events until the context is cancelled. Intended to run on
// its own goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("reload watcher stopped")
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			// Editors and atomic-rename deploys surface as Write or Create.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.dispatch(ctx, event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, changed string) {
	for _, t := range w.targets {
		if !pathMatches(t.Path, changed) {
			continue
		}
		w.logger.Info("change detected, reloading",
			slog.String("component", t.Name),
			slog.String("path", changed))
		if err := t.Reload(ctx); err != nil {
			if w.reporter != nil {
				w.reporter.ReloadFailed(t.Name, err)
			}
			continue
		}
	}
}

// pathMatches reports whether changed falls under the watched path. Watching
// a directory yields events for files inside it.
func pathMatches(watched, changed string) bool {
	if watched == changed {
		return true
	}
	return len(changed) > len(watched) && changed[:len(watched)] == watched && changed[len(watched)] == '/'
}
