package obfuscate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/gnolang/gobfus/scanner"
)

// DebounceInterval groups bursts of file events into one run.
var DebounceInterval = 100 * time.Millisecond

// Watch runs opts once, then again every time a Go source under the input
// changes, until ctx is cancelled. onRun receives the outcome of every run;
// a failed run does not stop watching.
func Watch(ctx context.Context, logger *zap.Logger, opts Options, onRun func(*Summary, error)) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatches(watcher, opts); err != nil {
		return fmt.Errorf("failed to watch %s: %w", opts.Input, err)
	}

	run := func() {
		sum, err := Run(ctx, logger, opts)
		if ctx.Err() != nil {
			return
		}
		onRun(sum, err)
	}
	run()

	timer := time.NewTimer(DebounceInterval)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !relevant(event, opts) {
				continue
			}
			logger.Debug("file event", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !excluded(event.Name, opts) {
					if err := watcher.Add(event.Name); err != nil {
						logger.Warn("cannot watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			timer.Reset(DebounceInterval)

		case <-timer.C:
			run()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Error("file watcher error", zap.Error(err))
		}
	}
}

func addWatches(w *fsnotify.Watcher, opts Options) error {
	info, err := os.Stat(opts.Input)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.Add(filepath.Dir(opts.Input))
	}

	return filepath.WalkDir(opts.Input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != opts.Input && (strings.HasPrefix(d.Name(), ".") || excluded(path, opts)) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func relevant(event fsnotify.Event, opts Options) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	if excluded(event.Name, opts) {
		return false
	}
	if info, err := os.Stat(opts.Input); err == nil && !info.IsDir() {
		return filepath.Clean(event.Name) == filepath.Clean(opts.Input)
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return true
		}
	}
	return scanner.HasExtension(event.Name, sourceExt)
}

// excluded reports whether path lies under a directory the run writes to.
func excluded(path string, opts Options) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range []string{opts.Output, opts.Records} {
		if dir == "" {
			continue
		}
		root, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
