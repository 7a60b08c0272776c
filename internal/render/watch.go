package render

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/agentworkforce/slackarchive/internal/archive"
)

const watchDebounce = 250 * time.Millisecond

// Loader returns the current archive.
type Loader func(ctx context.Context) (*archive.Archive, error)

// Watch renders once, then renders again whenever the archive file at path
// changes, until ctx is done. The parent directory is watched because saves
// replace the file by rename.
func (r *Renderer) Watch(ctx context.Context, path string, load Loader, outDir string) error {
	if err := r.renderFrom(ctx, load, outDir); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	r.logger.Info("watching archive for changes", zap.String("archive", target))

	var debounce <-chan time.Time
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
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", zap.Error(err))
		case <-debounce:
			debounce = nil
			if err := r.renderFrom(ctx, load, outDir); err != nil {
				r.logger.Warn("re-render failed, keeping previous output", zap.Error(err))
			}
		}
	}
}

func (r *Renderer) renderFrom(ctx context.Context, load Loader, outDir string) error {
	a, err := load(ctx)
	if err != nil {
		return err
	}
	return r.Render(a, outDir)
}
