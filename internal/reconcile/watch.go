package reconcile

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// PathWatcher clears the detection cache when a PATH directory changes,
// so a long-running session notices tools installed or removed behind its
// back.
type PathWatcher struct {
	r       *Reconciler
	watcher *fsnotify.Watcher
	// OnChange, when set, runs after each invalidation.
	OnChange func(path string)
}

// NewPathWatcher starts watching dirs. Directories that cannot be watched
// are skipped; it is an error if none can.
func (r *Reconciler) NewPathWatcher(dirs []string) (*PathWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	added := 0
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := w.Add(dir); err != nil {
			r.logger.Debug("cannot watch PATH directory", "dir", dir, "error", err)
			continue
		}
		added++
	}
	if added == 0 {
		w.Close()
		return nil, fmt.Errorf("none of %d PATH directories could be watched", len(dirs))
	}
	return &PathWatcher{r: r, watcher: w}, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (p *PathWatcher) Run(ctx context.Context) {
	defer p.watcher.Close()

	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			p.handle(event)

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.r.logger.Warn("PATH watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

func (p *PathWatcher) handle(event fsnotify.Event) {
	if event.Op == 0 {
		return
	}
	p.r.logger.Debug("PATH changed, clearing detection cache", "path", event.Name, "op", event.Op.String())
	p.r.ClearCache()
	if p.OnChange != nil {
		p.OnChange(event.Name)
	}
}

// WatchPath watches every directory of the reconciler's PATH until ctx is
// done.
func (r *Reconciler) WatchPath(ctx context.Context) error {
	w, err := r.NewPathWatcher(filepath.SplitList(r.path))
	if err != nil {
		return err
	}
	w.Run(ctx)
	return nil
}
