package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vaultos/vaultwm/internal/logger"
)

const reloadDebounce = 250 * time.Millisecond

// fileWatcher turns edits of the config and rules files into reload
// requests. Directories are watched rather than the files so editors
// that replace a file on save keep triggering.
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	targets  map[string]bool
	debounce time.Duration
	reloads  chan<- struct{}
}

// newFileWatcher watches paths and signals reloads on changes
func newFileWatcher(reloads chan<- struct{}, paths ...string) (*fileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &fileWatcher{
		watcher:  watcher,
		targets:  make(map[string]bool),
		debounce: reloadDebounce,
		reloads:  reloads,
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		full, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		full = filepath.Clean(full)
		w.targets[full] = true
		dirs[filepath.Dir(full)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			// the directory may not exist yet; the file can still be
			// reloaded with the reload command
			logger.WithComponent("watch").Warn().Err(err).Str("dir", dir).Msg("Unable to watch directory")
		}
	}
	return w, nil
}

// Run signals one reload per burst of changes until ctx is done or the watcher closes
func (w *fileWatcher) Run(ctx context.Context) {
	log := logger.WithComponent("watch")
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.targets[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Config file changed")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			requestReload(w.reloads)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// requestReload queues a reload unless one is already pending
func requestReload(reloads chan<- struct{}) {
	select {
	case reloads <- struct{}{}:
	default:
	}
}

// Close stops watching
func (w *fileWatcher) Close() error {
	return w.watcher.Close()
}
