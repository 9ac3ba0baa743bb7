package monitor

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher is a Trigger that fires when a usage log under root is written or created.
// It only signals; the loop still rescans the whole tree.
type Watcher struct {
	watcher *fsnotify.Watcher
	suffix  string
	logger  *slog.Logger
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewWatcher watches root and all of its subdirectories. A missing root is not
// an error; nothing fires until the loop's interval picks it up.
func NewWatcher(root, suffix string, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	w := &Watcher{
		watcher: fw,
		suffix:  suffix,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	w.addRecursive(root)

	go w.processEvents()
	return w, nil
}

// C implements Trigger. Bursts of events coalesce into a single pending signal.
func (w *Watcher) C() <-chan struct{} {
	return w.wake
}

// Close stops watching and releases resources
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

// addRecursive adds a directory and all its subdirectories to the watch list
func (w *Watcher) addRecursive(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debug("cannot watch directory", "path", path, "err", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addRecursive(event.Name)
					w.signal()
					continue
				}
			}

			if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) &&
				strings.HasSuffix(event.Name, w.suffix) {
				w.signal()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("file watcher error", "err", err)
		}
	}
}

func (w *Watcher) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}
