package watch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/logging"
)

// Op classifies a directory event.
type Op int

const (
	// Created covers both fresh files and files renamed into the directory.
	Created Op = iota
	// Removed covers deletions and renames out of the directory.
	Removed
)

// Event is one file appearing in or disappearing from the watched directory.
type Event struct {
	// Name is the file's base name, original case preserved.
	Name string
	Op   Op
}

// DirWatcher watches a single directory (non-recursive) for files with one
// extension and forwards create/remove events to a callback. The callback
// runs on the watcher goroutine and must not block; hand heavy work to a
// Debouncer.
type DirWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
	log     *logrus.Entry
}

// WatchDir starts watching dir for files with the given extension (compared
// case-insensitively, e.g. ".blp").
func WatchDir(dir, ext string, fn func(Event), log *logrus.Entry) (*DirWatcher, error) {
	if log == nil {
		log = logging.Discard()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	dw := &DirWatcher{
		watcher: w,
		done:    make(chan struct{}),
		log:     log.WithField("dir", dir),
	}
	go dw.loop(ext, fn)
	return dw, nil
}

func (dw *DirWatcher) loop(ext string, fn func(Event)) {
	defer close(dw.done)
	for {
		select {
		case ev, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(ev.Name)
			if !strings.EqualFold(filepath.Ext(name), ext) {
				continue
			}
			switch {
			case ev.Op.Has(fsnotify.Create):
				fn(Event{Name: name, Op: Created})
			case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
				// A rename within the directory also emits a Create for the
				// new name, so treating Rename as removal keeps the set right.
				fn(Event{Name: name, Op: Removed})
			}
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.log.WithError(err).Warn("watcher error")
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (dw *DirWatcher) Close() error {
	err := dw.watcher.Close()
	<-dw.done
	return err
}
