package dbcindex

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/surreal-wow/sdbeditor/internal/watch"
)

const (
	iconListVersion = 2
	iconListFile    = "icon-list.json"

	// iconPersistDelay coalesces watcher bursts before the listing is
	// persisted and the manifest rebuilt.
	iconPersistDelay = time.Second
)

type iconListDoc struct {
	Meta      Meta      `json:"meta"`
	Generated time.Time `json:"generated"`
	Count     int       `json:"count"`
	Files     []string  `json:"files"`
}

// IconList is the live set of BLP files in the icon directory. The watcher
// mutates it through Apply; readers get sorted copies. Persistence is
// debounced so that bulk imports write the index once.
type IconList struct {
	b   *Builder
	deb *watch.Debouncer

	mu     sync.Mutex
	files  map[string]struct{}
	loaded bool
}

func newIconList(b *Builder) *IconList {
	l := &IconList{b: b, files: make(map[string]struct{})}
	l.deb = watch.NewDebouncer(iconPersistDelay, l.flush)
	return l
}

// Files returns the BLP file names sorted in code-point order. The first
// call scans the icon directory and persists the listing.
func (l *IconList) Files() []string {
	l.mu.Lock()
	if !l.loaded {
		l.scanLocked()
		files := l.sortedLocked()
		l.mu.Unlock()
		l.persist(files)
		return files
	}
	files := l.sortedLocked()
	l.mu.Unlock()
	return files
}

// Has reports whether the named BLP file is present (case-insensitive).
func (l *IconList) Has(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		l.scanLocked()
	}
	if _, ok := l.files[name]; ok {
		return true
	}
	for f := range l.files {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// Apply feeds one watcher event into the set and schedules a debounced
// persist + manifest rebuild.
func (l *IconList) Apply(ev watch.Event) {
	l.mu.Lock()
	if !l.loaded {
		l.scanLocked()
	}
	switch ev.Op {
	case watch.Created:
		l.files[ev.Name] = struct{}{}
	case watch.Removed:
		delete(l.files, ev.Name)
	}
	l.mu.Unlock()
	l.deb.Trigger()
}

// Rebuild rescans the icon directory, persists immediately and rebuilds the
// manifest. Used by the explicit rebuild endpoint and the CLI.
func (l *IconList) Rebuild() []string {
	l.mu.Lock()
	l.scanLocked()
	files := l.sortedLocked()
	l.mu.Unlock()

	l.persist(files)
	if _, err := l.b.RebuildManifest(); err != nil {
		l.b.log.WithError(err).Warn("manifest rebuild failed")
	}
	return files
}

// Close drains any pending debounced persist.
func (l *IconList) Close() {
	l.deb.CancelAndWait()
}

func (l *IconList) scanLocked() {
	l.files = make(map[string]struct{})
	entries, err := os.ReadDir(l.b.opts.IconDir)
	if err != nil {
		l.b.log.WithError(err).WithField("dir", l.b.opts.IconDir).Warn("icon directory scan failed")
		l.loaded = true
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".blp") {
			l.files[e.Name()] = struct{}{}
		}
	}
	l.loaded = true
}

func (l *IconList) sortedLocked() []string {
	files := lo.Keys(l.files)
	sort.Strings(files)
	return files
}

// flush is the debounced target: persist the current set, then rebuild the
// manifest that derives from it.
func (l *IconList) flush() {
	l.mu.Lock()
	files := l.sortedLocked()
	l.mu.Unlock()

	l.persist(files)
	if _, err := l.b.RebuildManifest(); err != nil {
		l.b.log.WithError(err).Warn("manifest rebuild failed")
	}
}

func (l *IconList) persist(files []string) {
	now := time.Now().UTC()
	doc := iconListDoc{
		Meta: Meta{
			Version: iconListVersion,
			BuiltAt: now,
			Sources: stamps(l.b.opts.IconDir),
		},
		Generated: now,
		Count:     len(files),
		Files:     files,
	}
	path := filepath.Join(l.b.opts.CacheDir, iconListFile)
	if err := writeIndexJSON(path, doc); err != nil {
		l.b.log.WithError(err).WithField("index", iconListFile).Warn("failed to persist index")
	}
}
