// Package dbcindex derives and persists the lookup indices that collapse
// multi-file DBC joins into O(1) maps: spell→icon, spell→name, the icon
// directory listing and manifest, and the per-class sprite atlas.
//
// Every index follows the same shape: load the JSON file when it is fresh
// (file mtime newer than every source mtime, version tag matching),
// otherwise rebuild from the DBC sources and persist atomically. Indices are
// advisory; builders log failures and return what they can rather than
// failing a request.
package dbcindex

import (
	"encoding/json"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// Source reads tables through the edit layering (export over base) without
// this package depending on the edit store directly.
type Source interface {
	// ResolvePath returns the effective on-disk path for a DBC file name
	// and whether it exists on either layer.
	ResolvePath(name string) (string, bool)
	// ReadTable decodes a DBC file through the layered view.
	ReadTable(name string) (*wdbc.File, error)
}

// SourceStamp records one source file's mtime inside an index meta block.
type SourceStamp struct {
	Mtime int64 `json:"mtime"` // unix milliseconds; 0 when the source is absent
}

// Meta is the header every persisted index carries.
type Meta struct {
	Version int                    `json:"version"`
	BuiltAt time.Time              `json:"builtAt"`
	Sources map[string]SourceStamp `json:"sources"`
}

// Options configures a Builder.
type Options struct {
	// CacheDir is where index JSON files and the sprites directory live.
	CacheDir string
	// IconDir is the effective icon directory (layered view already applied).
	IconDir string
	// ThumbDir holds the 64x64 PNG thumbnails used as sprite tiles and for
	// the manifest's hasThumbnail flag.
	ThumbDir string
	Log      *logrus.Entry
}

// Builder owns the derived indices. In-memory caches are immutable after
// publication and swapped atomically; staleness is re-checked on every
// access so a DBC save invalidates dependent indices without any explicit
// signal (the export file's mtime moves, the cache entry's stamps no longer
// match).
type Builder struct {
	src  Source
	opts Options
	log  *logrus.Entry

	spellIcon publication[spellIconDoc]
	spellName publication[spellNameDoc]
	iconList  *IconList
	spriteMap publication[SpriteMap]
}

// New builds a Builder. Directory watching is not started here; callers feed
// watcher events to IconList.Apply.
func New(src Source, opts Options) *Builder {
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	b := &Builder{src: src, opts: opts, log: opts.Log}
	b.iconList = newIconList(b)
	return b
}

// IconList exposes the live icon listing (see iconlist.go).
func (b *Builder) IconList() *IconList { return b.iconList }

// Invalidate drops every in-memory cache. Persisted files stay; the next
// access re-validates them against source mtimes.
func (b *Builder) Invalidate() {
	b.spellIcon.drop()
	b.spellName.drop()
	b.spriteMap.drop()
}

// stamps stats every path. Missing files record mtime 0 so that their later
// appearance makes dependent indices stale.
func stamps(paths ...string) map[string]SourceStamp {
	out := make(map[string]SourceStamp, len(paths))
	for _, p := range paths {
		var ms int64
		if fi, err := os.Stat(p); err == nil {
			ms = fi.ModTime().UnixMilli()
		}
		out[p] = SourceStamp{Mtime: ms}
	}
	return out
}

// fileFresh reports whether the file at path is newer than every source
// stamp. A missing index file is never fresh.
func fileFresh(path string, sources map[string]SourceStamp) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	idx := fi.ModTime().UnixMilli()
	for _, s := range sources {
		if s.Mtime >= idx {
			return false
		}
	}
	return true
}

// readIndexJSON loads and unmarshals an index file into doc.
func readIndexJSON(path string, doc any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, doc)
}

// writeIndexJSON persists an index document atomically (tmp + rename in the
// target directory).
func writeIndexJSON(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return wdbc.WriteFileAtomic(path, data, 0644)
}
