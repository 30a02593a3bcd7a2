package dbcindex

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

const (
	manifestVersion = 2
	manifestFile    = "icon-manifest.json"
)

// ManifestEntry describes one icon's standing across the three places it
// can appear: the icon directory, the thumbnail cache, and SpellIcon.dbc.
type ManifestEntry struct {
	Name         string `json:"name"` // base name without the .blp extension
	HasThumbnail bool   `json:"hasThumbnail"`
	InDbc        bool   `json:"inDbc"`
	DbcID        uint32 `json:"dbcId,omitempty"`
}

type manifestDoc struct {
	Meta  Meta            `json:"meta"`
	Icons []ManifestEntry `json:"icons"`
}

// Manifest returns the per-icon manifest, loading the persisted file when it
// is still fresh against the icon list and SpellIcon.dbc.
func (b *Builder) Manifest() ([]ManifestEntry, error) {
	path := filepath.Join(b.opts.CacheDir, manifestFile)
	if fileFresh(path, b.manifestStamps()) {
		var doc manifestDoc
		if err := readIndexJSON(path, &doc); err == nil && doc.Meta.Version == manifestVersion {
			return doc.Icons, nil
		}
	}
	return b.RebuildManifest()
}

// RebuildManifest recomputes the manifest from the live icon list and
// persists it.
func (b *Builder) RebuildManifest() ([]ManifestEntry, error) {
	st := b.manifestStamps()

	// SpellIcon.dbc maps normalized icon names to their DBC IDs. A missing
	// table just means no icon can be marked inDbc.
	dbcIDs := make(map[string]uint32)
	if icons, err := b.src.ReadTable("SpellIcon.dbc"); err == nil {
		for i, row := range icons.Records {
			if len(row) < 2 {
				continue
			}
			if name := NormalizeIconPath(wdbc.CellString(row[1])); name != "" {
				dbcIDs[name] = icons.ID(i)
			}
		}
	} else {
		b.log.WithError(err).Warn("manifest: SpellIcon.dbc unavailable")
	}

	files := b.iconList.Files()
	entries := make([]ManifestEntry, 0, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(f, filepath.Ext(f))
		id, inDbc := dbcIDs[strings.ToLower(name)]
		entries = append(entries, ManifestEntry{
			Name:         name,
			HasThumbnail: hasThumbnail(b.opts.ThumbDir, name),
			InDbc:        inDbc,
			DbcID:        id,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	doc := manifestDoc{
		Meta:  Meta{Version: manifestVersion, BuiltAt: time.Now().UTC(), Sources: st},
		Icons: entries,
	}
	path := filepath.Join(b.opts.CacheDir, manifestFile)
	if err := writeIndexJSON(path, doc); err != nil {
		b.log.WithError(err).WithField("index", manifestFile).Warn("failed to persist index")
	}
	return entries, nil
}

func (b *Builder) manifestStamps() map[string]SourceStamp {
	iconDbc, _ := b.src.ResolvePath("SpellIcon.dbc")
	return stamps(filepath.Join(b.opts.CacheDir, iconListFile), iconDbc)
}

func hasThumbnail(thumbDir, name string) bool {
	fi, err := os.Stat(filepath.Join(thumbDir, name+".png"))
	return err == nil && fi.Size() > 0
}
