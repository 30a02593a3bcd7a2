package dbcindex

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

const (
	spriteVersion = 2
	spriteMapFile = "sprite-map.json"
	spriteDir     = "sprites"

	// SpriteIconSize is the tile edge in pixels; SpriteIconsPerRow caps the
	// atlas width at 16 tiles.
	SpriteIconSize    = 64
	SpriteIconsPerRow = 16
)

// talent field positions used when a file was decoded without a schema.
const (
	talentTabField       = 1
	talentFirstRankField = 4
	tabClassMaskField    = 20
)

// fallbackClassIDs is the 3.3.5a playable class list (10 is unused).
var fallbackClassIDs = []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 11}

// SpritePos is one icon's pixel offset inside its class atlas.
type SpritePos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type spriteMeta struct {
	Meta
	// Fingerprint is an xxhash64 of the class→icon layout, letting external
	// tooling detect atlas changes without diffing PNGs.
	Fingerprint string `json:"fingerprint"`
}

// SpriteMap locates every talent icon inside the per-class atlases.
type SpriteMap struct {
	Meta        spriteMeta                      `json:"meta"`
	IconSize    int                             `json:"iconSize"`
	IconsPerRow int                             `json:"iconsPerRow"`
	Classes     map[string]map[string]SpritePos `json:"classes"`
}

// Lookup finds an icon's position for a class. Keys are stored lowercased;
// a case-insensitive scan covers callers that pass the original casing.
func (m *SpriteMap) Lookup(classID uint32, icon string) (SpritePos, bool) {
	icons, ok := m.Classes[strconv.FormatUint(uint64(classID), 10)]
	if !ok {
		return SpritePos{}, false
	}
	if p, ok := icons[strings.ToLower(icon)]; ok {
		return p, true
	}
	for k, p := range icons {
		if strings.EqualFold(k, icon) {
			return p, true
		}
	}
	return SpritePos{}, false
}

// Sprites returns the sprite map, rebuilding the atlases when any talent
// source moved.
func (b *Builder) Sprites() (*SpriteMap, error) {
	st := b.spriteStamps()

	if doc, ok := b.spriteMap.get(st); ok {
		return &doc, nil
	}

	b.spriteMap.buildMu.Lock()
	defer b.spriteMap.buildMu.Unlock()
	if doc, ok := b.spriteMap.get(st); ok {
		return &doc, nil
	}

	path := filepath.Join(b.opts.CacheDir, spriteMapFile)
	if fileFresh(path, st) {
		var doc SpriteMap
		if err := readIndexJSON(path, &doc); err == nil && doc.Meta.Version == spriteVersion {
			b.spriteMap.put(doc, st)
			return &doc, nil
		}
	}

	doc, err := b.buildSprites(st)
	if err != nil {
		return nil, err
	}
	if err := writeIndexJSON(path, doc); err != nil {
		b.log.WithError(err).WithField("index", spriteMapFile).Warn("failed to persist index")
	}
	b.spriteMap.put(*doc, st)
	return doc, nil
}

func (b *Builder) spriteStamps() map[string]SourceStamp {
	talent, _ := b.src.ResolvePath("Talent.dbc")
	tabs, _ := b.src.ResolvePath("TalentTab.dbc")
	spell, _ := b.src.ResolvePath("Spell.dbc")
	icon, _ := b.src.ResolvePath("SpellIcon.dbc")
	return stamps(talent, tabs, spell, icon)
}

func (b *Builder) buildSprites(st map[string]SourceStamp) (*SpriteMap, error) {
	started := time.Now()

	talents, err := b.src.ReadTable("Talent.dbc")
	if err != nil {
		return nil, fmt.Errorf("sprite atlas: %w", err)
	}
	tabs, err := b.src.ReadTable("TalentTab.dbc")
	if err != nil {
		return nil, fmt.Errorf("sprite atlas: %w", err)
	}
	spellIcons, err := b.SpellIcons()
	if err != nil {
		return nil, fmt.Errorf("sprite atlas: %w", err)
	}

	tabClassMask := make(map[uint32]uint32, len(tabs.Records))
	maskField := fieldIndexByName(tabs.Fields, "ClassMask", tabClassMaskField)
	for i, row := range tabs.Records {
		if maskField < len(row) {
			tabClassMask[tabs.ID(i)] = wdbc.CellUint32(row[maskField])
		}
	}

	tabField := fieldIndexByName(talents.Fields, "TabID", talentTabField)
	rankField := fieldIndexByName(talents.Fields, "SpellRank_1", talentFirstRankField)

	classes := make(map[string]map[string]SpritePos)
	hash := xxhash.New()
	for _, classID := range b.classIDs() {
		mask := uint32(1) << (classID - 1)

		iconSet := make(map[string]struct{})
		for _, row := range talents.Records {
			if tabField >= len(row) || rankField >= len(row) {
				continue
			}
			if tabClassMask[wdbc.CellUint32(row[tabField])]&mask == 0 {
				continue
			}
			if icon := spellIcons[wdbc.CellUint32(row[rankField])]; icon != "" {
				iconSet[icon] = struct{}{}
			}
		}
		if len(iconSet) == 0 {
			continue
		}

		names := make([]string, 0, len(iconSet))
		for n := range iconSet {
			names = append(names, n)
		}
		sort.Strings(names)

		key := strconv.FormatUint(uint64(classID), 10)
		positions := make(map[string]SpritePos, len(names))
		for i, n := range names {
			positions[n] = SpritePos{
				X: (i % SpriteIconsPerRow) * SpriteIconSize,
				Y: (i / SpriteIconsPerRow) * SpriteIconSize,
			}
		}
		classes[key] = positions

		_, _ = hash.WriteString(key)
		for _, n := range names {
			_, _ = hash.WriteString(n)
		}

		if err := b.composeAtlas(key, names); err != nil {
			b.log.WithError(err).WithField("class", classID).Warn("atlas compose failed")
		}
	}

	b.log.WithFields(logrus.Fields{
		"index":   spriteMapFile,
		"classes": len(classes),
		"took":    time.Since(started).String(),
	}).Info("rebuilt index")

	return &SpriteMap{
		Meta: spriteMeta{
			Meta:        Meta{Version: spriteVersion, BuiltAt: time.Now().UTC(), Sources: st},
			Fingerprint: fmt.Sprintf("%016x", hash.Sum64()),
		},
		IconSize:    SpriteIconSize,
		IconsPerRow: SpriteIconsPerRow,
		Classes:     classes,
	}, nil
}

// classIDs lists the playable classes from ChrClasses.dbc, falling back to
// the known 3.3.5a set when the table is unavailable.
func (b *Builder) classIDs() []uint32 {
	table, err := b.src.ReadTable("ChrClasses.dbc")
	if err != nil || len(table.Records) == 0 {
		return fallbackClassIDs
	}
	ids := make([]uint32, 0, len(table.Records))
	for i := range table.Records {
		ids = append(ids, table.ID(i))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// composeAtlas paints the class's icons row-major into one PNG, 16 tiles per
// row. Icons without a thumbnail leave their tile transparent; the position
// is still recorded so the UI renders a blank slot rather than shifting
// everything after it.
func (b *Builder) composeAtlas(classKey string, names []string) error {
	cols := len(names)
	if cols > SpriteIconsPerRow {
		cols = SpriteIconsPerRow
	}
	rows := (len(names) + SpriteIconsPerRow - 1) / SpriteIconsPerRow
	atlas := image.NewRGBA(image.Rect(0, 0, cols*SpriteIconSize, rows*SpriteIconSize))

	for i, name := range names {
		tile, err := b.loadThumb(name)
		if err != nil {
			continue
		}
		x := (i % SpriteIconsPerRow) * SpriteIconSize
		y := (i / SpriteIconsPerRow) * SpriteIconSize
		dst := image.Rect(x, y, x+SpriteIconSize, y+SpriteIconSize)
		if tile.Bounds().Dx() == SpriteIconSize && tile.Bounds().Dy() == SpriteIconSize {
			draw.Draw(atlas, dst, tile, tile.Bounds().Min, draw.Over)
		} else {
			draw.CatmullRom.Scale(atlas, dst, tile, tile.Bounds(), draw.Over, nil)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, atlas); err != nil {
		return fmt.Errorf("encode atlas: %w", err)
	}
	path := filepath.Join(b.opts.CacheDir, spriteDir, classKey+".png")
	return wdbc.WriteFileAtomic(path, buf.Bytes(), 0644)
}

func (b *Builder) loadThumb(name string) (image.Image, error) {
	f, err := os.Open(filepath.Join(b.opts.ThumbDir, name+".png"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}
