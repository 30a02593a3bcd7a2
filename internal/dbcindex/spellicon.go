package dbcindex

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

const (
	spellIconVersion   = 2
	spellIconIndexFile = "spell-icon-index.json"

	// spellIconField is the SpellIconID column of the 3.3.5a Spell.dbc.
	// Used when the decoded schema does not name it.
	spellIconField = 133
)

type spellIconDoc struct {
	Meta  Meta              `json:"meta"`
	Index map[uint32]string `json:"index"`
}

// NormalizeIconPath reduces a SpellIcon.dbc path to the base name the icon
// directory and thumbnail cache key on: backslashes become slashes, leading
// directories and the extension are stripped, and the result is lowercased.
// "Interface\\Icons\\Spell_Fire_FlameBolt" -> "spell_fire_flamebolt".
func NormalizeIconPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = p[strings.LastIndex(p, "/")+1:]
	if ext := filepath.Ext(p); ext != "" {
		p = p[:len(p)-len(ext)]
	}
	return strings.ToLower(p)
}

// SpellIcons returns the spellId → icon base name map, loading or rebuilding
// the persisted index as needed.
func (b *Builder) SpellIcons() (map[uint32]string, error) {
	spellPath, _ := b.src.ResolvePath("Spell.dbc")
	iconPath, _ := b.src.ResolvePath("SpellIcon.dbc")
	st := stamps(spellPath, iconPath)

	if doc, ok := b.spellIcon.get(st); ok {
		return doc.Index, nil
	}

	b.spellIcon.buildMu.Lock()
	defer b.spellIcon.buildMu.Unlock()
	if doc, ok := b.spellIcon.get(st); ok {
		return doc.Index, nil
	}

	path := filepath.Join(b.opts.CacheDir, spellIconIndexFile)
	if fileFresh(path, st) {
		var doc spellIconDoc
		if err := readIndexJSON(path, &doc); err == nil && doc.Meta.Version == spellIconVersion {
			b.spellIcon.put(doc, st)
			return doc.Index, nil
		}
	}

	doc, err := b.buildSpellIcons(st)
	if err != nil {
		return nil, err
	}
	if err := writeIndexJSON(path, doc); err != nil {
		b.log.WithError(err).WithField("index", spellIconIndexFile).Warn("failed to persist index")
	}
	b.spellIcon.put(doc, st)
	return doc.Index, nil
}

func (b *Builder) buildSpellIcons(st map[string]SourceStamp) (spellIconDoc, error) {
	started := time.Now()

	icons, err := b.src.ReadTable("SpellIcon.dbc")
	if err != nil {
		return spellIconDoc{}, fmt.Errorf("spell-icon index: %w", err)
	}
	spells, err := b.src.ReadTable("Spell.dbc")
	if err != nil {
		return spellIconDoc{}, fmt.Errorf("spell-icon index: %w", err)
	}

	iconNames := make(map[uint32]string, len(icons.Records))
	for i, row := range icons.Records {
		if len(row) < 2 {
			continue
		}
		name := NormalizeIconPath(wdbc.CellString(row[1]))
		if name == "" {
			continue
		}
		iconNames[icons.ID(i)] = name
	}

	iconField := fieldIndexByName(spells.Fields, "SpellIconID", spellIconField)
	index := make(map[uint32]string, len(spells.Records))
	for i, row := range spells.Records {
		if iconField >= len(row) {
			continue
		}
		// Spells pointing at an icon ID that does not exist are omitted.
		if name, ok := iconNames[wdbc.CellUint32(row[iconField])]; ok {
			index[spells.ID(i)] = name
		}
	}

	b.log.WithFields(logrus.Fields{
		"index":   spellIconIndexFile,
		"entries": len(index),
		"took":    time.Since(started).String(),
	}).Info("rebuilt index")

	return spellIconDoc{
		Meta:  Meta{Version: spellIconVersion, BuiltAt: time.Now().UTC(), Sources: st},
		Index: index,
	}, nil
}

// fieldIndexByName finds a column by schema name, falling back to the known
// 3.3.5a position when the file was decoded without a schema.
func fieldIndexByName(fields []wdbc.Field, name string, fallback int) int {
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	return fallback
}
