package dbcindex

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

const (
	spellNameVersion   = 3
	spellNameIndexFile = "spell-name-index.json"

	// nameSampleLimit caps how many rows the field-scoring pass reads.
	nameSampleLimit = 4000
)

// SpellNameEntry is one spell's resolved display data.
type SpellNameEntry struct {
	Name     string `json:"name"`
	IconName string `json:"iconName,omitempty"`
}

// FieldScore records how one candidate string field fared during scoring.
// The full ranking is persisted so a surprising name choice can be debugged
// from the index file alone.
type FieldScore struct {
	Field    int    `json:"field"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Likely   int    `json:"likely"`
	NonEmpty int    `json:"nonEmpty"`
	Noisy    int    `json:"noisy"`
}

type spellNameMeta struct {
	Meta
	NameField int          `json:"nameField"`
	Ranking   []FieldScore `json:"ranking"`
}

type spellNameDoc struct {
	Meta  spellNameMeta             `json:"meta"`
	Index map[uint32]SpellNameEntry `json:"index"`
}

// nameBlocklist disqualifies values that are placeholders rather than names.
var nameBlocklist = []string{"spell editor", "tooltip", "<mult>", "unused", "deprecated"}

// isLikelySpellName reports whether a cell value looks like a displayable
// spell name: 2-80 characters, at least one letter, none of ${}<>[] and not
// on the placeholder blocklist.
func isLikelySpellName(s string) bool {
	if len(s) < 2 || len(s) > 80 {
		return false
	}
	if strings.ContainsAny(s, "${}<>[]") {
		return false
	}
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return false
	}
	lower := strings.ToLower(s)
	for _, bad := range nameBlocklist {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	return true
}

func isNoisyName(s string) bool {
	return strings.ContainsAny(s, "${}<>[]") || len(s) > 90
}

// SpellNames returns spellId → {name, iconName}, loading or rebuilding the
// persisted index as needed.
func (b *Builder) SpellNames() (map[uint32]SpellNameEntry, error) {
	spellPath, _ := b.src.ResolvePath("Spell.dbc")
	iconPath, _ := b.src.ResolvePath("SpellIcon.dbc")
	st := stamps(spellPath, iconPath)

	if doc, ok := b.spellName.get(st); ok {
		return doc.Index, nil
	}

	b.spellName.buildMu.Lock()
	defer b.spellName.buildMu.Unlock()
	if doc, ok := b.spellName.get(st); ok {
		return doc.Index, nil
	}

	path := filepath.Join(b.opts.CacheDir, spellNameIndexFile)
	if fileFresh(path, st) {
		var doc spellNameDoc
		if err := readIndexJSON(path, &doc); err == nil && doc.Meta.Version == spellNameVersion {
			b.spellName.put(doc, st)
			return doc.Index, nil
		}
	}

	doc, err := b.buildSpellNames(st)
	if err != nil {
		return nil, err
	}
	if err := writeIndexJSON(path, doc); err != nil {
		b.log.WithError(err).WithField("index", spellNameIndexFile).Warn("failed to persist index")
	}
	b.spellName.put(doc, st)
	return doc.Index, nil
}

// SpellName resolves a single id, falling back to "Spell <id>" when the
// index has no entry.
func (b *Builder) SpellName(id uint32) string {
	names, err := b.SpellNames()
	if err != nil {
		return fmt.Sprintf("Spell %d", id)
	}
	if e, ok := names[id]; ok && e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("Spell %d", id)
}

func (b *Builder) buildSpellNames(st map[string]SourceStamp) (spellNameDoc, error) {
	started := time.Now()

	spells, err := b.src.ReadTable("Spell.dbc")
	if err != nil {
		return spellNameDoc{}, fmt.Errorf("spell-name index: %w", err)
	}

	ranking := rankNameFields(spells)
	icons, err := b.SpellIcons()
	if err != nil {
		b.log.WithError(err).Warn("spell-name index: building without icon names")
		icons = map[uint32]string{}
	}

	index := make(map[uint32]SpellNameEntry, len(spells.Records))
	for i, row := range spells.Records {
		id := spells.ID(i)
		index[id] = SpellNameEntry{
			Name:     pickName(row, ranking, id),
			IconName: icons[id],
		}
	}

	nameField := -1
	if len(ranking) > 0 {
		nameField = ranking[0].Field
	}
	b.log.WithFields(logrus.Fields{
		"index":     spellNameIndexFile,
		"entries":   len(index),
		"nameField": nameField,
		"took":      time.Since(started).String(),
	}).Info("rebuilt index")

	return spellNameDoc{
		Meta: spellNameMeta{
			Meta:      Meta{Version: spellNameVersion, BuiltAt: time.Now().UTC(), Sources: st},
			NameField: nameField,
			Ranking:   ranking,
		},
		Index: index,
	}, nil
}

// rankNameFields scores every string-typed field on a row sample and orders
// them best-first. The schema's 234 fields may not match a particular build,
// so the choice is earned from the data instead of hardcoded:
//
//	score = 3*likely + nonEmpty - 2*noisy
//
// plus a flat +25 when the field is literally named SpellName and +15 for
// its locale variants, which breaks ties between equally-populated locale
// columns.
func rankNameFields(f *wdbc.File) []FieldScore {
	var candidates []int
	for i, fd := range f.Fields {
		if fd.Type == wdbc.TypeString {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	stride := 1
	if len(f.Records) > nameSampleLimit {
		stride = len(f.Records) / nameSampleLimit
	}

	scores := make([]FieldScore, 0, len(candidates))
	for _, fi := range candidates {
		fs := FieldScore{Field: fi, Name: f.Fields[fi].Name}
		for r := 0; r < len(f.Records); r += stride {
			row := f.Records[r]
			if fi >= len(row) {
				continue
			}
			v := wdbc.CellString(row[fi])
			if v == "" {
				continue
			}
			fs.NonEmpty++
			if isLikelySpellName(v) {
				fs.Likely++
			}
			if isNoisyName(v) {
				fs.Noisy++
			}
		}
		fs.Score = 3*fs.Likely + fs.NonEmpty - 2*fs.Noisy
		switch {
		case fs.Name == "SpellName":
			fs.Score += 25
		case strings.HasPrefix(fs.Name, "SpellName_"):
			fs.Score += 15
		}
		scores = append(scores, fs)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Field < scores[j].Field
	})
	return scores
}

// pickName walks the ranked fields and returns the first value that looks
// like a real name.
func pickName(row wdbc.Row, ranking []FieldScore, id uint32) string {
	for _, fs := range ranking {
		if fs.Field >= len(row) {
			continue
		}
		if v := wdbc.CellString(row[fs.Field]); isLikelySpellName(v) {
			return v
		}
	}
	return fmt.Sprintf("Spell %d", id)
}
