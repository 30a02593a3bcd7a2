package spells

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/dbcindex"
	"github.com/surreal-wow/sdbeditor/internal/editstore"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

var (
	// ErrSpellNotFound is returned when an ID exists in neither the DBC nor
	// the mirror.
	ErrSpellNotFound = errors.New("spell not found")
	// ErrIDExists is returned by create-from-template for a taken ID.
	ErrIDExists = errors.New("spell id already exists")
	// ErrUnknownField is returned by reference search for fields outside the
	// closed source map.
	ErrUnknownField = errors.New("unknown reference field")
)

// customIDFloor is the bottom of the ID range reserved for user content.
// Blizzard's own 3.3.5a spell IDs top out well below it.
const customIDFloor = 900000

// refSearchSources routes reference search per editable field: which mirror
// database table to scan and how to label a row. Closed map — table names
// and label expressions never come from requests.
var refSearchSources = map[string]struct {
	Table string
	Label string
}{
	"SpellIconID":    {"spellicon", "COALESCE(NULLIF(`Name`,''), CONCAT('Icon ', `ID`))"},
	"ActiveIconID":   {"spellicon", "COALESCE(NULLIF(`Name`,''), CONCAT('Icon ', `ID`))"},
	"SpellVisual_1":  {"spellvisual", "CONCAT('Visual ', `ID`)"},
	"SpellVisual_2":  {"spellvisual", "CONCAT('Visual ', `ID`)"},
	"SpellMissileID": {"spellmissile", "CONCAT('Missile ', `ID`)"},
}

// Editor merges the Spell DBC, the derived indices and the SQL mirror into
// the focused spell-editing surface.
type Editor struct {
	store  editstore.Tables
	idx    *dbcindex.Builder
	mirror *Mirror
	log    *logrus.Entry
}

// NewEditor wires the editor. idx may be nil in contexts that never search
// by name (the CLI); Spell and ApplyPatch do not touch it.
func NewEditor(store editstore.Tables, idx *dbcindex.Builder, mirror *Mirror, log *logrus.Entry) *Editor {
	if log == nil {
		log = logging.Discard()
	}
	return &Editor{store: store, idx: idx, mirror: mirror, log: log}
}

// View is the spell read model the editor UI renders.
type View struct {
	ID              uint32                    `json:"id"`
	Name            string                    `json:"name"`
	Rank            string                    `json:"rank"`
	Description     string                    `json:"description"`
	ToolTip         string                    `json:"toolTip"`
	SpellIconID     uint32                    `json:"spellIconId"`
	Icon            string                    `json:"icon"`
	Editable        map[string]map[string]any `json:"editable"`
	ReferenceTables map[string]string         `json:"referenceTables"`
	CustomSpell     bool                      `json:"customSpell"`
}

// Spell builds the merged view for one ID: DBC row as the base, mirror row
// overlaid on top. A mirror outage degrades to DBC-only rather than failing
// the read.
func (e *Editor) Spell(ctx context.Context, id uint32) (*View, error) {
	dbcRow := e.dbcRow(id)

	var mirrorRow map[string]string
	var custom bool
	if e.mirror != nil {
		row, found, err := e.mirror.Row(ctx, id)
		if err != nil {
			e.log.WithError(err).WithField("spell", id).Warn("mirror unavailable, serving DBC values")
		} else if found {
			mirrorRow, custom = row, true
		}
	}

	if dbcRow == nil && !custom {
		return nil, fmt.Errorf("%w: %d", ErrSpellNotFound, id)
	}

	value := func(field string) any {
		return resolveField(field, dbcRow, mirrorRow)
	}

	editable := make(map[string]map[string]any, len(SectionOrder))
	for _, section := range SectionOrder {
		fields := Sections[section]
		vals := make(map[string]any, len(fields))
		for _, f := range fields {
			if f == "ID" {
				vals[f] = id
				continue
			}
			vals[f] = value(f)
		}
		editable[section] = vals
	}

	iconID := wdbc.CellUint32(value("SpellIconID"))
	view := &View{
		ID:              id,
		Name:            wdbc.CellString(value("SpellName")),
		Rank:            wdbc.CellString(value("Rank")),
		Description:     wdbc.CellString(value("Description")),
		ToolTip:         wdbc.CellString(value("ToolTip")),
		SpellIconID:     iconID,
		Icon:            e.iconURL(iconID),
		Editable:        editable,
		ReferenceTables: ReferenceTables(),
		CustomSpell:     custom,
	}
	return view, nil
}

// dbcRow finds a spell's record in the layered Spell.dbc, or nil.
func (e *Editor) dbcRow(id uint32) wdbc.Row {
	f, err := e.store.ReadTable("Spell.dbc")
	if err != nil {
		e.log.WithError(err).Debug("Spell.dbc unavailable")
		return nil
	}
	for i := range f.Records {
		if f.ID(i) == id {
			return f.Records[i]
		}
	}
	return nil
}

// iconURL resolves an icon ID to its thumbnail endpoint. The lookup goes
// through the layered SpellIcon.dbc rather than the spell-icon index: the
// effective SpellIconID may be a mirror override the index has never seen.
func (e *Editor) iconURL(iconID uint32) string {
	if iconID == 0 {
		return ""
	}
	f, err := e.store.ReadTable("SpellIcon.dbc")
	if err != nil {
		e.log.WithError(err).Debug("SpellIcon.dbc unavailable")
		return ""
	}
	for i := range f.Records {
		if f.ID(i) != iconID {
			continue
		}
		if len(f.Records[i]) < 2 {
			return ""
		}
		name := dbcindex.NormalizeIconPath(wdbc.CellString(f.Records[i][1]))
		if name == "" {
			return ""
		}
		return "/api/icons/" + name + "/thumbnail"
	}
	return ""
}

// resolveField returns the effective value of one editable field: the mirror
// column when present, else the DBC cell, else the type's zero.
func resolveField(field string, dbcRow wdbc.Row, mirrorRow map[string]string) any {
	if col, ok := ColumnFor(field); ok {
		if raw, ok := mirrorRow[col]; ok {
			return parseMirrorValue(field, raw)
		}
	}
	if idx, ok := spellFieldIndex[field]; ok && dbcRow != nil && idx < len(dbcRow) {
		return dbcRow[idx]
	}
	if spellFieldTypes[field] == wdbc.TypeString {
		return ""
	}
	return uint32(0)
}

// parseMirrorValue types a raw mirror cell the way the DBC decoder would.
func parseMirrorValue(field, raw string) any {
	switch spellFieldTypes[field] {
	case wdbc.TypeString:
		return raw
	case wdbc.TypeFloat:
		f, _ := strconv.ParseFloat(raw, 32)
		return float32(f)
	case wdbc.TypeInt32:
		n, _ := strconv.ParseInt(raw, 10, 64)
		return int32(n)
	default:
		n, _ := strconv.ParseInt(raw, 10, 64)
		return uint32(n)
	}
}

// PatchResult reports what a patch touched.
type PatchResult struct {
	ID      uint32   `json:"id"`
	Created bool     `json:"created"`
	Applied []string `json:"applied"`
	Skipped []string `json:"skipped,omitempty"`
}

// ApplyPatch writes the recognized fields of a patch to the mirror. Unknown
// fields are skipped silently per the editable-projection contract; the
// result names them for the caller's benefit.
func (e *Editor) ApplyPatch(ctx context.Context, id uint32, patch map[string]any) (*PatchResult, error) {
	cols, applied, skipped := splitPatch(patch)
	res := &PatchResult{ID: id, Applied: applied, Skipped: skipped}
	if len(cols) == 0 {
		return res, nil
	}
	created, err := e.mirror.Apply(ctx, id, cols)
	if err != nil {
		return nil, fmt.Errorf("apply spell patch: %w", err)
	}
	res.Created = created
	e.log.WithFields(logrus.Fields{
		"spell":   id,
		"fields":  len(applied),
		"created": created,
	}).Info("spell patched")
	return res, nil
}

// splitPatch normalizes patch keys and maps them to mirror columns. Returns
// the column-value map plus the canonical names applied and the keys skipped.
func splitPatch(patch map[string]any) (map[string]any, []string, []string) {
	cols := make(map[string]any, len(patch))
	var applied, skipped []string
	for key, v := range patch {
		field, ok := NormalizeField(key)
		if !ok || field == "ID" {
			skipped = append(skipped, key)
			continue
		}
		col, ok := ColumnFor(field)
		if !ok {
			skipped = append(skipped, key)
			continue
		}
		cols[col] = sqlValue(field, v)
		applied = append(applied, field)
	}
	sort.Strings(applied)
	sort.Strings(skipped)
	return cols, applied, skipped
}

// CreateFromTemplate clones a spell's full editable projection into the
// mirror under a new ID, with the patch merged in, as one transaction.
func (e *Editor) CreateFromTemplate(ctx context.Context, newID, templateID uint32, patch map[string]any) (*View, error) {
	dbcRow := e.dbcRow(templateID)

	var mirrorRow map[string]string
	if e.mirror != nil {
		row, found, err := e.mirror.Row(ctx, templateID)
		if err != nil {
			return nil, fmt.Errorf("read template %d: %w", templateID, err)
		}
		if found {
			mirrorRow = row
		}
	}
	if dbcRow == nil && mirrorRow == nil {
		return nil, fmt.Errorf("%w: template %d", ErrSpellNotFound, templateID)
	}

	cols := make(map[string]any)
	for field := range fieldSet {
		col, ok := ColumnFor(field)
		if !ok {
			continue
		}
		cols[col] = sqlValue(field, resolveField(field, dbcRow, mirrorRow))
	}
	patchCols, _, _ := splitPatch(patch)
	for col, v := range patchCols {
		cols[col] = v
	}

	if err := e.mirror.InsertRow(ctx, newID, cols); err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"spell":    newID,
		"template": templateID,
	}).Info("spell created from template")
	return e.Spell(ctx, newID)
}

// SuggestFreeID proposes an ID for new user content: one past the highest
// known ID, floored to the reserved custom range.
func (e *Editor) SuggestFreeID(ctx context.Context) (uint32, error) {
	f, err := e.store.ReadTable("Spell.dbc")
	if err != nil {
		return 0, err
	}
	maxID := f.MaxID()
	if e.mirror != nil {
		m, err := e.mirror.MaxID(ctx)
		if err != nil {
			return 0, err
		}
		if m > maxID {
			maxID = m
		}
	}
	return suggestFreeID(maxID), nil
}

func suggestFreeID(maxID uint32) uint32 {
	floor := uint32(customIDFloor)
	if maxID > 50000 && maxID-50000 > floor {
		floor = maxID - 50000
	}
	if maxID+1 > floor {
		return maxID + 1
	}
	return floor
}

// SearchHit is one spell-search result.
type SearchHit struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// Search matches spells by decimal-ID prefix or case-folded name substring,
// via the spell-name index. Results are ID-ordered and capped at limit.
func (e *Editor) Search(q string, limit int) ([]SearchHit, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	names, err := e.idx.SpellNames()
	if err != nil {
		return nil, err
	}

	q = strings.TrimSpace(q)
	qLower := strings.ToLower(q)
	hits := make([]SearchHit, 0, limit)
	for id, entry := range names {
		if q != "" {
			byID := strings.HasPrefix(strconv.FormatUint(uint64(id), 10), q)
			byName := qLower != "" && strings.Contains(strings.ToLower(entry.Name), qLower)
			if !byID && !byName {
				continue
			}
		}
		hits = append(hits, SearchHit{ID: id, Name: entry.Name, Icon: entry.IconName})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchReference routes a reference-field search to its SQL table.
func (e *Editor) SearchReference(ctx context.Context, field, prefix string, limit int) ([]RefHit, error) {
	canon, ok := NormalizeField(field)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	src, ok := refSearchSources[canon]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no reference source", ErrUnknownField, field)
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	return e.mirror.SearchRef(ctx, src.Table, src.Label, prefix, limit)
}
