package editstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/schema"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// Fixtures use real registered layouts so reads through the store decode the
// same way they were written.
var (
	castFields = schema.For("SpellCastTimes") // ID, Base, PerLevel, Minimum
	iconFields = schema.For("SpellIcon")      // ID, IconPath
)

func castRows() []wdbc.Row {
	return []wdbc.Row{
		{uint32(1), int32(2500), int32(0), int32(500)},
		{uint32(5), int32(2000), int32(-50), int32(500)},
	}
}

func iconRows() []wdbc.Row {
	return []wdbc.Row{
		{uint32(1), `Interface\Icons\INV_Axe_01`},
		{uint32(5), `Interface\Icons\INV_Axe_02`},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return New(cfg, logging.Discard())
}

func writeTable(t *testing.T, path string, fields []wdbc.Field, records []wdbc.Row) {
	t.Helper()
	if _, err := wdbc.Write(path, fields, records); err != nil {
		t.Fatalf("Write %s: %v", path, err)
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"Spell.dbc", false},
		{"spell.DBC", false},
		{"Talent.dbc", false},
		{"Spell.txt", true},
		{"../Spell.dbc", true},
		{"sub/Spell.dbc", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CleanName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CleanName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFilename) {
				t.Fatalf("error %v is not ErrInvalidFilename", err)
			}
		})
	}
}

func TestListLayers(t *testing.T) {
	s := newTestStore(t)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellCastTimes.dbc"), castFields, castRows())
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellIcon.dbc"), iconFields, iconRows())
	writeTable(t, filepath.Join(s.cfg.ExportDBCDir(), "SpellCastTimes.dbc"), castFields, castRows()[:1])
	writeTable(t, filepath.Join(s.cfg.ExportDBCDir(), "SpellRadius.dbc"), schema.For("SpellRadius"), nil)

	infos, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	byName := map[string]FileInfo{}
	for _, fi := range infos {
		byName[fi.Name] = fi
	}
	if len(byName) != 3 {
		t.Fatalf("List returned %d files, want 3", len(byName))
	}

	cast := byName["SpellCastTimes.dbc"]
	if !cast.HasBase || !cast.HasExport {
		t.Fatalf("SpellCastTimes.dbc layers = base:%v export:%v, want both", cast.HasBase, cast.HasExport)
	}
	if cast.RecordCount != 1 {
		t.Fatalf("SpellCastTimes.dbc recordCount = %d, want 1 (export layer wins)", cast.RecordCount)
	}
	if fi := byName["SpellIcon.dbc"]; !fi.HasBase || fi.HasExport || fi.RecordCount != 2 {
		t.Fatalf("SpellIcon.dbc = %+v, want base-only with 2 records", fi)
	}
	if fi := byName["SpellRadius.dbc"]; fi.HasBase || !fi.HasExport || fi.RecordCount != 0 {
		t.Fatalf("SpellRadius.dbc = %+v, want export-only empty table", fi)
	}
}

func TestReadLayering(t *testing.T) {
	s := newTestStore(t)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellCastTimes.dbc"), castFields, castRows())
	writeTable(t, filepath.Join(s.cfg.ExportDBCDir(), "SpellCastTimes.dbc"), castFields, castRows()[:1])

	auto, err := s.Read("SpellCastTimes.dbc", LayerAuto)
	if err != nil {
		t.Fatalf("Read auto: %v", err)
	}
	if auto.Layer != LayerExport || len(auto.Records) != 1 {
		t.Fatalf("auto read layer=%s records=%d, want export with 1", auto.Layer, len(auto.Records))
	}
	if !auto.HasDefinition {
		t.Fatal("SpellCastTimes should report a registered definition")
	}
	if auto.Fields[1].Name != "Base" {
		t.Fatalf("field 1 = %q, want Base", auto.Fields[1].Name)
	}

	base, err := s.Read("SpellCastTimes.dbc", LayerBase)
	if err != nil {
		t.Fatalf("Read base: %v", err)
	}
	if base.Layer != LayerBase || len(base.Records) != 2 {
		t.Fatalf("base read layer=%s records=%d, want base with 2", base.Layer, len(base.Records))
	}
	if got := base.Records[1][1]; got != int32(2000) {
		t.Fatalf("Base cell = %v (%T), want int32 2000", got, got)
	}

	if _, err := s.Read("Missing.dbc", LayerAuto); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("Read missing error = %v, want ErrFileNotFound", err)
	}
	if _, err := s.Read("SpellCastTimes.dbc", LayerExport); err != nil {
		t.Fatalf("Read export: %v", err)
	}
}

func TestReadUnregisteredTable(t *testing.T) {
	s := newTestStore(t)
	fields := wdbc.FitFields(nil, 2)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "Unknown.dbc"), fields, []wdbc.Row{{uint32(1), uint32(7)}})

	view, err := s.Read("Unknown.dbc", LayerAuto)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if view.HasDefinition {
		t.Fatal("Unknown.dbc should not report a definition")
	}
	if view.Fields[0].Name != "Field_1" || view.Fields[0].Type != wdbc.TypeUint32 {
		t.Fatalf("generated field 0 = %+v", view.Fields[0])
	}
	if view.Records[0][1] != uint32(7) {
		t.Fatalf("cell = %v, want uint32 7", view.Records[0][1])
	}
}

func TestReadBuildsLookups(t *testing.T) {
	s := newTestStore(t)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellIcon.dbc"), iconFields, iconRows())
	glyphFields := schema.For("GlyphProperties")
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "GlyphProperties.dbc"), glyphFields, []wdbc.Row{
		{uint32(1), uint32(100), uint32(0), uint32(5)},
	})

	view, err := s.Read("GlyphProperties.dbc", LayerAuto)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	icons, ok := view.Lookups["SpellIcon"]
	if !ok {
		t.Fatalf("Lookups = %v, want a SpellIcon map", view.Lookups)
	}
	if icons[5] != `Interface\Icons\INV_Axe_02` {
		t.Fatalf("icon label for 5 = %q", icons[5])
	}
	// Spell.dbc is absent, so its map is simply omitted.
	if _, ok := view.Lookups["Spell"]; ok {
		t.Fatal("unreadable lookup source should be skipped, not empty")
	}
}

func TestSaveCreatesBakOnce(t *testing.T) {
	s := newTestStore(t)
	basePath := filepath.Join(s.cfg.BaseDBCDir(), "SpellIcon.dbc")
	writeTable(t, basePath, iconFields, iconRows())
	baseBytes, err := os.ReadFile(basePath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	edited := iconRows()
	edited[0][1] = `Interface\Icons\INV_Sword_01`
	if _, err := s.Save("SpellIcon.dbc", iconFields, edited); err != nil {
		t.Fatalf("Save: %v", err)
	}

	bakPath := filepath.Join(s.cfg.ExportDBCDir(), "SpellIcon.dbc.bak")
	bakBytes, err := os.ReadFile(bakPath)
	if err != nil {
		t.Fatalf("no .bak after first save: %v", err)
	}
	if !bytes.Equal(bakBytes, baseBytes) {
		t.Fatal(".bak does not match pre-edit base bytes")
	}

	edited[0][1] = `Interface\Icons\INV_Sword_02`
	if _, err := s.Save("SpellIcon.dbc", iconFields, edited); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	again, err := os.ReadFile(bakPath)
	if err != nil {
		t.Fatalf("ReadFile .bak: %v", err)
	}
	if !bytes.Equal(again, baseBytes) {
		t.Fatal(".bak was rewritten by a later save")
	}
}

func TestSaveMissingPayload(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save("Spell.dbc", nil, nil); !errors.Is(err, ErrMissingPayload) {
		t.Fatalf("Save without fields error = %v, want ErrMissingPayload", err)
	}
}

func TestSaveRefreshesReads(t *testing.T) {
	s := newTestStore(t)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellIcon.dbc"), iconFields, iconRows())

	before, err := s.Read("SpellIcon.dbc", LayerAuto)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := wdbc.CellString(before.Records[0][1]); got != `Interface\Icons\INV_Axe_01` {
		t.Fatalf("pre-edit path = %q", got)
	}

	edited := iconRows()
	edited[0][1] = `Interface\Icons\Spell_Fire_FlameBolt`
	if _, err := s.Save("SpellIcon.dbc", iconFields, edited); err != nil {
		t.Fatalf("Save: %v", err)
	}

	after, err := s.Read("SpellIcon.dbc", LayerAuto)
	if err != nil {
		t.Fatalf("Read after save: %v", err)
	}
	if got := wdbc.CellString(after.Records[0][1]); got != `Interface\Icons\Spell_Fire_FlameBolt` {
		t.Fatalf("post-edit path = %q", got)
	}
	if after.Layer != LayerExport {
		t.Fatalf("post-edit layer = %s, want export", after.Layer)
	}
}

func TestDailyBackupOncePerDay(t *testing.T) {
	s := newTestStore(t)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellCastTimes.dbc"), castFields, castRows())

	day1 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return day1 }

	if _, err := s.Save("SpellCastTimes.dbc", castFields, castRows()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Save("SpellCastTimes.dbc", castFields, castRows()[:1]); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	entries, err := os.ReadDir(s.cfg.BackupsDir())
	if err != nil {
		t.Fatalf("ReadDir backups: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "03-14-2026" {
		t.Fatalf("backups after day 1 = %v, want single 03-14-2026", entries)
	}

	// The snapshot predates both saves, so it keeps the 2-record base copy.
	snap := filepath.Join(s.cfg.BackupsDir(), "03-14-2026", "base-dbc", "SpellCastTimes.dbc")
	h, err := wdbc.ReadHeader(snap)
	if err != nil {
		t.Fatalf("ReadHeader snapshot: %v", err)
	}
	if h.RecordCount != 2 {
		t.Fatalf("snapshot recordCount = %d, want 2", h.RecordCount)
	}

	s.nowFunc = func() time.Time { return day1.AddDate(0, 0, 1) }
	if _, err := s.Save("SpellCastTimes.dbc", castFields, castRows()); err != nil {
		t.Fatalf("day-2 Save: %v", err)
	}
	entries, err = os.ReadDir(s.cfg.BackupsDir())
	if err != nil {
		t.Fatalf("ReadDir backups: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("backups after day 2 = %d dirs, want 2", len(entries))
	}
	snap = filepath.Join(s.cfg.BackupsDir(), "03-15-2026", "export-dbc", "SpellCastTimes.dbc")
	if _, err := os.Stat(snap); err != nil {
		t.Fatalf("day-2 export snapshot missing: %v", err)
	}
}

func TestCopyToCustom(t *testing.T) {
	s := newTestStore(t)
	basePath := filepath.Join(s.cfg.BaseDBCDir(), "SpellIcon.dbc")
	writeTable(t, basePath, iconFields, iconRows())

	if err := s.CopyToCustom("SpellIcon.dbc"); err != nil {
		t.Fatalf("CopyToCustom: %v", err)
	}
	baseBytes, _ := os.ReadFile(basePath)
	exportBytes, err := os.ReadFile(filepath.Join(s.cfg.ExportDBCDir(), "SpellIcon.dbc"))
	if err != nil {
		t.Fatalf("export copy missing: %v", err)
	}
	if !bytes.Equal(baseBytes, exportBytes) {
		t.Fatal("export copy differs from base bytes")
	}

	if err := s.CopyToCustom("Missing.dbc"); !errors.Is(err, ErrBaseMissing) {
		t.Fatalf("CopyToCustom missing error = %v, want ErrBaseMissing", err)
	}
}

func TestAddRecord(t *testing.T) {
	s := newTestStore(t)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellIcon.dbc"), iconFields, iconRows())

	res, err := s.AddRecord("SpellIcon.dbc", nil)
	if err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if res.ID != 6 || res.Position != 2 {
		t.Fatalf("AddRecord = %+v, want ID 6 at position 2", res)
	}

	view, err := s.Read("SpellIcon.dbc", LayerExport)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	row := view.Records[res.Position]
	if wdbc.CellUint32(row[0]) != 6 {
		t.Fatalf("appended ID = %v, want 6", row[0])
	}
	if wdbc.CellString(row[1]) != "" {
		t.Fatalf("appended string cell = %q, want empty", row[1])
	}

	// A supplied prefix keeps its cells but never its ID.
	res, err = s.AddRecord("SpellIcon.dbc", wdbc.Row{uint32(999), `Interface\Icons\INV_Misc_QuestionMark`})
	if err != nil {
		t.Fatalf("AddRecord with row: %v", err)
	}
	if res.ID != 7 {
		t.Fatalf("second AddRecord ID = %d, want 7", res.ID)
	}
	view, _ = s.Read("SpellIcon.dbc", LayerExport)
	if got := wdbc.CellString(view.Records[res.Position][1]); got != `Interface\Icons\INV_Misc_QuestionMark` {
		t.Fatalf("supplied cell = %q", got)
	}
}

func TestDeleteRecord(t *testing.T) {
	s := newTestStore(t)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellCastTimes.dbc"), castFields, castRows())

	remaining, err := s.DeleteRecord("SpellCastTimes.dbc", 5)
	if err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("remaining = %d, want 1", remaining)
	}

	view, err := s.Read("SpellCastTimes.dbc", LayerAuto)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(view.Records) != 1 || view.ID(0) != 1 {
		t.Fatalf("post-delete records = %d (first ID %d), want only ID 1", len(view.Records), view.ID(0))
	}

	if _, err := s.DeleteRecord("SpellCastTimes.dbc", 42); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("DeleteRecord missing error = %v, want ErrRecordNotFound", err)
	}
}

func TestUpdateRecordKeepsID(t *testing.T) {
	s := newTestStore(t)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellIcon.dbc"), iconFields, iconRows())

	row := wdbc.Row{uint32(777), `Interface\Icons\Ability_Rogue_Sprint`}
	if err := s.UpdateRecord("SpellIcon.dbc", 5, row); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}

	view, err := s.Read("SpellIcon.dbc", LayerExport)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var hit wdbc.Row
	for i := range view.Records {
		if view.ID(i) == 5 {
			hit = view.Records[i]
		}
	}
	if hit == nil {
		t.Fatal("record 5 vanished after update")
	}
	if wdbc.CellString(hit[1]) != `Interface\Icons\Ability_Rogue_Sprint` {
		t.Fatalf("updated path = %q", hit[1])
	}

	if err := s.UpdateRecord("SpellIcon.dbc", 404, row); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("UpdateRecord missing error = %v, want ErrRecordNotFound", err)
	}
}

func TestDiff(t *testing.T) {
	s := newTestStore(t)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellCastTimes.dbc"), castFields, castRows())

	if _, err := s.Diff("SpellCastTimes.dbc"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("Diff without export error = %v, want ErrFileNotFound", err)
	}

	edited := castRows()
	edited[1][2] = int32(75)
	if _, err := s.Save("SpellCastTimes.dbc", castFields, edited); err != nil {
		t.Fatalf("Save: %v", err)
	}

	diff, err := s.Diff("SpellCastTimes.dbc")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(diff.Modified) != 1 || diff.Modified[0].ID != 5 {
		t.Fatalf("diff.Modified = %+v, want one change on ID 5", diff.Modified)
	}
	if len(diff.Added)+len(diff.Removed) != 0 {
		t.Fatalf("diff added/removed = %d/%d, want none", len(diff.Added), len(diff.Removed))
	}
	if f := diff.Modified[0].Fields[0]; f.Field != "PerLevel" {
		t.Fatalf("changed field = %q, want PerLevel", f.Field)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	tests := []struct {
		file   string
		fields []wdbc.Field
		rows   []wdbc.Row
	}{
		{
			file:   "SpellIcon.dbc",
			fields: iconFields,
			rows: []wdbc.Row{
				{uint32(1), `Interface\Icons\Spell_Fire_FlameBolt`},
				{uint32(2), ""},
				{uint32(3), `Comma, "quoted" cell`},
			},
		},
		{
			file:   "SpellRadius.dbc",
			fields: schema.For("SpellRadius"),
			rows: []wdbc.Row{
				{uint32(1), float32(0.5), float32(1.25), float32(3)},
				{uint32(2), float32(42.424242), float32(0), float32(100000)},
			},
		},
		{
			file:   "SpellCastTimes.dbc",
			fields: castFields,
			rows: []wdbc.Row{
				{uint32(1), int32(-2500), int32(0), int32(500)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			s := newTestStore(t)
			writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), tt.file), tt.fields, tt.rows)

			csv1, err := s.ExportCSV(tt.file, LayerAuto)
			if err != nil {
				t.Fatalf("ExportCSV: %v", err)
			}
			if _, err := s.ImportCSV(tt.file, csv1); err != nil {
				t.Fatalf("ImportCSV: %v", err)
			}

			view, err := s.Read(tt.file, LayerExport)
			if err != nil {
				t.Fatalf("Read after import: %v", err)
			}
			if !reflect.DeepEqual(view.Records, tt.rows) {
				t.Fatalf("imported records differ:\n got %v\nwant %v", view.Records, tt.rows)
			}

			csv2, err := s.ExportCSV(tt.file, LayerExport)
			if err != nil {
				t.Fatalf("second ExportCSV: %v", err)
			}
			if !bytes.Equal(csv1, csv2) {
				t.Fatal("CSV round trip not byte-stable")
			}
		})
	}
}

func TestImportCSVRejectsGarbage(t *testing.T) {
	s := newTestStore(t)
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"bad number", "ID,IconPath\nx,y\n"},
		{"ragged row", "ID,IconPath\n1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.ImportCSV("SpellIcon.dbc", []byte(tt.data)); !errors.Is(err, ErrMissingPayload) {
				t.Fatalf("ImportCSV error = %v, want ErrMissingPayload", err)
			}
		})
	}
}

func TestOnSaveHook(t *testing.T) {
	s := newTestStore(t)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellCastTimes.dbc"), castFields, castRows())

	var saved []string
	s.OnSave(func(name string) { saved = append(saved, name) })

	if _, err := s.Save("SpellCastTimes.dbc", castFields, castRows()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.CopyToCustom("SpellCastTimes.dbc"); err != nil {
		t.Fatalf("CopyToCustom: %v", err)
	}
	if len(saved) != 2 || saved[0] != "SpellCastTimes.dbc" {
		t.Fatalf("hook calls = %v, want two for SpellCastTimes.dbc", saved)
	}
}

func TestResolvePathAsIndexSource(t *testing.T) {
	s := newTestStore(t)
	writeTable(t, filepath.Join(s.cfg.BaseDBCDir(), "SpellIcon.dbc"), iconFields, iconRows())

	path, ok := s.ResolvePath("SpellIcon.dbc")
	if !ok || path != filepath.Join(s.cfg.BaseDBCDir(), "SpellIcon.dbc") {
		t.Fatalf("ResolvePath = %q,%v, want base path", path, ok)
	}

	if _, err := s.Save("SpellIcon.dbc", iconFields, iconRows()[:1]); err != nil {
		t.Fatalf("Save: %v", err)
	}
	path, ok = s.ResolvePath("SpellIcon.dbc")
	if !ok || path != filepath.Join(s.cfg.ExportDBCDir(), "SpellIcon.dbc") {
		t.Fatalf("ResolvePath after edit = %q,%v, want export path", path, ok)
	}

	f, err := s.ReadTable("SpellIcon.dbc")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(f.Records) != 1 {
		t.Fatalf("ReadTable records = %d, want the edited layer's 1", len(f.Records))
	}

	if _, ok := s.ResolvePath("../evil.dbc"); ok {
		t.Fatal("ResolvePath accepted a traversal name")
	}
}
