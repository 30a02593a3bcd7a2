package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/dbcindex"
	"github.com/surreal-wow/sdbeditor/internal/editstore"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/schema"
	"github.com/surreal-wow/sdbeditor/internal/spells"
	"github.com/surreal-wow/sdbeditor/internal/talent"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// zeroedRow builds a typed-zero record for a schema.
func zeroedRow(fields []wdbc.Field) wdbc.Row {
	row := make(wdbc.Row, len(fields))
	for i, f := range fields {
		switch f.Type {
		case wdbc.TypeString:
			row[i] = ""
		case wdbc.TypeFloat:
			row[i] = float32(0)
		case wdbc.TypeInt32:
			row[i] = int32(0)
		default:
			row[i] = uint32(0)
		}
	}
	return row
}

func cellIndex(t *testing.T, fields []wdbc.Field, name string) int {
	t.Helper()
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	t.Fatalf("no field %q", name)
	return -1
}

// newDataFixture stands up the data API over a temp-dir store seeded with a
// small Spell/SpellIcon/Talent universe. No SQL mirror is attached.
func newDataFixture(t *testing.T) (*DataServer, *config.Config) {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	store := editstore.New(cfg, logging.Discard())

	write := func(name, table string, rows []wdbc.Row) {
		t.Helper()
		if _, err := wdbc.Write(filepath.Join(cfg.BaseDBCDir(), name), schema.For(table), rows); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	spellFields := schema.For("Spell")
	spellRow := func(id uint32, name string, iconID uint32) wdbc.Row {
		row := zeroedRow(spellFields)
		row[0] = id
		row[cellIndex(t, spellFields, "SpellName")] = name
		row[cellIndex(t, spellFields, "SpellIconID")] = iconID
		return row
	}
	write("Spell.dbc", "Spell", []wdbc.Row{
		spellRow(100, "Fireball", 7),
		spellRow(900001, "Custom Bolt", 9),
	})
	write("SpellIcon.dbc", "SpellIcon", []wdbc.Row{
		{uint32(7), `Interface\Icons\Spell_Fire_FlameBolt`},
		{uint32(9), `Interface\Icons\INV_Misc_QuestionMark`},
	})

	talentFields := schema.For("Talent")
	talRow := func(id, tabID, tier, col, spellID uint32) wdbc.Row {
		row := zeroedRow(talentFields)
		row[0] = id
		row[cellIndex(t, talentFields, "TabID")] = tabID
		row[cellIndex(t, talentFields, "TierID")] = tier
		row[cellIndex(t, talentFields, "ColumnIndex")] = col
		row[cellIndex(t, talentFields, "SpellRank_1")] = spellID
		return row
	}
	write("Talent.dbc", "Talent", []wdbc.Row{
		talRow(11, 301, 0, 0, 100),
		talRow(12, 301, 0, 1, 900001),
	})
	tabFields := schema.For("TalentTab")
	tab := zeroedRow(tabFields)
	tab[0] = uint32(301)
	tab[cellIndex(t, tabFields, "Name")] = "Arms"
	tab[cellIndex(t, tabFields, "ClassMask")] = uint32(1)
	write("TalentTab.dbc", "TalentTab", []wdbc.Row{tab})

	idx := dbcindex.New(store, dbcindex.Options{
		CacheDir: cfg.CacheDir(),
		IconDir:  cfg.BaseIconDir(),
		ThumbDir: cfg.ThumbnailDir(),
		Log:      logging.Discard(),
	})
	srv := NewDataServer(DataConfig{
		Store:    store,
		Index:    idx,
		Editor:   spells.NewEditor(store, idx, nil, logging.Discard()),
		Deployer: talent.NewDeployer(cfg, logging.Discard()),
		ThumbDir: cfg.ThumbnailDir(),
		Log:      logging.Discard(),
	})
	return srv, cfg
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResp(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestDataHealth(t *testing.T) {
	srv, _ := newDataFixture(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeResp(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestDBCListAndRead(t *testing.T) {
	srv, _ := newDataFixture(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/dbc/list", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body)
	}
	var list struct {
		Files []editstore.FileInfo `json:"files"`
		Count int                  `json:"count"`
	}
	decodeResp(t, rec, &list)
	if list.Count != 4 || len(list.Files) != 4 {
		t.Fatalf("list = %+v", list)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/dbc/read/SpellIcon.dbc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("read status = %d: %s", rec.Code, rec.Body)
	}
	var view struct {
		Name    string       `json:"name"`
		Source  string       `json:"source"`
		Fields  []wdbc.Field `json:"fieldDefs"`
		Records []wdbc.Row   `json:"records"`
	}
	decodeResp(t, rec, &view)
	if view.Name != "SpellIcon.dbc" || view.Source != "base" || len(view.Records) != 2 {
		t.Fatalf("view = %+v", view)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/dbc/read/Nope.dbc", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing table status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/dbc/read/notadbc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad name status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/api/dbc/read/SpellIcon.dbc", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method status = %d", rec.Code)
	}
}

func TestDBCSaveAndDiff(t *testing.T) {
	srv, _ := newDataFixture(t)
	h := srv.Handler()

	// Diff needs both layers; before the first save there is no export copy.
	if rec := doRequest(t, h, http.MethodGet, "/api/dbc/diff/SpellIcon.dbc", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("diff without export = %d", rec.Code)
	}

	rec := doRequest(t, h, http.MethodGet, "/api/dbc/read/SpellIcon.dbc", "")
	var view saveRequest
	decodeResp(t, rec, &view)
	view.Records[0][1] = `Interface\Icons\Edited`
	body, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/dbc/save/SpellIcon.dbc", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", rec.Code, rec.Body)
	}
	var saved editstore.SaveResult
	decodeResp(t, rec, &saved)
	if saved.RecordCount != 2 {
		t.Fatalf("saved = %+v", saved)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/dbc/read/SpellIcon.dbc?source=export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export read status = %d: %s", rec.Code, rec.Body)
	}
	var after struct {
		Records []wdbc.Row `json:"records"`
	}
	decodeResp(t, rec, &after)
	if got := after.Records[0][1]; got != `Interface\Icons\Edited` {
		t.Fatalf("export cell = %#v", got)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/dbc/diff/SpellIcon.dbc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("diff status = %d: %s", rec.Code, rec.Body)
	}
	var diff struct {
		Modified []json.RawMessage `json:"modified"`
		Added    []json.RawMessage `json:"added"`
		Removed  []json.RawMessage `json:"removed"`
	}
	decodeResp(t, rec, &diff)
	if len(diff.Modified) != 1 || len(diff.Added) != 0 || len(diff.Removed) != 0 {
		t.Fatalf("diff = %+v", diff)
	}

	// A save without field descriptors is an invalid payload.
	if rec := doRequest(t, h, http.MethodPost, "/api/dbc/save/SpellIcon.dbc", `{"records":[]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("fieldless save status = %d", rec.Code)
	}
}

func TestDBCRecordOps(t *testing.T) {
	srv, _ := newDataFixture(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/dbc/add-record/SpellIcon.dbc", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d: %s", rec.Code, rec.Body)
	}
	var added editstore.AddResult
	decodeResp(t, rec, &added)
	if added.ID != 10 || added.Position != 2 {
		t.Fatalf("added = %+v", added)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/dbc/update-record/SpellIcon.dbc",
		`{"id":7,"record":[7,"ReplacedIcon"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/dbc/delete-record/SpellIcon.dbc", `{"id":9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body)
	}
	var del struct {
		Remaining int `json:"remaining"`
	}
	decodeResp(t, rec, &del)
	if del.Remaining != 2 {
		t.Fatalf("remaining = %d, want 2", del.Remaining)
	}

	if rec := doRequest(t, h, http.MethodPost, "/api/dbc/delete-record/SpellIcon.dbc", `{"id":999}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing record status = %d", rec.Code)
	}
}

func TestDBCCSVRoutes(t *testing.T) {
	srv, _ := newDataFixture(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/dbc/export-csv/SpellIcon.dbc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	csvBody := rec.Body.String()
	if !strings.Contains(csvBody, "Spell_Fire_FlameBolt") {
		t.Fatalf("csv = %q", csvBody)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/dbc/import-csv/SpellIcon.dbc", csvBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rec.Code, rec.Body)
	}
	var res editstore.SaveResult
	decodeResp(t, rec, &res)
	if res.RecordCount != 2 {
		t.Fatalf("import result = %+v", res)
	}

	if rec := doRequest(t, h, http.MethodPost, "/api/dbc/import-csv/SpellIcon.dbc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty import status = %d: %s", rec.Code, rec.Body)
	}
}

func TestCopyToCustom(t *testing.T) {
	srv, _ := newDataFixture(t)
	h := srv.Handler()

	if rec := doRequest(t, h, http.MethodPost, "/api/dbc/copy-to-custom/SpellIcon.dbc", ""); rec.Code != http.StatusOK {
		t.Fatalf("copy status = %d: %s", rec.Code, rec.Body)
	}
	if rec := doRequest(t, h, http.MethodPost, "/api/dbc/copy-to-custom/Nope.dbc", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing copy status = %d", rec.Code)
	}
}

func TestSpellRoutes(t *testing.T) {
	srv, _ := newDataFixture(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/spells/100", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("spell status = %d: %s", rec.Code, rec.Body)
	}
	var view spells.View
	decodeResp(t, rec, &view)
	if view.ID != 100 || view.Name != "Fireball" || view.SpellIconID != 7 {
		t.Fatalf("view = %+v", view)
	}
	if view.Icon != "/api/icons/spell_fire_flamebolt/thumbnail" {
		t.Fatalf("icon = %q", view.Icon)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/spells/555", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing spell status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/spells/abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodDelete, "/api/spells/100", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method status = %d", rec.Code)
	}

	// Patch keys outside the editable projection are reported, not applied;
	// with nothing applicable the mirror is never touched.
	rec = doRequest(t, h, http.MethodPut, "/api/spells/100/edit", `{"Bogus":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d: %s", rec.Code, rec.Body)
	}
	var patched spells.PatchResult
	decodeResp(t, rec, &patched)
	if len(patched.Applied) != 0 || len(patched.Skipped) != 1 {
		t.Fatalf("patch result = %+v", patched)
	}
}

func TestSuggestFreeIDRoute(t *testing.T) {
	srv, _ := newDataFixture(t)
	// The exact pattern must win over the /api/spells/ subtree.
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/spells/suggest-free-id", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		ID uint32 `json:"id"`
	}
	decodeResp(t, rec, &body)
	if body.ID != 900002 {
		t.Fatalf("id = %d, want 900002", body.ID)
	}
}

func TestSpellSearchRoute(t *testing.T) {
	srv, _ := newDataFixture(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/spell-search?q=fire", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Hits  []spells.SearchHit `json:"hits"`
		Count int                `json:"count"`
	}
	decodeResp(t, rec, &body)
	if body.Count != 1 || body.Hits[0].ID != 100 || body.Hits[0].Name != "Fireball" {
		t.Fatalf("search = %+v", body)
	}
}

func TestRefSearchRoute(t *testing.T) {
	srv, _ := newDataFixture(t)
	h := srv.Handler()
	if rec := doRequest(t, h, http.MethodGet, "/api/spells/ref-search?field=Bogus&q=1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d: %s", rec.Code, rec.Body)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/spells/ref-search?q=1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing field status = %d", rec.Code)
	}
}

func TestTalentsRoute(t *testing.T) {
	srv, _ := newDataFixture(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/talents/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Class   uint32       `json:"class"`
		Talents []talentView `json:"talents"`
		Count   int          `json:"count"`
	}
	decodeResp(t, rec, &body)
	if body.Class != 1 || body.Count != 2 {
		t.Fatalf("body = %+v", body)
	}
	first := body.Talents[0]
	if first.ID != 11 || first.TabName != "Arms" || first.SpellID != 100 {
		t.Fatalf("first talent = %+v", first)
	}
	if first.Name != "Fireball" || first.Icon != "spell_fire_flamebolt" {
		t.Fatalf("index join = %+v", first)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/talents/0", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("class 0 status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/talents/mage", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric class status = %d", rec.Code)
	}
}

func TestDeployRoute(t *testing.T) {
	srv, cfg := newDataFixture(t)
	h := srv.Handler()

	if rec := doRequest(t, h, http.MethodPost, "/api/talent-config/deploy", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("no config status = %d: %s", rec.Code, rec.Body)
	}

	conf := `{"classes":{"1":{"className":"Warrior","specs":[{"name":"Arms","talents":[{"name":"Deflection","icon":"ability_parry","row":0,"col":0,"ranks":[12345]}]}]}}}`
	if err := os.WriteFile(cfg.TalentConfigPath(), []byte(conf), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	rec := doRequest(t, h, http.MethodPost, "/api/talent-config/deploy", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("deploy status = %d: %s", rec.Code, rec.Body)
	}
	var res talent.DeployResult
	decodeResp(t, rec, &res)
	if res.Classes != 1 || res.Talents != 1 || len(res.Wrote) != 2 {
		t.Fatalf("deploy = %+v", res)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/talent-config/deploy", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method status = %d", rec.Code)
	}
}

func TestRepackRouteGone(t *testing.T) {
	srv, _ := newDataFixture(t)
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/talent-dbc/repack", "")
	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUpdateManifestRoute(t *testing.T) {
	srv, _ := newDataFixture(t)
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/update-manifest", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/update-manifest", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method status = %d", rec.Code)
	}
}

func TestThumbnailRoute(t *testing.T) {
	srv, cfg := newDataFixture(t)
	h := srv.Handler()

	if err := os.MkdirAll(cfg.ThumbnailDir(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	png := []byte("\x89PNG fake body")
	if err := os.WriteFile(filepath.Join(cfg.ThumbnailDir(), "spell_fire_flamebolt.png"), png, 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}

	rec := doRequest(t, h, http.MethodGet, "/api/icons/Spell_Fire_FlameBolt/thumbnail", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if rec.Body.String() != string(png) {
		t.Fatalf("body = %q", rec.Body.String())
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/icons/nothere/thumbnail", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/icons/we..ird/thumbnail", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("dotted name status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/icons/justname", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("short path status = %d", rec.Code)
	}
}

func TestEnumsRouteUnconfigured(t *testing.T) {
	srv, _ := newDataFixture(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/enums", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body errorBody
	decodeResp(t, rec, &body)
	if !strings.Contains(body.Error, "not configured") {
		t.Fatalf("body = %+v", body)
	}
}
