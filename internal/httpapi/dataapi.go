package httpapi

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/dbcindex"
	"github.com/surreal-wow/sdbeditor/internal/editstore"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/spells"
	"github.com/surreal-wow/sdbeditor/internal/talent"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

const (
	// maxBodyBytes caps ordinary JSON request bodies.
	maxBodyBytes = 1 << 20
	// maxTableBodyBytes caps full-table saves and CSV imports; Spell.dbc
	// serialized as JSON runs to tens of megabytes.
	maxTableBodyBytes = 1 << 28
)

// DataServer is the table-editing API (default port 3001).
type DataServer struct {
	store    editstore.Tables
	idx      *dbcindex.Builder
	editor   *spells.Editor
	enums    *spells.EnumExtractor
	deployer *talent.Deployer
	thumbDir string
	log      *logrus.Entry

	rebuildMu sync.Mutex

	mux        *http.ServeMux
	handler    http.Handler
	httpServer *http.Server
}

// DataConfig wires a DataServer.
type DataConfig struct {
	Store    editstore.Tables
	Index    *dbcindex.Builder
	Editor   *spells.Editor
	Enums    *spells.EnumExtractor // nil when no worldserver source is configured
	Deployer *talent.Deployer
	ThumbDir string
	Log      *logrus.Entry
}

// NewDataServer registers the data API routes.
func NewDataServer(cfg DataConfig) *DataServer {
	log := cfg.Log
	if log == nil {
		log = logging.Discard()
	}
	s := &DataServer{
		store:    cfg.Store,
		idx:      cfg.Index,
		editor:   cfg.Editor,
		enums:    cfg.Enums,
		deployer: cfg.Deployer,
		thumbDir: cfg.ThumbDir,
		log:      log,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/dbc/list", s.handleList)
	s.mux.HandleFunc("/api/dbc/read/", s.handleRead)
	s.mux.HandleFunc("/api/dbc/save/", s.handleSave)
	s.mux.HandleFunc("/api/dbc/diff/", s.handleDiff)
	s.mux.HandleFunc("/api/dbc/export-csv/", s.handleExportCSV)
	s.mux.HandleFunc("/api/dbc/import-csv/", s.handleImportCSV)
	s.mux.HandleFunc("/api/dbc/add-record/", s.handleAddRecord)
	s.mux.HandleFunc("/api/dbc/update-record/", s.handleUpdateRecord)
	s.mux.HandleFunc("/api/dbc/delete-record/", s.handleDeleteRecord)
	s.mux.HandleFunc("/api/dbc/copy-to-custom/", s.handleCopyToCustom)
	// Exact patterns win over the /api/spells/ subtree.
	s.mux.HandleFunc("/api/spells/", s.handleSpell)
	s.mux.HandleFunc("/api/spells/create-from-template", s.handleCreateFromTemplate)
	s.mux.HandleFunc("/api/spells/suggest-free-id", s.handleSuggestFreeID)
	s.mux.HandleFunc("/api/spells/ref-search", s.handleRefSearch)
	s.mux.HandleFunc("/api/spell-search", s.handleSpellSearch)
	s.mux.HandleFunc("/api/talents/", s.handleTalents)
	s.mux.HandleFunc("/api/talent-config/deploy", s.handleDeploy)
	s.mux.HandleFunc("/api/talent-dbc/repack", s.handleRepackGone)
	s.mux.HandleFunc("/api/update-manifest", s.handleUpdateManifest)
	s.mux.HandleFunc("/api/icon-manifest", s.handleIconManifest)
	s.mux.HandleFunc("/api/icons/", s.handleThumbnail)
	s.mux.HandleFunc("/api/enums", s.handleEnums)

	s.handler = requestLog(log, s.mux)
	return s
}

// Start serves the API on addr, blocking until shutdown.
func (s *DataServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *DataServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for use with custom servers and tests.
func (s *DataServer) Handler() http.Handler {
	return s.handler
}

func (s *DataServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *DataServer) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	files, err := s.store.List()
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
}

func (s *DataServer) handleRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/dbc/read/")
	view, err := s.store.Read(name, editstore.Layer(r.URL.Query().Get("source")))
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// saveRequest carries a full-table write: the field descriptors from a prior
// read plus every record.
type saveRequest struct {
	Fields  []wdbc.Field `json:"fieldDefs"`
	Records []wdbc.Row   `json:"records"`
}

func (s *DataServer) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST", "")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/dbc/save/")
	var req saveRequest
	if err := decodeBody(r, maxTableBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	res, err := s.store.Save(name, req.Fields, req.Records)
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *DataServer) handleDiff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/dbc/diff/")
	res, err := s.store.Diff(name)
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *DataServer) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/dbc/export-csv/")
	data, err := s.store.ExportCSV(name, editstore.Layer(r.URL.Query().Get("source")))
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.TrimSuffix(name, ".dbc")+`.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *DataServer) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST", "")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/dbc/import-csv/")
	data, err := readBody(r, maxTableBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", "")
		return
	}
	res, err := s.store.ImportCSV(name, data)
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *DataServer) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST", "")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/dbc/add-record/")
	var req struct {
		Record wdbc.Row `json:"record"`
	}
	if err := decodeBody(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	res, err := s.store.AddRecord(name, req.Record)
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *DataServer) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST or PUT", "")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/dbc/update-record/")
	var req struct {
		ID     uint32   `json:"id"`
		Record wdbc.Row `json:"record"`
	}
	if err := decodeBody(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if err := s.store.UpdateRecord(name, req.ID, req.Record); err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID})
}

func (s *DataServer) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST or DELETE", "")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/dbc/delete-record/")
	var req struct {
		ID uint32 `json:"id"`
	}
	if err := decodeBody(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	remaining, err := s.store.DeleteRecord(name, req.ID)
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"remaining": remaining})
}

func (s *DataServer) handleCopyToCustom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST", "")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/dbc/copy-to-custom/")
	if err := s.store.CopyToCustom(name); err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "copied"})
}

// handleSpell covers the /api/spells/ subtree: GET /api/spells/{id} and
// PUT /api/spells/{id}/edit. The fixed-path spell routes are registered as
// exact patterns and never reach here.
func (s *DataServer) handleSpell(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/spells/")
	idStr, op, hasOp := strings.Cut(rest, "/")
	id64, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid spell id", idStr)
		return
	}
	id := uint32(id64)

	switch {
	case !hasOp && r.Method == http.MethodGet:
		view, err := s.editor.Spell(r.Context(), id)
		if err != nil {
			writeFailure(s.log, w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case hasOp && op == "edit" && r.Method == http.MethodPut:
		var patch map[string]any
		if err := decodeBody(r, maxBodyBytes, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
			return
		}
		res, err := s.editor.ApplyPatch(r.Context(), id, patch)
		if err != nil {
			writeFailure(s.log, w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case !hasOp || op == "edit":
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	default:
		writeError(w, http.StatusNotFound, "not found: expected /api/spells/{id} or /api/spells/{id}/edit", "")
	}
}

func (s *DataServer) handleCreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST", "")
		return
	}
	var req struct {
		NewID      uint32         `json:"newId"`
		TemplateID uint32         `json:"templateId"`
		Patch      map[string]any `json:"patch"`
	}
	if err := decodeBody(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if req.NewID == 0 || req.TemplateID == 0 {
		writeError(w, http.StatusBadRequest, "newId and templateId are required", "")
		return
	}
	view, err := s.editor.CreateFromTemplate(r.Context(), req.NewID, req.TemplateID, req.Patch)
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *DataServer) handleSuggestFreeID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	id, err := s.editor.SuggestFreeID(r.Context())
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (s *DataServer) handleRefSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	q := r.URL.Query()
	field := q.Get("field")
	if field == "" {
		writeError(w, http.StatusBadRequest, "missing field parameter", "")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	hits, err := s.editor.SearchReference(r.Context(), field, q.Get("q"), limit)
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits, "count": len(hits)})
}

func (s *DataServer) handleSpellSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	hits, err := s.editor.Search(q.Get("q"), limit)
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits, "count": len(hits)})
}

// talentView is one flattened talent enriched with display data from the
// derived indices.
type talentView struct {
	talent.FlatTalent
	Name   string              `json:"name,omitempty"`
	Icon   string              `json:"icon,omitempty"`
	Sprite *dbcindex.SpritePos `json:"sprite,omitempty"`
}

// handleTalents answers GET /api/talents/{class}. Index outages degrade the
// response to bare DBC data rather than failing it: the tree is still
// renderable, just unlabeled.
func (s *DataServer) handleTalents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	classStr := strings.TrimPrefix(r.URL.Path, "/api/talents/")
	class64, err := strconv.ParseUint(classStr, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid class id", classStr)
		return
	}
	classID := uint32(class64)

	flats, err := talent.FlattenClass(s.store, classID)
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}

	names, err := s.idx.SpellNames()
	if err != nil {
		s.log.WithError(err).Warn("spell-name index unavailable, serving unlabeled talents")
	}
	sprites, err := s.idx.Sprites()
	if err != nil {
		s.log.WithError(err).Warn("sprite map unavailable")
	}

	views := make([]talentView, len(flats))
	for i, ft := range flats {
		v := talentView{FlatTalent: ft}
		if entry, ok := names[ft.SpellID]; ok {
			v.Name = entry.Name
			v.Icon = entry.IconName
		}
		if sprites != nil && v.Icon != "" {
			if pos, ok := sprites.Lookup(classID, v.Icon); ok {
				v.Sprite = &pos
			}
		}
		views[i] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{"class": classID, "talents": views, "count": len(views)})
}

func (s *DataServer) handleDeploy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST", "")
		return
	}
	res, err := s.deployer.Deploy()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "talent config not found", "")
			return
		}
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRepackGone answers the retired DBC-repack route. The column packer
// still exists as offline tooling; rewriting Talent.dbc under a running
// worldserver is not safe, so the API refuses it outright.
func (s *DataServer) handleRepackGone(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusGone, "talent dbc repack is disabled on the live API",
		"run `sdb talents repack` against an offline server instead")
}

// handleUpdateManifest kicks off a full index rebuild in the background. A
// second request while one is running reports that instead of queueing.
func (s *DataServer) handleUpdateManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST", "")
		return
	}
	if !s.rebuildMu.TryLock() {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuild already running"})
		return
	}
	go func() {
		defer s.rebuildMu.Unlock()
		s.idx.Invalidate()
		if _, err := s.idx.SpellIcons(); err != nil {
			s.log.WithError(err).Warn("spell-icon rebuild failed")
		}
		if _, err := s.idx.SpellNames(); err != nil {
			s.log.WithError(err).Warn("spell-name rebuild failed")
		}
		if _, err := s.idx.RebuildManifest(); err != nil {
			s.log.WithError(err).Warn("icon manifest rebuild failed")
		}
		if _, err := s.idx.Sprites(); err != nil {
			s.log.WithError(err).Warn("sprite rebuild failed")
		}
		s.log.Info("index rebuild finished")
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuild started"})
}

func (s *DataServer) handleIconManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	entries, err := s.idx.Manifest()
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"icons": entries, "count": len(entries)})
}

// handleThumbnail serves GET /api/icons/{name}/thumbnail from the generated
// PNG directory. Names are lowercased; anything that does not look like a
// plain file name is rejected before it reaches the filesystem.
func (s *DataServer) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/icons/")
	name, op, hasOp := strings.Cut(rest, "/")
	if !hasOp || op != "thumbnail" {
		writeError(w, http.StatusNotFound, "not found: expected /api/icons/{name}/thumbnail", "")
		return
	}
	name = strings.ToLower(strings.TrimSuffix(name, ".blp"))
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		writeError(w, http.StatusBadRequest, "invalid icon name", "")
		return
	}
	path := filepath.Join(s.thumbDir, name+".png")
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "thumbnail not found", name)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *DataServer) handleEnums(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	if s.enums == nil {
		writeError(w, http.StatusNotFound, "enum extraction is not configured", "set paths.acoreRoot in starter-config.json")
		return
	}
	enums, err := s.enums.Enums()
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enums": enums})
}
