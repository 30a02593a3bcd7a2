// Package editstore layers the writable export tree over the read-only base
// DBC snapshot and owns every mutation: copy-on-write into export, .bak
// siblings, daily backups, atomic replaces, and the parse cache the rest of
// the editor reads through.
//
// Reads resolve export-first (an edited table shadows its base copy); writes
// only ever touch the export tree. The base directories belong to the sync
// job that mirrors the game server and are never modified here.
package editstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/schema"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

var (
	// ErrFileNotFound is returned when a table exists on neither layer.
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidFilename is returned for names that are not a plain
	// <table>.dbc base name.
	ErrInvalidFilename = errors.New("invalid file name")
	// ErrMissingPayload is returned by Save when fields are absent.
	ErrMissingPayload = errors.New("missing payload")
	// ErrBaseMissing is returned by CopyToCustom when there is no base copy.
	ErrBaseMissing = errors.New("base file missing")
	// ErrRecordNotFound is returned when a record ID does not exist.
	ErrRecordNotFound = errors.New("record not found")
)

// Layer selects which side of the overlay a read should use.
type Layer string

const (
	// LayerAuto reads export when present, else base.
	LayerAuto Layer = "auto"
	// LayerBase reads the read-only snapshot.
	LayerBase Layer = "base"
	// LayerExport reads the write-side tree.
	LayerExport Layer = "export"
)

// Tables is the interface satisfied by *Store. Consumers depend on it rather
// than on the concrete type so that decorators (telemetry instrumentation,
// test fakes) can be substituted.
type Tables interface {
	// Reads
	List() ([]FileInfo, error)
	Read(name string, layer Layer) (*TableView, error)
	ReadTable(name string) (*wdbc.File, error)
	ResolvePath(name string) (string, bool)
	ExportCSV(name string, layer Layer) ([]byte, error)
	Diff(name string) (*wdbc.DiffResult, error)

	// Writes
	Save(name string, fields []wdbc.Field, records []wdbc.Row) (*SaveResult, error)
	ImportCSV(name string, data []byte) (*SaveResult, error)
	AddRecord(name string, row wdbc.Row) (*AddResult, error)
	UpdateRecord(name string, id uint32, row wdbc.Row) error
	DeleteRecord(name string, id uint32) (int, error)
	CopyToCustom(name string) error

	// OnSave registers a hook invoked after every successful write, with the
	// table's file name.
	OnSave(fn func(name string))
}

// Store is the layered DBC access point. Safe for concurrent use: parsed
// tables are cached per path and invalidated by mtime, and writes serialize
// per file.
type Store struct {
	cfg *config.Config
	log *logrus.Entry

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string]*cacheEntry

	backupMu sync.Mutex

	saveMu  sync.Mutex
	onSave  []func(name string)
	nowFunc func() time.Time
}

type cacheEntry struct {
	mtime time.Time
	size  int64
	file  *wdbc.File
}

// New builds a Store over the configured directory layout.
func New(cfg *config.Config, log *logrus.Entry) *Store {
	if log == nil {
		log = logging.Discard()
	}
	return &Store{
		cfg:     cfg,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
		cache:   make(map[string]*cacheEntry),
		nowFunc: time.Now,
	}
}

// OnSave registers a hook invoked after every successful write, with the
// table's file name. Used to drop derived-index caches.
func (s *Store) OnSave(fn func(name string)) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.onSave = append(s.onSave, fn)
}

func (s *Store) notifySave(name string) {
	s.saveMu.Lock()
	hooks := make([]func(string), len(s.onSave))
	copy(hooks, s.onSave)
	s.saveMu.Unlock()
	for _, fn := range hooks {
		fn(name)
	}
}

// CleanName validates a .dbc file name: plain base name, no path elements.
func CleanName(name string) (string, error) {
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if !strings.EqualFold(filepath.Ext(name), ".dbc") {
		return "", fmt.Errorf("%w: %q must end in .dbc", ErrInvalidFilename, name)
	}
	return name, nil
}

func (s *Store) basePath(name string) string   { return filepath.Join(s.cfg.BaseDBCDir(), name) }
func (s *Store) exportPath(name string) string { return filepath.Join(s.cfg.ExportDBCDir(), name) }

// ResolvePath returns the effective on-disk path for a DBC name and whether
// any layer has it. Satisfies the index builder's Source contract.
func (s *Store) ResolvePath(name string) (string, bool) {
	if _, err := CleanName(name); err != nil {
		return "", false
	}
	if p := s.exportPath(name); fileExists(p) {
		return p, true
	}
	p := s.basePath(name)
	return p, fileExists(p)
}

// ReadTable decodes a table through the layered view with its registered
// schema. Satisfies the index builder's Source contract.
func (s *Store) ReadTable(name string) (*wdbc.File, error) {
	path, ok := s.ResolvePath(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return s.readCached(path, schema.ForFile(name))
}

// FileInfo is one table's standing across the two layers.
type FileInfo struct {
	Name        string `json:"name"`
	HasBase     bool   `json:"hasBase"`
	HasExport   bool   `json:"hasExport"`
	RecordCount uint32 `json:"recordCount"`
	FieldCount  uint32 `json:"fieldCount"`
}

// List returns every known .dbc file with layer flags and header counts
// (from the effective layer). Only the 20-byte headers are read.
func (s *Store) List() ([]FileInfo, error) {
	names := map[string]*FileInfo{}
	collect := func(dir string, mark func(fi *FileInfo)) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".dbc") {
				continue
			}
			fi, ok := names[e.Name()]
			if !ok {
				fi = &FileInfo{Name: e.Name()}
				names[e.Name()] = fi
			}
			mark(fi)
		}
	}
	collect(s.cfg.BaseDBCDir(), func(fi *FileInfo) { fi.HasBase = true })
	collect(s.cfg.ExportDBCDir(), func(fi *FileInfo) { fi.HasExport = true })

	out := make([]FileInfo, 0, len(names))
	for _, fi := range names {
		path := s.basePath(fi.Name)
		if fi.HasExport {
			path = s.exportPath(fi.Name)
		}
		if h, err := wdbc.ReadHeader(path); err == nil {
			fi.RecordCount = h.RecordCount
			fi.FieldCount = h.FieldCount
		} else {
			s.log.WithError(err).WithField("file", fi.Name).Warn("header probe failed")
		}
		out = append(out, *fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// TableView is a full table read plus the display-name maps for every table
// its schema references.
type TableView struct {
	Name          string                       `json:"name"`
	Layer         Layer                        `json:"source"`
	Header        wdbc.Header                  `json:"header"`
	Fields        []wdbc.Field                 `json:"fieldDefs"`
	Records       []wdbc.Row                   `json:"records"`
	Lookups       map[string]map[uint32]string `json:"lookups"`
	HasDefinition bool                         `json:"hasDefinition"`
}

// ID returns record i's field-0 key.
func (v *TableView) ID(i int) uint32 {
	if i < 0 || i >= len(v.Records) || len(v.Records[i]) == 0 {
		return 0
	}
	return wdbc.CellUint32(v.Records[i][0])
}

// Read loads a table from the requested layer. Records come from the shared
// parse cache; treat them as immutable.
func (s *Store) Read(name string, layer Layer) (*TableView, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	var path string
	effective := layer
	switch layer {
	case LayerBase:
		path = s.basePath(name)
	case LayerExport:
		path = s.exportPath(name)
	default:
		effective = LayerBase
		path = s.basePath(name)
		if p := s.exportPath(name); fileExists(p) {
			effective = LayerExport
			path = p
		}
	}
	if !fileExists(path) {
		return nil, fmt.Errorf("%w: %s (%s layer)", ErrFileNotFound, name, layer)
	}

	f, err := s.readCached(path, schema.ForFile(name))
	if err != nil {
		return nil, err
	}

	return &TableView{
		Name:          name,
		Layer:         effective,
		Header:        f.Header,
		Fields:        f.Fields,
		Records:       f.Records,
		Lookups:       s.buildLookups(f.Fields),
		HasDefinition: schema.Has(schema.TableName(name)),
	}, nil
}

// buildLookups materializes {refTable: {id: label}} for every Ref hint in
// the field list. A reference table that cannot be read just produces no
// map; display names are advisory.
func (s *Store) buildLookups(fields []wdbc.Field) map[string]map[uint32]string {
	lookups := make(map[string]map[uint32]string)
	for _, f := range fields {
		if f.Ref == "" {
			continue
		}
		if _, done := lookups[f.Ref]; done {
			continue
		}
		src, ok := schema.LookupSources[f.Ref]
		if !ok {
			continue
		}
		table, err := s.ReadTable(src.File)
		if err != nil {
			s.log.WithError(err).WithField("ref", f.Ref).Debug("lookup source unavailable")
			continue
		}
		m := make(map[uint32]string, len(table.Records))
		for i, row := range table.Records {
			if src.NameField >= len(row) {
				continue
			}
			label := wdbc.CellString(row[src.NameField])
			if label == "" {
				label = fmt.Sprintf("%v", row[src.NameField])
			}
			m[table.ID(i)] = label
		}
		lookups[f.Ref] = m
	}
	return lookups
}

// readCached returns the parsed form of path, re-decoding only when the
// file's mtime or size moved since the cached parse.
func (s *Store) readCached(path string, fields []wdbc.Field) (*wdbc.File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	s.mu.Lock()
	if e, ok := s.cache[path]; ok && e.mtime.Equal(fi.ModTime()) && e.size == fi.Size() {
		f := e.file
		s.mu.Unlock()
		return f, nil
	}
	s.mu.Unlock()

	f, err := wdbc.Read(path, fields)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[path] = &cacheEntry{mtime: fi.ModTime(), size: fi.Size(), file: f}
	s.mu.Unlock()
	return f, nil
}

// dropCached forgets a parse so the next read sees fresh bytes even when
// the filesystem's mtime granularity hides a fast rewrite.
func (s *Store) dropCached(path string) {
	s.mu.Lock()
	delete(s.cache, path)
	s.mu.Unlock()
}

// fileLock returns the per-file write lock for a table name.
func (s *Store) fileLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
