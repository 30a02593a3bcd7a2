package editstore

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// SaveResult reports the header of a freshly written table.
type SaveResult struct {
	Name            string `json:"name"`
	RecordCount     uint32 `json:"recordCount"`
	FieldCount      uint32 `json:"fieldCount"`
	RecordSize      uint32 `json:"recordSize"`
	StringBlockSize uint32 `json:"stringBlockSize"`
}

// Save writes a full table to the export layer. The base copy is never
// touched; the first write of a table leaves a .bak of its pre-edit content
// next to the export file, and the first write of the day snapshots both
// layers into the dated backups directory.
//
// An empty record set is a legal table; absent fields are not.
func (s *Store) Save(name string, fields []wdbc.Field, records []wdbc.Row) (*SaveResult, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no field definitions", ErrMissingPayload)
	}

	lock := s.fileLock(name)
	lock.Lock()
	defer lock.Unlock()

	if err := s.dailyBackup(); err != nil {
		return nil, err
	}
	if err := s.ensureBak(name); err != nil {
		return nil, err
	}

	path := s.exportPath(name)
	h, err := wdbc.Write(path, fields, records)
	if err != nil {
		return nil, err
	}
	s.dropCached(path)
	s.notifySave(name)

	s.log.WithFields(logrus.Fields{
		"file":    name,
		"records": h.RecordCount,
		"fields":  h.FieldCount,
	}).Info("table saved")

	return &SaveResult{
		Name:            name,
		RecordCount:     h.RecordCount,
		FieldCount:      h.FieldCount,
		RecordSize:      h.RecordSize,
		StringBlockSize: h.StringBlockSize,
	}, nil
}

// ensureBak freezes a table's pre-edit bytes as <name>.bak in the export
// directory. Created once, never rewritten; no-op when the table exists on
// neither layer (a brand-new table has no prior state to keep).
func (s *Store) ensureBak(name string) error {
	bak := s.exportPath(name) + ".bak"
	if fileExists(bak) {
		return nil
	}
	src := s.exportPath(name)
	if !fileExists(src) {
		src = s.basePath(name)
	}
	if !fileExists(src) {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s for backup: %w", src, err)
	}
	return wdbc.WriteFileAtomic(bak, data, 0644)
}

// CopyToCustom copies a table's base bytes into the export layer verbatim,
// making it editable. Fails with ErrBaseMissing when there is no base copy.
func (s *Store) CopyToCustom(name string) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}

	lock := s.fileLock(name)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.basePath(name))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBaseMissing, name)
	}
	if err := s.dailyBackup(); err != nil {
		return err
	}
	path := s.exportPath(name)
	if err := wdbc.WriteFileAtomic(path, data, 0644); err != nil {
		return err
	}
	s.dropCached(path)
	s.notifySave(name)
	s.log.WithField("file", name).Info("table copied to export")
	return nil
}

// AddResult reports a freshly appended record.
type AddResult struct {
	ID       uint32 `json:"id"`
	Position int    `json:"position"`
}

// AddRecord appends a record to a table's effective content and persists the
// result to the export layer. When row is nil a zero row is appended. Field 0
// is always overwritten with max(ID)+1.
func (s *Store) AddRecord(name string, row wdbc.Row) (*AddResult, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	f, err := s.ReadTable(name)
	if err != nil {
		return nil, err
	}

	id := f.MaxID() + 1
	fresh := make(wdbc.Row, len(f.Fields))
	for i, fd := range f.Fields {
		if i < len(row) && row[i] != nil {
			fresh[i] = row[i]
			continue
		}
		if fd.Type == wdbc.TypeString {
			fresh[i] = ""
		} else {
			fresh[i] = uint32(0)
		}
	}
	fresh[0] = id

	records := make([]wdbc.Row, len(f.Records), len(f.Records)+1)
	copy(records, f.Records)
	records = append(records, fresh)

	if _, err := s.Save(name, f.Fields, records); err != nil {
		return nil, err
	}
	return &AddResult{ID: id, Position: len(records) - 1}, nil
}

// DeleteRecord removes the record whose field 0 equals id and persists the
// compacted table to the export layer. Returns the remaining record count.
func (s *Store) DeleteRecord(name string, id uint32) (int, error) {
	name, err := CleanName(name)
	if err != nil {
		return 0, err
	}

	f, err := s.ReadTable(name)
	if err != nil {
		return 0, err
	}

	records := make([]wdbc.Row, 0, len(f.Records))
	found := false
	for i, row := range f.Records {
		if !found && f.ID(i) == id {
			found = true
			continue
		}
		records = append(records, row)
	}
	if !found {
		return 0, fmt.Errorf("%w: id %d in %s", ErrRecordNotFound, id, name)
	}

	if _, err := s.Save(name, f.Fields, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// UpdateRecord replaces the record whose field 0 equals id and persists the
// table. The incoming row keeps its position; cell 0 is forced back to id so
// an edit can never silently re-key a record.
func (s *Store) UpdateRecord(name string, id uint32, row wdbc.Row) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}
	if len(row) == 0 {
		return fmt.Errorf("%w: empty record", ErrMissingPayload)
	}

	f, err := s.ReadTable(name)
	if err != nil {
		return err
	}

	records := make([]wdbc.Row, len(f.Records))
	copy(records, f.Records)
	found := false
	for i := range records {
		if f.ID(i) != id {
			continue
		}
		next := make(wdbc.Row, len(row))
		copy(next, row)
		next[0] = id
		records[i] = next
		found = true
		break
	}
	if !found {
		return fmt.Errorf("%w: id %d in %s", ErrRecordNotFound, id, name)
	}

	_, err = s.Save(name, f.Fields, records)
	return err
}
