package editstore

import (
	"fmt"

	"github.com/surreal-wow/sdbeditor/internal/schema"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// Diff compares a table's base copy against its export copy, keyed on record
// ID. Both layers must exist; an unedited table has nothing to diff against.
func (s *Store) Diff(name string) (*wdbc.DiffResult, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	fields := schema.ForFile(name)
	basePath := s.basePath(name)
	exportPath := s.exportPath(name)
	if !fileExists(basePath) {
		return nil, fmt.Errorf("%w: %s (base layer)", ErrFileNotFound, name)
	}
	if !fileExists(exportPath) {
		return nil, fmt.Errorf("%w: %s (export layer)", ErrFileNotFound, name)
	}

	base, err := s.readCached(basePath, fields)
	if err != nil {
		return nil, err
	}
	export, err := s.readCached(exportPath, fields)
	if err != nil {
		return nil, err
	}
	return wdbc.DiffTables(base, export), nil
}
