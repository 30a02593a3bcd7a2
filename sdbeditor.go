// Package sdbeditor provides a minimal public API for building custom tooling
// on top of the editor's data layer.
//
// Most tooling should talk to a running editor over its HTTP APIs. This
// package exports only the essential types and functions for Go programs
// that read or write client databases directly: the WDBC codec, the bundled
// 3.3.5a schemas and the layered table store.
package sdbeditor

import (
	"fmt"

	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/editstore"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/schema"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// Core types for working with client database files
type (
	File   = wdbc.File
	Header = wdbc.Header
	Field  = wdbc.Field
	Row    = wdbc.Row
)

// Field type constants
const (
	TypeUint32 = wdbc.TypeUint32
	TypeInt32  = wdbc.TypeInt32
	TypeFloat  = wdbc.TypeFloat
	TypeString = wdbc.TypeString
	TypeFlags  = wdbc.TypeFlags
)

// Store is the layered table store backing the editor: reads resolve the
// export tree over the active base, writes land in export.
type Store = editstore.Store

// ReadTable decodes the WDBC file at path using the bundled schema for its
// table name. Unknown tables decode with generated uint32 fields.
func ReadTable(path string) (*File, error) {
	return wdbc.Read(path, schema.ForFile(path))
}

// WriteTable encodes records into a WDBC file at path using the bundled
// schema for its table name. Unknown tables are rejected; writing without a
// layout would produce a zero-field file.
func WriteTable(path string, records []Row) (Header, error) {
	fields := schema.ForFile(path)
	if fields == nil {
		return Header{}, fmt.Errorf("no bundled schema for %q", schema.TableName(path))
	}
	return wdbc.Write(path, fields, records)
}

// Schema returns the bundled field layout for a table name, or nil when the
// table is unknown.
func Schema(table string) []Field {
	return schema.For(table)
}

// OpenStore opens the layered table store for the repo root holding
// configPath. Most programs should use this to read tables exactly the way
// the editor sees them.
func OpenStore(configPath string) (*Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return editstore.New(cfg, logging.Discard()), nil
}
