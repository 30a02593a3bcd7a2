// Package wdbc reads and writes the WDBC client-database format used by
// the 3.3.5a game client.
//
// A WDBC file is a 20-byte little-endian header, a block of fixed-size
// records (four bytes per field), and an interned string block whose first
// byte is always NUL so that offset 0 means the empty string. The codec is
// schema-driven: callers supply field descriptors and the decoder types each
// cell accordingly, falling back to generated uint32 fields when the file's
// field count disagrees with the descriptors.
package wdbc

import (
	"errors"
	"fmt"
)

// Magic is the 4-byte signature at the start of every WDBC file.
const Magic = "WDBC"

// HeaderSize is the fixed on-disk header length in bytes.
const HeaderSize = 20

// FieldSize is the on-disk size of every field. All tables in scope use
// uniform 4-byte fields (recordSize == fieldCount*4).
const FieldSize = 4

// ErrInvalidMagic is returned when the first four bytes are not "WDBC".
var ErrInvalidMagic = errors.New("invalid WDBC magic")

// ErrTruncated is returned when a file is shorter than the size implied by
// its header (header + records + string block).
var ErrTruncated = errors.New("truncated WDBC file")

// Header mirrors the 20-byte on-disk header, minus the magic.
type Header struct {
	RecordCount     uint32 `json:"recordCount"`
	FieldCount      uint32 `json:"fieldCount"`
	RecordSize      uint32 `json:"recordSize"`
	StringBlockSize uint32 `json:"stringBlockSize"`
}

// FieldType enumerates the cell types a schema can declare.
type FieldType string

const (
	TypeUint32 FieldType = "uint32"
	TypeInt32  FieldType = "int32"
	TypeFloat  FieldType = "float"
	TypeString FieldType = "string"
	TypeFlags  FieldType = "flags"
)

// Field describes one column of a table.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	// Ref names the table this field points at, for foreign-key hinting.
	Ref string `json:"ref,omitempty"`
	// Hidden marks locale duplicates that UIs should not render.
	Hidden bool   `json:"hidden,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// Row is one decoded record. Cells are uint32, int32, float32 or string
// depending on the matching Field's type; flags decode as uint32.
type Row []any

// File is the decoded form of a WDBC file.
type File struct {
	Header Header `json:"header"`
	// Fields always has exactly Header.FieldCount entries: the supplied
	// schema fitted to the file, padded with generated Field_N descriptors
	// when the file is wider than the schema.
	Fields      []Field `json:"fieldDefs"`
	Records     []Row   `json:"records"`
	StringBlock []byte  `json:"-"`
}

// ID returns the first cell of row i as an unsigned 32-bit value. Tables in
// scope keep their primary key in field 0.
func (f *File) ID(i int) uint32 {
	if i < 0 || i >= len(f.Records) || len(f.Records[i]) == 0 {
		return 0
	}
	return CellUint32(f.Records[i][0])
}

// MaxID returns the largest field-0 value across all records, or 0 when the
// table is empty.
func (f *File) MaxID() uint32 {
	var max uint32
	for i := range f.Records {
		if id := f.ID(i); id > max {
			max = id
		}
	}
	return max
}

// FitFields adapts a registered schema to a file's actual field count.
// The schema covers as many leading fields as it can; any remainder gets
// generated descriptors named Field_N (1-based) typed uint32. A nil schema
// yields all generated descriptors.
func FitFields(schema []Field, count int) []Field {
	if count < 0 {
		count = 0
	}
	fields := make([]Field, count)
	n := copy(fields, schema)
	for i := n; i < count; i++ {
		fields[i] = Field{Name: fmt.Sprintf("Field_%d", i+1), Type: TypeUint32}
	}
	return fields
}

// CellUint32 coerces a decoded cell to uint32. Strings and nil yield 0;
// numeric cells truncate the way the on-disk format would.
func CellUint32(v any) uint32 {
	switch n := v.(type) {
	case uint32:
		return n
	case int32:
		return uint32(n)
	case float32:
		return uint32(int64(n))
	case int:
		return uint32(int64(n))
	case int64:
		return uint32(n)
	case uint64:
		return uint32(n)
	case float64:
		return uint32(int64(n))
	}
	return 0
}

// CellString returns the cell as a string when it is one, else "".
func CellString(v any) string {
	s, _ := v.(string)
	return s
}
