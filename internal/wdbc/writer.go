package wdbc

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Encode serializes records into WDBC bytes.
//
// String cells are interned: the block opens with a single NUL (so offset 0
// is the empty string) and every distinct non-empty value is emitted once, in
// first-seen order. Cells of unexpected dynamic type are coerced leniently
// rather than rejected; callers that need strict validation coerce upstream.
func Encode(fields []Field, records []Row) ([]byte, Header, error) {
	h := Header{
		RecordCount: uint32(len(records)),
		FieldCount:  uint32(len(fields)),
		RecordSize:  uint32(len(fields) * FieldSize),
	}

	// First pass: intern strings in first-seen order.
	offsets := map[string]uint32{"": 0}
	block := []byte{0}
	for _, row := range records {
		for i, f := range fields {
			if f.Type != TypeString || i >= len(row) {
				continue
			}
			s := coerceString(row[i])
			if s == "" {
				continue
			}
			if _, seen := offsets[s]; !seen {
				offsets[s] = uint32(len(block))
				block = append(block, s...)
				block = append(block, 0)
			}
		}
	}
	h.StringBlockSize = uint32(len(block))

	out := make([]byte, HeaderSize+len(records)*int(h.RecordSize)+len(block))
	copy(out, Magic)
	binary.LittleEndian.PutUint32(out[4:], h.RecordCount)
	binary.LittleEndian.PutUint32(out[8:], h.FieldCount)
	binary.LittleEndian.PutUint32(out[12:], h.RecordSize)
	binary.LittleEndian.PutUint32(out[16:], h.StringBlockSize)

	for r, row := range records {
		base := HeaderSize + r*int(h.RecordSize)
		for i, f := range fields {
			var bits uint32
			if i < len(row) {
				bits = cellBits(f.Type, row[i], offsets)
			}
			binary.LittleEndian.PutUint32(out[base+i*FieldSize:], bits)
		}
	}
	copy(out[HeaderSize+len(records)*int(h.RecordSize):], block)

	return out, h, nil
}

// Write encodes and writes a WDBC file, creating the parent directory as
// needed. The write is atomic: a temp file in the target directory is
// renamed over the destination so readers never observe a partial file.
func Write(path string, fields []Field, records []Row) (Header, error) {
	data, h, err := Encode(fields, records)
	if err != nil {
		return Header{}, err
	}
	if err := WriteFileAtomic(path, data, 0644); err != nil {
		return Header{}, err
	}
	return h, nil
}

// WriteFileAtomic writes data to path via a same-directory temp file and
// rename, creating parent directories first.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()        // Best effort: may already be closed before rename
		_ = os.Remove(tmpPath) // Best effort: may already be renamed
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// Close before rename (required on Windows; double-close in defer is harmless)
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return nil
}

// cellBits converts one cell to its 4-byte on-disk representation.
func cellBits(t FieldType, v any, offsets map[string]uint32) uint32 {
	if t == TypeString {
		return offsets[coerceString(v)]
	}
	if t == TypeFloat {
		return math.Float32bits(coerceFloat32(v))
	}
	// uint32, int32 and flags all store the same 32 bits; signedness is a
	// decode-time interpretation.
	return coerceBits32(v)
}

func coerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case bool:
		if s {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func coerceFloat32(v any) float32 {
	switch n := v.(type) {
	case float32:
		return n
	case float64:
		return float32(n)
	case uint32:
		return float32(n)
	case int32:
		return float32(n)
	case int:
		return float32(n)
	case int64:
		return float32(n)
	case uint64:
		return float32(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 32)
		if err != nil {
			return 0
		}
		return float32(f)
	}
	return 0
}

// coerceBits32 truncates any numeric cell to 32 bits. Negative inputs wrap,
// matching the unsigned on-disk encoding.
func coerceBits32(v any) uint32 {
	switch n := v.(type) {
	case uint32:
		return n
	case int32:
		return uint32(n)
	case int:
		return uint32(int64(n))
	case int64:
		return uint32(n)
	case uint64:
		return uint32(n)
	case float64:
		return uint32(int64(n))
	case float32:
		return uint32(int64(n))
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0
		}
		return uint32(i)
	}
	return 0
}
