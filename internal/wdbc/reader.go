package wdbc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// ReadHeader reads only the 20-byte header of the file at path. Used by
// directory listings that must not pay for full record decoding.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return Header{}, fmt.Errorf("read header of %s: %w", path, ErrTruncated)
	}
	if string(buf[:4]) != Magic {
		return Header{}, fmt.Errorf("read header of %s: %w", path, ErrInvalidMagic)
	}
	return decodeHeader(buf), nil
}

// Read loads and decodes the WDBC file at path. The schema is fitted to the
// file's field count per FitFields; pass nil to decode every field as uint32.
func Read(path string, schema []Field) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(data, schema)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return f, nil
}

// Decode parses a WDBC byte buffer.
//
// Structural problems (bad magic, buffer shorter than the header claims)
// return an error. Bad data inside an intact structure does not: a string
// offset outside the string block decodes to "" so that one corrupt cell
// cannot poison a whole table.
func Decode(data []byte, schema []Field) (*File, error) {
	if len(data) < 4 || string(data[:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	if len(data) < HeaderSize {
		return nil, ErrTruncated
	}
	h := decodeHeader(data)

	recordBytes := uint64(h.RecordCount) * uint64(h.RecordSize)
	total := uint64(HeaderSize) + recordBytes + uint64(h.StringBlockSize)
	if uint64(len(data)) < total {
		return nil, fmt.Errorf("%w: header implies %d bytes, have %d", ErrTruncated, total, len(data))
	}

	stringBlock := data[HeaderSize+recordBytes : total]
	fields := FitFields(schema, int(h.FieldCount))

	// A malformed recordSize smaller than fieldCount*4 would walk past the
	// record; clamp to what the record actually holds.
	readable := int(h.FieldCount)
	if int(h.RecordSize)/FieldSize < readable {
		readable = int(h.RecordSize) / FieldSize
	}

	records := make([]Row, h.RecordCount)
	for r := 0; r < int(h.RecordCount); r++ {
		base := HeaderSize + r*int(h.RecordSize)
		row := make(Row, h.FieldCount)
		for i := 0; i < readable; i++ {
			raw := binary.LittleEndian.Uint32(data[base+i*FieldSize:])
			switch fields[i].Type {
			case TypeInt32:
				row[i] = int32(raw)
			case TypeFloat:
				row[i] = math.Float32frombits(raw)
			case TypeString:
				row[i] = blockString(stringBlock, raw)
			default: // uint32, flags
				row[i] = raw
			}
		}
		for i := readable; i < int(h.FieldCount); i++ {
			row[i] = uint32(0)
		}
		records[r] = row
	}

	return &File{
		Header:      h,
		Fields:      fields,
		Records:     records,
		StringBlock: stringBlock,
	}, nil
}

func decodeHeader(data []byte) Header {
	return Header{
		RecordCount:     binary.LittleEndian.Uint32(data[4:]),
		FieldCount:      binary.LittleEndian.Uint32(data[8:]),
		RecordSize:      binary.LittleEndian.Uint32(data[12:]),
		StringBlockSize: binary.LittleEndian.Uint32(data[16:]),
	}
}

// blockString materializes the NUL-terminated string at off. Offset 0 is the
// empty string by convention; out-of-range offsets also decode to "".
func blockString(block []byte, off uint32) string {
	if off == 0 || uint64(off) >= uint64(len(block)) {
		return ""
	}
	end := bytes.IndexByte(block[off:], 0)
	if end < 0 {
		return string(block[off:])
	}
	return string(block[off : int(off)+end])
}
