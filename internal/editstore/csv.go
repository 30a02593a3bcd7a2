package editstore

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/surreal-wow/sdbeditor/internal/schema"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// ExportCSV renders a table as CSV: one header row of field names, then one
// row per record. Floats are formatted at full precision so an import of the
// output reproduces the exact on-disk bits.
func (s *Store) ExportCSV(name string, layer Layer) ([]byte, error) {
	view, err := s.Read(name, layer)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(view.Fields))
	for i, f := range view.Fields {
		header[i] = f.Name
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	cells := make([]string, len(view.Fields))
	for _, row := range view.Records {
		for i, f := range view.Fields {
			var v any
			if i < len(row) {
				v = row[i]
			}
			cells[i] = formatCell(f.Type, v)
		}
		if err := w.Write(cells); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ImportCSV parses CSV produced by ExportCSV (or hand-edited to the same
// shape) and saves the result to the export layer. Columns map positionally;
// the header row only fixes the width. Cells are coerced to the registered
// schema fitted to that width.
func (s *Store) ImportCSV(name string, data []byte) (*SaveResult, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingPayload, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty CSV", ErrMissingPayload)
	}

	fields := wdbc.FitFields(schema.ForFile(name), len(rows[0]))
	records := make([]wdbc.Row, 0, len(rows)-1)
	for ri, cells := range rows[1:] {
		row := make(wdbc.Row, len(fields))
		for ci, f := range fields {
			v, err := parseCell(f.Type, cells[ci])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %v", ErrMissingPayload, ri+1, f.Name, err)
			}
			row[ci] = v
		}
		records = append(records, row)
	}

	return s.Save(name, fields, records)
}

func formatCell(t wdbc.FieldType, v any) string {
	switch t {
	case wdbc.TypeString:
		return wdbc.CellString(v)
	case wdbc.TypeFloat:
		f, _ := v.(float32)
		return strconv.FormatFloat(float64(f), 'g', -1, 32)
	case wdbc.TypeInt32:
		n, _ := v.(int32)
		return strconv.FormatInt(int64(n), 10)
	default:
		return strconv.FormatUint(uint64(wdbc.CellUint32(v)), 10)
	}
}

func parseCell(t wdbc.FieldType, s string) (any, error) {
	switch t {
	case wdbc.TypeString:
		return s, nil
	case wdbc.TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case wdbc.TypeInt32:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	default:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return uint32(n), nil
	}
}
