package wdbc

import "sort"

// FieldChange records one cell that differs between two versions of a row.
// A nil Old or New means the field does not exist on that side (the rows had
// different widths).
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// RecordDiff is the set of changed cells for one record ID.
type RecordDiff struct {
	ID     uint32        `json:"id"`
	Fields []FieldChange `json:"fields"`
}

// DiffResult compares two decoded tables keyed on field 0.
type DiffResult struct {
	Modified []RecordDiff `json:"modified"`
	Added    []Row        `json:"added"`
	Removed  []Row        `json:"removed"`
}

// DiffTables compares old against new, keyed on each row's first field.
// Field names come from the old (left-hand) schema; when the rows have
// different widths, cells past the shorter row compare as undefined.
func DiffTables(oldFile, newFile *File) *DiffResult {
	res := &DiffResult{
		Modified: []RecordDiff{},
		Added:    []Row{},
		Removed:  []Row{},
	}

	oldByID := make(map[uint32]Row, len(oldFile.Records))
	for i, row := range oldFile.Records {
		oldByID[oldFile.ID(i)] = row
	}
	newByID := make(map[uint32]Row, len(newFile.Records))
	for i, row := range newFile.Records {
		newByID[newFile.ID(i)] = row
	}

	for i, row := range newFile.Records {
		id := newFile.ID(i)
		oldRow, ok := oldByID[id]
		if !ok {
			res.Added = append(res.Added, row)
			continue
		}
		if changes := rowChanges(oldFile.Fields, oldRow, row); len(changes) > 0 {
			res.Modified = append(res.Modified, RecordDiff{ID: id, Fields: changes})
		}
	}
	for i, row := range oldFile.Records {
		if _, ok := newByID[oldFile.ID(i)]; !ok {
			res.Removed = append(res.Removed, row)
		}
	}

	sort.Slice(res.Modified, func(i, j int) bool { return res.Modified[i].ID < res.Modified[j].ID })
	sortRowsByID(res.Added)
	sortRowsByID(res.Removed)
	return res
}

func rowChanges(fields []Field, oldRow, newRow Row) []FieldChange {
	width := len(oldRow)
	if len(newRow) > width {
		width = len(newRow)
	}
	var changes []FieldChange
	for i := 0; i < width; i++ {
		var oldV, newV any
		if i < len(oldRow) {
			oldV = oldRow[i]
		}
		if i < len(newRow) {
			newV = newRow[i]
		}
		if oldV == newV {
			continue
		}
		changes = append(changes, FieldChange{Field: fieldName(fields, i), Old: oldV, New: newV})
	}
	return changes
}

func fieldName(fields []Field, i int) string {
	if i < len(fields) {
		return fields[i].Name
	}
	return FitFields(nil, i+1)[i].Name
}

func sortRowsByID(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		var a, b uint32
		if len(rows[i]) > 0 {
			a = CellUint32(rows[i][0])
		}
		if len(rows[j]) > 0 {
			b = CellUint32(rows[j][0])
		}
		return a < b
	})
}
