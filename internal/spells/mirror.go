package spells

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// mirrorTable is the side table a running worldserver reads spell overrides
// from. It lives in the auxiliary database named by config (db.database).
const mirrorTable = "spell"

// mirrorRetryMaxElapsed bounds transient-error retries. Edit requests should
// fail fast rather than hold an HTTP worker behind the default 30s backoff.
const mirrorRetryMaxElapsed = 8 * time.Second

func newMirrorBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = mirrorRetryMaxElapsed
	return bo
}

// isRetryableError reports whether an error is a transient connection
// failure worth retrying. go-sql-driver has no built-in retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// isMissingTableError matches MySQL error 1146. A mirror that was never
// written to has no table yet; reads treat that as an empty mirror.
func isMissingTableError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "doesn't exist")
}

// Mirror owns access to the spell mirror database. Connections are opened
// per operation and closed when it returns; the 1.5s dial timeout rides in
// the DSN.
type Mirror struct {
	dsn string
	log *logrus.Entry

	ensureMu sync.Mutex
	ensured  bool
}

// NewMirror wires a mirror over a go-sql-driver DSN.
func NewMirror(dsn string, log *logrus.Entry) *Mirror {
	return &Mirror{dsn: dsn, log: log}
}

// withDB runs fn against a fresh connection, retrying transient failures.
func (m *Mirror) withDB(ctx context.Context, fn func(*sql.DB) error) error {
	db, err := sql.Open("mysql", m.dsn)
	if err != nil {
		return fmt.Errorf("open mirror db: %w", err)
	}
	defer db.Close()

	bo := newMirrorBackoff()
	return backoff.Retry(func() error {
		err := fn(db)
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// ensureTable creates the mirror table on first write. CREATE TABLE IF NOT
// EXISTS keeps concurrent first-writers safe.
func (m *Mirror) ensureTable(ctx context.Context) error {
	m.ensureMu.Lock()
	defer m.ensureMu.Unlock()
	if m.ensured {
		return nil
	}
	err := m.withDB(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, createMirrorTableSQL())
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure mirror table: %w", err)
	}
	m.ensured = true
	return nil
}

// createMirrorTableSQL renders the full mirror DDL from the editable
// projection, so the column set always matches what patches can touch.
func createMirrorTableSQL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS `" + mirrorTable + "` (\n")
	b.WriteString("  `ID` INT UNSIGNED NOT NULL,\n")
	for _, col := range MirrorColumns() {
		if col == "ID" {
			continue
		}
		field, _ := FieldForColumn(col)
		b.WriteString(fmt.Sprintf("  `%s` %s,\n", col, columnType(field)))
	}
	b.WriteString("  PRIMARY KEY (`ID`)\n)")
	return b.String()
}

// Row loads the mirror row for a spell as {column: raw string}. A missing
// row or a missing table both come back as found=false.
func (m *Mirror) Row(ctx context.Context, id uint32) (map[string]string, bool, error) {
	var (
		row   map[string]string
		found bool
	)
	err := m.withDB(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, "SELECT * FROM `"+mirrorTable+"` WHERE `ID` = ?", id)
		if err != nil {
			return err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		if !rows.Next() {
			return rows.Err()
		}
		raw := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		row = make(map[string]string, len(cols))
		for i, c := range cols {
			if raw[i].Valid {
				row[c] = raw[i].String
			}
		}
		found = true
		return rows.Err()
	})
	if isMissingTableError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row, found, nil
}

// Apply patches the mirror for one spell: UPDATE the touched columns when
// the row exists, INSERT (ID, touched...) otherwise. Returns true when a
// fresh row was inserted.
func (m *Mirror) Apply(ctx context.Context, id uint32, cols map[string]any) (bool, error) {
	if len(cols) == 0 {
		return false, nil
	}
	if err := m.ensureTable(ctx); err != nil {
		return false, err
	}

	names := sortedKeys(cols)
	var inserted bool
	err := m.withDB(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var exists bool
		if err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM `"+mirrorTable+"` WHERE `ID` = ?)", id).Scan(&exists); err != nil {
			return err
		}

		args := make([]any, 0, len(names)+1)
		if exists {
			for _, n := range names {
				args = append(args, cols[n])
			}
			args = append(args, id)
			if _, err := tx.ExecContext(ctx, buildUpdateSQL(names), args...); err != nil {
				return err
			}
		} else {
			args = append(args, id)
			for _, n := range names {
				args = append(args, cols[n])
			}
			if _, err := tx.ExecContext(ctx, buildInsertSQL(names), args...); err != nil {
				return err
			}
			inserted = true
		}
		return tx.Commit()
	})
	return inserted, err
}

// InsertRow inserts a full mirror row inside one transaction, failing with
// ErrIDExists when the ID is already taken. Used by create-from-template.
func (m *Mirror) InsertRow(ctx context.Context, id uint32, cols map[string]any) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	names := sortedKeys(cols)
	return m.withDB(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var exists bool
		if err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM `"+mirrorTable+"` WHERE `ID` = ?)", id).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: spell %d", ErrIDExists, id)
		}

		args := make([]any, 0, len(names)+1)
		args = append(args, id)
		for _, n := range names {
			args = append(args, cols[n])
		}
		if _, err := tx.ExecContext(ctx, buildInsertSQL(names), args...); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// MaxID returns the highest mirror spell ID, 0 for an empty or absent table.
func (m *Mirror) MaxID(ctx context.Context) (uint32, error) {
	var max uint32
	err := m.withDB(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(`ID`), 0) FROM `"+mirrorTable+"`").Scan(&max)
	})
	if isMissingTableError(err) {
		return 0, nil
	}
	return max, err
}

// RefHit is one reference-search result.
type RefHit struct {
	ID    uint32 `json:"id"`
	Label string `json:"label"`
}

// SearchRef returns the first limit rows of a reference table whose ID
// starts with prefix, labeled by the table's label expression. Table and
// label come from the closed refSearchSources map, never from user input.
func (m *Mirror) SearchRef(ctx context.Context, table, labelExpr, prefix string, limit int) ([]RefHit, error) {
	hits := []RefHit{}
	err := m.withDB(ctx, func(db *sql.DB) error {
		query := fmt.Sprintf(
			"SELECT `ID`, %s FROM `%s` WHERE CAST(`ID` AS CHAR) LIKE CONCAT(?, '%%') ORDER BY `ID` LIMIT ?",
			labelExpr, table)
		rows, err := db.QueryContext(ctx, query, prefix, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var h RefHit
			var label sql.NullString
			if err := rows.Scan(&h.ID, &label); err != nil {
				return err
			}
			h.Label = label.String
			hits = append(hits, h)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func buildUpdateSQL(cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = "`" + c + "` = ?"
	}
	return fmt.Sprintf("UPDATE `%s` SET %s WHERE `ID` = ?", mirrorTable, strings.Join(sets, ", "))
}

func buildInsertSQL(cols []string) string {
	names := make([]string, 0, len(cols)+1)
	names = append(names, "`ID`")
	marks := make([]string, 0, len(cols)+1)
	marks = append(marks, "?")
	for _, c := range cols {
		names = append(names, "`"+c+"`")
		marks = append(marks, "?")
	}
	return fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
		mirrorTable, strings.Join(names, ", "), strings.Join(marks, ", "))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sqlValue coerces a JSON-decoded patch value to the argument type the
// field's mirror column expects.
func sqlValue(field string, v any) any {
	switch spellFieldTypes[field] {
	case wdbc.TypeString:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	case wdbc.TypeFloat:
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case string:
			f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
			return f
		case int:
			return float64(n)
		default:
			return float64(wdbc.CellUint32(v))
		}
	case wdbc.TypeInt32:
		return int64(int32(cellInt64(v)))
	default:
		return int64(uint32(cellInt64(v)))
	}
}

func cellInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i
	}
	return 0
}
