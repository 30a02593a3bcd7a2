package editstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// backupDateLayout names backup directories MM-DD-YYYY.
const backupDateLayout = "01-02-2006"

// dailyBackup snapshots every .dbc on both layers into
// backups/<MM-DD-YYYY>/{base-dbc,export-dbc} before the first write of the
// day. The dated directory existing at all means today is done; writes later
// the same day skip it, so a day's snapshot always shows the morning state.
func (s *Store) dailyBackup() error {
	s.backupMu.Lock()
	defer s.backupMu.Unlock()

	day := s.nowFunc().Format(backupDateLayout)
	dir := filepath.Join(s.cfg.BackupsDir(), day)
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		return nil
	}

	if err := copyDBCDir(s.cfg.BaseDBCDir(), filepath.Join(dir, "base-dbc")); err != nil {
		return fmt.Errorf("daily backup (base): %w", err)
	}
	if err := copyDBCDir(s.cfg.ExportDBCDir(), filepath.Join(dir, "export-dbc")); err != nil {
		return fmt.Errorf("daily backup (export): %w", err)
	}
	s.log.WithField("dir", dir).Info("daily backup created")
	return nil
}

// copyDBCDir copies every .dbc file from src into dst, creating dst. A
// missing src is fine (fresh installs have no export tree yet).
func copyDBCDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dst, 0755)
		}
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".dbc") {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
