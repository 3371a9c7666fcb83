package store

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// dateLayout matches the store's US date convention for written-back
// correspondence dates.
const dateLayout = "01-02-2006"

// Workbooks is the xlsx adapter over per-year workbook files.
type Workbooks struct {
	paths  map[string]string // year -> file path
	backup bool
	now    func() time.Time
}

// NewWorkbooks builds the adapter. Every configured file must exist:
// an unreadable store path is a startup-fatal condition, not something
// to discover halfway through a run.
func NewWorkbooks(paths map[string]string, backup bool) (*Workbooks, error) {
	for year, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("store file for %s: %w", year, err)
		}
	}
	return &Workbooks{paths: paths, backup: backup, now: time.Now}, nil
}

// Years returns the configured years in ascending order.
func (w *Workbooks) Years() []string {
	years := make([]string, 0, len(w.paths))
	for year := range w.paths {
		years = append(years, year)
	}
	sort.Strings(years)
	return years
}

func (w *Workbooks) path(year string) (string, error) {
	path, ok := w.paths[year]
	if !ok {
		return "", fmt.Errorf("no store configured for year %s", year)
	}
	return path, nil
}

// SheetNames lists the sheets of one year's workbook.
func (w *Workbooks) SheetNames(year string) ([]string, error) {
	path, err := w.path(year)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// ReadSheet reads one sheet in full. Row 1 is the header row; data
// rows keep their 1-based workbook indexes for write-back.
func (w *Workbooks) ReadSheet(year, name string) (*Sheet, error) {
	path, err := w.path(year)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s of %s: %w", name, path, err)
	}
	if len(rows) == 0 {
		return &Sheet{Name: name}, nil
	}

	sheet := &Sheet{Name: name, Headers: rows[0]}
	for i, cells := range rows[1:] {
		sheet.Rows = append(sheet.Rows, Row{Index: i + 2, Cells: cells})
	}
	return sheet, nil
}

// Commit applies all pending updates for one year's workbook.
//
// When backup is enabled the file is copied to a timestamped sibling
// first; a failed backup fails this file's writes closed. Updates are
// applied to the in-memory workbook and saved once, so a save failure
// leaves the file as it was.
func (w *Workbooks) Commit(year string, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}
	path, err := w.path(year)
	if err != nil {
		return err
	}

	if w.backup {
		backupPath, err := w.backupFile(path)
		if err != nil {
			return fmt.Errorf("backup %s: %w", path, err)
		}
		slog.Info("store backed up", "year", year, "backup", backupPath)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	for _, u := range updates {
		lastCell, err := excelize.CoordinatesToCellName(u.LastContactCol+1, u.Row)
		if err != nil {
			return fmt.Errorf("resolve cell for %s row %d: %w", u.Sheet, u.Row, err)
		}
		stageCell, err := excelize.CoordinatesToCellName(u.StageCol+1, u.Row)
		if err != nil {
			return fmt.Errorf("resolve cell for %s row %d: %w", u.Sheet, u.Row, err)
		}
		if err := f.SetCellValue(u.Sheet, lastCell, u.LastContact.Format(dateLayout)); err != nil {
			return fmt.Errorf("set %s!%s: %w", u.Sheet, lastCell, err)
		}
		if err := f.SetCellValue(u.Sheet, stageCell, u.Stage); err != nil {
			return fmt.Errorf("set %s!%s: %w", u.Sheet, stageCell, err)
		}
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	slog.Info("store committed", "year", year, "updates", len(updates))
	return nil
}

// backupFile copies path to a timestamped sibling and returns the
// backup path.
func (w *Workbooks) backupFile(path string) (string, error) {
	ext := filepath.Ext(path)
	stamp := w.now().Format("20060102-150405")
	backupPath := strings.TrimSuffix(path, ext) + ".backup-" + stamp + ext

	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(backupPath)
		return "", err
	}
	return backupPath, nil
}
