package testutil

import (
	"fmt"
	"sort"

	"github.com/steelbid/followup/internal/store"
)

// MemoryStore is an in-memory store.Store. Commits mutate the held
// sheets the same way the xlsx adapter mutates the workbook, so
// multi-run scenarios (idempotence, crash recovery) are testable
// without files.
type MemoryStore struct {
	sheets map[string]map[string]*store.Sheet // year -> sheet name -> sheet

	// Commits records every Commit call in order.
	Commits []CommitCall

	// FailCommit makes Commit fail for the named years.
	FailCommit map[string]bool
}

// CommitCall is one recorded Commit invocation.
type CommitCall struct {
	Year    string
	Updates []store.Update
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sheets:     make(map[string]map[string]*store.Sheet),
		FailCommit: make(map[string]bool),
	}
}

// AddSheet installs a sheet. Data rows get workbook indexes starting
// at row 2, matching the real store layout.
func (m *MemoryStore) AddSheet(year, name string, headers []string, rows [][]string) {
	if m.sheets[year] == nil {
		m.sheets[year] = make(map[string]*store.Sheet)
	}
	sheet := &store.Sheet{Name: name, Headers: headers}
	for i, cells := range rows {
		sheet.Rows = append(sheet.Rows, store.Row{Index: i + 2, Cells: append([]string(nil), cells...)})
	}
	m.sheets[year][name] = sheet
}

func (m *MemoryStore) Years() []string {
	years := make([]string, 0, len(m.sheets))
	for year := range m.sheets {
		years = append(years, year)
	}
	sort.Strings(years)
	return years
}

func (m *MemoryStore) SheetNames(year string) ([]string, error) {
	byName, ok := m.sheets[year]
	if !ok {
		return nil, fmt.Errorf("no store for year %s", year)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) ReadSheet(year, name string) (*store.Sheet, error) {
	byName, ok := m.sheets[year]
	if !ok {
		return nil, fmt.Errorf("no store for year %s", year)
	}
	sheet, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("no sheet %s in year %s", name, year)
	}
	// Copy so callers cannot mutate store state through the result.
	out := &store.Sheet{Name: sheet.Name, Headers: append([]string(nil), sheet.Headers...)}
	for _, row := range sheet.Rows {
		out.Rows = append(out.Rows, store.Row{Index: row.Index, Cells: append([]string(nil), row.Cells...)})
	}
	return out, nil
}

// Commit applies updates to the held sheets, all-or-nothing per year.
func (m *MemoryStore) Commit(year string, updates []store.Update) error {
	if m.FailCommit[year] {
		return fmt.Errorf("injected commit failure for year %s", year)
	}
	byName, ok := m.sheets[year]
	if !ok {
		return fmt.Errorf("no store for year %s", year)
	}
	for _, u := range updates {
		sheet, ok := byName[u.Sheet]
		if !ok {
			return fmt.Errorf("no sheet %s in year %s", u.Sheet, year)
		}
		applied := false
		for i := range sheet.Rows {
			if sheet.Rows[i].Index != u.Row {
				continue
			}
			cells := sheet.Rows[i].Cells
			need := u.LastContactCol
			if u.StageCol > need {
				need = u.StageCol
			}
			for len(cells) <= need {
				cells = append(cells, "")
			}
			cells[u.LastContactCol] = u.LastContact.Format("01-02-2006")
			cells[u.StageCol] = fmt.Sprintf("%d", u.Stage)
			sheet.Rows[i].Cells = cells
			applied = true
			break
		}
		if !applied {
			return fmt.Errorf("no row %d in sheet %s", u.Row, u.Sheet)
		}
	}
	m.Commits = append(m.Commits, CommitCall{Year: year, Updates: append([]store.Update(nil), updates...)})
	return nil
}

// Cell returns the current value of one cell, for assertions.
func (m *MemoryStore) Cell(year, sheet string, row, col int) string {
	s := m.sheets[year][sheet]
	for _, r := range s.Rows {
		if r.Index == row {
			if col < len(r.Cells) {
				return r.Cells[col]
			}
			return ""
		}
	}
	return ""
}
