package engine

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileEngine is an embedded engine whose construction loads one or more CSV
// files (a path or glob) into a named view. The view lives as long as the
// engine does.
type FileEngine struct {
	*SQLEngine
	view string
}

// NewFileEngine loads every file matching pattern into an in-memory embedded
// database under the given view name. The first file's header defines the
// column set; subsequent files must match it.
func NewFileEngine(view, pattern string, opts Options) (*FileEngine, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad file pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files match %q", pattern)
	}

	base, err := NewSQLite("", opts)
	if err != nil {
		return nil, err
	}
	fe := &FileEngine{SQLEngine: base, view: view}
	if err := fe.load(paths); err != nil {
		base.Close()
		return nil, err
	}
	return fe, nil
}

// View returns the name the loaded data is queryable under.
func (e *FileEngine) View() string { return e.view }

func (e *FileEngine) load(paths []string) error {
	ctx := context.Background()
	var header []string
	for _, path := range paths {
		cols, rows, err := readCSV(path)
		if err != nil {
			return err
		}
		if header == nil {
			header = cols
			ddl := "CREATE TABLE " + e.view + " (" + strings.Join(cols, ", ") + ")"
			if err := e.Seed(ctx, ddl); err != nil {
				return err
			}
		} else if !equalColumns(header, cols) {
			return fmt.Errorf("file %q: header %v does not match %v", path, cols, header)
		}
		if err := e.insert(ctx, header, rows); err != nil {
			return fmt.Errorf("file %q: %w", path, err)
		}
	}
	return nil
}

func (e *FileEngine) insert(ctx context.Context, cols []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
	stmt, err := e.db.PrepareContext(ctx, "INSERT INTO "+e.view+" VALUES ("+placeholders+")")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return err
		}
	}
	return nil
}

// readCSV parses one file, coercing cells that parse as numbers so that
// numeric aggregates behave. Empty cells load as NULL.
func readCSV(path string) ([]string, [][]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header of %q: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]any
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %q: %w", path, err)
		}
		row := make([]any, len(record))
		for i, cell := range record {
			row[i] = coerce(cell)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func coerce(cell string) any {
	if cell == "" {
		return nil
	}
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
