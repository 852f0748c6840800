// Package catalog persists imported plate layouts using SQLite.
package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Well is one populated plate position.
type Well struct {
	Path   string `json:"path"`
	Row    int    `json:"row"`
	Column int    `json:"column"`
}

// Plate is a catalogued plate layout.
type Plate struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ZarrPath     string    `json:"zarr_path"`
	RowLabels    []string  `json:"row_labels"`
	ColumnLabels []string  `json:"column_labels"`
	Wells        []Well    `json:"wells,omitempty"`
	ImportedAt   time.Time `json:"imported_at"`
}

// Store provides persistent storage for plate layouts using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore creates a new SQLite-based catalog.
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plates (
		plate_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		zarr_path TEXT NOT NULL,
		row_labels_json TEXT NOT NULL,
		column_labels_json TEXT NOT NULL,
		imported_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wells (
		plate_id TEXT NOT NULL,
		path TEXT NOT NULL,
		row_index INTEGER NOT NULL,
		column_index INTEGER NOT NULL,
		PRIMARY KEY (plate_id, row_index, column_index),
		FOREIGN KEY (plate_id) REFERENCES plates(plate_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_plates_imported ON plates(imported_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertPlate stores p, replacing any earlier import with the same ID.
func (s *Store) UpsertPlate(p *Plate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rowsJSON, err := json.Marshal(p.RowLabels)
	if err != nil {
		return fmt.Errorf("failed to marshal row labels: %w", err)
	}
	colsJSON, err := json.Marshal(p.ColumnLabels)
	if err != nil {
		return fmt.Errorf("failed to marshal column labels: %w", err)
	}
	if p.ImportedAt.IsZero() {
		p.ImportedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO plates (plate_id, name, zarr_path, row_labels_json, column_labels_json, imported_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(plate_id) DO UPDATE SET
			name = excluded.name,
			zarr_path = excluded.zarr_path,
			row_labels_json = excluded.row_labels_json,
			column_labels_json = excluded.column_labels_json,
			imported_at = excluded.imported_at
	`, p.ID, p.Name, p.ZarrPath, string(rowsJSON), string(colsJSON), p.ImportedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM wells WHERE plate_id = ?", p.ID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO wells (plate_id, path, row_index, column_index)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, w := range p.Wells {
		if _, err := stmt.Exec(p.ID, w.Path, w.Row, w.Column); err != nil {
			return fmt.Errorf("failed to insert well %s: %w", w.Path, err)
		}
	}

	return tx.Commit()
}

// GetPlate retrieves a plate with its wells. It returns nil, nil when the
// plate is unknown.
func (s *Store) GetPlate(id string) (*Plate, error) {
	row := s.db.QueryRow(`
		SELECT plate_id, name, zarr_path, row_labels_json, column_labels_json, imported_at
		FROM plates WHERE plate_id = ?
	`, id)

	p, err := scanPlate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT path, row_index, column_index
		FROM wells WHERE plate_id = ?
		ORDER BY row_index, column_index
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var w Well
		if err := rows.Scan(&w.Path, &w.Row, &w.Column); err != nil {
			return nil, err
		}
		p.Wells = append(p.Wells, w)
	}
	return p, rows.Err()
}

// ListPlates returns all plates without wells, oldest import first.
func (s *Store) ListPlates() ([]*Plate, error) {
	rows, err := s.db.Query(`
		SELECT plate_id, name, zarr_path, row_labels_json, column_labels_json, imported_at
		FROM plates
		ORDER BY imported_at ASC, plate_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plates []*Plate
	for rows.Next() {
		p, err := scanPlate(rows)
		if err != nil {
			return nil, err
		}
		plates = append(plates, p)
	}
	return plates, rows.Err()
}

// DeletePlate removes a plate and its wells.
func (s *Store) DeletePlate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM wells WHERE plate_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM plates WHERE plate_id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlate(sc scanner) (*Plate, error) {
	var p Plate
	var rowsJSON, colsJSON, importedAt string
	if err := sc.Scan(&p.ID, &p.Name, &p.ZarrPath, &rowsJSON, &colsJSON, &importedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rowsJSON), &p.RowLabels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal row labels: %w", err)
	}
	if err := json.Unmarshal([]byte(colsJSON), &p.ColumnLabels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal column labels: %w", err)
	}
	p.ImportedAt, _ = time.Parse(time.RFC3339, importedAt)
	return &p, nil
}
