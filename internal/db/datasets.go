package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/lpi-control/internal/dataset"
)

// DatasetInfo describes a stored dataset without its samples.
type DatasetInfo struct {
	Name      string `json:"name"`
	Units     string `json:"units,omitempty"`
	Samples   int    `json:"samples"`
	CreatedAt int64  `json:"created_at"`
}

// SaveDataset stores d under d.Name, replacing any dataset with that name.
func (db *DB) SaveDataset(d *dataset.Dataset) error {
	if d.Name == "" {
		return fmt.Errorf("%w: dataset has no name", dataset.ErrInvalidDataset)
	}
	if err := d.Validate(); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM dataset_samples WHERE dataset_name = ?`, d.Name); err != nil {
		return fmt.Errorf("clear dataset samples: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO datasets (name, units, samples, created_at) VALUES (?, ?, ?, ?)`,
		d.Name, d.Units, d.Len(), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO dataset_samples (dataset_name, idx, t, omega, setpt, disable) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for i := range d.T {
		disable := 0.0
		if d.Disable != nil {
			disable = d.Disable[i]
		}
		if _, err := stmt.Exec(d.Name, i, d.T[i], d.Omega[i], d.Setpoint[i], disable); err != nil {
			return fmt.Errorf("insert sample %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadDataset reads a stored dataset, or returns ErrNotFound.
func (db *DB) LoadDataset(name string) (*dataset.Dataset, error) {
	var n int
	d := &dataset.Dataset{Name: name}
	err := db.QueryRow(`SELECT units, samples FROM datasets WHERE name = ?`, name).Scan(&d.Units, &n)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query dataset: %w", err)
	}

	rows, err := db.Query(`SELECT t, omega, setpt, disable FROM dataset_samples WHERE dataset_name = ? ORDER BY idx`, name)
	if err != nil {
		return nil, fmt.Errorf("query dataset samples: %w", err)
	}
	defer rows.Close()

	d.T = make([]float64, 0, n)
	d.Omega = make([]float64, 0, n)
	d.Setpoint = make([]float64, 0, n)
	d.Disable = make([]float64, 0, n)
	anyDisabled := false
	for rows.Next() {
		var t, omega, setpt, disable float64
		if err := rows.Scan(&t, &omega, &setpt, &disable); err != nil {
			return nil, fmt.Errorf("scan dataset sample: %w", err)
		}
		d.T = append(d.T, t)
		d.Omega = append(d.Omega, omega)
		d.Setpoint = append(d.Setpoint, setpt)
		d.Disable = append(d.Disable, disable)
		anyDisabled = anyDisabled || disable != 0
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !anyDisabled {
		d.Disable = nil
	}
	if d.Len() != n {
		return nil, fmt.Errorf("dataset %s: expected %d samples, found %d", name, n, d.Len())
	}
	return d, nil
}

// ListDatasets returns the stored datasets ordered by name.
func (db *DB) ListDatasets() ([]DatasetInfo, error) {
	rows, err := db.Query(`SELECT name, units, samples, created_at FROM datasets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	defer rows.Close()

	var out []DatasetInfo
	for rows.Next() {
		var info DatasetInfo
		if err := rows.Scan(&info.Name, &info.Units, &info.Samples, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteDataset removes a dataset and its samples.
func (db *DB) DeleteDataset(name string) error {
	res, err := db.Exec(`DELETE FROM datasets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dataset %s: %w", name, ErrNotFound)
	}
	return nil
}
