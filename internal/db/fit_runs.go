package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/lpi-control/internal/fit"
	"github.com/banshee-data/lpi-control/internal/lpi"
	"github.com/banshee-data/lpi-control/internal/model"
	"github.com/banshee-data/lpi-control/internal/version"
)

// FitRun is a stored fit result.
type FitRun struct {
	ID          string       `json:"id"`
	Kind        lpi.Kind     `json:"kind"`
	Method      string       `json:"method"`
	Params      model.Params `json:"params"`
	Cost        float64      `json:"cost"`
	Evaluations int          `json:"evaluations"`
	Datasets    []string     `json:"datasets"`
	Version     string       `json:"version"`
	CreatedAt   int64        `json:"created_at"` // unix nanoseconds
}

// NewFitRun records a fit result, stamped with the running build version.
func NewFitRun(res *fit.Result) *FitRun {
	return &FitRun{
		Kind:        res.Kind,
		Method:      string(res.Method),
		Params:      res.Params,
		Cost:        res.Cost,
		Evaluations: res.Evaluations,
		Datasets:    append([]string(nil), res.Datasets...),
		Version:     version.Version,
	}
}

const fitRunColumns = `run_id, kind, method, dcoef, pgain, igain, ileak, cost, evaluations, datasets_json, version, created_at`

// InsertFitRun stores run, assigning an ID and creation time when unset.
func (db *DB) InsertFitRun(run *FitRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	datasets := run.Datasets
	if datasets == nil {
		datasets = []string{}
	}
	datasetsJSON, err := json.Marshal(datasets)
	if err != nil {
		return fmt.Errorf("marshal datasets: %w", err)
	}

	_, err = db.Exec(`INSERT INTO fit_runs (`+fitRunColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.Method,
		run.Params.Damping, run.Params.GainP, run.Params.GainI, run.Params.Leak,
		run.Cost, run.Evaluations, string(datasetsJSON), run.Version, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fit run: %w", err)
	}
	return nil
}

// GetFitRun returns the run with the given ID, or ErrNotFound.
func (db *DB) GetFitRun(id string) (*FitRun, error) {
	row := db.QueryRow(`SELECT `+fitRunColumns+` FROM fit_runs WHERE run_id = ?`, id)
	run, err := scanFitRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fit run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query fit run: %w", err)
	}
	return run, nil
}

// LatestFitRun returns the most recent run for kind k, or ErrNotFound.
func (db *DB) LatestFitRun(k lpi.Kind) (*FitRun, error) {
	row := db.QueryRow(`SELECT `+fitRunColumns+` FROM fit_runs WHERE kind = ? ORDER BY created_at DESC LIMIT 1`, string(k))
	run, err := scanFitRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no %s fit runs: %w", k, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query latest fit run: %w", err)
	}
	return run, nil
}

// ListFitRuns returns up to limit runs, newest first.
func (db *DB) ListFitRuns(limit int) ([]*FitRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+fitRunColumns+` FROM fit_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query fit runs: %w", err)
	}
	defer rows.Close()

	var runs []*FitRun
	for rows.Next() {
		run, err := scanFitRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fit run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteFitRun removes a run, returning ErrNotFound if it does not exist.
func (db *DB) DeleteFitRun(id string) error {
	res, err := db.Exec(`DELETE FROM fit_runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete fit run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete fit run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("fit run %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFitRun(s scanner) (*FitRun, error) {
	var (
		run          FitRun
		kind         string
		datasetsJSON string
	)
	if err := s.Scan(&run.ID, &kind, &run.Method,
		&run.Params.Damping, &run.Params.GainP, &run.Params.GainI, &run.Params.Leak,
		&run.Cost, &run.Evaluations, &datasetsJSON, &run.Version, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Kind = lpi.Kind(kind)
	if err := json.Unmarshal([]byte(datasetsJSON), &run.Datasets); err != nil {
		return nil, fmt.Errorf("decode datasets for run %s: %w", run.ID, err)
	}
	return &run, nil
}
