package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/lpi-control/internal/fsutil"
)

// ErrNoFiles is returned by LoadAll when no path matches.
var ErrNoFiles = errors.New("no dataset files matched")

// Column names used in CSV headers.
const (
	ColT        = "t"
	ColOmega    = "omega"
	ColSetpoint = "setpt"
	ColDisable  = "disable"
)

// ReadCSV parses a dataset from CSV. Leading lines of the form "# key=value"
// set metadata (name, units). The header row names the columns; t, omega and
// setpt are required, disable is optional and column order is free.
func ReadCSV(r io.Reader, name string) (*Dataset, error) {
	d := &Dataset{Name: name}
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil || b[0] != '#' {
			break
		}
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read csv metadata: %w", err)
		}
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "#")), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "name":
			d.Name = strings.TrimSpace(value)
		case "units":
			d.Units = strings.TrimSpace(value)
		}
	}

	cr := csv.NewReader(br)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "setpoint" {
			h = ColSetpoint
		}
		cols[h] = i
	}
	for _, req := range []string{ColT, ColOmega, ColSetpoint} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("%w: %s: missing column %q", ErrInvalidDataset, name, req)
		}
	}
	disableCol, hasDisable := cols[ColDisable]

	for row := 2; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}
		parse := func(col string, idx int) (float64, error) {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %s: row %d column %s: %v", ErrInvalidDataset, name, row, col, err)
			}
			return v, nil
		}
		t, err := parse(ColT, cols[ColT])
		if err != nil {
			return nil, err
		}
		omega, err := parse(ColOmega, cols[ColOmega])
		if err != nil {
			return nil, err
		}
		sp, err := parse(ColSetpoint, cols[ColSetpoint])
		if err != nil {
			return nil, err
		}
		d.T = append(d.T, t)
		d.Omega = append(d.Omega, omega)
		d.Setpoint = append(d.Setpoint, sp)
		if hasDisable {
			dis, err := parse(ColDisable, disableCol)
			if err != nil {
				return nil, err
			}
			d.Disable = append(d.Disable, dis)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// WriteCSV writes d in the format read by ReadCSV.
func WriteCSV(w io.Writer, d *Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if d.Name != "" {
		fmt.Fprintf(bw, "# name=%s\n", d.Name)
	}
	if d.Units != "" {
		fmt.Fprintf(bw, "# units=%s\n", d.Units)
	}

	cw := csv.NewWriter(bw)
	header := []string{ColT, ColOmega, ColSetpoint}
	if d.Disable != nil {
		header = append(header, ColDisable)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	rec := make([]string, len(header))
	for i := range d.T {
		rec[0] = formatFloat(d.T[i])
		rec[1] = formatFloat(d.Omega[i])
		rec[2] = formatFloat(d.Setpoint[i])
		if d.Disable != nil {
			rec[3] = formatFloat(d.Disable[i])
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadJSON parses a dataset from a JSON object with the keys name, units, t,
// omega, setpt and disable.
func ReadJSON(r io.Reader, name string) (*Dataset, error) {
	d := &Dataset{}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(d); err != nil {
		return nil, fmt.Errorf("failed to parse dataset JSON: %w", err)
	}
	if d.Name == "" {
		d.Name = name
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// WriteJSON writes d as indented JSON.
func WriteJSON(w io.Writer, d *Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// NameFromPath returns the file name without directory or extension.
func NameFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Load reads a .csv or .json dataset from fsys.
func Load(fsys fsutil.FileSystem, path string) (*Dataset, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	name := NameFromPath(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f, name)
	case ".json":
		return ReadJSON(f, name)
	}
	return nil, fmt.Errorf("unsupported dataset format %q: must be .csv or .json", filepath.Ext(path))
}

// Save writes d to path in the format given by its extension, creating
// parent directories as needed.
func Save(fsys fsutil.FileSystem, path string, d *Dataset) (err error) {
	var write func(io.Writer, *Dataset) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		write = WriteCSV
	case ".json":
		write = WriteJSON
	default:
		return fmt.Errorf("unsupported dataset format %q: must be .csv or .json", filepath.Ext(path))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close dataset file: %w", cerr)
		}
	}()
	return write(f, d)
}

// LoadAll loads every file matched by the given paths or glob patterns, in
// order, de-duplicating repeated matches.
func LoadAll(fsys fsutil.FileSystem, patterns ...string) ([]*Dataset, error) {
	var (
		out  []*Dataset
		seen = map[string]bool{}
	)
	for _, p := range patterns {
		matches, err := fsys.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			d, err := Load(fsys, m)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", m, err)
			}
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, strings.Join(patterns, ", "))
	}
	return out, nil
}
