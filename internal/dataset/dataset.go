// Package dataset reads and writes charging-session telemetry as CSV.
//
// The flat-file schema is one row per reading: time_index, session_id,
// voltage, current, energy_kwh, label. The label column carries the
// ground-truth session label for training and offline scoring; it is never
// consumed by the fraud engine itself.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/evgrid/guardian/internal/telemetry"
)

// Header is the canonical column order.
var Header = []string{"time_index", "session_id", "voltage", "current", "energy_kwh", "label"}

// Labeled pairs a session with its ground-truth label ("normal" or "fraud").
type Labeled struct {
	Session *telemetry.Session
	Label   string
}

// Write encodes labeled sessions as CSV rows in reading order.
func Write(w io.Writer, sessions []Labeled) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}

	for _, ls := range sessions {
		for _, r := range ls.Session.Readings {
			row := []string{
				strconv.Itoa(r.TimeIndex),
				r.SessionID,
				strconv.FormatFloat(r.Voltage, 'f', -1, 64),
				strconv.FormatFloat(r.Current, 'f', -1, 64),
				strconv.FormatFloat(r.EnergyKWh, 'f', -1, 64),
				ls.Label,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile writes labeled sessions to a CSV file.
func WriteFile(path string, sessions []Labeled) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := Write(f, sessions); err != nil {
		return err
	}
	return f.Close()
}

// Read decodes CSV telemetry, grouping rows into sessions by session_id in
// order of first appearance. A session is labeled fraud when any of its rows
// is. A malformed row aborts the read with its line number: silently dropping
// a reading could hide the exact moment of tampering.
func Read(r io.Reader) ([]Labeled, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("dataset is empty")
	}
	if err != nil {
		return nil, err
	}
	col, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var (
		order    []string
		sessions = make(map[string]*Labeled)
	)

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		reading, label, err := parseRow(row, col)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := reading.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ls, ok := sessions[reading.SessionID]
		if !ok {
			ls = &Labeled{
				Session: &telemetry.Session{ID: reading.SessionID},
				Label:   "normal",
			}
			sessions[reading.SessionID] = ls
			order = append(order, reading.SessionID)
		}
		ls.Session.Readings = append(ls.Session.Readings, reading)
		if label == "fraud" {
			ls.Label = "fraud"
		}
	}

	out := make([]Labeled, 0, len(order))
	for _, id := range order {
		out = append(out, *sessions[id])
	}
	return out, nil
}

// ReadFile reads labeled sessions from a CSV file.
func ReadFile(path string) ([]Labeled, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// columnIndex maps required column names to their positions. The label
// column is optional; datasets from the field come unlabeled.
func columnIndex(header []string) (map[string]int, error) {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range Header[:5] {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("dataset missing column %q", name)
		}
	}
	return col, nil
}

func parseRow(row []string, col map[string]int) (telemetry.Reading, string, error) {
	var r telemetry.Reading

	field := func(name string) (string, error) {
		i := col[name]
		if i >= len(row) {
			return "", fmt.Errorf("row has no %s column", name)
		}
		return row[i], nil
	}

	ts, err := field("time_index")
	if err != nil {
		return r, "", err
	}
	r.TimeIndex, err = strconv.Atoi(ts)
	if err != nil {
		return r, "", fmt.Errorf("bad time_index %q", ts)
	}

	r.SessionID, err = field("session_id")
	if err != nil {
		return r, "", err
	}

	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"voltage", &r.Voltage},
		{"current", &r.Current},
		{"energy_kwh", &r.EnergyKWh},
	} {
		s, err := field(f.name)
		if err != nil {
			return r, "", err
		}
		*f.dst, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return r, "", fmt.Errorf("bad %s %q", f.name, s)
		}
	}

	label := ""
	if i, ok := col["label"]; ok && i < len(row) {
		label = row[i]
	}

	return r, label, nil
}
