// Package dataset reads input records and writes processed tables.
package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/ppiankov/creatorcheck/internal/model"
)

// Load reads records from a Parquet, JSONL or CSV file. A positive limit
// stops after that many records.
func Load(path string, limit int) ([]model.RawRecord, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		records []model.RawRecord
		err     error
	)
	switch ext {
	case ".parquet":
		records, err = loadParquet(path, limit)
	case ".jsonl", ".ndjson":
		records, err = loadJSONL(path, limit)
	case ".csv":
		records, err = loadCSV(path, limit)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl, .csv)", ext)
	}
	if err != nil {
		return nil, err
	}

	if err := checkIDs(records); err != nil {
		return nil, err
	}
	return records, nil
}

// checkIDs rejects missing and duplicate identifiers; the progress file is keyed by them
func checkIDs(records []model.RawRecord) error {
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record %d has no id", i+1)
		}
		if prev, ok := seen[rec.ID]; ok {
			return fmt.Errorf("duplicate id %q at records %d and %d", rec.ID, prev+1, i+1)
		}
		seen[rec.ID] = i
	}
	return nil
}

func loadParquet(path string, limit int) ([]model.RawRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[model.RawRecord](pf)
	defer func() { _ = reader.Close() }()

	var records []model.RawRecord
	rows := make([]model.RawRecord, 128)
	for {
		n, err := reader.Read(rows)
		records = append(records, rows[:n]...)
		if limit > 0 && len(records) >= limit {
			return records[:limit], nil
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}
	return records, nil
}

func loadJSONL(path string, limit int) ([]model.RawRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var records []model.RawRecord
	scanner := bufio.NewScanner(file)

	// Creator fields can be long; allow 1MB lines
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var record model.RawRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		records = append(records, record)

		if limit > 0 && len(records) >= limit {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}
	return records, nil
}

func loadCSV(path string, limit int) ([]model.RawRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer func() { _ = file.Close() }()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := map[string]int{"id": -1, "creator": -1, "title": -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, ok := cols[name]; ok {
			cols[name] = i
		}
	}
	if cols["id"] < 0 || cols["creator"] < 0 {
		return nil, fmt.Errorf("csv header must name id and creator columns, got %v", header)
	}

	field := func(row []string, name string) string {
		i := cols[name]
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []model.RawRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		records = append(records, model.RawRecord{
			ID:      strings.TrimSpace(field(row, "id")),
			Creator: field(row, "creator"),
			Title:   field(row, "title"),
		})
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}
