package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/ppiankov/creatorcheck/internal/model"
)

// ProcessedRow is one row of the processed output table
type ProcessedRow struct {
	ID               string   `parquet:"id" json:"id"`
	Creator          string   `parquet:"creator" json:"creator"`
	Title            string   `parquet:"title" json:"title"`
	AuthorsClean     string   `parquet:"authors_clean" json:"authors_clean"` // Names joined with "; "
	Affiliations     []string `parquet:"affiliations,list" json:"affiliations"`
	Route            string   `parquet:"route" json:"route"`
	ComplexityLevel  string   `parquet:"complexity_level" json:"complexity_level"`
	AuthorCount      int64    `parquet:"author_count" json:"author_count"`
	ExtractionFailed bool     `parquet:"extraction_failed" json:"extraction_failed"`
}

// RowFromRecord flattens a ValidationRecord into an output row
func RowFromRecord(rec *model.ValidationRecord) ProcessedRow {
	affiliations := rec.ProcessedAffiliations
	if affiliations == nil {
		affiliations = []string{}
	}
	return ProcessedRow{
		ID:               rec.RecordID,
		Creator:          rec.OriginalCreator,
		Title:            rec.Title,
		AuthorsClean:     rec.ProcessedAuthors,
		Affiliations:     affiliations,
		Route:            string(rec.Route),
		ComplexityLevel:  string(rec.ComplexityLevel),
		AuthorCount:      int64(rec.AuthorCount),
		ExtractionFailed: rec.ExtractionFailed,
	}
}

func rows(records []*model.ValidationRecord) []ProcessedRow {
	out := make([]ProcessedRow, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			out = append(out, RowFromRecord(rec))
		}
	}
	return out
}

// WriteParquet writes the processed table. Nil records are skipped.
func WriteParquet(path string, records []*model.ValidationRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := parquet.WriteFile(path, rows(records)); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}
	return nil
}

// ReadProcessed reads a table written by WriteParquet
func ReadProcessed(path string) ([]ProcessedRow, error) {
	out, err := parquet.ReadFile[ProcessedRow](path)
	if err != nil {
		return nil, fmt.Errorf("read processed parquet: %w", err)
	}
	return out, nil
}

// WriteJSONL writes one ValidationRecord per line. Nil records are skipped.
func WriteJSONL(path string, records []*model.ValidationRecord) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %s: %w", rec.RecordID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Write picks the format from the file extension: .parquet or .jsonl
func Write(path string, records []*model.ValidationRecord) error {
	switch filepath.Ext(path) {
	case ".parquet":
		return WriteParquet(path, records)
	case ".jsonl", ".ndjson":
		return WriteJSONL(path, records)
	}
	return fmt.Errorf("unsupported output format: %s (supported: .parquet, .jsonl)", filepath.Ext(path))
}
