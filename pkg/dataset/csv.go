package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nutriempower/nutriempower/pkg/models"
)

// Limits bounds a CSV ingestion pass.
type Limits struct {
	MaxRawRows int // rows examined, header excluded
	MaxRecords int // unique records kept
}

// ReadStats reports what a CSV pass did with the rows it examined.
type ReadStats struct {
	Examined   int `json:"examined"`
	Kept       int `json:"kept"`
	Empty      int `json:"empty"`
	Duplicates int `json:"duplicates"`
	Malformed  int `json:"malformed"`
}

// ReadCSV streams rows from r, normalizes them and keeps the first record per
// lowercase description. It stops after lim.MaxRawRows rows or once
// lim.MaxRecords unique records are held. onRow, when set, is called with the
// running examined count. On an I/O error the records gathered so far are
// returned along with the error.
func ReadCSV(ctx context.Context, r io.Reader, lim Limits, onRow func(examined int)) ([]models.FoodRecord, ReadStats, error) {
	var stats ReadStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("read csv header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	records := make([]models.FoodRecord, 0, min(lim.MaxRecords, 512))
	seen := make(map[string]struct{}, cap(records))
	row := make(map[string]string, len(columns))

	for stats.Examined < lim.MaxRawRows && len(records) < lim.MaxRecords {
		if err := ctx.Err(); err != nil {
			return records, stats, err
		}

		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		stats.Examined++
		if onRow != nil {
			onRow(stats.Examined)
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Malformed++
				continue
			}
			return records, stats, fmt.Errorf("read csv row %d: %w", stats.Examined, err)
		}

		clear(row)
		for i, v := range fields {
			if i < len(columns) {
				row[columns[i]] = v
			}
		}

		rec := Normalize(row)
		if rec.Description == "" {
			stats.Empty++
			continue
		}
		key := strings.ToLower(rec.Description)
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		records = append(records, rec)
	}

	stats.Kept = len(records)
	return records, stats, nil
}
