package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/nutriempower/nutriempower/pkg/config"
	"github.com/nutriempower/nutriempower/pkg/models"
)

// ErrNoCSV is returned by Rebuild when the CSV source file is absent.
var ErrNoCSV = errors.New("dataset csv not found")

// Loader produces the startup record set from the snapshot or the CSV.
type Loader struct {
	cfg config.DatasetConfig
	log zerolog.Logger

	// OnRow, when set, receives the running count of CSV rows examined.
	OnRow func(examined int)
}

// NewLoader creates a Loader for the configured dataset files.
func NewLoader(cfg config.DatasetConfig, log zerolog.Logger) *Loader {
	return &Loader{cfg: cfg, log: log}
}

// Load prefers the snapshot, then the CSV, and never fails: problems are
// logged as warnings and leave the record set empty or partial.
func (l *Loader) Load(ctx context.Context) ([]models.FoodRecord, models.DatasetSource) {
	if fileExists(l.cfg.SnapshotPath) {
		records, err := LoadSnapshot(l.cfg.SnapshotPath)
		if err != nil {
			l.log.Warn().Err(err).Str("path", l.cfg.SnapshotPath).Msg("snapshot unreadable, continuing without dataset")
			return nil, models.SourceNone
		}
		l.log.Info().Int("records", len(records)).Str("path", l.cfg.SnapshotPath).Msg("dataset loaded from snapshot")
		return records, models.SourceSnapshot
	}

	if !fileExists(l.cfg.CSVPath) {
		l.log.Warn().
			Str("csv", l.cfg.CSVPath).
			Str("snapshot", l.cfg.SnapshotPath).
			Msg("no dataset found, chat will run without context")
		return nil, models.SourceNone
	}

	records, stats, err := l.readCSV(ctx)
	if err != nil {
		// A partial set serves this process only; the next start re-reads the CSV.
		l.log.Warn().Err(err).Str("path", l.cfg.CSVPath).Int("kept", len(records)).Msg("csv ingestion incomplete, snapshot not written")
		return records, models.SourceCSV
	}
	l.log.Info().
		Int("examined", stats.Examined).
		Int("kept", stats.Kept).
		Int("duplicates", stats.Duplicates).
		Int("malformed", stats.Malformed).
		Msg("dataset ingested from csv")

	if err := SaveSnapshot(l.cfg.SnapshotPath, records); err != nil {
		l.log.Warn().Err(err).Str("path", l.cfg.SnapshotPath).Msg("could not persist snapshot")
	}
	return records, models.SourceCSV
}

// Rebuild re-ingests the CSV regardless of any snapshot and rewrites the
// snapshot. Unlike Load it reports every failure.
func (l *Loader) Rebuild(ctx context.Context) ([]models.FoodRecord, ReadStats, error) {
	if !fileExists(l.cfg.CSVPath) {
		return nil, ReadStats{}, fmt.Errorf("%w: %s", ErrNoCSV, l.cfg.CSVPath)
	}
	records, stats, err := l.readCSV(ctx)
	if err != nil {
		return records, stats, err
	}
	if err := SaveSnapshot(l.cfg.SnapshotPath, records); err != nil {
		return records, stats, err
	}
	return records, stats, nil
}

func (l *Loader) readCSV(ctx context.Context) ([]models.FoodRecord, ReadStats, error) {
	f, err := os.Open(l.cfg.CSVPath)
	if err != nil {
		return nil, ReadStats{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	return ReadCSV(ctx, f, Limits{MaxRawRows: l.cfg.MaxRawRows, MaxRecords: l.cfg.MaxRecords}, l.OnRow)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
