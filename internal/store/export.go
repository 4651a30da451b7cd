package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "alpaca-trader/internal/errors"
)

// Exporter writes stored rows out as CSV files for offline analysis.
type Exporter struct {
	store Store
	dir   string
}

// NewExporter returns an exporter writing into dir.
func NewExporter(store Store, dir string) *Exporter {
	return &Exporter{store: store, dir: dir}
}

// ExportAll writes trades, signals and performance recorded since the
// given time. Returns the paths written.
func (e *Exporter) ExportAll(since time.Time) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, "creating export directory")
	}

	var written []string

	trades, err := e.store.Trades(since)
	if err != nil {
		return written, err
	}
	if path, err := writeCSV(filepath.Join(e.dir, "trades.csv"), &trades); err != nil {
		return written, err
	} else if path != "" {
		written = append(written, path)
	}

	signals, err := e.store.Signals(since)
	if err != nil {
		return written, err
	}
	if path, err := writeCSV(filepath.Join(e.dir, "signals.csv"), &signals); err != nil {
		return written, err
	} else if path != "" {
		written = append(written, path)
	}

	perf, err := e.store.Performance(since)
	if err != nil {
		return written, err
	}
	if path, err := writeCSV(filepath.Join(e.dir, "performance.csv"), &perf); err != nil {
		return written, err
	} else if path != "" {
		written = append(written, path)
	}

	return written, nil
}

func writeCSV(path string, rows interface{}) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.Wrap(err, "creating csv file")
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		return "", apperrors.Wrap(err, "writing csv")
	}
	return path, nil
}
