// Package exporter writes the three result artifacts for a run: the nested
// accounts JSONL, the flat accounts CSV and the flat reels CSV.
package exporter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/FranksOps/reelrank/internal/metrics"
	"github.com/FranksOps/reelrank/internal/model"
	"github.com/FranksOps/reelrank/internal/storage"
	"github.com/FranksOps/reelrank/internal/storage/csvbackend"
	"github.com/FranksOps/reelrank/internal/storage/jsonbackend"
)

// Paths are the final artifact locations for a prefix.
type Paths struct {
	AccountsJSONL string
	AccountsCSV   string
	ReelsCSV      string
}

// All returns the paths in a fixed order.
func (p Paths) All() []string {
	return []string{p.AccountsJSONL, p.AccountsCSV, p.ReelsCSV}
}

// PathsFor derives artifact paths from an output prefix. A file extension
// on the prefix is dropped, so "out/run.csv" and "out/run" are equivalent.
func PathsFor(prefix string) Paths {
	base := strings.TrimSuffix(prefix, filepath.Ext(prefix))
	return Paths{
		AccountsJSONL: base + "_accounts.jsonl",
		AccountsCSV:   base + "_accounts.csv",
		ReelsCSV:      base + "_reels.csv",
	}
}

type artifact struct {
	final   string
	tmp     string
	open    func(string) (storage.Backend, error)
	backend storage.Backend
}

// Exporter writes result entries under a path prefix.
type Exporter struct {
	logger *slog.Logger
}

// New creates an Exporter.
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// Export writes all three artifacts for entries, in the given order. Each is
// written to a temporary file in the target directory and renamed into place
// only after all three were written successfully; on failure the temporaries
// are removed and no artifact is replaced.
func (e *Exporter) Export(entries []model.ResultEntry, prefix string) (Paths, error) {
	paths := PathsFor(prefix)
	dir := filepath.Dir(paths.AccountsJSONL)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return paths, fmt.Errorf("create output dir: %w", err)
	}

	arts := []*artifact{
		{final: paths.AccountsJSONL, open: jsonbackend.New},
		{final: paths.AccountsCSV, open: csvbackend.NewAccounts},
		{final: paths.ReelsCSV, open: csvbackend.NewReels},
	}

	defer func() {
		for _, a := range arts {
			if a.tmp != "" {
				_ = os.Remove(a.tmp)
			}
		}
	}()

	for _, a := range arts {
		if err := a.create(dir); err != nil {
			closeAll(arts)
			return paths, err
		}
	}

	reels := 0
	for i := range entries {
		for _, a := range arts {
			if err := a.backend.Save(&entries[i]); err != nil {
				closeAll(arts)
				return paths, fmt.Errorf("export %s: %w", filepath.Base(a.final), err)
			}
		}
		reels += len(entries[i].TopReels)
	}

	if err := closeAll(arts); err != nil {
		return paths, fmt.Errorf("export: %w", err)
	}

	// Catch what would make a rename fail before publishing anything.
	for _, a := range arts {
		if fi, err := os.Stat(a.final); err == nil && fi.IsDir() {
			return paths, fmt.Errorf("export: %s is a directory", a.final)
		}
	}

	for _, a := range arts {
		if err := os.Rename(a.tmp, a.final); err != nil {
			return paths, fmt.Errorf("export: publish %s: %w", a.final, err)
		}
		a.tmp = ""
	}

	metrics.ReelsExportedTotal.Add(float64(reels))
	e.logger.Info("export written",
		"accounts", len(entries),
		"reels", reels,
		"jsonl", paths.AccountsJSONL,
		"accounts_csv", paths.AccountsCSV,
		"reels_csv", paths.ReelsCSV,
	)
	return paths, nil
}

func (a *artifact) create(dir string) error {
	f, err := os.CreateTemp(dir, "."+filepath.Base(a.final)+".*.tmp")
	if err != nil {
		return fmt.Errorf("export: create temp for %s: %w", a.final, err)
	}
	a.tmp = f.Name()
	f.Close()
	if err := os.Chmod(a.tmp, 0644); err != nil {
		return fmt.Errorf("export: chmod temp for %s: %w", a.final, err)
	}

	b, err := a.open(a.tmp)
	if err != nil {
		return fmt.Errorf("export %s: %w", filepath.Base(a.final), err)
	}
	a.backend = b
	return nil
}

func closeAll(arts []*artifact) error {
	var errs []error
	for _, a := range arts {
		if a.backend == nil {
			continue
		}
		if err := a.backend.Close(); err != nil {
			errs = append(errs, err)
		}
		a.backend = nil
	}
	return errors.Join(errs...)
}
