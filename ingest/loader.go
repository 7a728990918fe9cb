// Package ingest reads per-chunk record files into raw entries.
package ingest

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/siherrmann/rolecard/helper"
	"github.com/siherrmann/rolecard/model"
)

// LoadStats counts what a load saw and what it dropped.
type LoadStats struct {
	Files          int
	SkippedFiles   int
	Entries        int
	DroppedRecords int
}

// Loader reads JSON record files produced by the extraction stage.
// Malformed files are skipped with a warning, never fatal.
type Loader struct {
	validation model.ValidationConfig
	log        *slog.Logger
}

func NewLoader(validation model.ValidationConfig, logger *slog.Logger) *Loader {
	return &Loader{validation: validation, log: logger}
}

// LoadDir loads every *.json file in dir, sorted by name so repeated runs
// see records in the same order. An empty directory is a valid empty batch.
func (l *Loader) LoadDir(dir string) ([]*model.RawEntry, LoadStats, error) {
	stats := LoadStats{}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, stats, helper.NewError("globbing record files", err)
	}
	sort.Strings(paths)

	var all []*model.RawEntry
	for _, path := range paths {
		entries, fileStats, err := l.LoadFile(path)
		if err != nil {
			stats.SkippedFiles++
			l.log.Warn("Skipping record file",
				slog.String("file", filepath.Base(path)),
				slog.String("error", err.Error()))
			continue
		}
		stats.Files++
		stats.Entries += fileStats.Entries
		stats.DroppedRecords += fileStats.DroppedRecords
		all = append(all, entries...)
	}

	l.log.Info("Loaded records",
		slog.Int("files", stats.Files),
		slog.Int("skippedFiles", stats.SkippedFiles),
		slog.Int("entries", stats.Entries),
		slog.Int("droppedRecords", stats.DroppedRecords))

	return all, stats, nil
}

// LoadFile loads one JSON array file. Records without a usable name are
// dropped and counted.
func (l *Loader) LoadFile(path string) ([]*model.RawEntry, LoadStats, error) {
	stats := LoadStats{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stats, helper.NewError("reading record file", err)
	}

	var entries []*model.RawEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, stats, helper.NewError("parsing record file", err)
	}
	stats.Files = 1

	source := filepath.Base(path)
	valid := make([]*model.RawEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil || !l.validation.ValidName(entry.Name) {
			stats.DroppedRecords++
			continue
		}
		entry.Name = strings.TrimSpace(entry.Name)
		if entry.SourceFile == "" {
			entry.SourceFile = source
		}
		valid = append(valid, entry)
	}
	stats.Entries = len(valid)

	return valid, stats, nil
}
