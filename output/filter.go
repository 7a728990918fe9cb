package output

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/siherrmann/rolecard/helper"
)

// EntityFile describes one exported entity file for ranking.
type EntityFile struct {
	Path    string
	Size    int64
	Records int
}

// FilterStats summarises a filter run.
type FilterStats struct {
	Total   int
	Kept    int
	Removed int
}

// Filter keeps the N largest entity files in a directory and moves the rest
// into a backup subdirectory. Larger files carry more merged detail, so
// size stands in for importance.
type Filter struct {
	dir       string
	backupDir string
	keepCount int
	log       *slog.Logger
}

func NewFilter(dir string, backupName string, keepCount int, logger *slog.Logger) *Filter {
	if backupName == "" {
		backupName = "filtered_out"
	}
	return &Filter{
		dir:       dir,
		backupDir: filepath.Join(dir, backupName),
		keepCount: keepCount,
		log:       logger,
	}
}

// Rank lists entity files sorted by size descending. Unreadable files are
// skipped with a warning.
func (f *Filter) Rank() ([]EntityFile, error) {
	paths, err := filepath.Glob(filepath.Join(f.dir, "*.json"))
	if err != nil {
		return nil, helper.NewError("listing entity files", err)
	}

	var files []EntityFile
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			f.log.Warn("Failed to stat entity file",
				slog.String("file", filepath.Base(path)),
				slog.String("error", err.Error()))
			continue
		}
		files = append(files, EntityFile{
			Path:    path,
			Size:    info.Size(),
			Records: countRecords(path),
		})
	}

	// Largest first; names break ties so repeated runs agree.
	sort.Slice(files, func(i, j int) bool {
		if files[i].Size != files[j].Size {
			return files[i].Size > files[j].Size
		}
		return files[i].Path < files[j].Path
	})

	return files, nil
}

// Apply moves everything past the keep count into the backup directory.
func (f *Filter) Apply() (FilterStats, error) {
	files, err := f.Rank()
	if err != nil {
		return FilterStats{}, err
	}

	stats := FilterStats{Total: len(files)}
	if len(files) <= f.keepCount {
		stats.Kept = len(files)
		return stats, nil
	}
	stats.Kept = f.keepCount

	if err := os.MkdirAll(f.backupDir, 0755); err != nil {
		return stats, helper.NewError("creating backup directory", err)
	}

	for _, file := range files[f.keepCount:] {
		target := filepath.Join(f.backupDir, filepath.Base(file.Path))
		if err := os.Rename(file.Path, target); err != nil {
			f.log.Warn("Failed to move entity file",
				slog.String("file", filepath.Base(file.Path)),
				slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
	}

	f.log.Info("Filtered entity files",
		slog.Int("total", stats.Total),
		slog.Int("kept", stats.Kept),
		slog.Int("removed", stats.Removed))

	return stats, nil
}

// Preview reports what Apply would keep and remove without moving anything.
func (f *Filter) Preview() (FilterStats, error) {
	files, err := f.Rank()
	if err != nil {
		return FilterStats{}, err
	}
	stats := FilterStats{Total: len(files), Kept: len(files)}
	if len(files) > f.keepCount {
		stats.Kept = f.keepCount
		stats.Removed = len(files) - f.keepCount
	}
	return stats, nil
}

func countRecords(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var asList []json.RawMessage
	if err := json.Unmarshal(data, &asList); err == nil {
		return len(asList)
	}
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(data, &asObject); err == nil {
		return 1
	}
	return 0
}
