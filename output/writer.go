// Package output writes merged entities to disk and prunes small results.
package output

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/siherrmann/rolecard/helper"
	"github.com/siherrmann/rolecard/model"
)

// Writer exports merged entities, one pretty-printed JSON file per entity.
type Writer struct {
	dir string
	log *slog.Logger
}

func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, log: logger}
}

// WriteAll clears stale entity files in the output directory and writes one
// file per entity, named after its canonical name. Per-entity write errors
// are logged and counted; a failed directory setup surfaces to the caller.
func (w *Writer) WriteAll(entities []*model.MergedEntity) (int, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return 0, helper.NewError("creating output directory", err)
	}

	stale, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		return 0, helper.NewError("listing stale entity files", err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return 0, helper.NewError("removing stale entity file", err)
		}
	}

	written := 0
	used := map[string]bool{}
	for _, entity := range entities {
		name := SafeFileName(entity.Name)
		if name == "" {
			name = "entity"
		}
		// Numeric suffix on filename collisions after sanitization.
		candidate := name
		for suffix := 1; used[candidate]; suffix++ {
			candidate = fmt.Sprintf("%s_%d", name, suffix)
		}
		used[candidate] = true

		if err := w.writeEntity(filepath.Join(w.dir, candidate+".json"), entity); err != nil {
			w.log.Warn("Failed to write entity",
				slog.String("name", entity.Name),
				slog.String("error", err.Error()))
			continue
		}
		written++
	}

	w.log.Info("Exported entities",
		slog.String("dir", w.dir),
		slog.Int("written", written),
		slog.Int("failed", len(entities)-written))

	return written, nil
}

func (w *Writer) writeEntity(path string, entity *model.MergedEntity) error {
	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return helper.NewError("marshalling entity", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return helper.NewError("writing entity file", err)
	}
	return nil
}

// SafeFileName strips characters that are invalid in filenames on common
// filesystems and trims surrounding whitespace.
func SafeFileName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', '*', '?', ':', '"', '<', '>', '|':
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(cleaned)
}
