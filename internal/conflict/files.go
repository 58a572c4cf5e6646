package conflict

import (
	"path"
	"strings"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/store"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// LoadFile reads a group's conflict file. ok is false when it does not exist.
func LoadFile(pc *pipeline.Context, f models.Family, groupKey string, invalid bool) (*models.ConflictFile, bool, error) {
	file := &models.ConflictFile{GroupKey: groupKey}
	ok, err := pc.ReadItem(store.ConflictKey(f, groupKey, invalid), file)
	if err != nil {
		return nil, false, err
	}
	return file, ok, nil
}

// SaveFile writes a group's conflict file.
func SaveFile(pc *pipeline.Context, f models.Family, file *models.ConflictFile, invalid bool) error {
	if file.Conflicts == nil {
		file.Conflicts = []models.Conflict{}
	}
	return pc.Store.WriteJSON(store.ConflictKey(f, file.GroupKey, invalid), file)
}

// GroupKeys lists the group keys that have a conflict file.
func GroupKeys(pc *pipeline.Context, f models.Family, invalid bool) ([]string, error) {
	dir := store.ConflictDir(f, invalid)
	keys, err := pc.Store.List(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if path.Dir(k) != dir || path.Ext(k) != ".json" {
			continue
		}
		out = append(out, strings.TrimSuffix(path.Base(k), ".json"))
	}
	return out, nil
}

// Files loads every conflict file of a family partition in group-key order.
func Files(pc *pipeline.Context, f models.Family, invalid bool) ([]*models.ConflictFile, error) {
	keys, err := GroupKeys(pc, f, invalid)
	if err != nil {
		return nil, err
	}
	var out []*models.ConflictFile
	for _, k := range keys {
		file, ok, err := LoadFile(pc, f, k, invalid)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, file)
		}
	}
	return out, nil
}

// NextID returns the next free conflict number of a family, counting both
// valid and invalid records.
func NextID(pc *pipeline.Context, f models.Family) (int, error) {
	next := 1
	for _, invalid := range []bool{false, true} {
		files, err := Files(pc, f, invalid)
		if err != nil {
			return 0, err
		}
		for _, file := range files {
			for _, c := range file.Conflicts {
				if n, ok := models.ParseIDNumber(f.Prefix, c.ID); ok && n >= next {
					next = n + 1
				}
			}
		}
	}
	return next, nil
}
