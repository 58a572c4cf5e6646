package conflict

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/pipeline"
	"github.com/ShayCichocki/reqflow/internal/reply"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Verifier asks a short second opinion on every unverified conflict of a
// family. A "No" moves the conflict to the invalid partition; any other
// reply keeps it.
type Verifier struct {
	Family models.Family
}

// Name implements pipeline.Phase.
func (v *Verifier) Name() string {
	return "verify-" + strings.ToLower(v.Family.Prefix)
}

// Run implements pipeline.Phase.
func (v *Verifier) Run(ctx context.Context, pc *pipeline.Context) (pipeline.Stats, error) {
	stats := pipeline.Stats{Phase: v.Name()}
	files, err := Files(pc, v.Family, false)
	if err != nil {
		return stats, err
	}
	log := pc.Logger().With(zap.String("phase", v.Name()))
	rejected := 0

	for _, file := range files {
		if err := v.dropInvalidated(pc, file, log); err != nil {
			return stats, err
		}
		for i := 0; i < len(file.Conflicts); i++ {
			c := file.Conflicts[i]
			if c.Verified {
				stats.Skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stats.Attempted++
			text, err := pc.Ask(ctx, pc.Prompts.Verify(c))
			if err != nil {
				if err := pc.ItemError(&stats, err, zap.String("conflict", c.ID)); err != nil {
					return stats, err
				}
				continue
			}

			if reply.YesNo(text) == reply.AnswerNo {
				if err := v.invalidate(pc, file.GroupKey, c); err != nil {
					return stats, err
				}
				file.Conflicts = append(file.Conflicts[:i], file.Conflicts[i+1:]...)
				i--
				rejected++
				log.Info("conflict rejected", zap.String("conflict", c.ID))
			} else {
				file.Conflicts[i].Verified = true
			}
			stats.Produced++
			if err := SaveFile(pc, v.Family, file, false); err != nil {
				return stats, err
			}
		}
	}
	if rejected > 0 {
		stats.Message = fmt.Sprintf("%d rejected", rejected)
	}
	return stats, nil
}

// dropInvalidated removes conflicts that already reached the invalid file.
// A rejection writes the invalid file first, so an interrupted run can leave
// the conflict in both partitions.
func (v *Verifier) dropInvalidated(pc *pipeline.Context, file *models.ConflictFile, log *zap.Logger) error {
	invalid, ok, err := LoadFile(pc, v.Family, file.GroupKey, true)
	if err != nil || !ok {
		return err
	}
	gone := make(map[string]bool, len(invalid.Conflicts))
	for _, c := range invalid.Conflicts {
		gone[c.ID] = true
	}
	kept := file.Conflicts[:0]
	for _, c := range file.Conflicts {
		if !gone[c.ID] {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(file.Conflicts) {
		return nil
	}
	log.Info("dropping conflicts already rejected", zap.String("group", file.GroupKey), zap.Int("count", len(file.Conflicts)-len(kept)))
	file.Conflicts = kept
	return SaveFile(pc, v.Family, file, false)
}

// invalidate appends c to the group's invalid file unless it is already there.
func (v *Verifier) invalidate(pc *pipeline.Context, groupKey string, c models.Conflict) error {
	file, _, err := LoadFile(pc, v.Family, groupKey, true)
	if err != nil {
		return err
	}
	for _, existing := range file.Conflicts {
		if existing.ID == c.ID {
			return nil
		}
	}
	file.Conflicts = append(file.Conflicts, c)
	return SaveFile(pc, v.Family, file, true)
}
