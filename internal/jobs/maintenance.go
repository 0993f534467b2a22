package jobs

import (
	"context"
	"fmt"

	"github.com/eHtmlu/peak-publisher/internal/metrics"
)

// Job ids of the maintenance tasks.
const (
	SweepUploadsJob = "sweep-uploads"
	PruneStorageJob = "prune-storage"
)

// Sweeper removes abandoned upload workspaces.
type Sweeper interface {
	Sweep() (int, error)
}

// Pruner removes empty directories from the archive storage.
type Pruner interface {
	PruneStorage() (int, error)
}

// RegisterMaintenance adds the on-demand cleanup jobs. Nothing schedules
// them; they run when an operator asks.
func RegisterMaintenance(jm *JobManager, sweeper Sweeper, pruner Pruner, rec metrics.Recorder) {
	if rec == nil {
		rec = metrics.Nop{}
	}
	jm.Register(SweepUploadsJob, "Sweep abandoned uploads", func(ctx context.Context) (string, error) {
		n, err := sweeper.Sweep()
		if err != nil {
			return "", err
		}
		rec.ObserveSweep(n)
		return fmt.Sprintf("Removed %d upload workspaces.", n), nil
	})
	jm.Register(PruneStorageJob, "Prune empty storage folders", func(ctx context.Context) (string, error) {
		n, err := pruner.PruneStorage()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed %d empty folders.", n), nil
	})
}
