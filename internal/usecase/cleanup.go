package usecase

import (
	"context"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// Cleanup is the retention pass that follows every backup run.
type Cleanup struct {
	storage     domain.Storage
	logger      Logger
	perDatabase bool
}

func NewCleanup(storage domain.Storage, logger Logger, perDatabase bool) *Cleanup {
	return &Cleanup{
		storage:     storage,
		logger:      logger,
		perDatabase: perDatabase,
	}
}

// Execute prunes artifacts older than cutoff and moves Uploaded outcomes
// whose scope was pruned without error to Pruned. It returns the number of
// deleted artifacts.
func (uc *Cleanup) Execute(ctx context.Context, cutoff time.Time, outcomes []*Outcome) int {
	uc.logger.Infof("Starting cleanup on %s, cutoff: %s", uc.storage.Name(), cutoff.UTC().Format(time.RFC3339))

	if !uc.perDatabase {
		deleted, err := uc.prune(ctx, cutoff, domain.RetentionScope{})
		if err == nil {
			for _, o := range outcomes {
				markPruned(o)
			}
		}
		return deleted
	}

	total := 0
	for _, o := range outcomes {
		if o.Engine == "" {
			uc.logger.Warnf("[%s] Skipping retention: engine unknown", o.Database)
			continue
		}
		deleted, err := uc.prune(ctx, cutoff, domain.RetentionScope{Database: o.Database, Engine: o.Engine})
		total += deleted
		if err == nil {
			markPruned(o)
		}
	}
	return total
}

func (uc *Cleanup) prune(ctx context.Context, cutoff time.Time, scope domain.RetentionScope) (int, error) {
	deleted, err := uc.storage.ApplyRetention(ctx, cutoff, scope)
	if err != nil {
		uc.logger.Errorf("Cleanup of %s on %s failed after %d deletion(s): %v", scope, uc.storage.Name(), deleted, err)
		return deleted, err
	}
	uc.logger.Infof("Deleted %d old backup(s) from %s (%s)", deleted, uc.storage.Name(), scope)
	return deleted, nil
}

func markPruned(o *Outcome) {
	if o.Stage == StageUploaded {
		o.Stage = StagePruned
	}
}
