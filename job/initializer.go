package job

import (
	"context"
	"fmt"
	"log"

	"moltworks/fault"
)

// NormalizeStore is the data access the initializer needs.
type NormalizeStore interface {
	CreatorOf(ctx context.Context, jobID string) (string, error)
	BackfillDefaults(ctx context.Context, jobID string) (bool, error)
}

// Initializer reacts to newly created job records and backfills the default
// fields exactly once. It is safe under at-least-once delivery: a normalized
// record is left untouched.
type Initializer struct {
	store NormalizeStore
	logf  func(format string, args ...any)
}

func NewInitializer(store NormalizeStore) *Initializer {
	return &Initializer{
		store: store,
		logf:  log.Printf,
	}
}

// Normalize fills any of status / escrow status / created_at / claim_count
// that are still absent on the job. A record without a creator identity is
// malformed: it is logged and left untouched, with no error so the upstream
// trigger does not retry.
func (i *Initializer) Normalize(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fault.New(fault.InvalidArgument, "job: normalize missing job id")
	}

	creator, err := i.store.CreatorOf(ctx, jobID)
	if err != nil {
		if fault.IsKind(err, fault.NotFound) {
			i.logf("job: normalize: job %s vanished before normalization", jobID)
			return nil
		}
		return fmt.Errorf("job: normalize %s: %w", jobID, err)
	}
	if creator == "" {
		i.logf("job: normalize: job %s missing creator, skipping", jobID)
		return nil
	}

	if _, err := i.store.BackfillDefaults(ctx, jobID); err != nil {
		return fmt.Errorf("job: backfill %s: %w", jobID, err)
	}
	return nil
}
