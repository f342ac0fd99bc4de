package jobs

import (
	"context"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/metrics"
	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const purgeTimeout = 2 * time.Minute

// APILogRetention deletes gateway audit rows older than the retention period.
type APILogRetention struct {
	db        *gorm.DB
	retention time.Duration
	interval  time.Duration
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// NewAPILogRetention creates the retention job. A zero retention disables purging.
func NewAPILogRetention(db *gorm.DB, retention, interval time.Duration, m *metrics.Metrics, log *zap.Logger) *APILogRetention {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &APILogRetention{
		db:        db,
		retention: retention,
		interval:  interval,
		metrics:   m,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Purge deletes rows created before now minus the retention period and returns how many went.
func (j *APILogRetention) Purge(ctx context.Context) (int64, error) {
	if j.retention <= 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-j.retention)
	result := j.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.APILog{})
	if result.Error != nil {
		return 0, result.Error
	}
	j.metrics.RecordAPILogsPurged(result.RowsAffected)
	return result.RowsAffected, nil
}

// Run purges once immediately and then every interval until ctx is done.
func (j *APILogRetention) Run(ctx context.Context) error {
	if j.retention <= 0 {
		j.log.Info("api-log-retention: disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		j.runOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (j *APILogRetention) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()

	deleted, err := j.Purge(runCtx)
	if err != nil {
		if ctx.Err() == nil {
			j.log.Error("api-log-retention: delete failed", zap.Error(err))
		}
		return
	}
	if deleted > 0 {
		j.log.Info("api-log-retention: completed", zap.Int64("deleted", deleted))
	}
}
