package job

import (
	"context"
	"log"
	"time"

	"tradepilot/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type RegimeRefresher interface {
	Refresh(ctx context.Context) (domain.MarketRegime, error)
}

// RegimeJob keeps the market regime fresh on a fixed interval, independent
// of signal traffic.
type RegimeJob struct {
	tracer       trace.Tracer
	refresher    RegimeRefresher
	pollInterval time.Duration
}

func NewRegimeJob(tracer trace.Tracer, refresher RegimeRefresher, pollInterval time.Duration) *RegimeJob {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Minute
	}
	return &RegimeJob{tracer: tracer, refresher: refresher, pollInterval: pollInterval}
}

// Start blocks until ctx is cancelled.
func (j *RegimeJob) Start(ctx context.Context) {
	if j.refresher == nil {
		log.Println("Regime job disabled: no refresher")
		<-ctx.Done()
		return
	}

	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *RegimeJob) runOnce(ctx context.Context) {
	_, span := j.tracer.Start(ctx, "regime-job.run-once")
	defer span.End()

	snapshot, err := j.refresher.Refresh(ctx)
	if err != nil {
		log.Printf("Regime refresh error: %v", err)
		return
	}
	log.Printf("Regime refreshed score=%d direction=%s stale_after=%s",
		snapshot.Score, snapshot.AllowedDirection, snapshot.StaleAfter.Format(time.RFC3339))
}
