package status

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Broadcaster delivers a plain text message to every destination.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string)
}

// Reporter periodically broadcasts a status snapshot.
type Reporter struct {
	collector *Collector
	out       Broadcaster
	interval  time.Duration
	logger    *zap.Logger
}

func NewReporter(collector *Collector, out Broadcaster, interval time.Duration, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{collector: collector, out: out, interval: interval, logger: logger}
}

// Run reports every interval until ctx is done. A zero interval disables it.
func (r *Reporter) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Info("status reports disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.report(ctx)
		}
	}
}

func (r *Reporter) report(ctx context.Context) {
	snap := r.collector.Snapshot(ctx)
	if snap.ChainHeightError != "" {
		r.logger.Warn("status chain height", zap.String("error", snap.ChainHeightError))
	}
	r.logger.Info("status",
		zap.Uint64("cursor", snap.LastScannedHeight),
		zap.Uint64("chain_height", snap.ChainHeight),
		zap.Int("token_cache_size", snap.TokenCacheSize),
		zap.String("uptime", snap.Uptime),
	)
	r.out.Broadcast(ctx, FormatReport(snap))
}
