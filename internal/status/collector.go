package status

import (
	"context"
	"fmt"
	"time"
)

// ScannerState exposes the scanner's cursor and last observed head.
type ScannerState interface {
	Cursor() uint64
	ChainHeight() uint64
}

// HeightSource reports the current chain head.
type HeightSource interface {
	LatestHeight(ctx context.Context) (uint64, error)
}

// CacheSizer reports the number of cached token entries.
type CacheSizer interface {
	Len() int
}

// Snapshot is a point-in-time view of the watcher.
type Snapshot struct {
	Uptime            string    `json:"uptime"`
	LastScannedHeight uint64    `json:"last_scanned_height"`
	ChainHeight       uint64    `json:"chain_height"`
	ChainHeightError  string    `json:"chain_height_error,omitempty"`
	TokenCacheSize    int       `json:"token_cache_size"`
	StartedAt         time.Time `json:"started_at"`
}

// Collector assembles snapshots from live components.
type Collector struct {
	startedAt time.Time
	scanner   ScannerState
	chain     HeightSource
	cache     CacheSizer
	timeout   time.Duration
	now       func() time.Time
}

func NewCollector(startedAt time.Time, scanner ScannerState, chain HeightSource, cache CacheSizer) *Collector {
	return &Collector{
		startedAt: startedAt.UTC(),
		scanner:   scanner,
		chain:     chain,
		cache:     cache,
		timeout:   10 * time.Second,
		now:       time.Now,
	}
}

// Snapshot queries the chain head; on failure it falls back to the head the
// scanner saw last and records the error.
func (c *Collector) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		Uptime:            c.now().Sub(c.startedAt).Truncate(time.Second).String(),
		LastScannedHeight: c.scanner.Cursor(),
		StartedAt:         c.startedAt,
	}
	if c.cache != nil {
		snap.TokenCacheSize = c.cache.Len()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	head, err := c.chain.LatestHeight(ctx)
	if err != nil {
		snap.ChainHeight = c.scanner.ChainHeight()
		snap.ChainHeightError = err.Error()
	} else {
		snap.ChainHeight = head
	}
	return snap
}

// FormatReport renders a snapshot as a Markdown status message.
func FormatReport(snap Snapshot) string {
	text := fmt.Sprintf("📊 *Watcher status*\n"+
		"Uptime: `%s`\n"+
		"Last scanned block: `%d`\n"+
		"Chain height: `%d`\n"+
		"Token cache: `%d`",
		snap.Uptime, snap.LastScannedHeight, snap.ChainHeight, snap.TokenCacheSize)
	if snap.ChainHeight > snap.LastScannedHeight {
		text += fmt.Sprintf("\nLag: `%d` blocks", snap.ChainHeight-snap.LastScannedHeight)
	}
	return text
}
