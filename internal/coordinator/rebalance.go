package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/replistore/internal/cluster"
)

// RebalanceReport is what the periodic rebalance hook observes.
type RebalanceReport struct {
	At              time.Time        // When the report was taken
	Members         []cluster.Member // Live storage nodes in join order
	UnderReplicated []string         // Stored files with fewer replicas than the factor
}

// RebalanceLoop calls a hook once per rebalance period with a report of the
// cluster. It is the attachment point for replica redistribution; the
// coordinator's default hook only logs what would need attention.
// Thread-safe: SetOnTick must be called before Start.
type RebalanceLoop struct {
	onTick   func(RebalanceReport)
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	wg       sync.WaitGroup
}

// NewRebalanceLoop creates a loop that ticks every interval.
//
// Parameters:
//   - interval: the rebalance period (must be > 0 to Start)
//   - logger: destination for loop lifecycle logs
//
// Example:
//
//	loop := NewRebalanceLoop(30*time.Second, logger)
//	loop.SetOnTick(func(r RebalanceReport) { ... })
//	loop.Start(ctx, coord.rebalanceReport)
//	defer loop.Stop()
func NewRebalanceLoop(interval time.Duration, logger zerolog.Logger) *RebalanceLoop {
	ctx, cancel := context.WithCancel(context.Background())
	return &RebalanceLoop{
		interval: interval,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetOnTick sets the hook invoked with each report.
func (l *RebalanceLoop) SetOnTick(fn func(RebalanceReport)) {
	l.onTick = fn
}

// Start launches the loop in its own goroutine. It runs until ctx is
// cancelled or Stop is called. Nothing is started when the interval is not
// positive.
func (l *RebalanceLoop) Start(ctx context.Context, provider func() RebalanceReport) {
	if l.interval <= 0 {
		return
	}
	l.wg.Add(1)
	go l.run(ctx, provider)
}

func (l *RebalanceLoop) run(ctx context.Context, provider func() RebalanceReport) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.log.Debug().Dur("period", l.interval).Msg("rebalance loop started")
	for {
		select {
		case <-ticker.C:
			if l.onTick != nil {
				l.onTick(provider())
			}
		case <-ctx.Done():
			l.log.Debug().Msg("rebalance loop stopping: context cancelled")
			return
		case <-l.ctx.Done():
			l.log.Debug().Msg("rebalance loop stopping")
			return
		}
	}
}

// Wait blocks until the loop has returned.
func (l *RebalanceLoop) Wait() {
	l.wg.Wait()
}

// Stop cancels the loop and waits for it to return.
func (l *RebalanceLoop) Stop() {
	l.cancel()
	l.wg.Wait()
}
