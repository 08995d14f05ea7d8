package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultPruneSchedule runs daily at 03:30:00.
	DefaultPruneSchedule = "0 30 3 * * *"

	// DefaultRetention keeps thirty days of history.
	DefaultRetention = 30 * 24 * time.Hour

	pruneTimeout = time.Minute
)

// PrunerConfig configures a Pruner.
type PrunerConfig struct {
	Repository Repository

	// Schedule is a six-field cron expression (with seconds).
	// Default: DefaultPruneSchedule.
	Schedule string

	// Retention is how long events are kept. Default: DefaultRetention.
	Retention time.Duration

	Logger Logger

	// now overrides the clock in tests.
	now func() time.Time
}

// Pruner deletes expired history on a cron schedule.
type Pruner struct {
	repo      Repository
	schedule  string
	retention time.Duration
	logger    Logger
	now       func() time.Time

	cron     *cron.Cron
	stopOnce sync.Once
}

// NewPruner validates the schedule and creates a pruner.
//
// Returns:
//   - *Pruner: Ready to Start
//   - error: If the schedule does not parse
func NewPruner(cfg PrunerConfig) (*Pruner, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultPruneSchedule
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	p := &Pruner{
		repo:      cfg.Repository,
		schedule:  cfg.Schedule,
		retention: cfg.Retention,
		logger:    cfg.Logger,
		now:       cfg.now,
		cron:      cron.New(cron.WithSeconds()),
	}
	if _, err := p.cron.AddFunc(cfg.Schedule, p.runScheduled); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", cfg.Schedule, err)
	}
	return p, nil
}

// Start begins running the schedule. It stops when ctx is cancelled or
// Stop is called.
func (p *Pruner) Start(ctx context.Context) {
	p.cron.Start()
	go func() {
		<-ctx.Done()
		p.Stop()
	}()
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.stopOnce.Do(func() {
		<-p.cron.Stop().Done()
	})
}

// PruneNow deletes events older than the retention window.
func (p *Pruner) PruneNow(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.repo.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	p.logger.Info("pruned event history", "deleted", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	return n, nil
}

func (p *Pruner) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	if _, err := p.PruneNow(ctx); err != nil {
		p.logger.Error("event history prune failed", "error", err)
	}
}
