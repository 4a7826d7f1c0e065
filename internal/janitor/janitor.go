package janitor

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes expired entries from one store and reports how many went.
type Sweeper interface {
	Sweep() int
}

type target struct {
	name    string
	sweeper Sweeper
}

// Janitor periodically sweeps every registered store. It is owned by the
// composition root and stops when its context is cancelled, so shutdown is
// explicit rather than a leaked timer.
type Janitor struct {
	interval time.Duration
	targets  []target
}

func New(interval time.Duration) *Janitor {
	return &Janitor{interval: interval}
}

func (j *Janitor) Register(name string, s Sweeper) {
	j.targets = append(j.targets, target{name: name, sweeper: s})
}

// Run blocks until ctx is cancelled. Call it from its own goroutine.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	for _, t := range j.targets {
		if removed := t.sweeper.Sweep(); removed > 0 {
			slog.Debug("Janitor sweep", "store", t.name, "removed", removed)
		}
	}
}
