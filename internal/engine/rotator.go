package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Rotator regenerates the served map on a fixed interval.
type Rotator struct {
	Interval time.Duration // time between maps
	Request  Request       // parameters for every rotation

	// OnRotate runs after each successful rotation with the rotation count.
	OnRotate func(n uint64, snap *Snapshot)

	svc      *Service
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	count    uint64
}

// NewRotator creates a rotator for svc.
func NewRotator(svc *Service, interval time.Duration) *Rotator {
	return &Rotator{
		Interval: interval,
		svc:      svc,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run rotates maps until ctx ends or Stop is called.
func (r *Rotator) Run(ctx context.Context) {
	defer close(r.done)
	if r.Interval <= 0 {
		slog.Info("map rotation disabled")
		return
	}

	slog.Info("map rotation started", "interval", r.Interval)
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("map rotation stopped", "rotations", r.count)
			return
		case <-r.stop:
			slog.Info("map rotation stopped", "rotations", r.count)
			return
		case <-ticker.C:
			r.step(ctx)
		}
	}
}

// Stop halts Run.
func (r *Rotator) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Done is closed when Run returns.
func (r *Rotator) Done() <-chan struct{} {
	return r.done
}

func (r *Rotator) step(ctx context.Context) {
	snap, err := r.svc.Generate(ctx, r.Request)
	if err != nil {
		slog.Error("map rotation failed", "error", err)
		return
	}
	r.count++
	if r.OnRotate != nil {
		r.OnRotate(r.count, snap)
	}
}
