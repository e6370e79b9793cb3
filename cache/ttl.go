package cache

import (
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
)

// effectiveTTL implements spec §4.6: an explicit request wins over
// default_ttl, and the result is clamped to max_ttl when one is set. A nil
// result means the entry never expires.
func effectiveTTL(requested *time.Duration, cfg Config) *time.Duration {
	var chosen *time.Duration
	switch {
	case requested != nil:
		chosen = requested
	case cfg.DefaultTTL > 0:
		d := cfg.DefaultTTL
		chosen = &d
	default:
		chosen = nil
	}
	if chosen != nil && cfg.MaxTTL > 0 && *chosen > cfg.MaxTTL {
		d := cfg.MaxTTL
		chosen = &d
	}
	return chosen
}

// sweeperState models the {Stopped -> Running -> Stopping -> Stopped}
// lifecycle from spec §4.11.
type sweeperState int32

const (
	sweepStopped sweeperState = iota
	sweepRunning
	sweepStopping
)

type sweeper struct {
	mu     sync.Mutex
	state  sweeperState
	stopCh chan struct{}
	doneCh chan struct{}
}

// start launches the background sweep goroutine. Starting while already
// Running is a no-op.
func (sw *sweeper) start(interval time.Duration, tick func()) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.state != sweepStopped || interval <= 0 {
		return
	}
	sw.state = sweepRunning
	sw.stopCh = make(chan struct{})
	sw.doneCh = make(chan struct{})
	stopCh := sw.stopCh
	doneCh := sw.doneCh

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			// The stop signal is observed only at this sleep boundary, never
			// mid-pass, per spec §5.
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				runSweepTick(tick)
			}
		}
	}()
}

// runSweepTick isolates one pass so a panicking sweep never kills the
// goroutine; the error is logged and the thread continues on next tick.
func runSweepTick(tick func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("mudis: sweep tick panicked")
		}
	}()
	tick()
}

// stop sets the Stopping flag and joins the goroutine. A no-op when the
// sweeper isn't running.
func (sw *sweeper) stop() {
	sw.mu.Lock()
	if sw.state != sweepRunning {
		sw.mu.Unlock()
		return
	}
	sw.state = sweepStopping
	close(sw.stopCh)
	doneCh := sw.doneCh
	sw.mu.Unlock()

	<-doneCh

	sw.mu.Lock()
	sw.state = sweepStopped
	sw.mu.Unlock()
}

func logShardSweep(index int, freed int64, evicted int) {
	if evicted == 0 {
		return
	}
	log.WithFields(log.Fields{
		"shard":   index,
		"evicted": evicted,
		"freed":   humanize.Bytes(uint64(freed)),
	}).Debug("mudis: ttl sweep evicted expired entries")
}
