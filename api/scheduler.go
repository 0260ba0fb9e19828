/*
scheduler.go - Background refresh of derived score and streak caches

PURPOSE:
  Weekly scores and streak counters are recomputed on read, but a user who
  stops checking in would otherwise keep stale caches forever: a losing
  streak grows with each idle day even though nothing is written. This
  scheduler periodically re-derives the current week's score and the
  streak counters for every owner with an active cycle.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Walks owners with an active cycle (sqlite.Store.ActiveOwners)
  - Recomputes the current week and refreshes streak counters per owner
  - A failing owner is logged and skipped; the sweep continues

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewRefreshScheduler(store, handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - momentum/aggregate.go: RecomputeWeek and RefreshStreaks
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/aeterna/momentum-engine/momentum"
	"github.com/aeterna/momentum-engine/store/sqlite"
)

// RefreshScheduler keeps derived caches current for idle owners.
type RefreshScheduler struct {
	Store         *sqlite.Store
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRefreshScheduler creates a new scheduler.
func NewRefreshScheduler(store *sqlite.Store, handler *Handler) *RefreshScheduler {
	return &RefreshScheduler{
		Store:         store,
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *RefreshScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.sweep()

	for {
		select {
		case <-rs.ticker.C:
			rs.sweep()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RefreshScheduler) sweep() {
	ctx := context.Background()
	today := momentum.Today()

	owners, err := rs.Store.ActiveOwners(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing active owners: %v", err)
		return
	}

	refreshed := 0
	for _, owner := range owners {
		if err := rs.refreshOwner(ctx, owner, today); err != nil {
			log.Printf("[Scheduler] Error refreshing %s: %v", owner, err)
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		log.Printf("[Scheduler] Refreshed caches for %d owner(s)", refreshed)
	}
}

func (rs *RefreshScheduler) refreshOwner(ctx context.Context, owner momentum.OwnerID, today momentum.Day) error {
	cycle, err := rs.Store.ActiveCycle(ctx, owner)
	if err != nil {
		return err
	}
	if cycle == nil {
		// Closed between listing and refresh; nothing to do.
		return nil
	}

	week := momentum.CurrentWeek(cycle, today)
	if _, err := rs.Handler.Agg.RecomputeWeek(ctx, owner, cycle, week); err != nil {
		return err
	}

	_, _, err = rs.Handler.Agg.RefreshStreaks(ctx, owner, cycle, today)
	return err
}

// RunNow triggers an immediate sweep (for testing/admin).
func (rs *RefreshScheduler) RunNow() {
	rs.sweep()
}
