package calendarsync

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Default pull window for the periodic sweep.
const (
	sweepLookback  = 24 * time.Hour
	sweepHorizon   = 60 * 24 * time.Hour
	defaultWorkers = 4
)

// SweepSummary aggregates one sweep run across organizations.
type SweepSummary struct {
	Organizations int
	Failed        int
	Created       int
	Updated       int
}

// SweepOrganizations pulls [now-lookback, now+horizon) for every
// sync-enabled organization using a fixed worker pool. Zero durations fall
// back to the standard window. One organization's failure is recorded on its
// own settings row and never stops the rest of the sweep.
func (s *Service) SweepOrganizations(ctx context.Context, lookback, horizon time.Duration, workers int) (SweepSummary, error) {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if lookback <= 0 {
		lookback = sweepLookback
	}
	if horizon <= 0 {
		horizon = sweepHorizon
	}

	targets, err := s.repo.ListSyncEnabledOrgs()
	if err != nil {
		return SweepSummary{}, err
	}

	now := s.now()
	from := now.Add(-lookback)
	to := now.Add(horizon)

	jobs := make(chan SyncTarget)
	results := make(chan SyncResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				results <- s.PullRange(ctx, target.OrganizationID, from, to)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, target := range targets {
			select {
			case jobs <- target:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	summary := SweepSummary{}
	for res := range results {
		summary.Organizations++
		summary.Created += res.Created
		summary.Updated += res.Updated
		if res.Failed() {
			summary.Failed++
			log.Warnf("[CalendarSync] sweep pull failed for org %d: %v", res.OrganizationID, res.Err)
		}
	}

	log.Infof("[CalendarSync] sweep done: %d orgs, %d created, %d updated, %d failed",
		summary.Organizations, summary.Created, summary.Updated, summary.Failed)
	return summary, ctx.Err()
}
