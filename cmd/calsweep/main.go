package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/velora-app/velora/internal/pkg/cache"
	"github.com/velora-app/velora/internal/pkg/calendarsync"
	"github.com/velora-app/velora/internal/pkg/database"
	"github.com/velora-app/velora/internal/pkg/env"
	"github.com/velora-app/velora/internal/pkg/syncstate"
	"github.com/velora-app/velora/internal/pkg/vault"
)

func main() {
	workers := flag.Int("workers", 4, "number of concurrent pull workers")
	lookback := flag.Duration("lookback", 24*time.Hour, "how far into the past to pull")
	horizon := flag.Duration("horizon", 60*24*time.Hour, "how far into the future to pull")
	interval := flag.Duration("interval", 0, "run continuously with this period (one-shot when zero)")
	flag.Parse()

	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	svc := calendarsync.NewService(
		calendarsync.NewRepository(db),
		syncstate.NewTrackerFromDB(db),
		vault.NewServiceFromDB(db),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := func() {
		summary, err := svc.SweepOrganizations(ctx, *lookback, *horizon, *workers)
		if err != nil && ctx.Err() == nil {
			log.Printf("sweep failed: %v", err)
			return
		}
		log.Printf("sweep: %d orgs, %d created, %d updated, %d failed",
			summary.Organizations, summary.Created, summary.Updated, summary.Failed)
	}

	run()
	if *interval <= 0 {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
