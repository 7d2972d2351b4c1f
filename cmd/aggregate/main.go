// The aggregate job rolls raw view rows up into daily summaries. Run it
// nightly (cron) for yesterday, or with --date for a backfill.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/bulletdrop/analytics/internal/analytics/aggregate"
	"github.com/bulletdrop/analytics/internal/analytics/store/postgres"
	"github.com/bulletdrop/analytics/internal/platform/config"
	"github.com/bulletdrop/analytics/internal/platform/logger"
)

func main() {
	dateFlag := flag.String("date", "", "UTC day to aggregate (YYYY-MM-DD), default yesterday")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	day := time.Now().UTC().AddDate(0, 0, -1)
	if *dateFlag != "" {
		parsed, err := time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			log.Error("invalid --date, expected YYYY-MM-DD", "error", err)
			os.Exit(2)
		}
		day = parsed
	}

	if cfg.PostgresDSN == "" {
		log.Error("BULLETDROP_DATABASE_URL is required")
		os.Exit(2)
	}
	store, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	agg := aggregate.New(store, log)
	if err := agg.AggregateDay(ctx, day); err != nil {
		log.Error("aggregation failed", "error", err)
		os.Exit(1)
	}
}
