// Command resetaccuracy zeroes the hit counters of every stored pair.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"DexSignal/internal/di"
	"DexSignal/pkg/config"
	applogger "DexSignal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	confirm := flag.Bool("yes", false, "reset without asking; otherwise only the pair count is printed")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	l, _, err := di.ProvideLogger(cfg, nil)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	store, cleanup, err := di.ProvideStorage(cfg, l)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer cleanup()

	history := di.ProvideHistoryStore(cfg, store, l)
	tracker := di.ProvideAccuracy(cfg, history, l)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pairs, err := history.GetAllPairAddresses(ctx)
	if err != nil {
		log.Fatalf("list pairs: %v", err)
	}
	if !*confirm {
		log.Printf("%d pairs would be reset; rerun with -yes to apply", len(pairs))
		return
	}

	if err := tracker.ResetAll(ctx); err != nil {
		log.Fatalf("reset accuracy: %v", err)
	}
	l.Info("accuracy counters reset", applogger.Int("pairs", len(pairs)))
}
