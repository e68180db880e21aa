// Command snapshot runs a single refresh cycle against the live sources
// and prints the resulting slice as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"token-aggregator/internal/aggregation"
	"token-aggregator/internal/config"
	"token-aggregator/internal/domain"
	"token-aggregator/internal/logger"
	"token-aggregator/internal/refresh"
	"token-aggregator/internal/snapshot"
	"token-aggregator/internal/sources"
)

func main() {
	// Parse flags
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file (empty for defaults)")
	sortBy := flag.String("sort", string(domain.DefaultSortBy), "Sort key: volume, priceChange, marketCap, liquidity")
	period := flag.String("period", string(domain.DefaultPeriod), "Price change period: 1h, 24h, 7d")
	limit := flag.Int("limit", domain.DefaultLimit, "Number of tokens to print")
	minVolume := flag.Float64("min-volume", -1, "Minimum volume (negative disables)")
	minLiquidity := flag.Float64("min-liquidity", -1, "Minimum liquidity (negative disables)")
	output := flag.String("output", "", "Output file (default stdout)")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	if err := config.LoadEnvFiles(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so stdout stays valid JSON
	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: "text", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store := snapshot.NewStore(snapshot.Options{Logger: log})
	refresher := refresh.New(refresh.Options{
		Sources:      sources.FromConfig(cfg.Sources),
		Engine:       aggregation.NewEngine(cfg.SourcePriorities(aggregation.DefaultPriorities)),
		Store:        store,
		FetchTimeout: cfg.Refresh.FetchTimeout,
		Logger:       log,
	})
	refresher.Refresh(ctx)

	snap := store.Current()
	if snap == nil {
		fmt.Fprintln(os.Stderr, "Error: no records returned by any source")
		os.Exit(1)
	}

	req := domain.FilterRequest{SortBy: *sortBy, Period: *period, Limit: limit}
	if *minVolume >= 0 {
		req.MinVolume = minVolume
	}
	if *minLiquidity >= 0 {
		req.MinLiquidity = minLiquidity
	}
	criterion := req.Normalize()
	tokens := aggregation.Slice(snap.Records, criterion)

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(domain.TokensRefresh{
		Tokens:    tokens,
		Count:     len(tokens),
		Timestamp: snap.CreatedAt,
		Group:     criterion.Key(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "%d of %d tokens written\n", len(tokens), snap.Len())
}
