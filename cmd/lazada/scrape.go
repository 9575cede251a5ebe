package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/models"
	"github.com/aluiziolira/go-scrape-lazada/pipeline"
	"github.com/aluiziolira/go-scrape-lazada/scraper"
)

type scrapeFlags struct {
	yes        bool
	dryRun     bool
	skipVerify bool
}

func newScrapeCommand(global *globalFlags) *cobra.Command {
	flags := &scrapeFlags{}
	cmd := &cobra.Command{
		Use:   "scrape [country...]",
		Short: "Scrape every category for the given countries (all when omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), global, flags, args)
		},
	}
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Answer yes to every confirmation prompt")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Check credentials and plan the run without fetching categories")
	cmd.Flags().BoolVar(&flags.skipVerify, "skip-verify", false, "Skip the coverage check after scraping")
	return cmd
}

func runScrape(parent context.Context, global *globalFlags, flags *scrapeFlags, args []string) error {
	cfg, err := loadRuntime(global)
	if err != nil {
		printBanner(err)
		return &exitError{code: exitFailure, err: err}
	}

	countries, err := selectCountries(cfg, args)
	if err != nil {
		return err
	}
	categories, err := config.LoadCategories(cfg.CategoriesFile)
	if err != nil {
		printBanner(err)
		return &exitError{code: exitFailure, err: err}
	}
	creds, err := scraper.LoadCredentials(countries)
	if err != nil {
		printBanner(err)
		return &exitError{code: exitFailure, err: err}
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping at the next safe point")
	}()

	warehouse, err := openWarehouse(ctx, cfg, countries)
	if err != nil {
		printBanner(err)
		return &exitError{code: exitFailure, err: err}
	}
	defer warehouse.Close()

	files, err := pipeline.NewBackupWriter(cfg.Output.Format)
	if err != nil {
		return err
	}

	metrics := scraper.NewMetrics()
	s := scraper.NewScraper(scraper.NewCollyTransport(cfg, metrics), metrics)

	var (
		sink    *pipeline.Pipeline
		counter scraper.RowCounter
	)
	if warehouse != nil {
		sink = pipeline.NewPipeline(files, warehouse)
		counter = warehouse
	} else {
		sink = pipeline.NewPipeline(files, nil)
	}
	defer sink.Close()

	var decider scraper.Decider = newTerminalDecider(os.Stdin, os.Stdout)
	if flags.yes {
		decider = scraper.AlwaysYes
	}
	orch, err := scraper.NewOrchestrator(cfg, s, sink, counter, decider)
	if err != nil {
		return err
	}
	orch.DryRun = flags.dryRun

	slog.Info("starting scrape",
		slog.Any("countries", countryKeys(countries)),
		slog.Int("categories", len(categories)),
		slog.Int("target", cfg.TargetPerCategory),
		slog.Int("max_pages", cfg.MaxPages),
	)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	var (
		results []*models.CountryRunResult
		runErr  error
	)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer shutdownServer(metricsServer)
		results, runErr = orch.Run(gctx, countries, creds, categories)
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Error("scrape aborted", slog.Any("error", err))
		return &exitError{code: exitFailure, err: err}
	}

	printSummary(results, time.Since(startTime), sink.GetMetrics())

	if runErr != nil {
		printBanner(runErr)
	}

	if !flags.skipVerify && !flags.dryRun && warehouse != nil && !errors.Is(runErr, scraper.ErrInterrupted) {
		fmt.Println()
		fmt.Println("Running coverage check...")
		if _, err := renderCoverage(context.WithoutCancel(ctx), cfg, warehouse, scrapedCountries(countries, results), categories.Names(), false); err != nil {
			slog.Warn("coverage check failed", slog.Any("error", err))
		}
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, scraper.ErrInterrupted):
		return &exitError{code: exitInterrupted, err: runErr}
	case errors.Is(runErr, scraper.ErrChallenge):
		return &exitError{code: exitChallenge, err: runErr}
	default:
		return &exitError{code: exitFailure, err: runErr}
	}
}

// openWarehouse connects when a DSN is configured. It returns nil without
// error when the warehouse is disabled.
func openWarehouse(ctx context.Context, cfg *config.Config, countries []config.Country) (*pipeline.PostgresWarehouse, error) {
	if cfg.Warehouse.DSN == "" {
		slog.Warn("no warehouse configured, products are written to local backups only")
		return nil, nil
	}
	warehouse, err := pipeline.NewPostgresWarehouse(ctx, cfg.Warehouse)
	if err != nil {
		return nil, err
	}
	if cfg.Warehouse.AutoMigrate {
		if err := warehouse.EnsureSchema(ctx, countries); err != nil {
			warehouse.Close()
			return nil, err
		}
	}
	return warehouse, nil
}

func shutdownServer(server *http.Server) {
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func countryKeys(countries []config.Country) []string {
	keys := make([]string, 0, len(countries))
	for _, c := range countries {
		keys = append(keys, c.Key)
	}
	return keys
}

// scrapedCountries keeps the countries that fetched at least one category.
func scrapedCountries(countries []config.Country, results []*models.CountryRunResult) []config.Country {
	ran := make(map[string]bool, len(results))
	for _, r := range results {
		if r != nil && len(r.Categories) > 0 {
			ran[r.Country] = true
		}
	}
	var out []config.Country
	for _, c := range countries {
		if ran[c.Key] {
			out = append(out, c)
		}
	}
	return out
}

func printSummary(results []*models.CountryRunResult, duration time.Duration, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	total := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		total += r.TotalProducts
		fmt.Printf("  %-12s %-12s %3d/%-3d categories  %5d products\n",
			r.Country, r.Status, r.Successful, len(r.Categories), r.TotalProducts)
		if r.RunDir != "" && len(r.Categories) > 0 {
			fmt.Printf("  %-12s backups in %s\n", "", r.RunDir)
		}
		for _, msg := range r.SinkErrors {
			fmt.Printf("  %-12s ! %s\n", "", msg)
		}
	}

	fmt.Printf("  Total items:   %d\n", total)
	if rowErrors, ok := metrics["row_errors"].(int64); ok && rowErrors > 0 {
		fmt.Printf("  Row errors:    %d\n", rowErrors)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Second))
	fmt.Println(separator)
}
