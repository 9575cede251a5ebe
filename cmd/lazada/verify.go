package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/models"
	"github.com/aluiziolira/go-scrape-lazada/pipeline"
	"github.com/aluiziolira/go-scrape-lazada/verify"
)

type verifyFlags struct {
	details bool
	json    bool
}

func newVerifyCommand(global *globalFlags) *cobra.Command {
	flags := &verifyFlags{}
	cmd := &cobra.Command{
		Use:   "verify [country...]",
		Short: "Check today's warehouse coverage against the expected categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), global, flags, args)
		},
	}
	cmd.Flags().BoolVarP(&flags.details, "details", "d", false, "Show every category scraped today and history")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the coverage reports as JSON")
	return cmd
}

func newStatsCommand(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [country...]",
		Short: "Show today's per-category counts and all-time warehouse totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntime(global)
			if err != nil {
				printBanner(err)
				return &exitError{code: exitFailure, err: err}
			}
			countries, err := selectCountries(cfg, args)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			warehouse, err := requireWarehouse(ctx, cfg)
			if err != nil {
				return err
			}
			defer warehouse.Close()

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			return verify.RenderStats(ctx, os.Stdout, warehouse, countries, pipeline.DayOf(time.Now(), loc))
		},
	}
}

func runVerify(ctx context.Context, global *globalFlags, flags *verifyFlags, args []string) error {
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
	if ctx == nil {
		ctx = context.Background()
	}
	warehouse, err := requireWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer warehouse.Close()

	if flags.json {
		reports, err := collectReports(ctx, cfg, warehouse, countries, categories.Names(), true)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	summary, err := renderCoverage(ctx, cfg, warehouse, countries, categories.Names(), flags.details)
	if err != nil {
		return err
	}
	if !summary.Passed() {
		return &exitError{code: exitFailure}
	}
	return nil
}

func collectReports(ctx context.Context, cfg *config.Config, warehouse *pipeline.PostgresWarehouse, countries []config.Country, expected []string, details bool) ([]models.CoverageReport, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	day := pipeline.DayOf(time.Now(), loc)

	reports := make([]models.CoverageReport, 0, len(countries))
	for _, country := range countries {
		report := verify.CheckCountry(ctx, warehouse, country, expected, day, cfg.MinPerCategory, details)
		if report.Error != "" {
			slog.Warn("coverage query failed", slog.String("country", country.Key), slog.String("error", report.Error))
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// renderCoverage prints the dashboard for countries and returns its verdict.
func renderCoverage(ctx context.Context, cfg *config.Config, warehouse *pipeline.PostgresWarehouse, countries []config.Country, expected []string, details bool) (verify.Summary, error) {
	if len(countries) == 0 {
		fmt.Println("No countries to check.")
		return verify.Summary{}, nil
	}
	loc, err := cfg.Location()
	if err != nil {
		return verify.Summary{}, err
	}
	reports, err := collectReports(ctx, cfg, warehouse, countries, expected, details)
	if err != nil {
		return verify.Summary{}, err
	}

	dashboard := verify.Dashboard{
		Countries: countries,
		Expected:  expected,
		Target:    cfg.TargetPerCategory,
		Min:       cfg.MinPerCategory,
		Day:       pipeline.DayOf(time.Now(), loc),
		Verbose:   details,
	}
	summary := dashboard.Render(os.Stdout, reports)
	fmt.Println()
	dashboard.RenderNextSteps(os.Stdout, reports)

	if details {
		history := make(map[string]pipeline.HistoryStats, len(countries))
		for _, country := range countries {
			stats, err := warehouse.History(ctx, country, loc)
			if err != nil {
				slog.Warn("history query failed", slog.String("country", country.Key), slog.Any("error", err))
				continue
			}
			history[country.Key] = stats
		}
		dashboard.RenderDetails(os.Stdout, reports, history)
	}
	return summary, nil
}

func requireWarehouse(ctx context.Context, cfg *config.Config) (*pipeline.PostgresWarehouse, error) {
	warehouse, err := pipeline.NewPostgresWarehouse(ctx, cfg.Warehouse)
	if err != nil {
		printBanner(err)
		return nil, &exitError{code: exitFailure, err: err}
	}
	return warehouse, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
