package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aluiziolira/go-scrape-lazada/config"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitChallenge   = 2
	exitInterrupted = 130
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

type globalFlags struct {
	configPath string
	verbose    bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := &globalFlags{}
	root := newRootCommand(flags)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	return exitFailure
}

func newRootCommand(flags *globalFlags) *cobra.Command {
	configDefault := ""
	if value, ok := config.EnvString("SCRAPER_CONFIG"); ok {
		configDefault = value
	}

	root := &cobra.Command{
		Use:           "lazada",
		Short:         "Scrape Lazada storefront listings and check daily coverage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", configDefault, "YAML config file (defaults built in when empty)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newScrapeCommand(flags),
		newVerifyCommand(flags),
		newStatsCommand(flags),
	)
	return root
}

// loadRuntime reads .env, the config file and the environment, then installs
// the process logger.
func loadRuntime(flags *globalFlags) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.verbose {
		cfg.Logging.Verbose = true
	}

	logger, level := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if cfg.Verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var out io.Writer = os.Stdout
	terminal := isTerminal(os.Stdout)
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
		terminal = false
	}

	var handler slog.Handler
	if terminal {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// selectCountries resolves country keys against the registry. No keys means
// every configured country, in registry order.
func selectCountries(cfg *config.Config, keys []string) ([]config.Country, error) {
	if len(keys) == 0 {
		return cfg.Countries, nil
	}
	out := make([]config.Country, 0, len(keys))
	for _, key := range keys {
		country, ok := cfg.Country(key)
		if !ok {
			return nil, fmt.Errorf("unknown country %q (available: %v)", key, cfg.CountryKeys())
		}
		out = append(out, country)
	}
	return out, nil
}
