package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/models"
	"github.com/aluiziolira/go-scrape-lazada/pipeline"
)

// ScrapedAtLayout is the UTC timestamp stamped on every product of a run.
const ScrapedAtLayout = "2006-01-02T15:04:05.000000Z"

// PromptKind identifies a question the orchestrator asks before scraping.
type PromptKind int

const (
	// PromptDuplicateRun asks whether to scrape a country that already has
	// rows for today. Declining skips the country.
	PromptDuplicateRun PromptKind = iota
	// PromptStart asks for confirmation before the first category.
	PromptStart
)

// Prompt carries the context for a decision.
type Prompt struct {
	Kind         PromptKind
	Country      config.Country
	ExistingRows int
	Categories   int
	Target       int
}

// Decider answers the orchestrator's questions.
type Decider interface {
	Confirm(ctx context.Context, p Prompt) bool
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, p Prompt) bool

// Confirm implements Decider.
func (f DeciderFunc) Confirm(ctx context.Context, p Prompt) bool {
	return f(ctx, p)
}

// AlwaysYes approves every prompt.
var AlwaysYes = DeciderFunc(func(context.Context, Prompt) bool { return true })

// Persister stores the products of one category.
type Persister interface {
	Persist(ctx context.Context, batch pipeline.Batch) (pipeline.PersistResult, error)
}

// RowCounter answers the duplicate run question from persisted state.
type RowCounter interface {
	CountRowsForDate(ctx context.Context, country config.Country, day pipeline.Day) (map[string]int, error)
}

// Orchestrator runs countries one after another, categories one after
// another.
type Orchestrator struct {
	cfg      *config.Config
	scraper  *Scraper
	sink     Persister
	counter  RowCounter
	decider  Decider
	location *time.Location

	// DryRun stops each country after the checks, before any category fetch.
	DryRun bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the collaborators. counter may be nil to skip the
// duplicate run check; decider nil approves everything.
func NewOrchestrator(cfg *config.Config, scraper *Scraper, sink Persister, counter RowCounter, decider Decider) (*Orchestrator, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if decider == nil {
		decider = AlwaysYes
	}
	return &Orchestrator{
		cfg:      cfg,
		scraper:  scraper,
		sink:     sink,
		counter:  counter,
		decider:  decider,
		location: loc,
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// LoadCredentials reads the credentials of every requested country before
// anything is fetched, so a missing file never leaves a partial run.
func LoadCredentials(countries []config.Country) (map[string]*config.Credentials, error) {
	out := make(map[string]*config.Credentials, len(countries))
	for _, country := range countries {
		creds, err := config.LoadCredentials(country.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", country.Key, err)
		}
		out[country.Key] = creds
	}
	return out, nil
}

// Run scrapes each country in order. A challenge or rejected credentials
// stop only that country; an interrupt stops the whole run. The returned
// error joins every country failure.
func (o *Orchestrator) Run(ctx context.Context, countries []config.Country, creds map[string]*config.Credentials, categories config.Categories) ([]*models.CountryRunResult, error) {
	var (
		results []*models.CountryRunResult
		errs    []error
	)
	for _, country := range countries {
		result, err := o.ScrapeCountry(ctx, country, creds[country.Key], categories)
		results = append(results, result)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", country.Key, err))
			if errors.Is(err, ErrInterrupted) {
				break
			}
		}
	}
	return results, errors.Join(errs...)
}

// ScrapeCountry runs one storefront: probe the credentials, check for an
// earlier run today, then fetch and persist each category.
//
// On a challenge the remaining categories are skipped and ErrChallenge is
// returned with the partial result; fresh credentials are needed before a
// rerun. A rerun starts over from the first category.
func (o *Orchestrator) ScrapeCountry(ctx context.Context, country config.Country, creds *config.Credentials, categories config.Categories) (*models.CountryRunResult, error) {
	started := o.now()
	result := &models.CountryRunResult{
		RunID:     uuid.NewString(),
		Country:   country.Key,
		StartTime: started,
	}
	finish := func(status models.CountryStatus) *models.CountryRunResult {
		result.Status = status
		result.EndTime = o.now()
		return result
	}

	logger := slog.With(slog.String("country", country.Key), slog.String("run_id", result.RunID))
	logger.Info("starting country", slog.String("name", country.DisplayName()), slog.Int("categories", len(categories)))

	if creds == nil {
		return finish(models.CountryFailed), fmt.Errorf("%w: no credentials loaded", config.ErrMissingConfig)
	}

	probe := o.scraper.Probe(ctx, country, creds, o.cfg.ProbeQuery)
	if probe.Kind != models.FetchSuccess {
		logger.Error("credentials probe failed",
			slog.String("outcome", probe.Kind.String()),
			slog.String("reason", probe.Reason),
			slog.String("detail", probe.Detail),
		)
		return finish(models.CountryFailed), fmt.Errorf("%w: probe returned %s", ErrCredentialsRejected, probe.Kind)
	}
	logger.Info("credentials valid")

	if o.counter != nil {
		day := pipeline.DayOf(started, o.location)
		counts, err := o.counter.CountRowsForDate(ctx, country, day)
		if err != nil {
			logger.Warn("duplicate run check failed, continuing", slog.Any("error", err))
		} else if existing := sumCounts(counts); existing > 0 {
			logger.Warn("country already has rows today", slog.Int("rows", existing), slog.String("day", day.String()))
			if !o.decider.Confirm(ctx, Prompt{Kind: PromptDuplicateRun, Country: country, ExistingRows: existing}) {
				logger.Info("country skipped, already scraped today")
				return finish(models.CountrySkipped), nil
			}
		}
	}

	result.RunDir = pipeline.RunDir(country.DataDir, started.In(o.location))
	scrapedAt := started.UTC().Format(ScrapedAtLayout)

	if o.DryRun {
		logger.Info("dry run, not fetching", slog.String("run_dir", result.RunDir))
		return finish(models.CountryPlanned), nil
	}
	if !o.decider.Confirm(ctx, Prompt{Kind: PromptStart, Country: country, Categories: len(categories), Target: o.cfg.TargetPerCategory}) {
		logger.Info("country skipped by operator")
		return finish(models.CountrySkipped), nil
	}

	opts := FetchOptions{
		TargetCount: o.cfg.TargetPerCategory,
		MaxPages:    o.cfg.MaxPages,
		PageDelay:   o.cfg.PageDelay.Duration,
		ScrapedAt:   scrapedAt,
	}

	for i, category := range categories {
		if ctx.Err() != nil {
			logger.Warn("interrupted", slog.Int("completed", result.Successful), slog.Int("products", result.TotalProducts))
			return finish(models.CountryInterrupted), ErrInterrupted
		}

		catResult, products := o.scraper.FetchCategory(ctx, country, creds, category, opts)
		o.persist(ctx, country, result, &catResult, products)
		result.Add(catResult)

		switch catResult.Status {
		case models.CategoryCaptcha:
			logger.Error("challenge detected, halting country",
				slog.String("category", category.Name),
				slog.Int("completed", result.Successful),
				slog.Int("products", result.TotalProducts),
			)
			return finish(models.CountryCaptcha), fmt.Errorf("%w: category %q", ErrChallenge, category.Name)
		case models.CategoryAborted:
			logger.Warn("interrupted", slog.Int("completed", result.Successful), slog.Int("products", result.TotalProducts))
			return finish(models.CountryInterrupted), ErrInterrupted
		}

		if i < len(categories)-1 {
			logger.Debug("waiting before next category", slog.Duration("delay", o.cfg.CategoryDelay.Duration))
			if err := o.sleep(ctx, o.cfg.CategoryDelay.Duration); err != nil {
				logger.Warn("interrupted", slog.Int("completed", result.Successful), slog.Int("products", result.TotalProducts))
				return finish(models.CountryInterrupted), ErrInterrupted
			}
		}
	}

	logger.Info("country complete",
		slog.Int("successful", result.Successful),
		slog.Int("categories", len(categories)),
		slog.Int("products", result.TotalProducts),
	)
	return finish(models.CountryCompleted), nil
}

// persist stores partial results too; a captcha or interrupt mid-category
// keeps what was already fetched.
func (o *Orchestrator) persist(ctx context.Context, country config.Country, run *models.CountryRunResult, cat *models.CategoryRunResult, products []models.Product) {
	if o.sink == nil {
		return
	}
	// Writes finish even after an interrupt so fetched products are kept.
	persistCtx := context.WithoutCancel(ctx)
	res, err := o.sink.Persist(persistCtx, pipeline.Batch{
		Country:  country,
		RunDir:   run.RunDir,
		Category: cat.Category,
		Products: products,
	})
	if err != nil {
		run.SinkErrors = append(run.SinkErrors, fmt.Sprintf("%s: %v", cat.Category, err))
		return
	}
	cat.File = res.File
	cat.RowErrors = len(res.RowErrors)
	o.scraper.Metrics.AddRowErrors(country.Key, len(res.RowErrors))
	for _, msg := range res.Errors() {
		run.SinkErrors = append(run.SinkErrors, fmt.Sprintf("%s: %s", cat.Category, msg))
	}
}

func sumCounts(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}
