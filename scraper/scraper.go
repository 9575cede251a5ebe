package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/models"
	"github.com/aluiziolira/go-scrape-lazada/parser"
)

// overlapWindow bounds how many item ids are remembered per category when
// counting repeated listings.
const overlapWindow = 4096

// Stop reasons reported on CategoryRunResult.
const (
	StopTargetReached = "target_reached"
	StopMaxPages      = "max_pages"
	StopNoResults     = "no_results"
	StopChallenge     = "challenge"
	StopInterrupted   = "interrupted"
)

// FetchOptions are the stopping rules and metadata for one category fetch.
type FetchOptions struct {
	TargetCount int
	MaxPages    int
	PageDelay   time.Duration
	ScrapedAt   string
}

// Scraper drives the transport across the pages of one category at a time.
type Scraper struct {
	transport Transport
	Metrics   *Metrics
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewScraper wires a scraper to a transport. metrics may be nil.
func NewScraper(transport Transport, metrics *Metrics) *Scraper {
	return &Scraper{
		transport: transport,
		Metrics:   metrics,
		sleep:     sleepContext,
	}
}

// FetchCategory pages through one category until the target count is met,
// max pages are used, or the storefront stops returning listings.
//
// A challenge stops immediately with status Captcha. Blocked, empty and
// failed pages end pagination with status Success. Products accumulated so
// far are returned in every case, in page order then source order. Item ids
// repeated across pages are counted, not removed.
func (s *Scraper) FetchCategory(ctx context.Context, country config.Country, creds *config.Credentials, category config.Category, opts FetchOptions) (models.CategoryRunResult, []models.Product) {
	result := models.CategoryRunResult{Category: category.Name, Status: models.CategorySuccess}
	var products []models.Product

	logger := slog.With(slog.String("country", country.Key), slog.String("category", category.Name))
	logger.Info("fetching category", slog.String("query", category.Query))

	seen, _ := lru.New[string, struct{}](overlapWindow)

	for page := 1; page <= opts.MaxPages; page++ {
		if ctx.Err() != nil {
			result.Status = models.CategoryAborted
			result.StopReason = StopInterrupted
			break
		}

		res := s.fetchPage(ctx, country, creds, PageParams{
			Query:        category.Query,
			Page:         page,
			FirstRequest: page == 1,
		})
		result.Pages = page
		s.Metrics.IncPage(country.Key, res.Kind.String())

		if res.Kind == models.FetchChallenge {
			logger.Warn("challenge detected", slog.Int("page", page), slog.Int("products", len(products)))
			result.Status = models.CategoryCaptcha
			result.StopReason = StopChallenge
			break
		}
		if res.Kind != models.FetchSuccess {
			logger.Warn("page not usable, stopping category",
				slog.Int("page", page),
				slog.String("outcome", res.Kind.String()),
				slog.String("reason", res.Reason),
				slog.String("detail", res.Detail),
			)
			result.StopReason = res.Kind.String()
			break
		}

		pageProducts := parser.NormalizePayload(res.Payload, country.Currency, category.Name, opts.ScrapedAt)
		if len(pageProducts) == 0 {
			logger.Info("no products on page, stopping", slog.Int("page", page))
			result.StopReason = StopNoResults
			break
		}

		dups := countRepeats(seen, pageProducts)
		result.Duplicates += dups
		s.Metrics.AddDuplicates(country.Key, dups)
		s.Metrics.AddItems(country.Key, len(pageProducts))

		products = append(products, pageProducts...)
		logger.Info("page fetched", slog.Int("page", page), slog.Int("products", len(pageProducts)), slog.Int("total", len(products)))

		if len(products) >= opts.TargetCount {
			result.StopReason = StopTargetReached
			break
		}

		if page < opts.MaxPages {
			logger.Debug("waiting before next page", slog.Duration("delay", opts.PageDelay))
			if err := s.sleep(ctx, opts.PageDelay); err != nil {
				result.Status = models.CategoryAborted
				result.StopReason = StopInterrupted
				break
			}
		}
	}

	if result.StopReason == "" {
		result.StopReason = StopMaxPages
	}
	result.ProductCount = len(products)
	if result.Duplicates > 0 {
		logger.Warn("repeated item ids across pages", slog.Int("duplicates", result.Duplicates))
	}
	s.Metrics.IncCategory(country.Key, string(result.Status))
	return result, products
}

// Probe sends a first-page request for query and classifies the answer.
// Anything other than Success means the credentials are not usable.
func (s *Scraper) Probe(ctx context.Context, country config.Country, creds *config.Credentials, query string) models.FetchResult {
	res := s.fetchPage(ctx, country, creds, PageParams{Query: query, Page: 1, FirstRequest: true})
	s.Metrics.IncPage(country.Key, "probe_"+res.Kind.String())
	return res
}

func (s *Scraper) fetchPage(ctx context.Context, country config.Country, creds *config.Credentials, params PageParams) models.FetchResult {
	req, err := BuildRequest(country, creds, params)
	if err != nil {
		return models.FetchResult{Kind: models.FetchTransportError, Reason: err.Error()}
	}
	slog.Debug("fetching page", slog.String("country", country.Key), slog.Int("page", params.Page))
	body, err := s.transport.Send(ctx, req)
	return parser.Classify(body, err)
}

func countRepeats(seen *lru.Cache[string, struct{}], products []models.Product) int {
	if seen == nil {
		return 0
	}
	dups := 0
	for _, p := range products {
		if p.ItemID == "" {
			continue
		}
		if seen.Contains(p.ItemID) {
			dups++
			continue
		}
		seen.Add(p.ItemID, struct{}{})
	}
	return dups
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
