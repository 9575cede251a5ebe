package scraper

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/models"
	"github.com/aluiziolira/go-scrape-lazada/pipeline"
)

type recordingPersister struct {
	mu      sync.Mutex
	batches []pipeline.Batch
	result  pipeline.PersistResult
	err     error
}

func (r *recordingPersister) Persist(ctx context.Context, batch pipeline.Batch) (pipeline.PersistResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		return pipeline.PersistResult{}, ctx.Err()
	}
	r.batches = append(r.batches, batch)
	res := r.result
	res.File = filepath.Join(batch.RunDir, pipeline.FileSlug(batch.Category)+".csv")
	return res, r.err
}

type stubCounter struct {
	counts map[string]int
	err    error
}

func (s stubCounter) CountRowsForDate(context.Context, config.Country, pipeline.Day) (map[string]int, error) {
	return s.counts, s.err
}

var fixedStart = time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)

func testCategories() config.Categories {
	return config.Categories{
		{Name: "Hair Care", Query: "hair care"},
		{Name: "Electronics", Query: "electronics"},
		{Name: "Fashion", Query: "fashion"},
	}
}

func newTestOrchestrator(t *testing.T, transport Transport, sink Persister, counter RowCounter, decider Decider) *Orchestrator {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.TargetPerCategory = 10
	cfg.MaxPages = 2
	cfg.PageDelay = config.DurationFrom(0)
	cfg.CategoryDelay = config.DurationFrom(0)

	o, err := NewOrchestrator(cfg, newTestScraper(transport), sink, counter, decider)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	o.now = func() time.Time { return fixedStart }
	o.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return o
}

func TestScrapeCountryCompletes(t *testing.T) {
	transport := &scriptedTransport{responses: []response{
		{body: listingPage(0, 1)},
		{body: listingPage(0, 10)},
		{body: listingPage(100, 10)},
		{body: listingPage(200, 10)},
	}}
	sink := &recordingPersister{}
	o := newTestOrchestrator(t, transport, sink, stubCounter{counts: map[string]int{}}, nil)

	result, err := o.ScrapeCountry(context.Background(), testThailand, testCreds, testCategories())
	if err != nil {
		t.Fatalf("ScrapeCountry: %v", err)
	}
	if result.Status != models.CountryCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.Successful != 3 || result.TotalProducts != 30 {
		t.Fatalf("expected 3 categories / 30 products, got %d / %d", result.Successful, result.TotalProducts)
	}
	if len(sink.batches) != 3 {
		t.Fatalf("expected 3 persisted batches, got %d", len(sink.batches))
	}
	if got := sink.batches[0].Products[0].ScrapedAt; got != "2025-03-01T02:00:00.000000Z" {
		t.Fatalf("unexpected scraped_at %q", got)
	}
	if filepath.Base(result.RunDir) != "2025-03-01_02-00-00" {
		t.Fatalf("unexpected run dir %q", result.RunDir)
	}
	if result.Categories[1].File == "" {
		t.Fatalf("category file should be recorded")
	}
	if result.RunID == "" {
		t.Fatalf("run id should be set")
	}
}

func TestScrapeCountryHaltsOnChallenge(t *testing.T) {
	transport := &scriptedTransport{responses: []response{
		{body: listingPage(0, 1)},
		{body: listingPage(0, 10)},
		{body: listingPage(100, 5)},
		{body: challengeBody},
	}}
	sink := &recordingPersister{}
	o := newTestOrchestrator(t, transport, sink, nil, nil)

	result, err := o.ScrapeCountry(context.Background(), testThailand, testCreds, testCategories())

	if !errors.Is(err, ErrChallenge) {
		t.Fatalf("expected ErrChallenge, got %v", err)
	}
	if result.Status != models.CountryCaptcha {
		t.Fatalf("expected captcha status, got %s", result.Status)
	}
	if len(result.Categories) != 2 {
		t.Fatalf("third category must not run, got %d results", len(result.Categories))
	}
	if result.Categories[1].Status != models.CategoryCaptcha || result.Categories[1].ProductCount != 5 {
		t.Fatalf("unexpected captcha category: %+v", result.Categories[1])
	}
	if len(sink.batches) != 2 || len(sink.batches[1].Products) != 5 {
		t.Fatalf("partial products should be persisted, got %d batches", len(sink.batches))
	}
	if result.Successful != 1 || result.TotalProducts != 15 {
		t.Fatalf("expected 1 successful / 15 products, got %d / %d", result.Successful, result.TotalProducts)
	}
	if transport.calls() != 4 {
		t.Fatalf("expected 4 requests, got %d", transport.calls())
	}
}

func TestScrapeCountryRejectsCredentials(t *testing.T) {
	tests := []struct {
		name  string
		probe response
	}{
		{name: "challenge", probe: response{body: challengeBody}},
		{name: "blocked", probe: response{body: "<html>denied</html>"}},
		{name: "empty", probe: response{body: ""}},
		{name: "transport error", probe: response{err: errors.New("timeout")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &scriptedTransport{responses: []response{tt.probe}}
			sink := &recordingPersister{}
			o := newTestOrchestrator(t, transport, sink, nil, nil)

			result, err := o.ScrapeCountry(context.Background(), testThailand, testCreds, testCategories())

			if !errors.Is(err, ErrCredentialsRejected) {
				t.Fatalf("expected ErrCredentialsRejected, got %v", err)
			}
			if result.Status != models.CountryFailed {
				t.Fatalf("expected failed, got %s", result.Status)
			}
			if transport.calls() != 1 || len(sink.batches) != 0 {
				t.Fatalf("nothing should run after a failed probe")
			}
		})
	}
}

func TestScrapeCountryDuplicateRunGuard(t *testing.T) {
	var asked []PromptKind
	decline := DeciderFunc(func(_ context.Context, p Prompt) bool {
		asked = append(asked, p.Kind)
		if p.Kind == PromptDuplicateRun && p.ExistingRows != 45 {
			t.Errorf("expected 45 existing rows, got %d", p.ExistingRows)
		}
		return p.Kind != PromptDuplicateRun
	})
	transport := &scriptedTransport{responses: []response{{body: listingPage(0, 1)}}}
	sink := &recordingPersister{}
	o := newTestOrchestrator(t, transport, sink, stubCounter{counts: map[string]int{"Hair Care": 45}}, decline)

	result, err := o.ScrapeCountry(context.Background(), testThailand, testCreds, testCategories())

	if err != nil {
		t.Fatalf("declining is not an error: %v", err)
	}
	if result.Status != models.CountrySkipped {
		t.Fatalf("expected skipped, got %s", result.Status)
	}
	if len(asked) != 1 || asked[0] != PromptDuplicateRun {
		t.Fatalf("unexpected prompts: %v", asked)
	}
	if transport.calls() != 1 {
		t.Fatalf("only the probe should run, got %d requests", transport.calls())
	}
}

func TestScrapeCountryCounterErrorContinues(t *testing.T) {
	transport := &scriptedTransport{responses: []response{
		{body: listingPage(0, 1)},
		{body: listingPage(0, 10)},
	}}
	o := newTestOrchestrator(t, transport, &recordingPersister{}, stubCounter{err: errors.New("db down")}, nil)

	result, err := o.ScrapeCountry(context.Background(), testThailand, testCreds, testCategories()[:1])
	if err != nil {
		t.Fatalf("ScrapeCountry: %v", err)
	}
	if result.Status != models.CountryCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
}

func TestScrapeCountryDryRun(t *testing.T) {
	transport := &scriptedTransport{responses: []response{{body: listingPage(0, 1)}}}
	sink := &recordingPersister{}
	o := newTestOrchestrator(t, transport, sink, nil, nil)
	o.DryRun = true

	result, err := o.ScrapeCountry(context.Background(), testThailand, testCreds, testCategories())
	if err != nil {
		t.Fatalf("ScrapeCountry: %v", err)
	}
	if result.Status != models.CountryPlanned {
		t.Fatalf("expected planned, got %s", result.Status)
	}
	if transport.calls() != 1 || len(sink.batches) != 0 {
		t.Fatalf("dry run must not fetch categories")
	}
}

func TestScrapeCountryStartDeclined(t *testing.T) {
	transport := &scriptedTransport{responses: []response{{body: listingPage(0, 1)}}}
	decline := DeciderFunc(func(context.Context, Prompt) bool { return false })
	o := newTestOrchestrator(t, transport, &recordingPersister{}, nil, decline)

	result, err := o.ScrapeCountry(context.Background(), testThailand, testCreds, testCategories())
	if err != nil || result.Status != models.CountrySkipped {
		t.Fatalf("expected skipped without error, got %s / %v", result.Status, err)
	}
}

func TestScrapeCountryMissingCredentials(t *testing.T) {
	transport := &scriptedTransport{}
	o := newTestOrchestrator(t, transport, &recordingPersister{}, nil, nil)

	_, err := o.ScrapeCountry(context.Background(), testThailand, nil, testCategories())
	if !errors.Is(err, config.ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
	if transport.calls() != 0 {
		t.Fatalf("no request should be sent without credentials")
	}
}

func TestScrapeCountryInterruptedBetweenCategories(t *testing.T) {
	transport := &scriptedTransport{responses: []response{
		{body: listingPage(0, 1)},
		{body: listingPage(0, 10)},
		{body: listingPage(100, 10)},
	}}
	sink := &recordingPersister{}
	o := newTestOrchestrator(t, transport, sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	result, err := o.ScrapeCountry(ctx, testThailand, testCreds, testCategories())

	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if result.Status != models.CountryInterrupted {
		t.Fatalf("expected interrupted, got %s", result.Status)
	}
	if len(sink.batches) != 1 || result.TotalProducts != 10 {
		t.Fatalf("completed category should stay persisted, got %d batches", len(sink.batches))
	}
}

func TestScrapeCountryPersistsAfterInterruptMidCategory(t *testing.T) {
	transport := &scriptedTransport{responses: []response{
		{body: listingPage(0, 1)},
		{body: listingPage(0, 5)},
	}}
	sink := &recordingPersister{}
	o := newTestOrchestrator(t, transport, sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.scraper.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	result, err := o.ScrapeCountry(ctx, testThailand, testCreds, testCategories())

	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if len(sink.batches) != 1 || len(sink.batches[0].Products) != 5 {
		t.Fatalf("partial category should be persisted despite cancellation")
	}
	if result.Categories[0].Status != models.CategoryAborted {
		t.Fatalf("expected aborted category, got %s", result.Categories[0].Status)
	}
}

func TestScrapeCountryRecordsSinkErrors(t *testing.T) {
	transport := &scriptedTransport{responses: []response{
		{body: listingPage(0, 1)},
		{body: listingPage(0, 10)},
	}}
	sink := &recordingPersister{result: pipeline.PersistResult{
		RowErrors: []pipeline.RowError{{Index: 3, ItemID: "1003", Err: errors.New("value too long")}},
	}}
	o := newTestOrchestrator(t, transport, sink, nil, nil)

	result, err := o.ScrapeCountry(context.Background(), testThailand, testCreds, testCategories()[:1])
	if err != nil {
		t.Fatalf("row errors must not fail the run: %v", err)
	}
	if result.Categories[0].RowErrors != 1 || len(result.SinkErrors) != 1 {
		t.Fatalf("row error should be reported, got %+v", result)
	}
}

func TestRunContinuesAfterChallenge(t *testing.T) {
	transport := &scriptedTransport{responses: []response{
		// thailand
		{body: listingPage(0, 1)},
		{body: challengeBody},
		// malaysia
		{body: listingPage(0, 1)},
		{body: listingPage(0, 10)},
	}}
	o := newTestOrchestrator(t, transport, &recordingPersister{}, nil, nil)
	creds := map[string]*config.Credentials{"thailand": testCreds, "malaysia": testCreds}

	results, err := o.Run(context.Background(), []config.Country{testThailand, testMalaysia}, creds, testCategories()[:1])

	if !errors.Is(err, ErrChallenge) {
		t.Fatalf("expected joined ErrChallenge, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both countries to run, got %d", len(results))
	}
	if results[0].Status != models.CountryCaptcha || results[1].Status != models.CountryCompleted {
		t.Fatalf("unexpected statuses %s / %s", results[0].Status, results[1].Status)
	}
}

func TestRunStopsOnInterrupt(t *testing.T) {
	transport := &scriptedTransport{responses: []response{{body: listingPage(0, 1)}}}
	o := newTestOrchestrator(t, transport, &recordingPersister{}, nil, nil)
	creds := map[string]*config.Credentials{"thailand": testCreds, "malaysia": testCreds}

	ctx, cancel := context.WithCancel(context.Background())
	o.decider = DeciderFunc(func(context.Context, Prompt) bool {
		cancel()
		return true
	})

	results, err := o.Run(ctx, []config.Country{testThailand, testMalaysia}, creds, testCategories())

	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("second country must not start, got %d results", len(results))
	}
}

func TestLoadCredentialsFailsFast(t *testing.T) {
	dir := t.TempDir()
	present := testThailand
	present.CredentialsFile = filepath.Join(dir, "missing_th.txt")

	if _, err := LoadCredentials([]config.Country{present}); !errors.Is(err, config.ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
}
