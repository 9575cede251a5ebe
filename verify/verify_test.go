package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/models"
	"github.com/aluiziolira/go-scrape-lazada/pipeline"
)

func TestReconcileReportsMissingAndLow(t *testing.T) {
	counts := map[string]int{"Hair Care": 45, "Electronics": 25}
	expected := []string{"Hair Care", "Electronics", "Fashion"}

	report := Reconcile("thailand", counts, expected, 30)

	if report.TotalProducts != 70 {
		t.Fatalf("expected total 70, got %d", report.TotalProducts)
	}
	if report.CategoriesDone != 2 {
		t.Fatalf("expected 2 categories done, got %d", report.CategoriesDone)
	}
	if !reflect.DeepEqual(report.MissingCategories, []string{"Fashion"}) {
		t.Fatalf("unexpected missing: %v", report.MissingCategories)
	}
	wantLow := []models.LowCount{{Category: "Electronics", Count: 25}}
	if !reflect.DeepEqual(report.LowCountCategories, wantLow) {
		t.Fatalf("unexpected low counts: %v", report.LowCountCategories)
	}
	if got := ReportStatus(report, len(expected)); got != StatusWarn {
		t.Fatalf("expected WARN, got %s", got)
	}
}

func TestReconcileCases(t *testing.T) {
	tests := []struct {
		name        string
		counts      map[string]int
		expected    []string
		min         int
		wantMissing []string
		wantLow     []models.LowCount
		wantDone    int
		wantTotal   int
		wantStatus  Status
	}{
		{
			name:        "nothing scraped",
			counts:      map[string]int{},
			expected:    []string{"A", "B"},
			min:         30,
			wantMissing: []string{"A", "B"},
			wantLow:     []models.LowCount{},
			wantStatus:  StatusFail,
		},
		{
			name:        "all above threshold",
			counts:      map[string]int{"A": 50, "B": 30},
			expected:    []string{"A", "B"},
			min:         30,
			wantMissing: []string{},
			wantLow:     []models.LowCount{},
			wantDone:    2,
			wantTotal:   80,
			wantStatus:  StatusOK,
		},
		{
			name:        "unexpected category still counts",
			counts:      map[string]int{"A": 50, "Other": 10},
			expected:    []string{"A"},
			min:         30,
			wantMissing: []string{},
			wantLow:     []models.LowCount{},
			wantDone:    2,
			wantTotal:   60,
			wantStatus:  StatusOK,
		},
		{
			name:        "duplicate expected entries reported once",
			counts:      map[string]int{"A": 5},
			expected:    []string{"A", "B", "A", "B"},
			min:         30,
			wantMissing: []string{"B"},
			wantLow:     []models.LowCount{{Category: "A", Count: 5}},
			wantDone:    1,
			wantTotal:   5,
			wantStatus:  StatusWarn,
		},
		{
			name:        "zero count present is low not missing",
			counts:      map[string]int{"A": 0},
			expected:    []string{"A"},
			min:         1,
			wantMissing: []string{},
			wantLow:     []models.LowCount{{Category: "A", Count: 0}},
			wantDone:    1,
			wantStatus:  StatusFail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Reconcile("x", tt.counts, tt.expected, tt.min)
			if !reflect.DeepEqual(r.MissingCategories, tt.wantMissing) {
				t.Errorf("missing = %v, want %v", r.MissingCategories, tt.wantMissing)
			}
			if !reflect.DeepEqual(r.LowCountCategories, tt.wantLow) {
				t.Errorf("low = %v, want %v", r.LowCountCategories, tt.wantLow)
			}
			if r.CategoriesDone != tt.wantDone {
				t.Errorf("done = %d, want %d", r.CategoriesDone, tt.wantDone)
			}
			if r.TotalProducts != tt.wantTotal {
				t.Errorf("total = %d, want %d", r.TotalProducts, tt.wantTotal)
			}
			if got := ReportStatus(r, len(tt.expected)); got != tt.wantStatus {
				t.Errorf("status = %s, want %s", got, tt.wantStatus)
			}
		})
	}
}

func TestReconcileListsAreDisjoint(t *testing.T) {
	counts := map[string]int{"A": 10, "C": 40, "D": 1}
	expected := []string{"A", "B", "C", "D", "E"}

	r := Reconcile("x", counts, expected, 30)

	seen := map[string]bool{}
	for _, m := range r.MissingCategories {
		seen[m] = true
	}
	for _, l := range r.LowCountCategories {
		if seen[l.Category] {
			t.Fatalf("%s is both missing and low", l.Category)
		}
	}
	if !reflect.DeepEqual(r.MissingCategories, []string{"B", "E"}) {
		t.Fatalf("missing must follow expected order, got %v", r.MissingCategories)
	}
	if len(r.LowCountCategories) != 2 || r.LowCountCategories[0].Category != "A" || r.LowCountCategories[1].Category != "D" {
		t.Fatalf("low must follow expected order, got %v", r.LowCountCategories)
	}
}

func TestReconcileIsDeterministic(t *testing.T) {
	counts := map[string]int{"Hair Care": 45, "Electronics": 25, "Toys": 60}
	expected := []string{"Hair Care", "Electronics", "Fashion", "Toys"}

	first, err := json.Marshal(Reconcile("malaysia", counts, expected, 30))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		next, err := json.Marshal(Reconcile("malaysia", counts, expected, 30))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !bytes.Equal(first, next) {
			t.Fatalf("reconcile output changed between calls:\n%s\n%s", first, next)
		}
	}
	if !strings.Contains(string(first), `"low_count_categories":[["Electronics",25]]`) {
		t.Fatalf("low counts should encode as pairs: %s", first)
	}
}

type fakeCounter struct {
	counts  map[string]int
	history pipeline.HistoryStats
	err     error
}

func (f fakeCounter) CountRowsForDate(context.Context, config.Country, pipeline.Day) (map[string]int, error) {
	return f.counts, f.err
}

func (f fakeCounter) History(context.Context, config.Country, *time.Location) (pipeline.HistoryStats, error) {
	return f.history, f.err
}

func TestCheckCountryQueryFailure(t *testing.T) {
	country := config.Country{Key: "indonesia", Name: "Indonesia"}
	expected := []string{"A", "B"}
	day := pipeline.DayOf(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), time.UTC)

	r := CheckCountry(context.Background(), fakeCounter{err: errors.New("connection refused")}, country, expected, day, 30, false)

	if r.Error == "" {
		t.Fatalf("expected error on report")
	}
	if !reflect.DeepEqual(r.MissingCategories, expected) {
		t.Fatalf("all expected categories should be missing, got %v", r.MissingCategories)
	}
	if r.TotalProducts != 0 || r.CategoriesDone != 0 {
		t.Fatalf("expected empty totals, got %+v", r)
	}
	if ReportStatus(r, len(expected)) != StatusFail {
		t.Fatalf("expected FAIL status")
	}
}

func TestCheckCountryVerboseKeepsCounts(t *testing.T) {
	country := config.Country{Key: "thailand", Name: "Thailand"}
	counts := map[string]int{"A": 40}
	day := pipeline.DayOf(time.Now(), time.UTC)

	quiet := CheckCountry(context.Background(), fakeCounter{counts: counts}, country, []string{"A"}, day, 30, false)
	if quiet.ScrapedData != nil {
		t.Fatalf("scraped data should be omitted when not verbose")
	}
	loud := CheckCountry(context.Background(), fakeCounter{counts: counts}, country, []string{"A"}, day, 30, true)
	if loud.ScrapedData["A"] != 40 {
		t.Fatalf("scraped data should be kept when verbose, got %v", loud.ScrapedData)
	}
}

func TestDashboardRender(t *testing.T) {
	countries := []config.Country{
		{Key: "thailand", Name: "Thailand", Flag: "🇹🇭"},
		{Key: "malaysia", Name: "Malaysia", Flag: "🇲🇾"},
	}
	d := Dashboard{
		Countries: countries,
		Expected:  []string{"A", "B"},
		Target:    50,
		Min:       30,
		Day:       pipeline.DayOf(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.UTC),
	}
	reports := []models.CoverageReport{
		Reconcile("thailand", map[string]int{"A": 50, "B": 50}, d.Expected, d.Min),
		Reconcile("malaysia", map[string]int{"A": 20}, d.Expected, d.Min),
	}

	var buf bytes.Buffer
	summary := d.Render(&buf, reports)
	out := buf.String()

	if summary.TotalTarget != 200 {
		t.Fatalf("expected target 200, got %d", summary.TotalTarget)
	}
	if summary.TotalProducts != 120 {
		t.Fatalf("expected 120 products, got %d", summary.TotalProducts)
	}
	if !summary.IssuesFound {
		t.Fatalf("expected issues to be found")
	}
	if summary.Passed() {
		t.Fatalf("summary with issues must not pass")
	}
	for _, want := range []string{"2025-03-01", "Target: 200", "Thailand", "Malaysia", "2 issues", "TOTAL", "60%"} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if d.RenderNextSteps(&buf, reports) {
		t.Fatalf("next steps should report issues")
	}
	if !strings.Contains(buf.String(), "1 missing categories") || !strings.Contains(buf.String(), "1 categories < 30 products") {
		t.Fatalf("unexpected next steps:\n%s", buf.String())
	}
}

func TestSummaryPassed(t *testing.T) {
	tests := []struct {
		name    string
		summary Summary
		want    bool
	}{
		{"full coverage", Summary{TotalProducts: 100, TotalTarget: 100}, true},
		{"exactly eighty percent", Summary{TotalProducts: 80, TotalTarget: 100}, true},
		{"below eighty percent", Summary{TotalProducts: 79, TotalTarget: 100}, false},
		{"issues found", Summary{IssuesFound: true, TotalProducts: 100, TotalTarget: 100}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.summary.Passed(); got != tt.want {
				t.Fatalf("Passed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextStepsAllGood(t *testing.T) {
	d := Dashboard{Expected: []string{"A"}, Min: 30}
	reports := []models.CoverageReport{Reconcile("thailand", map[string]int{"A": 50}, d.Expected, d.Min)}

	var buf bytes.Buffer
	if !d.RenderNextSteps(&buf, reports) {
		t.Fatalf("expected nothing to do")
	}
	if !strings.Contains(buf.String(), "All good") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestRenderDetailsSortsCategories(t *testing.T) {
	d := Dashboard{
		Countries: []config.Country{{Key: "thailand", Name: "Thailand"}},
		Expected:  []string{"Zoo", "Apple"},
		Min:       30,
	}
	r := Reconcile("thailand", map[string]int{"Zoo": 10, "Apple": 40}, d.Expected, d.Min)
	r.ScrapedData = map[string]int{"Zoo": 10, "Apple": 40}

	var buf bytes.Buffer
	d.RenderDetails(&buf, []models.CoverageReport{r}, map[string]pipeline.HistoryStats{"thailand": {TotalProducts: 500, TotalDays: 5}})
	out := buf.String()

	if strings.Index(out, "Apple") > strings.Index(out, "Zoo") {
		t.Fatalf("categories should be sorted:\n%s", out)
	}
	if !strings.Contains(out, "⚠️ Zoo: 10 products") || !strings.Contains(out, "✅ Apple: 40 products") {
		t.Fatalf("unexpected markers:\n%s", out)
	}
	if !strings.Contains(out, "500 products over 5 days") {
		t.Fatalf("history missing:\n%s", out)
	}
}

func TestRenderStats(t *testing.T) {
	first := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	last := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	store := fakeCounter{
		counts:  map[string]int{"B": 20, "A": 30},
		history: pipeline.HistoryStats{TotalProducts: 1000, TotalCategories: 10, TotalDays: 4, FirstRun: &first, LastRun: &last},
	}
	day := pipeline.DayOf(last, time.UTC)

	var buf bytes.Buffer
	if err := RenderStats(context.Background(), &buf, store, []config.Country{{Key: "thailand", Name: "Thailand"}}, day); err != nil {
		t.Fatalf("RenderStats: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"50 products across 2 categories", "1000 products", "250.0/day", "2025-01-01 08:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := RenderStats(context.Background(), &buf, fakeCounter{err: errors.New("boom")}, []config.Country{{Key: "thailand"}}, day); err == nil {
		t.Fatalf("expected error when queries fail")
	}
}
