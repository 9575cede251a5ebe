package verify

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/models"
	"github.com/aluiziolira/go-scrape-lazada/pipeline"
)

const (
	separator   = "============================================================"
	thinRule    = "------------------------------------------------------------"
	passPercent = 80
)

// Dashboard renders the daily check for a set of country reports.
type Dashboard struct {
	Countries []config.Country
	Expected  []string
	Target    int
	Min       int
	Day       pipeline.Day
	Verbose   bool
}

// Summary is what the dashboard concluded.
type Summary struct {
	IssuesFound   bool
	TotalProducts int
	TotalTarget   int
}

// Passed reports whether the check should exit successfully: no issues and
// at least 80% of the target collected.
func (s Summary) Passed() bool {
	return !s.IssuesFound && s.TotalProducts*100 >= s.TotalTarget*passPercent
}

// TotalTarget is expected categories × target × countries.
func (d Dashboard) TotalTarget() int {
	return len(d.Expected) * d.Target * len(d.Countries)
}

func (d Dashboard) country(key string) config.Country {
	for _, c := range d.Countries {
		if c.Key == key {
			return c
		}
	}
	return config.Country{Key: key, Name: key}
}

// Render writes the status table, one row per report, then a totals row.
func (d Dashboard) Render(w io.Writer, reports []models.CoverageReport) Summary {
	summary := Summary{TotalTarget: d.TotalTarget()}
	expectedTotal := len(d.Expected)

	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "🔍 LAZADA DAILY CHECK")
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "📅 Date: %s   🎯 Target: %d products\n\n", d.Day, summary.TotalTarget)
	fmt.Fprintln(w, "COUNTRY          CATS     PRODUCTS   STATUS   ISSUES")
	fmt.Fprintln(w, thinRule)

	totalCategories := 0
	for _, r := range reports {
		country := d.country(r.CountryKey)
		status := ReportStatus(r, expectedTotal)

		issues := r.IssueCount()
		issuesText := "–"
		if issues > 0 {
			summary.IssuesFound = true
			issuesText = fmt.Sprintf("%d issues", issues)
		}

		fmt.Fprintf(w, "%-16s %3d/%-4d %8d   %s %-4s  %s\n",
			country.DisplayName(), r.CategoriesDone, expectedTotal, r.TotalProducts, status.Emoji(), status, issuesText)

		summary.TotalProducts += r.TotalProducts
		totalCategories += r.CategoriesDone
	}

	fmt.Fprintln(w, thinRule)
	progress := 0
	if summary.TotalTarget > 0 {
		progress = summary.TotalProducts * 100 / summary.TotalTarget
	}
	overall := StatusWarn
	if !summary.IssuesFound && progress >= passPercent {
		overall = StatusOK
	}
	fmt.Fprintf(w, "%-16s %3d/%-4d %8d   %s       %d%%\n",
		"TOTAL", totalCategories, expectedTotal*len(d.Countries), summary.TotalProducts, overall.Emoji(), progress)
	fmt.Fprintln(w, separator)

	return summary
}

// RenderNextSteps lists actionable issues per country. It returns true when
// there is nothing to do.
func (d Dashboard) RenderNextSteps(w io.Writer, reports []models.CoverageReport) bool {
	var issues []string
	for _, r := range reports {
		country := d.country(r.CountryKey)
		if len(r.MissingCategories) > 0 {
			issues = append(issues, fmt.Sprintf("%s: %d missing categories", country.DisplayName(), len(r.MissingCategories)))
			if d.Verbose {
				issues = append(issues, "   Missing: "+strings.Join(head(r.MissingCategories, 5), ", "))
			}
		}
		if len(r.LowCountCategories) > 0 {
			issues = append(issues, fmt.Sprintf("%s: %d categories < %d products", country.DisplayName(), len(r.LowCountCategories), d.Min))
			if d.Verbose {
				low := r.LowCountCategories
				if len(low) > 3 {
					low = low[:3]
				}
				parts := make([]string, 0, len(low))
				for _, l := range low {
					parts = append(parts, fmt.Sprintf("%s (%d)", l.Category, l.Count))
				}
				issues = append(issues, "   Low counts: "+strings.Join(parts, ", "))
			}
		}
	}

	if len(issues) == 0 {
		fmt.Fprintln(w, "🎉 All good – nothing to do!")
		return true
	}
	fmt.Fprintln(w, "📋 ISSUES FOUND:")
	for _, issue := range issues {
		fmt.Fprintf(w, "   %s\n", issue)
	}
	fmt.Fprintln(w, "\n💡 Next step: Get fresh credentials and re-run the scraper for affected countries")
	return false
}

// RenderDetails prints every category scraped today and, when available, the
// all-time history for each country.
func (d Dashboard) RenderDetails(w io.Writer, reports []models.CoverageReport, history map[string]pipeline.HistoryStats) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "📊 DETAILED BREAKDOWN")
	fmt.Fprintln(w, separator)

	for _, r := range reports {
		country := d.country(r.CountryKey)
		fmt.Fprintf(w, "\n%s Details:\n", country.DisplayName())
		if r.Error != "" {
			fmt.Fprintf(w, "   ❌ Error: %s\n", r.Error)
			continue
		}
		if len(r.ScrapedData) > 0 {
			fmt.Fprintln(w, "   📊 All categories today:")
			names := make([]string, 0, len(r.ScrapedData))
			for name := range r.ScrapedData {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				count := r.ScrapedData[name]
				mark := StatusOK.Emoji()
				if count < d.Min {
					mark = StatusWarn.Emoji()
				}
				fmt.Fprintf(w, "      %s %s: %d products\n", mark, name, count)
			}
		}
		if h, ok := history[r.CountryKey]; ok {
			fmt.Fprintf(w, "   📈 Historical: %d products over %d days\n", h.TotalProducts, h.TotalDays)
		}
	}
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
