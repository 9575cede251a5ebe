// Package verify reconciles today's persisted product counts against the
// expected categories and renders the daily check dashboard.
package verify

import (
	"context"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/models"
	"github.com/aluiziolira/go-scrape-lazada/pipeline"
)

// Status is the dashboard verdict for one country.
type Status string

const (
	StatusOK   Status = "OK"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// Emoji is the dashboard marker for s.
func (s Status) Emoji() string {
	switch s {
	case StatusOK:
		return "✅"
	case StatusWarn:
		return "⚠️"
	default:
		return "❌"
	}
}

// Reconcile compares today's per-category counts with the expected
// categories. It performs no I/O.
//
// CategoriesDone counts every category present in todayCounts, including
// ones that are not expected. Each expected category ends up in at most one
// of MissingCategories and LowCountCategories, in expected order.
func Reconcile(countryKey string, todayCounts map[string]int, expected []string, minThreshold int) models.CoverageReport {
	report := models.CoverageReport{
		CountryKey:         countryKey,
		CategoriesDone:     len(todayCounts),
		MissingCategories:  []string{},
		LowCountCategories: []models.LowCount{},
	}
	for _, n := range todayCounts {
		report.TotalProducts += n
	}

	seen := make(map[string]struct{}, len(expected))
	for _, name := range expected {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		count, ok := todayCounts[name]
		switch {
		case !ok:
			report.MissingCategories = append(report.MissingCategories, name)
		case count < minThreshold:
			report.LowCountCategories = append(report.LowCountCategories, models.LowCount{Category: name, Count: count})
		}
	}
	return report
}

// StatusOf classifies a country: no products is FAIL, any missing or low
// category is WARN, anything else OK. categoriesDone and expectedTotal are
// accepted for display parity and do not change the verdict.
func StatusOf(categoriesDone, totalProducts int, missing []string, low []models.LowCount, expectedTotal int) Status {
	switch {
	case totalProducts == 0:
		return StatusFail
	case len(missing) > 0 || len(low) > 0:
		return StatusWarn
	default:
		return StatusOK
	}
}

// ReportStatus is StatusOf applied to a report.
func ReportStatus(r models.CoverageReport, expectedTotal int) Status {
	return StatusOf(r.CategoriesDone, r.TotalProducts, r.MissingCategories, r.LowCountCategories, expectedTotal)
}

// Counter is the warehouse query the check depends on.
type Counter interface {
	CountRowsForDate(ctx context.Context, country config.Country, day pipeline.Day) (map[string]int, error)
}

// CheckCountry loads today's counts for a country and reconciles them. When
// the query fails the report lists every expected category as missing and
// carries the error. verbose keeps the raw counts on the report.
func CheckCountry(ctx context.Context, counter Counter, country config.Country, expected []string, day pipeline.Day, minThreshold int, verbose bool) models.CoverageReport {
	counts, err := counter.CountRowsForDate(ctx, country, day)
	if err != nil {
		missing := make([]string, len(expected))
		copy(missing, expected)
		return models.CoverageReport{
			CountryKey:         country.Key,
			MissingCategories:  missing,
			LowCountCategories: []models.LowCount{},
			Error:              err.Error(),
		}
	}
	report := Reconcile(country.Key, counts, expected, minThreshold)
	if verbose {
		report.ScrapedData = counts
	}
	return report
}
