package verify

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/pipeline"
)

// Historian reports all-time totals for a country, counting days in loc.
type Historian interface {
	History(ctx context.Context, country config.Country, loc *time.Location) (pipeline.HistoryStats, error)
}

// StatsStore is what the stats report reads.
type StatsStore interface {
	Counter
	Historian
}

// RenderStats prints today's per-category counts and the history of each
// country. Query failures are reported inline and do not stop the report.
func RenderStats(ctx context.Context, w io.Writer, store StatsStore, countries []config.Country, day pipeline.Day) error {
	var failed int
	for _, country := range countries {
		fmt.Fprintf(w, "\n📊 %s\n", country.DisplayName())
		fmt.Fprintln(w, thinRule)

		counts, err := store.CountRowsForDate(ctx, country, day)
		if err != nil {
			failed++
			fmt.Fprintf(w, "   ❌ Error: %v\n", err)
			continue
		}
		fmt.Fprintf(w, "Today (%s): %d products across %d categories\n", day, sum(counts), len(counts))
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "   %-32s %6d\n", name, counts[name])
		}

		h, err := store.History(ctx, country, day.Start.Location())
		if err != nil {
			failed++
			fmt.Fprintf(w, "   ❌ History error: %v\n", err)
			continue
		}
		fmt.Fprintf(w, "All time: %d products, %d categories, %d days (%.1f/day)\n",
			h.TotalProducts, h.TotalCategories, h.TotalDays, h.AveragePerDay())
		if h.FirstRun != nil && h.LastRun != nil {
			fmt.Fprintf(w, "   First run: %s   Last run: %s\n",
				h.FirstRun.Format("2006-01-02 15:04"), h.LastRun.Format("2006-01-02 15:04"))
		}
	}
	if failed > 0 {
		return fmt.Errorf("stats: %d queries failed", failed)
	}
	return nil
}

func sum(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}
