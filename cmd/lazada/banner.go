package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/pipeline"
	"github.com/aluiziolira/go-scrape-lazada/scraper"
)

const bannerRule = "============================================================"

// printBanner writes the operator-facing remediation for a hard stop to
// stderr. Errors without a known remediation are left to the logs.
func printBanner(err error) {
	writeBanner(os.Stderr, err)
}

// writeBanner reports whether err had a known remediation to write.
func writeBanner(w io.Writer, err error) bool {
	lines := bannerLines(err)
	if lines == nil {
		return false
	}
	fmt.Fprintln(w, "\n"+bannerRule)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\nDetail: %v\n", err)
	fmt.Fprintln(w, bannerRule)
	return true
}

func bannerLines(err error) []string {
	switch {
	case errors.Is(err, scraper.ErrChallenge):
		return []string{
			"🛑 CAPTCHA DETECTED - scraping halted",
			"",
			"The storefront asked for a human verification. Results fetched so far were saved.",
			"To continue:",
			"  1. Open the storefront in a browser and solve the challenge.",
			"  2. Copy a catalog request as cURL from the developer tools network tab.",
			"  3. Replace the country's credentials file with it.",
			"  4. Re-run the scraper for that country.",
		}
	case errors.Is(err, scraper.ErrCredentialsRejected):
		return []string{
			"🔑 CREDENTIALS REJECTED",
			"",
			"The test request did not return listings; the saved cookies are expired or blocked.",
			"Copy a fresh catalog request as cURL from the browser and save it to the",
			"country's credentials file, then run again.",
		}
	case errors.Is(err, scraper.ErrInterrupted):
		return []string{
			"⏹  INTERRUPTED",
			"",
			"Completed categories were saved. Re-running starts the country from its first category.",
		}
	case errors.Is(err, config.ErrMissingConfig):
		return []string{
			"📄 MISSING CONFIGURATION",
			"",
			"A required file is missing or empty. Each country needs a credentials file",
			"(curl_th.txt, curl_id.txt, curl_ml.txt by default) and the categories file must exist.",
		}
	case errors.Is(err, pipeline.ErrNoWarehouse):
		return []string{
			"🗄  WAREHOUSE NOT CONFIGURED",
			"",
			"Set DATABASE_URL or warehouse.dsn in the config file.",
		}
	case errors.Is(err, pipeline.ErrWarehouseUnavailable):
		return []string{
			"🗄  WAREHOUSE UNAVAILABLE",
			"",
			"Check DATABASE_URL / warehouse.dsn and that the database accepts connections.",
		}
	default:
		return nil
	}
}
