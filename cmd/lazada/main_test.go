package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/models"
	"github.com/aluiziolira/go-scrape-lazada/pipeline"
	"github.com/aluiziolira/go-scrape-lazada/scraper"
)

func TestTerminalDeciderDefaults(t *testing.T) {
	country := config.Country{Key: "thailand", Name: "Thailand"}
	tests := []struct {
		name  string
		input string
		kind  scraper.PromptKind
		want  bool
	}{
		{name: "duplicate default no", input: "\n", kind: scraper.PromptDuplicateRun, want: false},
		{name: "duplicate yes", input: "y\n", kind: scraper.PromptDuplicateRun, want: true},
		{name: "start default yes", input: "\n", kind: scraper.PromptStart, want: true},
		{name: "start no", input: "NO\n", kind: scraper.PromptStart, want: false},
		{name: "closed input takes default", input: "", kind: scraper.PromptStart, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			d := newTerminalDecider(strings.NewReader(tt.input), &out)
			if got := d.Confirm(context.Background(), scraper.Prompt{Kind: tt.kind, Country: country, ExistingRows: 12}); got != tt.want {
				t.Fatalf("Confirm = %v, want %v (output %q)", got, tt.want, out.String())
			}
		})
	}
}

func TestSelectCountries(t *testing.T) {
	cfg := config.DefaultConfig()

	all, err := selectCountries(cfg, nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected every country, got %d / %v", len(all), err)
	}
	some, err := selectCountries(cfg, []string{"malaysia", "thailand"})
	if err != nil {
		t.Fatalf("selectCountries: %v", err)
	}
	if some[0].Key != "malaysia" || some[1].Key != "thailand" {
		t.Fatalf("requested order should be kept, got %v", countryKeys(some))
	}
	if _, err := selectCountries(cfg, []string{"vietnam"}); err == nil {
		t.Fatalf("expected error for unknown country")
	}
}

func TestScrapedCountries(t *testing.T) {
	cfg := config.DefaultConfig()
	results := []*models.CountryRunResult{
		{Country: "thailand", Categories: []models.CategoryRunResult{{Category: "Toys"}}},
		{Country: "indonesia", Status: models.CountrySkipped},
	}
	got := scrapedCountries(cfg.Countries, results)
	if len(got) != 1 || got[0].Key != "thailand" {
		t.Fatalf("unexpected countries %v", countryKeys(got))
	}
}

func TestWriteBanner(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		title string
	}{
		{name: "challenge", err: fmt.Errorf("thailand: %w", scraper.ErrChallenge), title: "CAPTCHA DETECTED"},
		{name: "no warehouse", err: pipeline.ErrNoWarehouse, title: "WAREHOUSE NOT CONFIGURED"},
		{name: "warehouse down", err: fmt.Errorf("%w: ping: %w", pipeline.ErrWarehouseUnavailable, errors.New("connection refused")), title: "WAREHOUSE UNAVAILABLE"},
		{name: "unrelated mention of warehouse", err: errors.New("warehouse table lazada_thailand has 0 rows"), title: ""},
		{name: "unknown", err: errors.New("boom"), title: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			wrote := writeBanner(&out, tt.err)
			if tt.title == "" {
				if wrote || out.Len() != 0 {
					t.Fatalf("expected no banner, got %q", out.String())
				}
				return
			}
			if !wrote || !strings.Contains(out.String(), tt.title) {
				t.Fatalf("expected %q banner, got %q", tt.title, out.String())
			}
			if !strings.Contains(out.String(), tt.err.Error()) {
				t.Fatalf("banner should carry the error detail, got %q", out.String())
			}
		})
	}
}
