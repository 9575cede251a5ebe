package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FetchKind tags the outcome of one page request.
type FetchKind int

const (
	FetchSuccess FetchKind = iota
	FetchBlocked
	FetchChallenge
	FetchEmpty
	FetchTransportError
)

func (k FetchKind) String() string {
	switch k {
	case FetchSuccess:
		return "success"
	case FetchBlocked:
		return "blocked"
	case FetchChallenge:
		return "challenge"
	case FetchEmpty:
		return "empty"
	case FetchTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// FetchResult is the classified outcome of one page request. Payload is set
// only for FetchSuccess; Reason carries the transport or parse failure and
// Detail a short description of a block page.
type FetchResult struct {
	Kind    FetchKind
	Payload *ListingPayload
	Reason  string
	Detail  string
}

// CategoryStatus is the terminal status of one category fetch.
type CategoryStatus string

const (
	CategorySuccess CategoryStatus = "SUCCESS"
	CategoryCaptcha CategoryStatus = "CAPTCHA"
	CategoryAborted CategoryStatus = "ABORTED"
)

// CategoryRunResult summarises one category within a country run.
type CategoryRunResult struct {
	Category     string         `json:"category"`
	Status       CategoryStatus `json:"status"`
	ProductCount int            `json:"product_count"`
	Pages        int            `json:"pages"`
	StopReason   string         `json:"stop_reason,omitempty"`
	Duplicates   int            `json:"duplicates,omitempty"`
	File         string         `json:"file,omitempty"`
	RowErrors    int            `json:"row_errors,omitempty"`
}

// CountryStatus is the terminal status of a country run.
type CountryStatus string

const (
	CountryCompleted   CountryStatus = "completed"
	CountrySkipped     CountryStatus = "skipped"
	CountryCaptcha     CountryStatus = "captcha"
	CountryInterrupted CountryStatus = "interrupted"
	CountryFailed      CountryStatus = "failed"
	CountryPlanned     CountryStatus = "planned"
)

// CountryRunResult holds the overall result of one country run.
type CountryRunResult struct {
	RunID         string              `json:"run_id"`
	Country       string              `json:"country"`
	Status        CountryStatus       `json:"status"`
	StartTime     time.Time           `json:"start_time"`
	EndTime       time.Time           `json:"end_time"`
	RunDir        string              `json:"run_dir,omitempty"`
	Categories    []CategoryRunResult `json:"categories"`
	Successful    int                 `json:"successful_categories"`
	TotalProducts int                 `json:"total_products"`
	SinkErrors    []string            `json:"sink_errors,omitempty"`
}

// Add records a finished category and updates the running totals.
// A category counts as successful only when it ended with products.
func (r *CountryRunResult) Add(c CategoryRunResult) {
	r.Categories = append(r.Categories, c)
	r.TotalProducts += c.ProductCount
	if c.Status == CategorySuccess && c.ProductCount > 0 {
		r.Successful++
	}
}

// LowCount is a category present today with fewer products than required.
// It encodes as a two element JSON array: ["name", count].
type LowCount struct {
	Category string
	Count    int
}

// MarshalJSON implements json.Marshaler.
func (l LowCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.Category, l.Count})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *LowCount) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("low count pair has %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &l.Category); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &l.Count)
}

// CoverageReport compares today's persisted counts with the expected
// categories. MissingCategories and LowCountCategories never share a name.
type CoverageReport struct {
	CountryKey         string         `json:"country_key"`
	TotalProducts      int            `json:"total_products"`
	CategoriesDone     int            `json:"categories_done"`
	MissingCategories  []string       `json:"missing_categories"`
	LowCountCategories []LowCount     `json:"low_count_categories"`
	ScrapedData        map[string]int `json:"scraped_data,omitempty"`
	Error              string         `json:"error,omitempty"`
}

// IssueCount is the number of missing plus low count categories.
func (r CoverageReport) IssueCount() int {
	return len(r.MissingCategories) + len(r.LowCountCategories)
}
