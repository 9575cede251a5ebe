package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/models"
)

// ErrNoWarehouse is returned when a warehouse operation is requested but no
// DSN is configured.
var ErrNoWarehouse = errors.New("pipeline: warehouse not configured")

// ErrWarehouseUnavailable wraps every failure to open a configured warehouse.
var ErrWarehouseUnavailable = errors.New("pipeline: warehouse unavailable")

// InterruptedInsertError is returned by InsertRows when the context ends
// part way through a batch. Attempted rows before the interruption were sent.
type InterruptedInsertError struct {
	Table     string
	Attempted int
	Err       error
}

func (e *InterruptedInsertError) Error() string {
	return fmt.Sprintf("insert into %s stopped after %d rows: %v", e.Table, e.Attempted, e.Err)
}

func (e *InterruptedInsertError) Unwrap() error { return e.Err }

// RowError is one product the warehouse did not accept.
type RowError struct {
	Index  int
	ItemID string
	Err    error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (item %s): %v", e.Index, e.ItemID, e.Err)
}

// Warehouse is the durable store of scraped products.
type Warehouse interface {
	InsertRows(ctx context.Context, country config.Country, products []models.Product) ([]RowError, error)
	CountRowsForDate(ctx context.Context, country config.Country, day Day) (map[string]int, error)
}

// HistoryStats summarises everything stored for one country.
type HistoryStats struct {
	TotalProducts   int64
	TotalCategories int64
	TotalDays       int64
	FirstRun        *time.Time
	LastRun         *time.Time
}

// AveragePerDay is the mean number of products per run day.
func (h HistoryStats) AveragePerDay() float64 {
	if h.TotalDays == 0 {
		return 0
	}
	return float64(h.TotalProducts) / float64(h.TotalDays)
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresWarehouse stores one table per country inside a dataset schema.
type PostgresWarehouse struct {
	db      dbtx
	pool    *pgxpool.Pool
	dataset string
}

var productColumns = []string{
	"name", "current_price", "original_price", "discount_percent",
	"rating", "reviews", "location", "item_id", "seller_name",
	"brand_name", "image_url", "category_name", "scraped_at",
}

// NewPostgresWarehouse connects to cfg.DSN and verifies the connection.
func NewPostgresWarehouse(ctx context.Context, cfg config.WarehouseConfig) (*PostgresWarehouse, error) {
	if cfg.DSN == "" {
		return nil, ErrNoWarehouse
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %w", ErrWarehouseUnavailable, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create pool: %w", ErrWarehouseUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrWarehouseUnavailable, err)
	}
	return &PostgresWarehouse{db: pool, pool: pool, dataset: cfg.Dataset}, nil
}

// Close releases the pool.
func (w *PostgresWarehouse) Close() {
	if w == nil || w.pool == nil {
		return
	}
	w.pool.Close()
}

func (w *PostgresWarehouse) table(country config.Country) string {
	return pgx.Identifier{w.dataset, country.Table}.Sanitize()
}

// EnsureSchema creates the dataset schema and one table per country.
func (w *PostgresWarehouse) EnsureSchema(ctx context.Context, countries []config.Country) error {
	if _, err := w.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{w.dataset}.Sanitize()); err != nil {
		return fmt.Errorf("create schema %s: %w", w.dataset, err)
	}
	for _, country := range countries {
		table := w.table(country)
		ddl := `
        CREATE TABLE IF NOT EXISTS ` + table + ` (
            id               BIGSERIAL PRIMARY KEY,
            name             TEXT NOT NULL DEFAULT '',
            current_price    TEXT NOT NULL DEFAULT '',
            original_price   TEXT NOT NULL DEFAULT '',
            discount_percent TEXT NOT NULL DEFAULT '',
            rating           TEXT NOT NULL DEFAULT '',
            reviews          TEXT NOT NULL DEFAULT '',
            location         TEXT NOT NULL DEFAULT '',
            item_id          TEXT NOT NULL DEFAULT '',
            seller_name      TEXT NOT NULL DEFAULT '',
            brand_name       TEXT NOT NULL DEFAULT '',
            image_url        TEXT NOT NULL DEFAULT '',
            category_name    TEXT NOT NULL,
            scraped_at       TIMESTAMPTZ NOT NULL
        )`
		if _, err := w.db.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
		index := pgx.Identifier{country.Table + "_scraped_at_idx"}.Sanitize()
		if _, err := w.db.Exec(ctx, "CREATE INDEX IF NOT EXISTS "+index+" ON "+table+" (scraped_at, category_name)"); err != nil {
			return fmt.Errorf("create index on %s: %w", table, err)
		}
	}
	return nil
}

// InsertRows inserts products one row at a time. Rejected rows are returned
// as RowErrors and never stop the remaining inserts; there is no rollback.
// The error return is reserved for an unusable context, reported as an
// *InterruptedInsertError.
func (w *PostgresWarehouse) InsertRows(ctx context.Context, country config.Country, products []models.Product) ([]RowError, error) {
	if len(products) == 0 {
		return nil, nil
	}
	query := insertStatement(w.table(country))

	var rowErrs []RowError
	for i, p := range products {
		if err := ctx.Err(); err != nil {
			return rowErrs, &InterruptedInsertError{Table: country.Table, Attempted: i, Err: err}
		}
		args, err := rowArgs(p)
		if err == nil {
			_, err = w.db.Exec(ctx, query, args...)
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: i, ItemID: p.ItemID, Err: err})
		}
	}
	if len(rowErrs) > 0 {
		slog.Warn("warehouse rejected rows",
			slog.String("table", country.Table),
			slog.Int("rejected", len(rowErrs)),
			slog.Int("total", len(products)),
		)
	}
	return rowErrs, nil
}

// CountRowsForDate returns the number of rows per category scraped within day.
// A table that does not exist yet counts as empty.
func (w *PostgresWarehouse) CountRowsForDate(ctx context.Context, country config.Country, day Day) (map[string]int, error) {
	query := `
        SELECT category_name, COUNT(*)
        FROM ` + w.table(country) + `
        WHERE scraped_at >= $1 AND scraped_at < $2
        GROUP BY category_name
        ORDER BY category_name`

	rows, err := w.db.Query(ctx, query, day.Start, day.End())
	if err != nil {
		if isUndefinedTableErr(err) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("count rows for %s on %s: %w", country.Table, day, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			category string
			count    int64
		)
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[category] = int(count)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTableErr(err) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("count rows for %s on %s: %w", country.Table, day, err)
	}
	return counts, nil
}

// History returns all-time totals for a country. Days are counted as
// calendar days in loc.
func (w *PostgresWarehouse) History(ctx context.Context, country config.Country, loc *time.Location) (HistoryStats, error) {
	query := `
        SELECT COUNT(*), COUNT(DISTINCT category_name),
               COUNT(DISTINCT DATE(scraped_at AT TIME ZONE $1)),
               MIN(scraped_at), MAX(scraped_at)
        FROM ` + w.table(country)

	var stats HistoryStats
	err := w.db.QueryRow(ctx, query, zoneName(loc)).Scan(
		&stats.TotalProducts,
		&stats.TotalCategories,
		&stats.TotalDays,
		&stats.FirstRun,
		&stats.LastRun,
	)
	if err != nil {
		if isUndefinedTableErr(err) {
			return HistoryStats{}, nil
		}
		return HistoryStats{}, fmt.Errorf("history for %s: %w", country.Table, err)
	}
	return stats, nil
}

// zoneName is the IANA name Postgres understands for loc. The process-local
// zone has no portable name, so it falls back to UTC.
func zoneName(loc *time.Location) string {
	if loc == nil || loc == time.Local || loc.String() == "" || loc.String() == "Local" {
		return "UTC"
	}
	return loc.String()
}

func insertStatement(table string) string {
	placeholders := make([]string, len(productColumns))
	for i := range productColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return "INSERT INTO " + table + " (" + strings.Join(productColumns, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
}

func rowArgs(p models.Product) ([]any, error) {
	scrapedAt, err := time.Parse(time.RFC3339Nano, p.ScrapedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid scraped_at %q: %w", p.ScrapedAt, err)
	}
	if strings.TrimSpace(p.CategoryName) == "" {
		return nil, fmt.Errorf("missing category_name")
	}
	return []any{
		p.Name,
		p.CurrentPrice,
		p.OriginalPrice,
		p.DiscountPercent,
		p.Rating,
		p.Reviews,
		p.Location,
		p.ItemID,
		p.SellerName,
		p.BrandName,
		p.ImageURL,
		p.CategoryName,
		scrapedAt,
	}, nil
}

func isUndefinedTableErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01" || pgErr.Code == "3F000"
	}
	return false
}
