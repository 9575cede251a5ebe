// Package pipeline persists normalized products to the local backup files
// and the warehouse.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-scrape-lazada/config"
	"github.com/aluiziolira/go-scrape-lazada/models"
	"github.com/aluiziolira/go-scrape-lazada/parser"
)

var (
	// ErrPipelineClosed is returned when Persist is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// Batch is the output of one category fetch.
type Batch struct {
	Country  config.Country
	RunDir   string
	Category string
	Products []models.Product
}

// PersistResult reports what each sink did with a batch. Each sink is
// independent: a file failure does not skip the warehouse and vice versa.
type PersistResult struct {
	File         string
	FileErr      error
	Inserted     int
	RowErrors    []RowError
	WarehouseErr error
}

// Errors flattens the sink failures into messages for the run summary.
func (r PersistResult) Errors() []string {
	var out []string
	if r.FileErr != nil {
		out = append(out, "file: "+r.FileErr.Error())
	}
	if r.WarehouseErr != nil {
		out = append(out, "warehouse: "+r.WarehouseErr.Error())
	}
	for _, rowErr := range r.RowErrors {
		out = append(out, "warehouse: "+rowErr.Error())
	}
	return out
}

// Pipeline writes each batch to the file sink, then the warehouse.
type Pipeline struct {
	files     FileSink
	warehouse Warehouse

	metrics metrics

	mu     sync.Mutex
	closed bool
}

// NewPipeline builds a pipeline. Either sink may be nil.
func NewPipeline(files FileSink, warehouse Warehouse) *Pipeline {
	return &Pipeline{
		files:     files,
		warehouse: warehouse,
		metrics:   newMetrics(),
	}
}

// Persist writes one batch. Every product is written; products failing
// validation are only counted.
func (p *Pipeline) Persist(ctx context.Context, batch Batch) (PersistResult, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return PersistResult{}, ErrPipelineClosed
	}

	for _, product := range batch.Products {
		if err := parser.ValidateProduct(product); err != nil {
			p.metrics.addValidation("invalid_record")
			slog.Debug("product failed validation", slog.String("category", batch.Category), slog.Any("error", err))
		}
	}

	var res PersistResult
	logger := slog.With(slog.String("country", batch.Country.Key), slog.String("category", batch.Category))

	if p.files != nil {
		path, err := p.files.WriteCategoryFile(batch.RunDir, batch.Category, batch.Products)
		if err != nil {
			res.FileErr = err
			p.metrics.addValidation("file_error")
			logger.Warn("backup file write failed", slog.Any("error", err))
		} else {
			res.File = path
			logger.Info("saved backup", slog.String("file", path), slog.Int("products", len(batch.Products)))
		}
	}

	if p.warehouse != nil && len(batch.Products) > 0 {
		rowErrs, err := p.warehouse.InsertRows(ctx, batch.Country, batch.Products)
		res.RowErrors = rowErrs
		if err != nil {
			res.WarehouseErr = fmt.Errorf("insert rows: %w", err)
			logger.Error("warehouse upload failed", slog.Any("error", err))
		}
		res.Inserted = attemptedRows(len(batch.Products), err) - len(rowErrs)
		p.metrics.addRowErrors(len(rowErrs))
		if err == nil && len(rowErrs) == 0 {
			logger.Info("uploaded to warehouse", slog.Int("products", res.Inserted))
		}
	}

	p.metrics.addProcessed(len(batch.Products))
	return res, nil
}

// attemptedRows is how many of total rows reached the warehouse given the
// error InsertRows returned.
func attemptedRows(total int, err error) int {
	if err == nil {
		return total
	}
	var interrupted *InterruptedInsertError
	if errors.As(err, &interrupted) {
		return interrupted.Attempted
	}
	return 0
}

// Close prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	rowErrors  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) addProcessed(n int) {
	m.mu.Lock()
	m.processed += int64(n)
	m.mu.Unlock()
}

func (m *metrics) addRowErrors(n int) {
	m.mu.Lock()
	m.rowErrors += int64(n)
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_products": m.processed,
		"row_errors":         m.rowErrors,
		"validation_errors":  copyValidation,
	}
}
