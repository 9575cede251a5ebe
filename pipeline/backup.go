package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-lazada/models"
)

// RunDirLayout names the per-run backup directory.
const RunDirLayout = "2006-01-02_15-04-05"

// FileSink writes the local backup for one category of a run.
type FileSink interface {
	WriteCategoryFile(runDir, category string, products []models.Product) (string, error)
}

// BackupWriter writes one file per category under the run directory.
type BackupWriter struct {
	format string
}

// NewBackupWriter returns a FileSink for format csv, json, or dual.
func NewBackupWriter(format string) (*BackupWriter, error) {
	switch format {
	case "csv", "json", "dual":
		return &BackupWriter{format: format}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// RunDir is the backup directory for a run started at t.
func RunDir(dataDir string, t time.Time) string {
	return filepath.Join(dataDir, t.Format(RunDirLayout))
}

// FileSlug turns a category name into a file name stem.
func FileSlug(category string) string {
	slug := strings.ReplaceAll(category, " ", "_")
	slug = strings.ReplaceAll(slug, "&", "and")
	slug = strings.ReplaceAll(slug, ",", "")
	slug = strings.ReplaceAll(slug, "/", "_")
	return strings.ToLower(slug)
}

// WriteCategoryFile implements FileSink and returns the main file path.
func (b *BackupWriter) WriteCategoryFile(runDir, category string, products []models.Product) (string, error) {
	base := filepath.Join(runDir, FileSlug(category))
	path, writer, err := b.open(base)
	if err != nil {
		return "", err
	}

	if err := writer.Write(products); err != nil {
		writer.Close()
		return "", fmt.Errorf("write backup %s: %w", path, err)
	}
	if err := writer.Validate(); err != nil {
		writer.Close()
		return "", fmt.Errorf("validate backup %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close backup %s: %w", path, err)
	}
	return path, nil
}

func (b *BackupWriter) open(base string) (string, OutputWriter, error) {
	switch b.format {
	case "json":
		path := base + ".jsonl"
		w, err := NewJSONWriter(path)
		return path, w, err
	case "dual":
		path := base + ".csv"
		w, err := NewDualWriter(path, base+".jsonl")
		return path, w, err
	default:
		path := base + ".csv"
		w, err := NewCSVWriter(path)
		return path, w, err
	}
}
