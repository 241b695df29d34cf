package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/IshaanNene/itemreviewed/internal/types"
)

// openOutput opens path for writing, creating parent directories.
// "-" or "" means standard output, which is never closed.
func openOutput(path string) (io.Writer, io.Closer, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f, nil
}

// --- JSON Storage ---

// JSONStorage buffers records and writes them as one JSON array on Close.
// Output is indented with four spaces and keeps non-ASCII text as is.
type JSONStorage struct {
	path    string
	records []*types.ClaimReviewRecord
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewJSONStorage creates a new JSON file storage.
func NewJSONStorage(outputPath string, logger *slog.Logger) (*JSONStorage, error) {
	if outputPath != "" && outputPath != "-" {
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	return &JSONStorage{
		path:    outputPath,
		records: make([]*types.ClaimReviewRecord, 0),
		logger:  logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(records []*types.ClaimReviewRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	s.logger.Debug("records buffered", "count", len(records), "total", len(s.records))
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, closer, err := openOutput(s.path)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s.records); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}

	s.logger.Info("JSON written", "path", s.path, "records", len(s.records))
	return nil
}

// --- JSONL Storage ---

// JSONLStorage writes records as newline-delimited JSON (one object per line).
type JSONLStorage struct {
	path   string
	closer io.Closer
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage (streaming writes).
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	w, closer, err := openOutput(outputPath)
	if err != nil {
		return nil, err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLStorage{
		path:   outputPath,
		closer: closer,
		enc:    enc,
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(records []*types.ClaimReviewRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if err := s.enc.Encode(rec); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
		s.count++
	}
	return nil
}

func (s *JSONLStorage) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "records", s.count)
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// --- CSV Storage ---

// CSVHeader lists the CSV columns in order. review_rating holds the raw JSON value
// and items_reviewed the URLs separated by spaces.
var CSVHeader = []string{
	"factcheck_url",
	"claim_reviewed",
	"claim_translated",
	"factcheck_date_published",
	"review_rating",
	"items_reviewed",
}

// CSVStorage writes records as CSV rows.
type CSVStorage struct {
	path          string
	closer        io.Closer
	writer        *csv.Writer
	headerWritten bool
	mu            sync.Mutex
	count         int
	logger        *slog.Logger
}

// NewCSVStorage creates a new CSV file storage.
func NewCSVStorage(outputPath string, logger *slog.Logger) (*CSVStorage, error) {
	w, closer, err := openOutput(outputPath)
	if err != nil {
		return nil, err
	}

	return &CSVStorage{
		path:   outputPath,
		closer: closer,
		writer: csv.NewWriter(w),
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(records []*types.ClaimReviewRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.headerWritten {
		if err := s.writer.Write(CSVHeader); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
		s.headerWritten = true
	}

	for _, rec := range records {
		if err := s.writer.Write(csvRow(rec)); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
		s.count++
	}

	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVStorage) Close() error {
	s.logger.Info("CSV written", "path", s.path, "records", s.count)
	if s.writer != nil {
		s.writer.Flush()
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func csvRow(rec *types.ClaimReviewRecord) []string {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return []string{
		rec.FactcheckURL,
		deref(rec.ClaimReviewed),
		deref(rec.ClaimTranslated),
		deref(rec.DatePublished),
		string(rec.ReviewRating),
		strings.Join(rec.ItemsReviewed, " "),
	}
}
