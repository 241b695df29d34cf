package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func sampleRecords() []*types.ClaimReviewRecord {
	return []*types.ClaimReviewRecord{
		{
			FactcheckURL:  "https://factcheck.example/checks/moon",
			ClaimReviewed: types.StringPtr("La lune est en fromage & <pain>"),
			ReviewRating:  json.RawMessage(`{"@type":"Rating","alternateName":"Faux"}`),
			DatePublished: types.StringPtr("2021-03-01"),
			ItemsReviewed: []string{"https://social.example.net/post/42", "https://video.example.tv/v/1"},
		},
		{
			FactcheckURL:  "https://factcheck.example/checks/sun",
			ItemsReviewed: []string{"https://social.example.net/post/7"},
		},
	}
}

func TestJSONStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	s, err := NewJSONStorage(path, testLogger)
	require.NoError(t, err)

	recs := sampleRecords()
	require.NoError(t, s.Store(recs[:1]))
	require.NoError(t, s.Store(recs[1:]))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "\n    {\n        \"factcheck_url\"", "expected four-space indentation")
	assert.Contains(t, out, "La lune est en fromage & <pain>", "text should not be escaped")

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Nil(t, decoded[1]["claim_reviewed"])
	assert.Nil(t, decoded[1]["review_rating"])
	assert.NotContains(t, decoded[0], "claim_translated")
}

func TestJSONStorageEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	s, err := NewJSONStorage(path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(data)))
}

func TestJSONLStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := NewJSONLStorage(path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store(sampleRecords()))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first types.ClaimReviewRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "https://factcheck.example/checks/moon", first.FactcheckURL)
	assert.Len(t, first.ItemsReviewed, 2)
}

func TestCSVStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := NewCSVStorage(path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store(sampleRecords()))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, "https://social.example.net/post/42 https://video.example.tv/v/1", rows[1][5])
	assert.JSONEq(t, `{"@type":"Rating","alternateName":"Faux"}`, rows[1][4])
	assert.Equal(t, "", rows[2][1])
}

func TestRecordDocument(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc, err := recordDocument(sampleRecords()[0], now)
	require.NoError(t, err)

	assert.Equal(t, "https://factcheck.example/checks/moon", doc["factcheck_url"])
	rating, ok := doc["review_rating"].(map[string]any)
	require.True(t, ok, "review_rating should be structured, got %T", doc["review_rating"])
	assert.Equal(t, "Faux", rating["alternateName"])
	assert.Equal(t, now, doc["updated_at"])
	assert.Equal(t, sampleRecords()[0].Key(), doc["record_key"])
}

func TestRecordDocumentKeyPerClaim(t *testing.T) {
	now := time.Now().UTC()
	one := &types.ClaimReviewRecord{
		FactcheckURL:  "https://factcheck.example/roundup",
		ClaimReviewed: types.StringPtr("Claim one"),
		ItemsReviewed: []string{"https://a.example/1"},
	}
	two := &types.ClaimReviewRecord{
		FactcheckURL:  "https://factcheck.example/roundup",
		ClaimReviewed: types.StringPtr("Claim two"),
		ItemsReviewed: []string{"https://b.example/2"},
	}

	docOne, err := recordDocument(one, now)
	require.NoError(t, err)
	docTwo, err := recordDocument(two, now)
	require.NoError(t, err)

	assert.Equal(t, docOne["factcheck_url"], docTwo["factcheck_url"])
	assert.NotEqual(t, docOne["record_key"], docTwo["record_key"], "claims on one article must upsert separately")
}

type fakeStorage struct {
	name     string
	stored   int
	closed   bool
	storeErr error
}

func (f *fakeStorage) Name() string { return f.name }
func (f *fakeStorage) Store(records []*types.ClaimReviewRecord) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored += len(records)
	return nil
}
func (f *fakeStorage) Close() error { f.closed = true; return nil }

func TestMultiStorage(t *testing.T) {
	ok := &fakeStorage{name: "ok"}
	broken := &fakeStorage{name: "broken", storeErr: errors.New("disk full")}
	m := NewMultiStorage([]Storage{broken, ok}, testLogger)

	err := m.Store(sampleRecords())
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "broken", se.Backend)
	assert.Equal(t, 2, ok.stored, "a failing backend must not block the others")

	require.NoError(t, m.Close())
	assert.True(t, ok.closed)
	assert.True(t, broken.closed)
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StorageConfig{Type: "json, jsonl ,csv", OutputPath: filepath.Join(dir, "feed.json")}

	s, err := New(cfg, testLogger)
	require.NoError(t, err)
	multi, ok := s.(*MultiStorage)
	require.True(t, ok)
	require.Len(t, multi.Backends(), 3)
	require.NoError(t, s.Store(sampleRecords()))
	require.NoError(t, s.Close())

	for _, name := range []string{"feed.json", "feed.jsonl", "feed.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	_, err = New(config.StorageConfig{Type: "parquet"}, testLogger)
	var se *types.StorageError
	assert.ErrorAs(t, err, &se)
}
