package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

// Storage is the interface for all record backends.
type Storage interface {
	// Store persists a batch of records.
	Store(records []*types.ClaimReviewRecord) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New creates the backend named by cfg.Type. A comma-separated list such as
// "json,mongodb" fans out to every backend.
func New(cfg config.StorageConfig, logger *slog.Logger) (Storage, error) {
	var names []string
	for _, n := range strings.Split(cfg.Type, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = []string{"json"}
	}

	backends := make([]Storage, 0, len(names))
	for _, name := range names {
		b, err := newBackend(name, cfg, logger)
		if err != nil {
			for _, opened := range backends {
				_ = opened.Close()
			}
			return nil, &types.StorageError{Backend: name, Err: err}
		}
		backends = append(backends, b)
	}

	if len(backends) == 1 {
		return backends[0], nil
	}
	return NewMultiStorage(backends, logger), nil
}

func newBackend(name string, cfg config.StorageConfig, logger *slog.Logger) (Storage, error) {
	switch name {
	case "json":
		return NewJSONStorage(cfg.OutputPath, logger)
	case "jsonl":
		return NewJSONLStorage(withExt(cfg.OutputPath, ".jsonl"), logger)
	case "csv":
		return NewCSVStorage(withExt(cfg.OutputPath, ".csv"), logger)
	case "mongodb":
		return NewMongoStorage(cfg.Mongo, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", name)
	}
}

// withExt swaps a .json extension for ext so several file backends can share one
// configured output path.
func withExt(path, ext string) string {
	if path == "-" || path == "" {
		return path
	}
	if strings.HasSuffix(path, ".json") {
		return strings.TrimSuffix(path, ".json") + ext
	}
	return path
}
