package storage

import (
	"context"
	"fmt"

	"github.com/diamondpsi/psiweb/pkg/config"
)

// Reader provides read access to the campaign input files stored in a
// backend (local filesystem or S3). Names are slash separated and
// relative to the backend root, e.g. "run_logs/201608.json".
type Reader interface {
	// ReadFile reads a single file.
	// Returns (nil, nil) when the file does not exist.
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// List returns the sorted file names directly under dir.
	// Returns an empty list when dir does not exist.
	List(ctx context.Context, dir string) ([]string, error)

	// Location describes the backend root for log output.
	Location() string
}

// NewReader creates the Reader selected by cfg.Source.
func NewReader(cfg *config.DataConfig) (Reader, error) {
	switch cfg.Source {
	case "local":
		return NewLocalReader(cfg.Local.Dir), nil
	case "s3":
		return NewS3Reader(&cfg.S3), nil
	default:
		return nil, fmt.Errorf("unsupported data source %q", cfg.Source)
	}
}
