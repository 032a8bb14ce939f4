// Package upload publishes the generated site directory.
package upload

import "context"

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "site"

// Uploader uploads a local site directory to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	Preflight(ctx context.Context) error

	// Upload uploads all files below siteDir, keyed by their path
	// relative to siteDir under the configured prefix.
	Upload(ctx context.Context, siteDir string) (int, error)
}
