// Package archive defines where snapshots of crawler-facing documents are
// kept. Drivers live in subpackages: memory for tests and development, local
// for a filesystem directory, and gcs for a Cloud Storage bucket.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// BlobStore persists an object and returns a URI describing where it landed.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// SnapshotKey returns the object key for a document served for pageURL at ts:
// snapshots/YYYY/MM/DD/<sha256(pageURL)>.html. The key is stable for the
// same URL within a UTC day, so repeated crawls overwrite one object.
func SnapshotKey(pageURL string, ts time.Time) string {
	sum := sha256.Sum256([]byte(pageURL))
	day := ts.UTC()
	return fmt.Sprintf("snapshots/%04d/%02d/%02d/%s.html",
		day.Year(), int(day.Month()), day.Day(), hex.EncodeToString(sum[:]))
}
