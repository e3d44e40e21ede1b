// Package reportstore is the pluggable object-storage layer scan reports
// and source samples move through: local disk during development, S3,
// Minio, or Couchbase in a deployed pipeline, mirroring the
// DeploymentKind switch the original orchestrator service used to pick a
// backend.
package reportstore

import (
	"context"
	"fmt"
	"io"
)

// Store downloads and uploads objects keyed by name within bucket.
type Store interface {
	Download(ctx context.Context, bucket, key string, w io.WriterAt) error
	Upload(ctx context.Context, bucket, key string, r io.Reader) error
}

// Options carries every backend's credentials; only the fields relevant
// to the selected DeploymentKind need to be set.
type Options struct {
	Region           string
	AccessKey        string
	SecretKey        string
	MinioEndpoint    string
	LocalRootDir     string
	CouchbaseConnStr string
	CouchbaseBucket  string
}

// New builds the Store for the given deployment kind: "aws", "minio",
// "couchbase", or "local".
func New(kind string, opts Options) (Store, error) {
	switch kind {
	case "aws":
		return newS3Store(opts)
	case "minio":
		return newMinioStore(opts)
	case "couchbase":
		return newCouchbaseStore(opts)
	case "local":
		return newLocalStore(opts)
	default:
		return nil, fmt.Errorf("reportstore: unknown deployment kind %q", kind)
	}
}
