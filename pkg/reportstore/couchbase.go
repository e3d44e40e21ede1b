package reportstore

import (
	"context"
	"io"

	"github.com/couchbase/gocb/v2"
)

// couchbaseStore stores report/sample bytes as binary documents in a
// Couchbase bucket, keyed by "bucket/key" since gocb addresses documents
// by ID within one connection-level bucket rather than by bucket name per
// call.
type couchbaseStore struct {
	collection *gocb.Collection
}

func newCouchbaseStore(opts Options) (Store, error) {
	cluster, err := gocb.Connect(opts.CouchbaseConnStr, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: opts.AccessKey,
			Password: opts.SecretKey,
		},
	})
	if err != nil {
		return nil, err
	}
	bucket := cluster.Bucket(opts.CouchbaseBucket)
	return &couchbaseStore{collection: bucket.DefaultCollection()}, nil
}

func (c *couchbaseStore) Download(ctx context.Context, bucket, key string, w io.WriterAt) error {
	res, err := c.collection.Get(bucket+"/"+key, &gocb.GetOptions{Transcoder: gocb.NewRawBinaryTranscoder()})
	if err != nil {
		return err
	}
	var raw []byte
	if err := res.Content(&raw); err != nil {
		return err
	}
	_, err = w.WriteAt(raw, 0)
	return err
}

func (c *couchbaseStore) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = c.collection.Upsert(bucket+"/"+key, raw, &gocb.UpsertOptions{Transcoder: gocb.NewRawBinaryTranscoder()})
	return err
}
