package reportstore

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type minioStore struct {
	client *minio.Client
}

func newMinioStore(opts Options) (Store, error) {
	client, err := minio.New(opts.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: true,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}
	return &minioStore{client: client}, nil
}

func (m *minioStore) Download(ctx context.Context, bucket, key string, w io.WriterAt) error {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	buf := make([]byte, 32*1024)
	var offset int64
	for {
		n, rerr := obj.Read(buf)
		if n > 0 {
			if _, werr := w.WriteAt(buf[:n], offset); werr != nil {
				return werr
			}
			offset += int64(n)
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func (m *minioStore) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	_, err := m.client.PutObject(ctx, bucket, key, r, -1, minio.PutObjectOptions{})
	return err
}
