package reportstore

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

type s3Store struct {
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
}

func newS3Store(opts Options) (Store, error) {
	cfg := aws.NewConfig().WithRegion(opts.Region)
	if opts.AccessKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, ""))
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return &s3Store{
		downloader: s3manager.NewDownloader(sess),
		uploader:   s3manager.NewUploader(sess),
	}, nil
}

func (s *s3Store) Download(ctx context.Context, bucket, key string, w io.WriterAt) error {
	_, err := s.downloader.DownloadWithContext(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *s3Store) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	return err
}
