package reportstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// localStore treats bucket as a subdirectory under RootDir, the
// development-mode backend used when no object storage is configured.
type localStore struct {
	rootDir string
}

func newLocalStore(opts Options) (Store, error) {
	return &localStore{rootDir: opts.LocalRootDir}, nil
}

func (l *localStore) Download(ctx context.Context, bucket, key string, w io.WriterAt) error {
	f, err := os.Open(filepath.Join(l.rootDir, bucket, key))
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	var offset int64
	for {
		n, rerr := f.Read(buf)
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

func (l *localStore) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	dir := filepath.Join(l.rootDir, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, key))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}
