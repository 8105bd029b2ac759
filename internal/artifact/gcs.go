package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores artifacts as objects under bucket/prefix. A single object
// upload is atomic: the new generation becomes visible only when the
// writer closes successfully.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS connects with application default credentials, or anonymously to
// STORAGE_EMULATOR_HOST when it is set.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs: bucket required")
	}
	var opts []option.ClientOption
	if os.Getenv("STORAGE_EMULATOR_HOST") != "" {
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (g *GCS) key(name string) string {
	if g.prefix == "" {
		return name
	}
	return path.Join(g.prefix, name)
}

func (g *GCS) Get(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	r, err := g.client.Bucket(g.bucket).Object(g.key(name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", g.Location(name), err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g *GCS) Put(ctx context.Context, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	w := g.client.Bucket(g.bucket).Object(g.key(name)).NewWriter(ctx)
	w.ContentType = contentType(name)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing %s: %w", g.Location(name), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing %s: %w", g.Location(name), err)
	}
	return nil
}

func (g *GCS) Location(name string) string {
	return "gs://" + g.bucket + "/" + g.key(name)
}

func (g *GCS) Close() error { return g.client.Close() }

func contentType(name string) string {
	switch path.Ext(name) {
	case ".csv":
		return "text/csv"
	case ".md":
		return "text/markdown; charset=utf-8"
	}
	return "application/octet-stream"
}
