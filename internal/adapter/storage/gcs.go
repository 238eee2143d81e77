package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
)

const gcsName = "GCS"

type gcsStore struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	prefix string
}

func NewGCS(ctx context.Context, cfg *config.GCSConfig, logger Logger) (*RemoteStorage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	store := &gcsStore{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		prefix: strings.Trim(cfg.Prefix, "/"),
	}
	return newRemote(gcsName, store, logger), nil
}

func (g *gcsStore) Close() error {
	return g.client.Close()
}

func (g *gcsStore) objectName(key string) string {
	switch {
	case g.prefix == "":
		return key
	case key == "":
		return g.prefix + "/"
	default:
		return g.prefix + "/" + key
	}
}

func (g *gcsStore) put(ctx context.Context, key string, file *os.File, size int64, progress func(int64)) error {
	name := g.objectName(key)
	writer := g.bucket.Object(name).NewWriter(ctx)
	writer.ContentType = "application/gzip"
	writer.ProgressFunc = progress

	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return classifyGoogle(gcsName, "upload", name, err)
	}
	if err := writer.Close(); err != nil {
		return classifyGoogle(gcsName, "upload", name, err)
	}
	return nil
}

func (g *gcsStore) list(ctx context.Context, prefix string) ([]domain.StoredArtifact, error) {
	fullPrefix := g.objectName(prefix)
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: fullPrefix})

	var objects []domain.StoredArtifact
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyGoogle(gcsName, "list", fullPrefix, err)
		}
		key := attrs.Name
		if g.prefix != "" {
			key = strings.TrimPrefix(key, g.prefix+"/")
		}
		objects = append(objects, domain.StoredArtifact{
			Key:        key,
			Name:       path.Base(key),
			Size:       attrs.Size,
			ModifiedAt: attrs.Updated,
		})
	}
	return objects, nil
}

func (g *gcsStore) remove(ctx context.Context, obj domain.StoredArtifact) error {
	name := g.objectName(obj.Key)
	if err := g.bucket.Object(name).Delete(ctx); err != nil {
		return classifyGoogle(gcsName, "delete", name, err)
	}
	return nil
}

func (g *gcsStore) get(ctx context.Context, obj domain.StoredArtifact) (io.ReadCloser, error) {
	name := g.objectName(obj.Key)
	reader, err := g.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, classifyGoogle(gcsName, "download", name, err)
	}
	return reader, nil
}

// classifyGoogle maps googleapi 401 and 403 errors to auth errors.
func classifyGoogle(backend, op, key string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && isAuthStatus(apiErr.Code) {
		return domain.NewAuthError(backend, op, key, err)
	}
	return domain.NewNetworkError(backend, op, key, err)
}
