package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// objectStore is the primitive API of a remote blob service. Keys are
// StorageLocations; errors are already classified as network or auth.
type objectStore interface {
	put(ctx context.Context, key string, file *os.File, size int64, progress func(int64)) error
	list(ctx context.Context, prefix string) ([]domain.StoredArtifact, error)
	remove(ctx context.Context, obj domain.StoredArtifact) error
	get(ctx context.Context, obj domain.StoredArtifact) (io.ReadCloser, error)
}

// RemoteStorage implements upload, retention and lookup on top of any
// objectStore.
type RemoteStorage struct {
	name   string
	store  objectStore
	logger Logger
}

func newRemote(name string, store objectStore, logger Logger) *RemoteStorage {
	return &RemoteStorage{name: name, store: store, logger: logger}
}

func (r *RemoteStorage) Name() string {
	return r.name
}

func (r *RemoteStorage) Upload(ctx context.Context, artifactPath string, database string, engine domain.Engine) error {
	file, err := os.Open(artifactPath)
	if err != nil {
		return domain.NewIOError("open artifact", artifactPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return domain.NewIOError("stat artifact", artifactPath, err)
	}

	key := domain.StorageLocation(engine, database, filepath.Base(artifactPath))
	r.logger.Infof("Uploading %s to %s as %s (%.2f MB)", artifactPath, r.name, key, float64(info.Size())/(1024*1024))

	if err := r.store.put(ctx, key, file, info.Size(), progressReporter(r.logger, key, info.Size())); err != nil {
		return err
	}

	r.logger.Infof("Uploaded %s to %s", key, r.name)
	return nil
}

// ApplyRetention deletes every artifact under the scope whose modification
// time is before cutoff. The first failure stops the pass.
func (r *RemoteStorage) ApplyRetention(ctx context.Context, cutoff time.Time, scope domain.RetentionScope) (int, error) {
	objects, err := r.store.list(ctx, scope.Prefix())
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, obj := range objects {
		if !isArtifactName(obj.Name) {
			continue
		}
		mod := modifiedAt(obj)
		if mod.IsZero() {
			r.logger.Warnf("Skipping %s on %s: no modification time", obj.Key, r.name)
			continue
		}
		if !domain.Expired(mod, cutoff) {
			continue
		}
		if err := r.store.remove(ctx, obj); err != nil {
			return deleted, err
		}
		deleted++
		r.logger.Infof("Deleted old backup from %s: %s", r.name, obj.Key)
	}
	return deleted, nil
}

func (r *RemoteStorage) Latest(ctx context.Context, database string, engine domain.Engine) (*domain.StoredArtifact, error) {
	objects, err := r.store.list(ctx, domain.LocationPrefix(engine, database))
	if err != nil {
		return nil, err
	}

	var candidates []domain.StoredArtifact
	for _, obj := range objects {
		if domain.IsArtifactOf(obj.Name, engine, database) {
			obj.ModifiedAt = modifiedAt(obj)
			candidates = append(candidates, obj)
		}
	}

	newest := domain.NewestArtifact(candidates)
	if newest == nil {
		return nil, domain.NewNotFoundError(engine, database, r.name)
	}
	return newest, nil
}

// Close releases the underlying client for stores that hold one.
func (r *RemoteStorage) Close() error {
	if closer, ok := r.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (r *RemoteStorage) Open(ctx context.Context, artifact *domain.StoredArtifact) (io.ReadCloser, error) {
	return r.store.get(ctx, *artifact)
}

// progressReporter logs upload progress at every quarter.
func progressReporter(logger Logger, key string, total int64) func(int64) {
	next := int64(25)
	return func(transferred int64) {
		if total <= 0 {
			return
		}
		pct := transferred * 100 / total
		for pct >= next && next <= 100 {
			logger.Infof("Upload of %s: %d%%", key, next)
			next += 25
		}
	}
}

func isArtifactName(name string) bool {
	return strings.HasSuffix(name, domain.DumpExtension+domain.CompressedExtension)
}

var nameTimestamp = regexp.MustCompile(`_(\d{14})\.sql`)

// modifiedAt falls back to the timestamp embedded in the file name for
// services that did not report a modification time.
func modifiedAt(obj domain.StoredArtifact) time.Time {
	if !obj.ModifiedAt.IsZero() {
		return obj.ModifiedAt
	}
	if ts, ok := timestampFromName(obj.Name); ok {
		return ts
	}
	return obj.ModifiedAt
}

func timestampFromName(name string) (time.Time, bool) {
	matches := nameTimestamp.FindStringSubmatch(name)
	if len(matches) < 2 {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(domain.TimestampLayout, matches[1], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
