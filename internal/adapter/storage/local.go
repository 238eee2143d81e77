package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

const localName = "Local"

type LocalStorage struct {
	basePath string
	logger   Logger
	rename   func(oldpath, newpath string) error
}

func NewLocal(basePath string, logger Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{basePath: basePath, logger: logger, rename: os.Rename}, nil
}

func (l *LocalStorage) Name() string {
	return localName
}

// GetPath maps a storage key to its path under the backup directory.
func (l *LocalStorage) GetPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

// Upload moves the artifact to {backup_path}/{engine}/{database}/. A rename
// across filesystems falls back to copy, fsync and remove.
func (l *LocalStorage) Upload(ctx context.Context, artifactPath string, database string, engine domain.Engine) error {
	destPath := l.GetPath(domain.StorageLocation(engine, database, filepath.Base(artifactPath)))

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return domain.NewIOError("create backup directory", filepath.Dir(destPath), err)
	}

	if err := l.rename(artifactPath, destPath); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return domain.NewIOError("move artifact", destPath, err)
		}
		if err := copyFile(artifactPath, destPath); err != nil {
			return domain.NewIOError("copy artifact", destPath, err)
		}
		if err := os.Remove(artifactPath); err != nil {
			l.logger.Warnf("Copied %s but could not remove the staged file: %v", destPath, err)
		}
	}

	l.logger.Infof("Backup saved locally: %s", destPath)
	return nil
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmpPath := destPath + ".part"
	dest, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := dest.Sync(); err != nil {
		dest.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := dest.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, destPath)
}

// StagingDirName is the directory under the backup path where dumps wait
// for their move. Retention never looks inside it.
const StagingDirName = ".staging"

// ApplyRetention removes artifacts under the scope directory modified before
// cutoff. A missing directory prunes nothing.
func (l *LocalStorage) ApplyRetention(ctx context.Context, cutoff time.Time, scope domain.RetentionScope) (int, error) {
	root := l.GetPath(scope.Prefix())
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	deleted := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() && d.Name() == StagingDirName {
			return fs.SkipDir
		}
		if !d.Type().IsRegular() || !isArtifactName(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !domain.Expired(info.ModTime(), cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			return err
		}
		deleted++
		l.logger.Infof("Deleted old backup: %s", path)
		return nil
	})
	if err != nil {
		return deleted, domain.NewIOError("apply retention", root, err)
	}
	return deleted, nil
}

func (l *LocalStorage) Latest(ctx context.Context, database string, engine domain.Engine) (*domain.StoredArtifact, error) {
	dir := l.GetPath(domain.LocationPrefix(engine, database))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewNotFoundError(engine, database, localName)
	}
	if err != nil {
		return nil, domain.NewIOError("read backup directory", dir, err)
	}

	var candidates []domain.StoredArtifact
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !domain.IsArtifactOf(entry.Name(), engine, database) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, domain.NewIOError("stat backup", filepath.Join(dir, entry.Name()), err)
		}
		candidates = append(candidates, domain.StoredArtifact{
			Key:        domain.StorageLocation(engine, database, entry.Name()),
			Name:       entry.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	newest := domain.NewestArtifact(candidates)
	if newest == nil {
		return nil, domain.NewNotFoundError(engine, database, localName)
	}
	return newest, nil
}

func (l *LocalStorage) Open(ctx context.Context, artifact *domain.StoredArtifact) (io.ReadCloser, error) {
	path := l.GetPath(artifact.Key)
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewIOError("open backup", path, err)
	}
	return f, nil
}
