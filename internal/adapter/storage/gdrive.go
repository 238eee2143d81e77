package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
)

const gdriveName = "GDrive"

// gdriveStore keeps every artifact directly in one folder; the storage key
// is used as the Drive file name.
type gdriveStore struct {
	service  *drive.Service
	folderID string
}

func NewGDrive(ctx context.Context, cfg *config.GDriveConfig, logger Logger) (*RemoteStorage, error) {
	service, err := drive.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	store := &gdriveStore{
		service:  service,
		folderID: cfg.FolderID,
	}
	return newRemote(gdriveName, store, logger), nil
}

func (g *gdriveStore) put(ctx context.Context, key string, file *os.File, size int64, progress func(int64)) error {
	fileMetadata := &drive.File{
		Name:     key,
		Parents:  []string{g.folderID},
		MimeType: "application/gzip",
	}

	_, err := g.service.Files.Create(fileMetadata).
		Media(file).
		ProgressUpdater(func(current, _ int64) { progress(current) }).
		Context(ctx).
		Do()
	if err != nil {
		return classifyGoogle(gdriveName, "upload", key, err)
	}
	return nil
}

func (g *gdriveStore) list(ctx context.Context, prefix string) ([]domain.StoredArtifact, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false", g.folderID)

	var objects []domain.StoredArtifact
	err := g.service.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name, size, modifiedTime)").
		Context(ctx).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				if !strings.HasPrefix(f.Name, prefix) {
					continue
				}
				// unparsable times stay zero and fall back to the name
				modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
				objects = append(objects, domain.StoredArtifact{
					Key:        f.Name,
					Name:       path.Base(f.Name),
					Size:       f.Size,
					ModifiedAt: modified,
					ID:         f.Id,
				})
			}
			return nil
		})
	if err != nil {
		return nil, classifyGoogle(gdriveName, "list", prefix, err)
	}
	return objects, nil
}

func (g *gdriveStore) remove(ctx context.Context, obj domain.StoredArtifact) error {
	if err := g.service.Files.Delete(obj.ID).Context(ctx).Do(); err != nil {
		return classifyGoogle(gdriveName, "delete", obj.Key, err)
	}
	return nil
}

func (g *gdriveStore) get(ctx context.Context, obj domain.StoredArtifact) (io.ReadCloser, error) {
	resp, err := g.service.Files.Get(obj.ID).Context(ctx).Download()
	if err != nil {
		return nil, classifyGoogle(gdriveName, "download", obj.Key, err)
	}
	return resp.Body, nil
}
