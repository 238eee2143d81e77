package usecase

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

type fakeResolver struct {
	names     []string
	engines   map[string]domain.Engine
	engineErr map[string]error
}

func (r *fakeResolver) Databases() []string { return r.names }

func (r *fakeResolver) Engine(name string) (domain.Engine, error) {
	if err := r.engineErr[name]; err != nil {
		return "", err
	}
	engine, ok := r.engines[name]
	if !ok {
		return "", domain.NewConfigError(name+".type", "no engine type configured")
	}
	return engine, nil
}

func (r *fakeResolver) Credentials(name string, engine domain.Engine) (domain.Credentials, error) {
	return domain.Credentials{Host: "localhost", Port: 3306, User: "root", Password: "secret"}, nil
}

type fakeBackends map[domain.Engine]domain.Database

func (b fakeBackends) Get(engine domain.Engine) (domain.Database, error) {
	db, ok := b[engine]
	if !ok {
		return nil, domain.NewConfigError("type", "no backend registered for engine "+string(engine))
	}
	return db, nil
}

// fakeDatabase writes "-- dump of <name>" instead of running a dump tool.
type fakeDatabase struct {
	engine     domain.Engine
	backupErr  map[string]error
	restoreErr error
	backups    []string
	restored   []string
}

func newFakeDatabase(engine domain.Engine) *fakeDatabase {
	return &fakeDatabase{engine: engine, backupErr: make(map[string]error)}
}

func dumpContent(name string) string {
	return "-- dump of " + name + "\nCREATE TABLE t (id INT);\n"
}

func (f *fakeDatabase) Engine() domain.Engine { return f.engine }

func (f *fakeDatabase) Backup(ctx context.Context, name string, creds domain.Credentials, dir string) (*domain.Artifact, error) {
	f.backups = append(f.backups, name)
	if err := f.backupErr[name]; err != nil {
		return nil, domain.NewBackupError(f.engine, name, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, domain.ArtifactFilename(f.engine, name, fixedNow))
	content := dumpContent(name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, err
	}
	return &domain.Artifact{Database: name, Engine: f.engine, CreatedAt: fixedNow, Path: path, Size: int64(len(content))}, nil
}

func (f *fakeDatabase) Restore(ctx context.Context, name string, creds domain.Credentials, sqlPath string) error {
	content, err := os.ReadFile(sqlPath)
	if err != nil {
		return err
	}
	f.restored = append(f.restored, string(content))
	return f.restoreErr
}

func (f *fakeDatabase) ListDatabases(ctx context.Context, creds domain.Credentials) ([]string, error) {
	return nil, nil
}

// memStorage keeps uploaded artifacts in memory.
type memStorage struct {
	objects      map[string][]byte
	modTimes     map[string]time.Time
	uploadErr    map[string]error
	retentionErr error
	scopes       []domain.RetentionScope
	deletePerRun int
}

func newMemStorage() *memStorage {
	return &memStorage{
		objects:   make(map[string][]byte),
		modTimes:  make(map[string]time.Time),
		uploadErr: make(map[string]error),
	}
}

func (m *memStorage) Name() string { return "Memory" }

func (m *memStorage) Upload(ctx context.Context, artifactPath string, database string, engine domain.Engine) error {
	if err := m.uploadErr[database]; err != nil {
		return err
	}
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return err
	}
	key := domain.StorageLocation(engine, database, filepath.Base(artifactPath))
	m.objects[key] = data
	m.modTimes[key] = fixedNow
	return nil
}

func (m *memStorage) ApplyRetention(ctx context.Context, cutoff time.Time, scope domain.RetentionScope) (int, error) {
	m.scopes = append(m.scopes, scope)
	if m.retentionErr != nil {
		return 0, m.retentionErr
	}
	return m.deletePerRun, nil
}

func (m *memStorage) Latest(ctx context.Context, database string, engine domain.Engine) (*domain.StoredArtifact, error) {
	var candidates []domain.StoredArtifact
	for key, data := range m.objects {
		name := filepath.Base(key)
		if strings.HasPrefix(key, domain.LocationPrefix(engine, database)) && domain.IsArtifactOf(name, engine, database) {
			candidates = append(candidates, domain.StoredArtifact{Key: key, Name: name, Size: int64(len(data)), ModifiedAt: m.modTimes[key]})
		}
	}
	newest := domain.NewestArtifact(candidates)
	if newest == nil {
		return nil, domain.NewNotFoundError(engine, database, m.Name())
	}
	return newest, nil
}

func (m *memStorage) Open(ctx context.Context, artifact *domain.StoredArtifact) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[artifact.Key])), nil
}

type fakeHistory struct {
	records   []domain.RunRecord
	recordErr error
	hashes    map[string]string
}

func (h *fakeHistory) Record(ctx context.Context, rec *domain.RunRecord) error {
	if h.recordErr != nil {
		return h.recordErr
	}
	h.records = append(h.records, *rec)
	return nil
}

func (h *fakeHistory) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	return h.records, nil
}

func (h *fakeHistory) ArchiveHash(ctx context.Context, location string) (string, error) {
	return h.hashes[location], nil
}

type fakeNotifier struct {
	runID   string
	records []domain.RunRecord
}

func (n *fakeNotifier) Notify(ctx context.Context, runID string, records []domain.RunRecord) error {
	n.runID, n.records = runID, records
	return nil
}

// brokenCompressor fails every Compress call.
type brokenCompressor struct {
	domain.Compressor
}

func (brokenCompressor) Compress(rawPath string) (string, error) {
	return "", domain.NewIOError("create dest file", rawPath+".gz", os.ErrPermission)
}

// corruptingCompressor compresses for real but hands back garbage when the
// archive is read.
type corruptingCompressor struct {
	domain.Compressor
}

func (corruptingCompressor) Reader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("corrupted")), nil
}

// unreadableHasher fails every Hash call.
type unreadableHasher struct {
	domain.Hasher
}

func (unreadableHasher) Hash(path string) (string, error) {
	return "", domain.NewIOError("read file", path, os.ErrPermission)
}
