package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

type RestoreResult struct {
	Database    string
	Engine      domain.Engine
	Stage       Stage
	FailedStage Stage
	Artifact    *domain.StoredArtifact
	Err         error
	Duration    time.Duration
}

type Restore struct {
	resolver   Resolver
	backends   Backends
	source     domain.ArtifactSource
	compressor domain.Compressor
	hasher     domain.Hasher
	history    domain.History
	logger     Logger
	stagingDir string
	now        func() time.Time
}

func NewRestore(
	resolver Resolver,
	backends Backends,
	source domain.ArtifactSource,
	compressor domain.Compressor,
	hasher domain.Hasher,
	logger Logger,
	stagingDir string,
) *Restore {
	return &Restore{
		resolver:   resolver,
		backends:   backends,
		source:     source,
		compressor: compressor,
		hasher:     hasher,
		logger:     logger,
		stagingDir: stagingDir,
		now:        time.Now,
	}
}

// WithHistory verifies downloads against the archive digests in h.
func (uc *Restore) WithHistory(h domain.History) *Restore {
	uc.history = h
	return uc
}

// Execute restores the newest backup of one database. Scratch files are
// removed whatever the outcome.
func (uc *Restore) Execute(ctx context.Context, name string) (*RestoreResult, error) {
	start := uc.now()
	res := &RestoreResult{Database: name}
	defer func() { res.Duration = uc.now().Sub(start) }()

	fail := func(stage Stage, err error) (*RestoreResult, error) {
		res.Stage, res.FailedStage, res.Err = StageFailed, stage, err
		uc.logger.Errorf("[%s] Restore %s failed: %v", name, stage, err)
		return res, err
	}

	res.Stage = StageResolving
	engine, err := uc.resolver.Engine(name)
	if err != nil {
		return fail(StageResolving, err)
	}
	res.Engine = engine
	backend, err := uc.backends.Get(engine)
	if err != nil {
		return fail(StageResolving, err)
	}
	creds, err := uc.resolver.Credentials(name, engine)
	if err != nil {
		return fail(StageResolving, err)
	}

	res.Stage = StageLocating
	artifact, err := uc.source.Latest(ctx, name, engine)
	if err != nil {
		return fail(StageLocating, err)
	}
	res.Artifact = artifact
	uc.logger.Infof("[%s] Restoring from %s", name, artifact.Key)

	if err := os.MkdirAll(uc.stagingDir, 0755); err != nil {
		return fail(StageDecompressing, domain.NewIOError("create staging directory", uc.stagingDir, err))
	}
	archivePath := filepath.Join(uc.stagingDir, "restore_"+artifact.Name)
	sqlPath := strings.TrimSuffix(archivePath, uc.compressor.Extension())
	defer func() {
		res.Stage = StageCleaningUp
		uc.removeScratch(name, archivePath, sqlPath)
		if res.Err != nil {
			res.Stage = StageFailed
		} else {
			res.Stage = StageRestored
		}
	}()

	res.Stage = StageDecompressing
	if err := uc.fetch(ctx, artifact, archivePath); err != nil {
		return fail(StageDecompressing, err)
	}
	if err := uc.decompress(archivePath, sqlPath); err != nil {
		return fail(StageDecompressing, err)
	}

	res.Stage = StageRestoring
	if err := backend.Restore(ctx, name, creds, sqlPath); err != nil {
		return fail(StageRestoring, err)
	}

	uc.logger.Infof("[%s] Restore of %s completed", name, artifact.Name)
	return res, nil
}

// fetch downloads the artifact and verifies it against the recorded digest
// when one is known.
func (uc *Restore) fetch(ctx context.Context, artifact *domain.StoredArtifact, dest string) error {
	rc, err := uc.source.Open(ctx, artifact)
	if err != nil {
		return err
	}
	defer rc.Close()

	file, err := os.Create(dest)
	if err != nil {
		return domain.NewIOError("create scratch file", dest, err)
	}
	if _, err := io.Copy(file, rc); err != nil {
		file.Close()
		return domain.NewIOError("download artifact", dest, err)
	}
	if err := file.Close(); err != nil {
		return domain.NewIOError("close scratch file", dest, err)
	}

	if uc.history == nil {
		return nil
	}
	expected, err := uc.history.ArchiveHash(ctx, artifact.Key)
	if err != nil {
		uc.logger.Warnf("Could not look up digest of %s: %v", artifact.Key, err)
		return nil
	}
	if expected == "" {
		return nil
	}
	ok, err := uc.hasher.Verify(dest, expected)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewIOError("verify artifact", artifact.Key, fmt.Errorf("digest does not match recorded %s", expected))
	}
	uc.logger.Infof("Verified %s against recorded digest", artifact.Key)
	return nil
}

func (uc *Restore) decompress(archivePath, sqlPath string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return domain.NewIOError("open scratch archive", archivePath, err)
	}
	defer file.Close()
	return uc.compressor.Decompress(file, sqlPath)
}

func (uc *Restore) removeScratch(name string, paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			uc.logger.Warnf("[%s] Failed to remove scratch file %s: %v", name, p, err)
		}
	}
}
