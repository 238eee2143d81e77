package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// Outcome is the result of one database in one backup run.
type Outcome struct {
	Database string
	Engine   domain.Engine
	// Stage is Uploaded, Pruned or Failed once the run is over.
	Stage       Stage
	FailedStage Stage
	Err         error
	Artifact    *domain.Artifact
	StartedAt   time.Time
	Duration    time.Duration
}

func (o *Outcome) Failed() bool {
	return o.Stage == StageFailed
}

// Record converts the outcome into a history row.
func (o *Outcome) Record(runID string) domain.RunRecord {
	rec := domain.RunRecord{
		RunID:     runID,
		Database:  o.Database,
		Engine:    o.Engine,
		Status:    string(o.Stage),
		Stage:     string(o.Stage),
		StartedAt: o.StartedAt,
		Duration:  o.Duration,
	}
	if o.Failed() {
		rec.Stage = string(o.FailedStage)
		rec.Error = o.Err.Error()
	}
	if o.Artifact != nil {
		rec.ContentHash = o.Artifact.ContentHash
		rec.ArchiveHash = o.Artifact.ArchiveHash
		rec.Size = o.Artifact.Size
		if !o.Failed() {
			rec.Location = o.Artifact.Location()
		}
	}
	return rec
}

type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Outcomes  []*Outcome
	// Deleted counts artifacts removed by the retention pass.
	Deleted int
}

// Failures returns the number of databases that ended in Failed.
func (r *Report) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

type BackupOptions struct {
	RunID         string
	StagingDir    string
	RetentionDays int
	// PerDatabaseRetention prunes each database's prefix instead of the
	// whole backend.
	PerDatabaseRetention bool
}

type Backup struct {
	resolver   Resolver
	backends   Backends
	storage    domain.Storage
	compressor domain.Compressor
	hasher     domain.Hasher
	cleanup    *Cleanup
	history    domain.History
	notifier   domain.Notifier
	logger     Logger
	opts       BackupOptions
	now        func() time.Time
}

func NewBackup(
	resolver Resolver,
	backends Backends,
	storage domain.Storage,
	compressor domain.Compressor,
	hasher domain.Hasher,
	logger Logger,
	opts BackupOptions,
) *Backup {
	return &Backup{
		resolver:   resolver,
		backends:   backends,
		storage:    storage,
		compressor: compressor,
		hasher:     hasher,
		cleanup:    NewCleanup(storage, logger, opts.PerDatabaseRetention),
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

// WithHistory records every outcome in h.
func (uc *Backup) WithHistory(h domain.History) *Backup {
	uc.history = h
	return uc
}

// WithNotifier sends a summary of every run through n.
func (uc *Backup) WithNotifier(n domain.Notifier) *Backup {
	uc.notifier = n
	return uc
}

// Execute backs up every configured database in order, then runs one
// retention pass. A failing database never stops the others.
func (uc *Backup) Execute(ctx context.Context) *Report {
	report := &Report{RunID: uc.opts.RunID, StartedAt: uc.now()}
	cutoff := domain.RetentionCutoff(report.StartedAt, uc.opts.RetentionDays)

	databases := uc.resolver.Databases()
	uc.logger.Infof("Starting backup of %d database(s) to %s", len(databases), uc.storage.Name())

	for _, name := range databases {
		report.Outcomes = append(report.Outcomes, uc.backupOne(ctx, name))
	}

	if uc.opts.RetentionDays > 0 {
		report.Deleted = uc.cleanup.Execute(ctx, cutoff, report.Outcomes)
	} else {
		uc.logger.Infof("Retention disabled, keeping all backups")
	}

	report.Duration = uc.now().Sub(report.StartedAt)
	uc.publish(ctx, report)

	uc.logger.Infof("Backup run finished in %s: %d succeeded, %d failed",
		report.Duration.Round(time.Second), len(report.Outcomes)-report.Failures(), report.Failures())
	return report
}

func (uc *Backup) backupOne(ctx context.Context, name string) *Outcome {
	out := &Outcome{Database: name, StartedAt: uc.now()}
	defer func() { out.Duration = uc.now().Sub(out.StartedAt) }()

	fail := func(stage Stage, err error) *Outcome {
		out.Stage, out.FailedStage, out.Err = StageFailed, stage, err
		uc.logger.Errorf("[%s] %s failed: %v", name, stage, err)
		return out
	}

	out.Stage = StageResolving
	engine, err := uc.resolver.Engine(name)
	if err != nil {
		return fail(StageResolving, err)
	}
	out.Engine = engine

	backend, err := uc.backends.Get(engine)
	if err != nil {
		return fail(StageResolving, err)
	}
	creds, err := uc.resolver.Credentials(name, engine)
	if err != nil {
		return fail(StageResolving, err)
	}

	out.Stage = StageDumping
	uc.logger.Infof("[%s] Dumping %s database on %s", name, engine, creds.Address())
	artifact, err := backend.Backup(ctx, name, creds, uc.opts.StagingDir)
	if err != nil {
		return fail(StageDumping, err)
	}
	out.Artifact = artifact
	uc.logger.Infof("[%s] Dump created: %s (%.2f MB)", name, artifact.Path, float64(artifact.Size)/(1024*1024))

	out.Stage = StageHashing
	artifact.ContentHash, err = uc.hasher.Hash(artifact.Path)
	if err != nil {
		uc.discard(artifact)
		return fail(StageHashing, err)
	}
	uc.logger.Infof("[%s] SHA-256: %s", name, artifact.ContentHash)

	out.Stage = StageCompressing
	if err := uc.compress(artifact); err != nil {
		// only a failed Compress leaves the raw dump worth keeping
		if artifact.Compressed {
			uc.discard(artifact)
		} else {
			uc.logger.Warnf("[%s] Artifact left at %s", name, artifact.Path)
		}
		return fail(StageCompressing, err)
	}

	out.Stage = StageUploading
	if err := uc.storage.Upload(ctx, artifact.Path, name, engine); err != nil {
		uc.logger.Warnf("[%s] Upload failed, artifact kept at %s", name, artifact.Path)
		return fail(StageUploading, err)
	}

	out.Stage = StageUploaded
	if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		uc.logger.Warnf("[%s] Failed to remove staged artifact %s: %v", name, artifact.Path, err)
	}
	uc.logger.Infof("[%s] Stored as %s on %s", name, artifact.Location(), uc.storage.Name())
	return out
}

// discard removes a staged file that failed an integrity step.
func (uc *Backup) discard(artifact *domain.Artifact) {
	if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		uc.logger.Warnf("[%s] Failed to remove %s: %v", artifact.Database, artifact.Path, err)
		return
	}
	uc.logger.Infof("[%s] Removed unusable artifact %s", artifact.Database, artifact.Path)
}

// compress replaces the raw dump with its archive and checks that the
// archive decompresses to the hashed content.
func (uc *Backup) compress(artifact *domain.Artifact) error {
	rawSize := artifact.Size
	compressed, err := uc.compressor.Compress(artifact.Path)
	if err != nil {
		return err
	}
	artifact.Path = compressed
	artifact.Compressed = true

	if err := uc.verifyArchive(artifact); err != nil {
		return err
	}

	artifact.ArchiveHash, err = uc.hasher.Hash(compressed)
	if err != nil {
		return err
	}
	info, err := os.Stat(compressed)
	if err != nil {
		return domain.NewIOError("stat archive", compressed, err)
	}
	artifact.Size = info.Size()

	if rawSize > 0 {
		uc.logger.Infof("[%s] Compressed to %.2f MB (%.1f%% of original)",
			artifact.Database, float64(artifact.Size)/(1024*1024), float64(artifact.Size)/float64(rawSize)*100)
	}
	return nil
}

func (uc *Backup) verifyArchive(artifact *domain.Artifact) error {
	file, err := os.Open(artifact.Path)
	if err != nil {
		return domain.NewIOError("open archive", artifact.Path, err)
	}
	defer file.Close()

	reader, err := uc.compressor.Reader(file)
	if err != nil {
		return err
	}
	defer reader.Close()

	digest, err := uc.hasher.HashReader(reader)
	if err != nil {
		return err
	}
	if digest != artifact.ContentHash {
		return domain.NewIOError("verify archive", artifact.Path,
			fmt.Errorf("content digest %s does not match dump digest %s", digest, artifact.ContentHash))
	}
	return nil
}

func (uc *Backup) publish(ctx context.Context, report *Report) {
	if uc.history == nil && uc.notifier == nil {
		return
	}

	records := make([]domain.RunRecord, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		records = append(records, o.Record(report.RunID))
	}

	if uc.history != nil {
		for i := range records {
			if err := uc.history.Record(ctx, &records[i]); err != nil {
				uc.logger.Warnf("[%s] Failed to record history: %v", records[i].Database, err)
			}
		}
	}

	if uc.notifier != nil {
		if err := uc.notifier.Notify(ctx, report.RunID, records); err != nil {
			uc.logger.Warnf("Failed to send run notification: %v", err)
		}
	}
}
