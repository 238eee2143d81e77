package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/semmidev/dbkeeper/internal/adapter/compressor"
	"github.com/semmidev/dbkeeper/internal/adapter/database"
	"github.com/semmidev/dbkeeper/internal/adapter/history"
	"github.com/semmidev/dbkeeper/internal/adapter/integrity"
	"github.com/semmidev/dbkeeper/internal/adapter/notifier"
	"github.com/semmidev/dbkeeper/internal/adapter/storage"
	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
	"github.com/semmidev/dbkeeper/internal/infrastructure/logger"
	"github.com/semmidev/dbkeeper/internal/usecase"
)

// Backend is a storage that restores can also read from.
type Backend interface {
	domain.Storage
	domain.ArtifactSource
}

type App struct {
	config   *config.Config
	logger   *logger.Logger
	runID    string
	registry *database.Registry
	resolver *config.Resolver
	storage  Backend
	history  *history.Store
	notifier domain.Notifier
}

// New validates cfg and builds every component of a run. Configuration
// errors abort before any database is touched.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.NewWithOptions(loggerOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	runID := uuid.NewString()
	log = log.WithRun(runID)

	if err := cfg.Validate(); err != nil {
		log.Close()
		return nil, err
	}

	registry := database.NewDefaultRegistry(database.ExecRunner{}, nil)

	a := &App{
		config:   cfg,
		logger:   log,
		runID:    runID,
		registry: registry,
		resolver: config.NewResolver(cfg, registry.Supports),
	}

	a.storage, err = newStorage(ctx, cfg, log)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Destination(), err)
	}
	log.Infof("Backup destination: %s", a.storage.Name())

	if cfg.History.Enabled {
		a.history, err = history.Open(ctx, cfg.History.Path)
		if err != nil {
			log.Close()
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
	}

	if cfg.Telegram.Enabled {
		tg, err := notifier.NewTelegram(&cfg.Telegram)
		if err != nil {
			// a broken notifier must not block backups
			log.Warnf("Telegram notifications disabled: %v", err)
		} else {
			a.notifier = tg
		}
	}

	return a, nil
}

func loggerOptions(cfg *config.Config) logger.Options {
	return logger.Options{
		Level:      cfg.App.LogLevel,
		File:       cfg.App.LogFile,
		MaxSizeMB:  cfg.App.LogMaxSizeMB,
		MaxBackups: cfg.App.LogMaxBackups,
		MaxAgeDays: cfg.App.LogMaxAgeDays,
	}
}

func newStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (Backend, error) {
	switch cfg.Destination() {
	case config.DestinationLocal:
		return storage.NewLocal(cfg.Local.BackupPath, log)
	case config.DestinationAzure:
		return storage.NewAzureBlob(&cfg.AzureBlob, log)
	case config.DestinationS3:
		return storage.NewS3(ctx, &cfg.S3, log)
	case config.DestinationGCS:
		return storage.NewGCS(ctx, &cfg.GCS, log)
	case config.DestinationGDrive:
		return storage.NewGDrive(ctx, &cfg.GDrive, log)
	default:
		return nil, domain.NewConfigError("general.backup_destination",
			fmt.Sprintf("unsupported backup destination %q", cfg.General.BackupDestination))
	}
}

// StagingDir is where dumps are written before upload. Local destinations
// stage inside the backup path so the final move is a rename.
func StagingDir(cfg *config.Config) string {
	if cfg.General.StagingDir != "" {
		return cfg.General.StagingDir
	}
	if cfg.Destination() == config.DestinationLocal {
		return filepath.Join(cfg.Local.BackupPath, storage.StagingDirName)
	}
	return filepath.Join(os.TempDir(), "dbkeeper")
}

func (a *App) RunID() string {
	return a.runID
}

func (a *App) Logger() *logger.Logger {
	return a.logger
}

// Backup runs the backup of every configured database followed by the
// retention pass.
func (a *App) Backup(ctx context.Context) *usecase.Report {
	uc := usecase.NewBackup(
		a.resolver,
		a.registry,
		a.storage,
		compressor.NewGzip(),
		integrity.NewSHA256(),
		a.logger,
		usecase.BackupOptions{
			RunID:                a.runID,
			StagingDir:           StagingDir(a.config),
			RetentionDays:        a.config.General.RetentionDays,
			PerDatabaseRetention: a.config.PerDatabaseRetention(),
		},
	)
	if a.history != nil {
		uc.WithHistory(a.history)
	}
	if a.notifier != nil {
		uc.WithNotifier(a.notifier)
	}
	return uc.Execute(ctx)
}

func (a *App) Restore(ctx context.Context, name string) (*usecase.RestoreResult, error) {
	uc := usecase.NewRestore(
		a.resolver,
		a.registry,
		a.storage,
		compressor.NewGzip(),
		integrity.NewSHA256(),
		a.logger,
		StagingDir(a.config),
	)
	if a.history != nil {
		uc.WithHistory(a.history)
	}
	return uc.Execute(ctx, name)
}

// CheckDatabases resolves engine and credentials of every configured
// database and returns the failures by name.
func (a *App) CheckDatabases() map[string]error {
	failures := make(map[string]error)
	for _, name := range a.resolver.Databases() {
		engine, err := a.resolver.Engine(name)
		if err != nil {
			failures[name] = err
			continue
		}
		if _, err := a.resolver.Credentials(name, engine); err != nil {
			failures[name] = err
		}
	}
	return failures
}

// ListDatabases lists the databases visible with the credentials of a
// configured database.
func (a *App) ListDatabases(ctx context.Context, name string) ([]string, error) {
	engine, err := a.resolver.Engine(name)
	if err != nil {
		return nil, err
	}
	backend, err := a.registry.Get(engine)
	if err != nil {
		return nil, err
	}
	creds, err := a.resolver.Credentials(name, engine)
	if err != nil {
		return nil, err
	}
	return backend.ListDatabases(ctx, creds)
}

func (a *App) History(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if a.history == nil {
		return nil, domain.NewConfigError("history.enabled", "run history is disabled")
	}
	return a.history.Recent(ctx, limit)
}

func (a *App) Shutdown() {
	if closer, ok := a.storage.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warnf("Failed to close %s client: %v", a.storage.Name(), err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warnf("Failed to close run history: %v", err)
		}
	}
	a.logger.Close()
}
