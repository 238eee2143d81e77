package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
	"github.com/semmidev/dbkeeper/internal/infrastructure/logger"
)

func localConfig(root string) *config.Config {
	return &config.Config{
		App:     config.AppConfig{LogLevel: "error"},
		General: config.GeneralConfig{
			Databases:         []string{"shop", "blog"},
			BackupDestination: "local",
			RetentionDays:     7,
			DefaultDBType:     "MariaDB",
		},
		MariaDB:    config.EngineDefaults{Host: "db1", Port: 3306, User: "root", Password: "pw"},
		PostgreSQL: config.EngineDefaults{Host: "db2", Port: 5432, User: "postgres"},
		Local:      config.LocalConfig{BackupPath: filepath.Join(root, "backups")},
		History:    config.HistoryConfig{Path: filepath.Join(root, "history.db")},
		Entries:    map[string]*config.DatabaseEntry{
			"blog": {Type: "postgres"},
		},
	}
}

func TestApp(t *testing.T) {
	Convey("Given a local configuration", t, func() {
		ctx := context.Background()
		root := t.TempDir()
		cfg := localConfig(root)

		Convey("When history is enabled", func() {
			cfg.History.Enabled = true
			a, err := New(ctx, cfg)
			So(err, ShouldBeNil)
			Reset(a.Shutdown)

			Convey("It should create the backup directory and history file", func() {
				So(a.RunID(), ShouldNotBeEmpty)
				_, err := os.Stat(cfg.Local.BackupPath)
				So(err, ShouldBeNil)

				records, err := a.History(ctx, 10)
				So(err, ShouldBeNil)
				So(records, ShouldBeEmpty)
			})

			Convey("It should report databases that cannot be resolved", func() {
				failures := a.CheckDatabases()
				So(failures, ShouldHaveLength, 1)
				So(errors.Is(failures["blog"], domain.ErrConfig), ShouldBeTrue)
				So(failures["blog"].Error(), ShouldContainSubstring, "blog.password")
			})
		})

		Convey("When history is disabled", func() {
			a, err := New(ctx, cfg)
			So(err, ShouldBeNil)
			Reset(a.Shutdown)

			_, err = a.History(ctx, 10)
			So(errors.Is(err, domain.ErrConfig), ShouldBeTrue)
		})

		Convey("When the destination is not supported", func() {
			cfg.General.BackupDestination = "FTP"

			_, err := New(ctx, cfg)
			So(errors.Is(err, domain.ErrConfig), ShouldBeTrue)
		})

		Convey("When the Azure connection string is broken", func() {
			cfg.General.BackupDestination = "AzureBlob"
			cfg.AzureBlob = config.AzureConfig{ConnectionString: "AccountName=acct", ContainerName: "backups"}

			_, err := New(ctx, cfg)
			So(errors.Is(err, domain.ErrConfig), ShouldBeTrue)
		})
	})
}

func TestStagingDir(t *testing.T) {
	Convey("Given the staging directory rules", t, func() {
		cfg := localConfig("/srv")

		So(StagingDir(cfg), ShouldEqual, filepath.Join("/srv", "backups", ".staging"))

		cfg.General.BackupDestination = "AzureBlob"
		So(StagingDir(cfg), ShouldEqual, filepath.Join(os.TempDir(), "dbkeeper"))

		cfg.General.StagingDir = "/var/tmp/stage"
		So(StagingDir(cfg), ShouldEqual, "/var/tmp/stage")
	})
}

// closingBackend records whether Shutdown released its client.
type closingBackend struct {
	Backend
	closed bool
}

func (b *closingBackend) Name() string { return "GCS" }

func (b *closingBackend) Close() error {
	b.closed = true
	return nil
}

func TestShutdownClosesStorage(t *testing.T) {
	Convey("Given an app whose storage holds a client", t, func() {
		log, err := logger.New("error", "")
		So(err, ShouldBeNil)
		backend := &closingBackend{}
		a := &App{logger: log, storage: backend}

		a.Shutdown()

		So(backend.closed, ShouldBeTrue)
	})
}

func TestLoggerOptions(t *testing.T) {
	Convey("Given log rotation settings", t, func() {
		cfg := localConfig(t.TempDir())
		cfg.App.LogFile = filepath.Join(t.TempDir(), "dbkeeper.log")
		cfg.App.LogMaxSizeMB = 50
		cfg.App.LogMaxBackups = 5
		cfg.App.LogMaxAgeDays = 14

		opts := loggerOptions(cfg)

		So(opts.Level, ShouldEqual, "error")
		So(opts.File, ShouldEqual, cfg.App.LogFile)
		So(opts.MaxSizeMB, ShouldEqual, 50)
		So(opts.MaxBackups, ShouldEqual, 5)
		So(opts.MaxAgeDays, ShouldEqual, 14)
	})
}
