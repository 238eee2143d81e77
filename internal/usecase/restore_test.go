package usecase

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/semmidev/dbkeeper/internal/adapter/compressor"
	"github.com/semmidev/dbkeeper/internal/adapter/integrity"
	"github.com/semmidev/dbkeeper/internal/domain"
)

// gzipBytes returns content compressed the way a backup run stores it.
func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()
	raw := filepath.Join(t.TempDir(), "dump.sql")
	if err := os.WriteFile(raw, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	archive, err := compressor.NewGzip().Compress(raw)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestRestore(t *testing.T) {
	Convey("Given a restore", t, func() {
		ctx := context.Background()
		core, logs := observer.New(zapcore.InfoLevel)
		logger := zap.New(core).Sugar()
		staging := t.TempDir()

		mssql := newFakeDatabase(domain.EngineMSSQL)
		resolver := &fakeResolver{
			names:   []string{"erp"},
			engines: map[string]domain.Engine{"erp": domain.EngineMSSQL},
		}
		store := newMemStorage()

		newRestore := func() *Restore {
			uc := NewRestore(resolver, fakeBackends{domain.EngineMSSQL: mssql}, store,
				compressor.NewGzip(), integrity.NewSHA256(), logger, staging)
			uc.now = func() time.Time { return fixedNow }
			return uc
		}

		Convey("When no backup exists", func() {
			result, err := newRestore().Execute(ctx, "erp")

			Convey("It should fail at Locating without touching the database", func() {
				So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "no backup found for MSSQL database 'erp' in Memory")
				So(result.Stage, ShouldEqual, StageFailed)
				So(result.FailedStage, ShouldEqual, StageLocating)
				So(mssql.restored, ShouldBeEmpty)
			})
		})

		Convey("When backups exist", func() {
			older := "mssql/erp/MSSQL_erp_20240301000000.sql.gz"
			newer := "mssql/erp/MSSQL_erp_20240302000000.sql.gz"
			store.objects[older] = gzipBytes(t, "-- old\n")
			store.modTimes[older] = fixedNow.Add(-48 * time.Hour)
			store.objects[newer] = gzipBytes(t, "-- new\n")
			store.modTimes[newer] = fixedNow.Add(-24 * time.Hour)

			Convey("It should restore the newest and remove scratch files", func() {
				result, err := newRestore().Execute(ctx, "erp")

				So(err, ShouldBeNil)
				So(result.Stage, ShouldEqual, StageRestored)
				So(result.Artifact.Key, ShouldEqual, newer)
				So(mssql.restored, ShouldResemble, []string{"-- new\n"})

				entries, err := os.ReadDir(staging)
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})

			Convey("It should verify the download against the recorded digest", func() {
				digest, err := integrity.NewSHA256().HashReader(bytes.NewReader(store.objects[newer]))
				So(err, ShouldBeNil)
				history := &fakeHistory{hashes: map[string]string{newer: digest}}

				_, err = newRestore().WithHistory(history).Execute(ctx, "erp")

				So(err, ShouldBeNil)
				So(logs.FilterMessageSnippet("Verified "+newer).Len(), ShouldEqual, 1)
			})

			Convey("It should refuse a download that does not match", func() {
				history := &fakeHistory{hashes: map[string]string{newer: "deadbeef"}}

				result, err := newRestore().WithHistory(history).Execute(ctx, "erp")

				So(errors.Is(err, domain.ErrIO), ShouldBeTrue)
				So(result.FailedStage, ShouldEqual, StageDecompressing)
				So(mssql.restored, ShouldBeEmpty)
				entries, _ := os.ReadDir(staging)
				So(entries, ShouldBeEmpty)
			})

			Convey("It should report a failing restore tool and still clean up", func() {
				mssql.restoreErr = errors.New("sqlcmd exited with 1")

				result, err := newRestore().Execute(ctx, "erp")

				So(err, ShouldNotBeNil)
				So(result.Stage, ShouldEqual, StageFailed)
				So(result.FailedStage, ShouldEqual, StageRestoring)
				entries, _ := os.ReadDir(staging)
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When the engine cannot be resolved", func() {
			result, err := newRestore().Execute(ctx, "unknown")

			So(errors.Is(err, domain.ErrConfig), ShouldBeTrue)
			So(result.FailedStage, ShouldEqual, StageResolving)
		})
	})
}
