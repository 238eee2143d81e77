package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbkeeper/internal/domain"
)

var _ domain.History = (*Store)(nil)

func TestStore(t *testing.T) {
	Convey("Given a history store", t, func() {
		ctx := context.Background()
		store, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
		So(err, ShouldBeNil)
		Reset(func() { store.Close() })

		started := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

		Convey("When recording runs", func() {
			ok := &domain.RunRecord{
				RunID:       "run-1",
				Database:    "shop",
				Engine:      domain.EngineMariaDB,
				Status:      "Pruned",
				Stage:       "Pruned",
				Location:    "mariadb/shop/MariaDB_shop_20240305140709.sql.gz",
				ContentHash: "aaa",
				ArchiveHash: "bbb",
				Size:        42,
				StartedAt:   started,
				Duration:    1500 * time.Millisecond,
			}
			failed := &domain.RunRecord{
				RunID:     "run-1",
				Database:  "blog",
				Engine:    domain.EnginePostgreSQL,
				Status:    "Failed",
				Stage:     "Dumping",
				Error:     "pg_dump not found",
				StartedAt: started.Add(time.Second),
			}
			So(store.Record(ctx, ok), ShouldBeNil)
			So(store.Record(ctx, failed), ShouldBeNil)

			Convey("It should assign IDs and list newest first", func() {
				So(ok.ID, ShouldBeGreaterThan, 0)
				So(failed.ID, ShouldBeGreaterThan, ok.ID)

				records, err := store.Recent(ctx, 10)
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 2)
				So(records[0].Database, ShouldEqual, "blog")
				So(records[0].Error, ShouldEqual, "pg_dump not found")
				So(records[1].Engine, ShouldEqual, domain.EngineMariaDB)
				So(records[1].StartedAt.Equal(started), ShouldBeTrue)
				So(records[1].Duration, ShouldEqual, 1500*time.Millisecond)
			})

			Convey("It should honour the limit", func() {
				records, err := store.Recent(ctx, 1)
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 1)
			})

			Convey("It should return the archive digest for a location", func() {
				hash, err := store.ArchiveHash(ctx, ok.Location)
				So(err, ShouldBeNil)
				So(hash, ShouldEqual, "bbb")

				hash, err = store.ArchiveHash(ctx, "mariadb/shop/unknown.sql.gz")
				So(err, ShouldBeNil)
				So(hash, ShouldBeEmpty)
			})
		})
	})
}
