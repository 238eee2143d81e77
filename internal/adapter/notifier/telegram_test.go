package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbkeeper/internal/domain"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegram(t *testing.T) {
	Convey("Given run records", t, func() {
		records := []domain.RunRecord{
			{
				Database: "shop",
				Engine:   domain.EngineMariaDB,
				Stage:    "Pruned",
				Location: "mariadb/shop/MariaDB_shop_20240305140709.sql.gz",
				Size:     3 * 1024 * 1024,
				Duration: 4 * time.Second,
			},
			{
				Database: "blog",
				Engine:   domain.EnginePostgreSQL,
				Stage:    "Dumping",
				Error:    "pg_dump not found",
			},
		}

		Convey("FormatSummary", func() {
			text := FormatSummary("run-1", records)

			So(text, ShouldStartWith, "❌ Backup run run-1: 1 of 2 database(s) failed")
			So(text, ShouldContainSubstring, "blog (PostgreSQL) failed at Dumping: pg_dump not found")
			So(text, ShouldContainSubstring, "shop (MariaDB): mariadb/shop/MariaDB_shop_20240305140709.sql.gz, 3.00 MB in 4s")
			So(strings.Index(text, "blog"), ShouldBeLessThan, strings.Index(text, "shop"))
		})

		Convey("FormatSummary when everything succeeded", func() {
			text := FormatSummary("run-2", records[:1])
			So(text, ShouldStartWith, "✅ Backup run run-2: 1 database(s) backed up")
		})

		Convey("FormatSummary truncates long messages", func() {
			long := []domain.RunRecord{{Database: "x", Engine: domain.EngineMSSQL, Stage: "Uploading", Error: strings.Repeat("e", 5000)}}
			So(utf8.RuneCountInString(FormatSummary("run-3", long)), ShouldEqual, maxMessageLength)
		})

		Convey("Notify", func() {
			bot := &fakeSender{}
			tg := &Telegram{bot: bot, chatID: 99}

			Convey("It should send one message to the chat", func() {
				So(tg.Notify(context.Background(), "run-1", records), ShouldBeNil)
				So(bot.sent, ShouldHaveLength, 1)
				msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
				So(ok, ShouldBeTrue)
				So(msg.ChatID, ShouldEqual, int64(99))
			})

			Convey("It should wrap send failures", func() {
				bot.err = errors.New("blocked")
				err := tg.Notify(context.Background(), "run-1", records)
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "blocked")
			})

			Convey("It should not send on a cancelled context", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				So(tg.Notify(ctx, "run-1", records), ShouldEqual, context.Canceled)
				So(bot.sent, ShouldBeEmpty)
			})
		})
	})
}
