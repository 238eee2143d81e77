package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
)

// Telegram caps a message at 4096 characters.
const maxMessageLength = 4096

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot    sender
	chatID int64
}

func NewTelegram(cfg *config.TelegramConfig) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, runID string, records []domain.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatSummary(runID, records))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

// FormatSummary renders one line per database, failures first.
func FormatSummary(runID string, records []domain.RunRecord) string {
	failed := 0
	for _, rec := range records {
		if rec.Error != "" {
			failed++
		}
	}

	var b strings.Builder
	if failed == 0 {
		fmt.Fprintf(&b, "✅ Backup run %s: %d database(s) backed up\n", runID, len(records))
	} else {
		fmt.Fprintf(&b, "❌ Backup run %s: %d of %d database(s) failed\n", runID, failed, len(records))
	}

	for _, rec := range records {
		if rec.Error == "" {
			continue
		}
		fmt.Fprintf(&b, "\n❌ %s (%s) failed at %s: %s", rec.Database, rec.Engine, rec.Stage, rec.Error)
	}
	for _, rec := range records {
		if rec.Error != "" {
			continue
		}
		fmt.Fprintf(&b, "\n📁 %s (%s): %s, %.2f MB in %s",
			rec.Database, rec.Engine, rec.Location,
			float64(rec.Size)/(1024*1024), rec.Duration.Round(time.Second))
	}

	text := []rune(b.String())
	if len(text) > maxMessageLength {
		return string(text[:maxMessageLength-3]) + "..."
	}
	return string(text)
}
