package notify

import (
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/skalibog/bstb/pkg/logger"
	"go.uber.org/zap"
)

// Notifier интерфейс уведомлений. Доставка best-effort, без подтверждений.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Telegram — пассивный нотифайер: только отправка сообщений в чат
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// NewTelegram создает нотифайер Telegram
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации Telegram-бота: %w", err)
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
	}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Warn("Не удалось отправить уведомление в Telegram", zap.Error(err))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Stdout — заглушка, когда Telegram не настроен: всё уходит в лог
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { logger.Info(msg) }
func (s *Stdout) Sendf(format string, args ...any) { logger.Info(fmt.Sprintf(format, args...)) }
