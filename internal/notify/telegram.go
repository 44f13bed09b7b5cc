package notify

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"idle_engine/internal/logbus"
)

// TelegramNotifier sends a plain text message per event. The bot client is
// created on first use because creating it calls the Telegram API.
type TelegramNotifier struct {
	token  string
	chatID int64
	bus    *logbus.Bus

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegramNotifier(token string, chatID int64, bus *logbus.Bus) *TelegramNotifier {
	return &TelegramNotifier{token: token, chatID: chatID, bus: bus}
}

func (t *TelegramNotifier) NotifyAutomationEvent(_ context.Context, evt AutomationEvent) {
	if t.token == "" || t.chatID == 0 {
		return
	}
	go func() {
		if err := t.send(evt.Text()); err != nil && t.bus != nil {
			t.bus.Log("warn", "telegram notification failed", map[string]any{"error": err.Error(), "kind": string(evt.Kind)})
		}
	}()
}

func (t *TelegramNotifier) send(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot == nil {
		bot, err := tgbotapi.NewBotAPI(t.token)
		if err != nil {
			return err
		}
		t.bot = bot
	}
	_, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text))
	return err
}
