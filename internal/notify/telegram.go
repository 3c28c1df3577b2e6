package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/telebot.v3"
)

const pollTimeout = 10 * time.Second

// TotalsSource feeds the /stats command.
type TotalsSource interface {
	Totals(ctx context.Context) (*store.Totals, error)
}

type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Telegram posts alerts to one chat and answers a few bot commands. Token and
// chat id live in the runtime settings so operators can change them without a
// restart.
type Telegram struct {
	settings     store.Settings
	totals       TotalsSource
	dashboardURL string
	log          *zap.Logger

	mu     sync.Mutex
	bot    *telebot.Bot
	sender sender
	chat   telebot.Recipient
	wg     sync.WaitGroup
}

var _ Notifier = (*Telegram)(nil)

func NewTelegram(settings store.Settings, totals TotalsSource, dashboardURL string, log *zap.Logger) *Telegram {
	return &Telegram{
		settings:     settings,
		totals:       totals,
		dashboardURL: dashboardURL,
		log:          log.Named("telegram"),
	}
}

func (t *Telegram) setting(ctx context.Context, key string) (string, error) {
	v, err := t.settings.GetSetting(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return strings.TrimSpace(v), err
}

// Reload reads the bot token and chat id and restarts the bot. Without a
// token notifications are disabled.
func (t *Telegram) Reload(ctx context.Context) error {
	token, err := t.setting(ctx, model.SettingTelegramBotToken)
	if err != nil {
		return errors.Wrap(err, "read telegram token")
	}
	chatValue, err := t.setting(ctx, model.SettingTelegramChatID)
	if err != nil {
		return errors.Wrap(err, "read telegram chat id")
	}

	var chat telebot.Recipient
	if chatValue != "" {
		id, err := strconv.ParseInt(chatValue, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid telegram chat id %q", chatValue)
		}
		chat = telebot.ChatID(id)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	if token == "" {
		t.log.Info("telegram bot token not configured, notifications disabled")
		return nil
	}

	b, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: pollTimeout},
	})
	if err != nil {
		return errors.Wrap(err, "create telegram bot")
	}
	t.register(b)
	go b.Start()

	t.bot = b
	t.sender = b
	t.chat = chat
	t.log.Info("telegram bot started", zap.String("bot", b.Me.Username), zap.Bool("alerts", chat != nil))
	return nil
}

func (t *Telegram) stopLocked() {
	if t.bot != nil {
		t.bot.Stop()
	}
	t.bot = nil
	t.sender = nil
	t.chat = nil
}

func (t *Telegram) register(b *telebot.Bot) {
	b.Handle("/start", t.handleStart)
	b.Handle("/stats", t.handleStats)
	b.Handle("/chatid", t.handleChatID)
}

func (t *Telegram) handleStart(c telebot.Context) error {
	msg := fmt.Sprintf("Hello %s! This bot reports guild dashboard activity. Use /stats for totals and /chatid to configure alerts.", c.Sender().FirstName)
	if !strings.HasPrefix(t.dashboardURL, "https://") {
		return c.Send(msg)
	}
	markup := &telebot.ReplyMarkup{
		InlineKeyboard: [][]telebot.InlineButton{{
			{Text: "Open dashboard", URL: t.dashboardURL},
		}},
	}
	return c.Send(msg, markup)
}

func (t *Telegram) handleStats(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	totals, err := t.totals.Totals(ctx)
	if err != nil {
		t.log.Error("totals for /stats", zap.Error(err))
		return c.Send("Statistics are unavailable right now.")
	}
	return c.Send(statsText(totals))
}

func (t *Telegram) handleChatID(c telebot.Context) error {
	return c.Send(fmt.Sprintf("This chat id is %d", c.Chat().ID))
}

func statsText(t *store.Totals) string {
	var sb strings.Builder
	sb.WriteString("Dashboard statistics\n")
	fmt.Fprintf(&sb, "Servers: %d\n", t.Servers)
	fmt.Fprintf(&sb, "Users: %d\n", t.Users)
	fmt.Fprintf(&sb, "Logs: %d\n", t.Logs)
	fmt.Fprintf(&sb, "Commands run: %d\n", t.TotalCommands)
	fmt.Fprintf(&sb, "Messages seen: %d", t.TotalMessages)
	return sb.String()
}

// Notify sends text in the background. It is a no-op until both token and
// chat id are configured.
func (t *Telegram) Notify(ctx context.Context, text string) {
	t.mu.Lock()
	s, chat := t.sender, t.chat
	if s == nil || chat == nil {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		if _, err := s.Send(chat, text); err != nil {
			t.log.Warn("telegram notification failed", zap.Error(err))
		}
	}()
}

// Close waits for pending notifications and stops the bot.
func (t *Telegram) Close() {
	t.wg.Wait()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}
