package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"transferWatch/internal/model"
)

const (
	DefaultIncomingCTA = "💰 Contribute Now"
	DefaultOutgoingCTA = "💰 Create an OTC offer"
)

// BotSender is the part of *tgbotapi.BotAPI used for delivery.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Chat is a numeric chat id or a public @channel username.
type Chat struct {
	ID       int64
	Username string
}

// ParseChat accepts "-100123" or "@channel".
func ParseChat(input string) (Chat, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Chat{}, fmt.Errorf("empty chat id")
	}
	if strings.HasPrefix(input, "@") {
		return Chat{Username: input}, nil
	}
	id, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		return Chat{}, fmt.Errorf("invalid chat id %q: %w", input, err)
	}
	return Chat{ID: id}, nil
}

func (c Chat) String() string {
	if c.Username != "" {
		return c.Username
	}
	return strconv.FormatInt(c.ID, 10)
}

func (c Chat) apply(base *tgbotapi.BaseChat) {
	base.ChatID = c.ID
	base.ChannelUsername = c.Username
}

// TelegramConfig configures delivery to one chat.
type TelegramConfig struct {
	Chat Chat
	// CTAURL enables the inline button; its label depends on direction.
	CTAURL      string
	IncomingCTA string
	OutgoingCTA string
	// Animation is a local file sent before each transfer message.
	Animation string
}

// TelegramDestination sends Markdown messages to a single chat.
type TelegramDestination struct {
	bot    BotSender
	cfg    TelegramConfig
	logger *zap.Logger
}

func NewTelegramDestination(bot BotSender, cfg TelegramConfig, logger *zap.Logger) *TelegramDestination {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IncomingCTA == "" {
		cfg.IncomingCTA = DefaultIncomingCTA
	}
	if cfg.OutgoingCTA == "" {
		cfg.OutgoingCTA = DefaultOutgoingCTA
	}
	return &TelegramDestination{bot: bot, cfg: cfg, logger: logger}
}

func (t *TelegramDestination) Name() string {
	return "telegram:" + t.cfg.Chat.String()
}

func (t *TelegramDestination) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if msg.Event != nil && t.cfg.Animation != "" && msg.Attempt <= 1 {
		animation := tgbotapi.NewAnimation(0, tgbotapi.FilePath(t.cfg.Animation))
		t.cfg.Chat.apply(&animation.BaseChat)
		if _, err := t.bot.Send(animation); err != nil {
			t.logger.Warn("send animation", zap.String("chat", t.cfg.Chat.String()), zap.Error(err))
		}
	}

	out := tgbotapi.NewMessage(0, msg.Text)
	t.cfg.Chat.apply(&out.BaseChat)
	out.ParseMode = tgbotapi.ModeMarkdown
	out.DisableWebPagePreview = true
	if keyboard, ok := t.keyboard(msg.Direction); ok {
		out.ReplyMarkup = keyboard
	}

	if _, err := t.bot.Send(out); err != nil {
		return fmt.Errorf("send to %s: %w", t.cfg.Chat, err)
	}
	return nil
}

func (t *TelegramDestination) keyboard(direction model.Direction) (tgbotapi.InlineKeyboardMarkup, bool) {
	if t.cfg.CTAURL == "" {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}

	var label string
	switch direction {
	case model.DirectionIncoming:
		label = t.cfg.IncomingCTA
	case model.DirectionOutgoing:
		label = t.cfg.OutgoingCTA
	default:
		return tgbotapi.InlineKeyboardMarkup{}, false
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(label, t.cfg.CTAURL),
		),
	), true
}
