// Package telegram provides Telegram bot functionality.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/user/commitbot/pkg/logger"
)

const (
	// requestTimeout bounds every Bot API call; it must exceed the long-poll timeout.
	requestTimeout = 90 * time.Second
	pollTimeout    = 60

	defaultSendRate = 25 // messages per second, below Telegram's global limit
)

// Bot represents the Telegram bot.
type Bot struct {
	api      *tgbotapi.BotAPI
	handlers *Handlers
	limiter  *rate.Limiter
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBot creates a new Telegram bot instance. sendRate limits outgoing
// messages per second; zero uses the default.
func NewBot(token string, debug bool, sendRate float64, handlers *Handlers) (*Bot, error) {
	client := &http.Client{Timeout: requestTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	api.Debug = debug

	logger.Info().Str("username", api.Self.UserName).Msg("Telegram bot authorized")

	if sendRate <= 0 {
		sendRate = defaultSendRate
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Bot{
		api:      api,
		handlers: handlers,
		limiter:  rate.NewLimiter(rate.Limit(sendRate), 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins listening for updates.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	updates := b.api.GetUpdatesChan(u)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				switch {
				case update.CallbackQuery != nil:
					b.handleCallback(update.CallbackQuery)
				case update.Message != nil:
					b.handleMessage(update.Message)
				}
			}
		}
	}()

	logger.Info().Msg("Telegram bot started, listening for updates")
}

// Stop gracefully stops the bot.
func (b *Bot) Stop() {
	logger.Info().Msg("Stopping Telegram bot")
	b.cancel()
	b.api.StopReceivingUpdates()
	b.wg.Wait()
}

// handleMessage processes incoming messages.
func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}

	for _, reply := range b.handlers.HandleCommand(b.ctx, msg.Chat.ID, msg.Command(), msg.CommandArguments()) {
		if err := b.send(b.ctx, msg.Chat.ID, reply); err != nil {
			logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Failed to send reply")
			return
		}
	}
}

// handleCallback processes inline keyboard presses.
func (b *Bot) handleCallback(query *tgbotapi.CallbackQuery) {
	// Acknowledge so the client stops showing a spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		logger.Warn().Err(err).Msg("Failed to answer callback query")
	}

	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	chatID := query.Message.Chat.ID

	text := b.handlers.HandleCallback(chatID, query.Data)
	if text == "" {
		return
	}
	if err := b.SendHTML(b.ctx, chatID, text); err != nil {
		logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send callback reply")
	}
}

// Deliver sends a rendered notification to a chat.
func (b *Bot) Deliver(ctx context.Context, chatID int64, text string) error {
	return b.SendHTML(ctx, chatID, text)
}

// SendHTML sends an HTML-formatted message, waiting for the send rate limiter.
func (b *Bot) SendHTML(ctx context.Context, chatID int64, text string) error {
	return b.send(ctx, chatID, Reply{Text: text})
}

func (b *Bot) send(ctx context.Context, chatID int64, reply Reply) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if reply.Keyboard != nil {
		msg.ReplyMarkup = *reply.Keyboard
	}

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

// RegisterCommands publishes the command menu shown by Telegram clients.
func (b *Bot) RegisterCommands() error {
	cfg := tgbotapi.NewSetMyCommands(commandMenu()...)
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	return nil
}
