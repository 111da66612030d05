// Package telegram runs the bot channel: long-polls the Bot API,
// forwards each text message as a turn and replies with the result.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"marketmate/pkg/api"
	"marketmate/pkg/gateway"
	"marketmate/pkg/ratelimit"
)

// messageLimit is Telegram's practical per-bubble character cap.
const messageLimit = 4000

// TelegramConfig encapsulates the credentials required to authenticate
// with the Telegram Bot API.
type TelegramConfig struct {
	Token string `json:"token"` // The secret BOT API string provided by @BotFather
}

// TelegramChannel is the production api.Channel for Telegram. Replies
// are plain turn results; Telegram has no use for partial output.
type TelegramChannel struct {
	bot        *tgbotapi.BotAPI
	turns      api.TurnService
	gw         *gateway.Manager
	stopCtx    context.Context
	stopCancel context.CancelFunc
	wg         sync.WaitGroup
}

func NewTelegramChannel(cfg TelegramConfig, turns api.TurnService, gw *gateway.Manager) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	ctx, cancel := context.WithCancel(context.Background())
	return &TelegramChannel{
		bot:        bot,
		turns:      turns,
		gw:         gw,
		stopCtx:    ctx,
		stopCancel: cancel,
	}, nil
}

// ID returns the unique platform identifier "telegram".
func (t *TelegramChannel) ID() string {
	return "telegram"
}

// Start launches the long-polling update loop in a background
// goroutine. The manual loop (instead of GetUpdatesChan) keeps the
// offset under our control so Stop can exit cleanly.
func (t *TelegramChannel) Start(ctx context.Context) error {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		offset := 0

		for {
			select {
			case <-t.stopCtx.Done():
				return
			case <-ctx.Done():
				return
			default:
			}

			reqConfig := tgbotapi.NewUpdate(offset)
			reqConfig.Timeout = 60

			updates, err := t.bot.GetUpdates(reqConfig)
			if err != nil {
				select {
				case <-t.stopCtx.Done():
					return
				default:
					slog.Debug("Failed to get telegram updates", "error", err)
					time.Sleep(3 * time.Second)
					continue
				}
			}

			for _, update := range updates {
				if update.UpdateID >= offset {
					offset = update.UpdateID + 1
				}
				if update.Message == nil || update.Message.Text == "" {
					continue
				}
				t.handleMessage(update.Message)
			}
		}
	}()
	return nil
}

// handleMessage runs one turn synchronously. Telegram users expect
// strict reply ordering within a chat, so turns are not parallelized.
func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	username := msg.From.UserName

	t.gw.ObserveUser(t.ID(), username, msg.Text)

	res, err := t.turns.HandleTurn(t.stopCtx, api.TurnRequest{
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		Username:   username,
		SessionKey: fmt.Sprintf("telegram:%d", chatID),
		Content:    msg.Text,
		Channel:    t.ID(),
	})
	if err != nil {
		slog.Error("Turn failed", "channel", t.ID(), "chat_id", chatID, "error", err)
		if sendErr := t.send(chatID, userFacingError(err)); sendErr != nil {
			slog.Error("Failed to send error reply", "chat_id", chatID, "error", sendErr)
		}
		return
	}

	if res.Response == "" {
		return
	}
	t.gw.ObserveAssistant(t.ID(), username, res.Response)
	if err := t.send(chatID, res.Response); err != nil {
		slog.Error("Failed to send reply", "chat_id", chatID, "error", err)
	}
}

// userFacingError maps a turn failure to reply text. Rate-limit errors
// carry their own user-readable message; everything else stays internal.
func userFacingError(err error) string {
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		return limitErr.Error()
	}
	return "Sorry, something went wrong while processing your request. Please try again in a moment."
}

// send delivers a message, splitting long responses into chunks.
func (t *TelegramChannel) send(chatID int64, message string) error {
	msgRunes := []rune(message)
	totalLen := len(msgRunes)

	for i := 0; i < totalLen || i == 0; i += messageLimit {
		end := i + messageLimit
		if end > totalLen {
			end = totalLen
		}
		chunk := tgbotapi.NewMessage(chatID, string(msgRunes[i:end]))
		if _, err := t.bot.Send(chunk); err != nil {
			return fmt.Errorf("telegram send failed: %w", err)
		}
	}
	return nil
}

func (t *TelegramChannel) Stop() error {
	t.stopCancel()
	t.wg.Wait()
	return nil
}
