// Package telegram implements the network client boundary on the Telegram
// Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tgrelay/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	pollTimeoutSeconds = 30

	// Used when the server says "Too Many Requests" without a usable
	// retry_after value.
	defaultRetryAfter = 3 * time.Second
)

// Client talks to Telegram through the Bot API long-poll interface.
type Client struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

type Config struct {
	BotToken string
	Logger   *slog.Logger
}

func New(cfg Config) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	cfg.Logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return &Client{bot: bot, logger: cfg.Logger}, nil
}

// Subscribe long-polls for updates and publishes messages from the given
// source chats to the bus. The Bot API cannot filter chats server-side, so
// updates from other chats are dropped here before they reach the engine.
func (c *Client) Subscribe(ctx context.Context, sourceIDs []int64, bus domain.MessageBus) error {
	sources := make(map[int64]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		sources[id] = struct{}{}
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	u.AllowedUpdates = []string{"message", "channel_post"}
	updates := c.bot.GetUpdatesChan(u)

	c.logger.Info("telegram polling started", "sources", len(sources))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("telegram polling stopping")
			c.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := incoming(update)
			if !ok {
				continue
			}
			if _, watched := sources[msg.SourceChat]; !watched {
				continue
			}
			bus.Publish(msg)
		}
	}
}

// SendForward delivers msg with the native "Forwarded from" header.
func (c *Client) SendForward(ctx context.Context, target int64, msg domain.Message) error {
	_, err := c.bot.Send(tgbotapi.NewForward(target, msg.SourceChat, msg.ID))
	return mapSendError(target, err)
}

// SendCopy recomposes msg at the target without attribution. copyMessage
// carries text, media, and formatting entities in one call.
func (c *Client) SendCopy(ctx context.Context, target int64, msg domain.Message) error {
	_, err := c.bot.CopyMessage(tgbotapi.NewCopyMessage(target, msg.SourceChat, msg.ID))
	return mapSendError(target, err)
}

func (c *Client) ResolveEntity(ctx context.Context, id int64) (domain.EntityInfo, error) {
	chat, err := c.bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: id},
	})
	if err != nil {
		return domain.EntityInfo{}, err
	}
	return domain.EntityInfo{
		Title:     chat.Title,
		FirstName: chat.FirstName,
		LastName:  chat.LastName,
	}, nil
}

// incoming converts a Bot API update into a relay message. Group messages
// and channel posts both count; everything else is ignored.
func incoming(update tgbotapi.Update) (domain.Message, bool) {
	m := update.Message
	if m == nil {
		m = update.ChannelPost
	}
	if m == nil || m.Chat == nil {
		return domain.Message{}, false
	}

	msg := domain.Message{
		ID:         m.MessageID,
		SourceChat: m.Chat.ID,
		Text:       m.Text,
		HasMedia: m.Photo != nil || m.Document != nil || m.Video != nil ||
			m.Audio != nil || m.Voice != nil || m.Sticker != nil,
		Formatted: len(m.Entities) > 0 || len(m.CaptionEntities) > 0,
	}
	if msg.Text == "" {
		msg.Text = m.Caption
	}
	if m.From != nil {
		msg.SenderID = m.From.ID
	}
	return msg, true
}

// mapSendError translates Bot API failures into the relay error taxonomy.
// A 429 carries retry_after in its response parameters; the string check
// covers responses the library fails to decode.
func mapSendError(target int64, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return &domain.RateLimitError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
	}
	if strings.Contains(err.Error(), "Too Many Requests") {
		return &domain.RateLimitError{RetryAfter: defaultRetryAfter}
	}

	return &domain.DeliveryError{Target: target, Err: err}
}
