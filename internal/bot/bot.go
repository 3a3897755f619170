package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/repository"
	"gopkg.in/telebot.v4"
)

const (
	handlerTimeout  = 5 * time.Second
	defaultMaxItems = 20
)

// Bot contains the bot API instance and other information.
type Bot struct {
	bot      API
	log      *slog.Logger
	repo     repository.SubscriptionRepository
	status   StatusProvider
	maxItems int
}

func NewBot(
	log *slog.Logger,
	token string,
	poller time.Duration,
	repo repository.SubscriptionRepository,
	status StatusProvider,
) (*Bot, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: poller},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	log.Info("Authorized on account", "account", bot.Me.Username)

	botInstance := &Bot{bot: bot, log: log, repo: repo, status: status, maxItems: defaultMaxItems}

	botInstance.registerRoutes()

	return botInstance, nil
}

// Start launches the bot to listen for updates.
func (b *Bot) Start() {
	b.log.Info("Telegram bot is starting...")
	b.bot.Start()
}

// Stop gracefully stops the Telegram bot and logs the action.
func (b *Bot) Stop() {
	b.log.Info("Telegram bot is stopped...")
	b.bot.Stop()
}

// Deliver sends a digest of the change set to every subscribed chat.
// Empty change sets are not sent. A chat that cannot be reached does not stop the others.
func (b *Bot) Deliver(ctx context.Context, changes []models.ChangeRecord) error {
	const opn = "bot.Deliver"

	if len(changes) == 0 {
		return nil
	}

	chats, err := b.repo.GetSubscribedChats(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to get subscribed chats: %w", opn, err)
	}
	if len(chats) == 0 {
		b.log.DebugContext(ctx, "no subscribed chats, digest dropped", "changes", len(changes))
		return nil
	}

	digest := FormatDigest(changes, b.maxItems)

	var errs []error
	for _, chatID := range chats {
		if _, err = b.bot.Send(&telebot.Chat{ID: chatID}, digest, telebot.NoPreview); err != nil {
			b.log.WarnContext(ctx, "failed to send digest", "chat_id", chatID, "error", err)
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}

	if err = errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	b.log.InfoContext(ctx, "digest sent", "chats", len(chats), "changes", len(changes))
	return nil
}

// registerRoutes configures all routes (commands).
func (b *Bot) registerRoutes() {
	// Public routes.
	b.bot.Handle("/start", b.startHandler)
	b.bot.Handle("/stop", b.stopHandler)
	b.bot.Handle("/status", b.statusHandler)
}
