package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/Houeta/listing-monitor/internal/repository"
	"gopkg.in/telebot.v4"
)

// startHandler process command /start.
func (b *Bot) startHandler(c telebot.Context) error {
	b.log.Info("User started the bot", "username", c.Sender().Username)

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	reply := "Subscribed. You will get a digest after every scan that finds changes."
	if err := b.repo.SubscribeChat(ctx, c.Chat().ID); err != nil {
		b.log.Error("failed to subscribe chat", "chat_id", c.Chat().ID, "error", err)
		reply = "Sorry, the subscription failed. Please try again later."
	}

	if err := c.Send(reply); err != nil {
		return fmt.Errorf("failed to send greeting message: %w", err)
	}

	return nil
}

// stopHandler process command /stop.
func (b *Bot) stopHandler(c telebot.Context) error {
	b.log.Info("User stopped the bot", "username", c.Sender().Username)

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	reply := "Unsubscribed. Send /start to subscribe again."
	if err := b.repo.UnsubscribeChat(ctx, c.Chat().ID); err != nil {
		b.log.Error("failed to unsubscribe chat", "chat_id", c.Chat().ID, "error", err)
		reply = "Sorry, unsubscribing failed. Please try again later."
	}

	if err := c.Send(reply); err != nil {
		return fmt.Errorf("failed to send goodbye message: %w", err)
	}

	return nil
}

// statusHandler process command /status.
func (b *Bot) statusHandler(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var reply string
	run, err := b.status.Status(ctx)
	switch {
	case errors.Is(err, repository.ErrScanNotFound):
		reply = "No scan has run yet."
	case err != nil:
		b.log.Error("failed to get scan status", "error", err)
		reply = "Sorry, the scan status is unavailable right now."
	default:
		reply = FormatRun(run)
	}

	if err = c.Send(reply); err != nil {
		return fmt.Errorf("failed to send status message: %w", err)
	}

	return nil
}
