// Package bot runs the subscriber command loop: /start subscribes a
// chat to listing alerts, /stop unsubscribes it.
package bot

import (
	"context"
	"log"
	"strings"
	"time"

	"carwatch/notify"
	"carwatch/telegram"
)

const pollTimeoutSec = 50

// API is the slice of the Telegram client the command loop needs.
type API interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]telegram.Update, error)
	SendText(ctx context.Context, chatID int64, text string) error
}

type Bot struct {
	client      API
	subscribers *notify.Subscribers
}

func New(client API, subscribers *notify.Subscribers) *Bot {
	return &Bot{client: client, subscribers: subscribers}
}

// Run long-polls for commands until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	var offset int64

	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := b.client.GetUpdates(ctx, offset, pollTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Warning: getUpdates failed: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if update.Message == nil {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID

	switch strings.TrimSpace(msg.Text) {
	case "/start":
		if b.subscribers.Add(chatID) {
			log.Printf("New subscriber added: %d", chatID)
			b.reply(ctx, chatID, "You are now subscribed to car updates!")
			if err := b.subscribers.Save(); err != nil {
				log.Printf("Warning: failed to save subscribers: %v", err)
			}
		} else {
			b.reply(ctx, chatID, "You are already subscribed!")
		}
	case "/stop":
		if b.subscribers.Remove(chatID) {
			log.Printf("Subscriber removed: %d", chatID)
			b.reply(ctx, chatID, "You have been unsubscribed from car updates.")
			if err := b.subscribers.Save(); err != nil {
				log.Printf("Warning: failed to save subscribers: %v", err)
			}
		} else {
			b.reply(ctx, chatID, "You are not subscribed.")
		}
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.client.SendText(ctx, chatID, text); err != nil {
		log.Printf("Warning: failed to reply to %d: %v", chatID, err)
	}
}
