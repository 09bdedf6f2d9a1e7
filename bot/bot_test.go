package bot

import (
	"context"
	"path/filepath"
	"testing"

	"carwatch/notify"
	"carwatch/telegram"
)

type fakeAPI struct {
	replies []string
}

func (a *fakeAPI) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]telegram.Update, error) {
	return nil, nil
}

func (a *fakeAPI) SendText(ctx context.Context, chatID int64, text string) error {
	a.replies = append(a.replies, text)
	return nil
}

func testBot(t *testing.T) (*Bot, *fakeAPI, *notify.Subscribers) {
	t.Helper()
	subs, err := notify.LoadSubscribers(filepath.Join(t.TempDir(), "subscribers.txt"))
	if err != nil {
		t.Fatalf("load subscribers: %v", err)
	}
	api := &fakeAPI{}
	return New(api, subs), api, subs
}

func TestHandleCommand_Start(t *testing.T) {
	b, api, subs := testBot(t)
	msg := &telegram.Message{Chat: telegram.Chat{ID: 42}, Text: "/start"}

	b.handleCommand(context.Background(), msg)
	if !subs.Contains(42) {
		t.Fatalf("chat not subscribed")
	}
	if len(api.replies) != 1 || api.replies[0] != "You are now subscribed to car updates!" {
		t.Fatalf("unexpected replies %v", api.replies)
	}

	// Repeats are acknowledged but change nothing.
	b.handleCommand(context.Background(), msg)
	if len(api.replies) != 2 || api.replies[1] != "You are already subscribed!" {
		t.Fatalf("unexpected replies %v", api.replies)
	}
}

func TestHandleCommand_Stop(t *testing.T) {
	b, api, subs := testBot(t)
	subs.Add(42)

	b.handleCommand(context.Background(), &telegram.Message{Chat: telegram.Chat{ID: 42}, Text: "/stop"})
	if subs.Contains(42) {
		t.Fatalf("chat still subscribed")
	}
	if len(api.replies) != 1 || api.replies[0] != "You have been unsubscribed from car updates." {
		t.Fatalf("unexpected replies %v", api.replies)
	}

	b.handleCommand(context.Background(), &telegram.Message{Chat: telegram.Chat{ID: 42}, Text: "/stop"})
	if api.replies[1] != "You are not subscribed." {
		t.Fatalf("unexpected replies %v", api.replies)
	}
}

func TestHandleCommand_IgnoresOtherText(t *testing.T) {
	b, api, subs := testBot(t)

	b.handleCommand(context.Background(), &telegram.Message{Chat: telegram.Chat{ID: 42}, Text: "hello"})
	if subs.Contains(42) || len(api.replies) != 0 {
		t.Fatalf("plain text should be ignored")
	}
}
