package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendText_OK(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	}))
	defer server.Close()

	client := newClient(server.URL, "TOKEN", server.Client())
	if err := client.SendText(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/botTOKEN/sendMessage" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotBody["text"] != "hello" {
		t.Fatalf("unexpected body %v", gotBody)
	}
	if gotBody["chat_id"] != float64(42) {
		t.Fatalf("unexpected chat id %v", gotBody["chat_id"])
	}
}

func TestCall_FloodControlParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry later","parameters":{"retry_after":14}}`)
	}))
	defer server.Close()

	client := newClient(server.URL, "TOKEN", server.Client())
	err := client.SendText(context.Background(), 42, "hello")
	if err == nil {
		t.Fatalf("expected error")
	}

	var tgErr *Error
	if !errors.As(err, &tgErr) {
		t.Fatalf("expected telegram error, got %T", err)
	}
	if !tgErr.RateLimited() {
		t.Fatalf("expected rate-limited error")
	}
	if tgErr.RetryAfter() != 14*time.Second {
		t.Fatalf("expected 14s retry hint, got %s", tgErr.RetryAfter())
	}
}

func TestCall_FloodControlDescriptionFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":429,"description":"Flood control exceeded. Retry in 7 seconds"}`)
	}))
	defer server.Close()

	client := newClient(server.URL, "TOKEN", server.Client())
	err := client.SendText(context.Background(), 42, "hello")

	var tgErr *Error
	if !errors.As(err, &tgErr) {
		t.Fatalf("expected telegram error, got %v", err)
	}
	if tgErr.RetryAfterSeconds != 7 {
		t.Fatalf("expected retry hint from description, got %d", tgErr.RetryAfterSeconds)
	}
}

func TestCall_FloodControlWithoutHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":429,"description":"Too Many Requests"}`)
	}))
	defer server.Close()

	client := newClient(server.URL, "TOKEN", server.Client())
	err := client.SendText(context.Background(), 42, "hello")

	var tgErr *Error
	if !errors.As(err, &tgErr) {
		t.Fatalf("expected telegram error, got %v", err)
	}
	if !tgErr.RateLimited() {
		t.Fatalf("unhinted 429 must still look rate-limited")
	}
	if tgErr.RetryAfterSeconds != defaultRetryAfterSeconds {
		t.Fatalf("expected default backoff, got %d", tgErr.RetryAfterSeconds)
	}
}

func TestCall_PlainAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	}))
	defer server.Close()

	client := newClient(server.URL, "TOKEN", server.Client())
	err := client.SendText(context.Background(), 42, "hello")

	var tgErr *Error
	if !errors.As(err, &tgErr) {
		t.Fatalf("expected telegram error, got %v", err)
	}
	if tgErr.RateLimited() {
		t.Fatalf("plain error must not look rate-limited")
	}
	if tgErr.Code != 400 {
		t.Fatalf("unexpected code %d", tgErr.Code)
	}
}

func TestSendImageGroup_CapsAtTen(t *testing.T) {
	var mediaCount int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Media []inputMediaPhoto `json:"media"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mediaCount = len(body.Media)
		fmt.Fprint(w, `{"ok":true,"result":[]}`)
	}))
	defer server.Close()

	urls := make([]string, 14)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://cdn.example.com/%d.webp", i)
	}

	client := newClient(server.URL, "TOKEN", server.Client())
	if err := client.SendImageGroup(context.Background(), 42, urls); err != nil {
		t.Fatalf("send: %v", err)
	}
	if mediaCount != 10 {
		t.Fatalf("expected 10 media items, got %d", mediaCount)
	}
}

func TestSendImageGroup_EmptyIsNoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request for empty media group")
	}))
	defer server.Close()

	client := newClient(server.URL, "TOKEN", server.Client())
	if err := client.SendImageGroup(context.Background(), 42, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestGetUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":[
			{"update_id":10,"message":{"chat":{"id":42},"text":"/start"}},
			{"update_id":11,"message":{"chat":{"id":43},"text":"/stop"}}
		]}`)
	}))
	defer server.Close()

	client := newClient(server.URL, "TOKEN", server.Client())
	updates, err := client.GetUpdates(context.Background(), 0, 50)
	if err != nil {
		t.Fatalf("get updates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].UpdateID != 10 || updates[0].Message.Chat.ID != 42 || updates[0].Message.Text != "/start" {
		t.Fatalf("unexpected first update %+v", updates[0])
	}
}
