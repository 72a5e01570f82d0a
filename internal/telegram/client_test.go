package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(serverURL string) *Client {
	client := NewClient(http.DefaultClient, slog.New(slog.NewTextHandler(io.Discard, nil)), "test-token")
	client.apiBase = serverURL
	return client
}

// TestClient_CreateInviteLink は単回使用の招待リンク発行を検証する。
func TestClient_CreateInviteLink(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"invite_link":"https://t.me/+abc123"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	link, err := client.CreateInviteLink(context.Background(), "-1001234567890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link != "https://t.me/+abc123" {
		t.Errorf("link = %q, want %q", link, "https://t.me/+abc123")
	}
	if !strings.HasSuffix(gotPath, "/bottest-token/createChatInviteLink") {
		t.Errorf("path = %q", gotPath)
	}
	if gotPayload["chat_id"] != "-1001234567890" {
		t.Errorf("chat_id = %v", gotPayload["chat_id"])
	}
	if gotPayload["member_limit"] != float64(1) {
		t.Errorf("member_limit = %v, want 1", gotPayload["member_limit"])
	}
}

// TestClient_CreateInviteLink_APIError はBot APIのエラーレスポンスを検証する。
func TestClient_CreateInviteLink_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CreateInviteLink(context.Background(), "-100999")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error should carry API description, got %v", err)
	}
}

// TestClient_SendMessage はメッセージ送信のペイロードを検証する。
func TestClient_SendMessage(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.SendMessage(context.Background(), "account-1", "購読の期限が近づいています")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPayload["chat_id"] != "account-1" {
		t.Errorf("chat_id = %v", gotPayload["chat_id"])
	}
	if gotPayload["text"] != "購読の期限が近づいています" {
		t.Errorf("text = %v", gotPayload["text"])
	}
}
