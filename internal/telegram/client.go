// Package telegram はTelegram Bot APIのクライアントを提供する。
// 単回使用の招待リンク発行とメッセージ送信を含む。
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// defaultAPIBase はTelegram Bot APIのベースURL。
const defaultAPIBase = "https://api.telegram.org"

// Client はTelegram Bot APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	token      string
	apiBase    string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, token string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		token:      token,
		apiBase:    defaultAPIBase,
	}
}

// apiResponse はBot APIの共通レスポンス形式。
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// inviteLinkResult はcreateChatInviteLinkのresultフィールド。
type inviteLinkResult struct {
	InviteLink string `json:"invite_link"`
}

// CreateInviteLink は指定チャンネルへの単回使用の招待リンクを発行する。
// member_limit=1により、リンクは1人が使用した時点で無効になる。
func (c *Client) CreateInviteLink(ctx context.Context, channelID string) (string, error) {
	payload := map[string]any{
		"chat_id":      channelID,
		"member_limit": 1,
	}

	body, err := c.call(ctx, "createChatInviteLink", payload)
	if err != nil {
		c.logger.Error("招待リンクの発行に失敗しました",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	var result inviteLinkResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("招待リンクレスポンスのパースに失敗しました: %w", err)
	}
	if result.InviteLink == "" {
		return "", fmt.Errorf("招待リンクが空で返されました")
	}
	return result.InviteLink, nil
}

// SendMessage は指定チャットにテキストメッセージを送信する。
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}

	if _, err := c.call(ctx, "sendMessage", payload); err != nil {
		c.logger.Error("メッセージの送信に失敗しました",
			slog.String("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// call はBot APIのメソッドをJSONボディ付きPOSTで呼び出し、resultフィールドを返す。
func (c *Client) call(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディの作成に失敗しました: %w", err)
	}

	reqURL := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Bot APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("Bot APIレスポンスのパースに失敗しました: %w", err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("Bot APIがエラーを返しました: %s", apiResp.Description)
	}
	return apiResp.Result, nil
}
