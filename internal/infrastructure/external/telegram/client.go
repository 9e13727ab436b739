// Package telegram implements a minimal Telegram Bot API client used to
// deliver drop results to users who linked a chat.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/alem-hub/drop-matcher/internal/domain/notification"
	"github.com/alem-hub/drop-matcher/internal/domain/shared"
	"github.com/alem-hub/drop-matcher/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Telegram client.
type ClientConfig struct {
	// Token is the Telegram Bot API token
	Token string

	// BaseURL is the Telegram Bot API base URL (default: https://api.telegram.org)
	BaseURL string

	// ParseMode for outgoing messages (default: HTML)
	ParseMode string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:     token,
		BaseURL:   "https://api.telegram.org",
		ParseMode: "HTML",
		Timeout:   15 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM API TYPES
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse represents a Telegram API response.
type APIResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	Description string              `json:"description,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters contains additional error parameters.
type ResponseParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

// User represents a Telegram user (bot identity from getMe).
type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username,omitempty"`
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Telegram Bot API client. It implements notification.Notifier.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

var _ notification.Notifier = (*Client)(nil)

// NewClient creates a new Telegram client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger.With(slog.String("component", "telegram")),
	}
}

// Channel returns the channel type.
func (c *Client) Channel() notification.ChannelType {
	return notification.ChannelTypeTelegram
}

// NotifyMatch sends the partner's profile to the recipient's chat.
func (c *Client) NotifyMatch(ctx context.Context, to notification.Recipient, partner notification.MatchProfile) error {
	return c.sendToRecipient(ctx, to, FormatMatch(partner))
}

// NotifyNoMatch tells the recipient there is no pair this drop.
func (c *Client) NotifyNoMatch(ctx context.Context, to notification.Recipient) error {
	return c.sendToRecipient(ctx, to, FormatNoMatch(to.Name))
}

func (c *Client) sendToRecipient(ctx context.Context, to notification.Recipient, text string) error {
	if to.TelegramChatID == 0 {
		return retry.Permanent(fmt.Errorf("%w: recipient %s has no chat", shared.ErrTelegramAPIFailed, to.CandidateID))
	}
	return c.SendMessage(ctx, to.TelegramChatID, text)
}

// SendMessage sends a text message. Client errors are marked permanent.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	err := c.callAPI(ctx, "sendMessage", sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: c.config.ParseMode,
	}, nil)
	if err == nil {
		return nil
	}

	if IsUserBlocked(err) {
		c.logger.Info("chat is unreachable, bot was blocked", slog.Int64("chat_id", chatID))
	}

	wrapped := fmt.Errorf("%w: %v", shared.ErrTelegramAPIFailed, err)
	var apiErr *APIError
	if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
		return retry.Permanent(wrapped)
	}
	return wrapped
}

// GetMe returns the bot identity.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.callAPI(ctx, "getMe", nil, &user); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	return &user, nil
}

// Check verifies the token with getMe (health checks).
func (c *Client) Check(ctx context.Context) error {
	_, err := c.GetMe(ctx)
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE FORMATTING
// ══════════════════════════════════════════════════════════════════════════════

// FormatMatch renders an HTML message with the partner's profile.
func FormatMatch(p notification.MatchProfile) string {
	var b strings.Builder
	b.WriteString("💘 <b>you have a new match!</b>\n\n")
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(p.Name))
	fmt.Fprintf(&b, "year: %s\n", html.EscapeString(p.Cohort))
	fmt.Fprintf(&b, "major: %s\n", html.EscapeString(p.Major))
	fmt.Fprintf(&b, "gender: %s\n", html.EscapeString(p.Gender))
	if len(p.Ethnicity) > 0 {
		fmt.Fprintf(&b, "ethnicity: %s\n", html.EscapeString(strings.Join(p.Ethnicity, ", ")))
	}
	fmt.Fprintf(&b, "instagram: %s\n", html.EscapeString(p.Instagram))
	fmt.Fprintf(&b, "score difference: %.1f\n", p.ScoreDiff)
	if p.PhotoURL != "" {
		fmt.Fprintf(&b, "\n<a href=\"%s\">photo</a>", html.EscapeString(p.PhotoURL))
	}
	return b.String()
}

// FormatNoMatch renders the no-match message.
func FormatNoMatch(name string) string {
	if strings.TrimSpace(name) == "" {
		name = "there"
	}
	return fmt.Sprintf("😬 hey %s, we couldn't find you a match in this drop. you're first in line next time.",
		html.EscapeString(name))
}

// ══════════════════════════════════════════════════════════════════════════════
// API CALL HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// callAPI performs a single API call. Retries are the caller's concern.
func (c *Client) callAPI(ctx context.Context, method string, body any, result any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.config.BaseURL, c.config.Token, method)

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return &APIError{Code: resp.StatusCode, Description: "unmarshal response: " + err.Error()}
	}

	if !apiResp.OK {
		apiErr := &APIError{
			Code:        apiResp.ErrorCode,
			Description: apiResp.Description,
		}
		if apiResp.Parameters != nil {
			apiErr.RetryAfter = apiResp.Parameters.RetryAfter
		}
		c.logger.Debug("telegram api error",
			slog.String("method", method),
			slog.Int("code", apiErr.Code),
			slog.String("description", apiErr.Description),
		)
		return apiErr
	}

	if result != nil && len(apiResp.Result) > 0 {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError represents a Telegram API error.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// IsRetryable reports whether the call may succeed if repeated.
func (e *APIError) IsRetryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsUserBlocked checks if the error indicates the user blocked the bot.
func IsUserBlocked(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusForbidden ||
			strings.Contains(apiErr.Description, "bot was blocked") ||
			strings.Contains(apiErr.Description, "user is deactivated")
	}
	return false
}
