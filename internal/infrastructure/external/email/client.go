// Package email sends drop results through a Resend-compatible HTTP API.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
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

// Subjects of the two drop emails.
const (
	SubjectMatch   = "you have a new match! 💘"
	SubjectNoMatch = "we got some bad news for you 😬"
)

// Config contains configuration for the email client.
type Config struct {
	// APIURL is the send endpoint, e.g. https://api.resend.com/emails
	APIURL  string
	APIKey  string
	From    string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client implements notification.Notifier over email.
type Client struct {
	apiURL     string
	apiKey     string
	from       string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ notification.Notifier = (*Client)(nil)

// NewClient creates a new email client.
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		from:       cfg.From,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger.With(slog.String("component", "email")),
	}
}

// Channel returns the channel type.
func (c *Client) Channel() notification.ChannelType {
	return notification.ChannelTypeEmail
}

// NotifyMatch emails the recipient their partner's profile.
func (c *Client) NotifyMatch(ctx context.Context, to notification.Recipient, partner notification.MatchProfile) error {
	html, err := RenderMatch(partner)
	if err != nil {
		return retry.Permanent(err)
	}
	return c.send(ctx, to.Email, SubjectMatch, html)
}

// NotifyNoMatch emails the recipient that there is no pair this drop.
func (c *Client) NotifyNoMatch(ctx context.Context, to notification.Recipient) error {
	html, err := RenderNoMatch(to.Name)
	if err != nil {
		return retry.Permanent(err)
	}
	return c.send(ctx, to.Email, SubjectNoMatch, html)
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (c *Client) send(ctx context.Context, to, subject, html string) error {
	if strings.TrimSpace(to) == "" {
		return retry.Permanent(fmt.Errorf("%w: empty recipient", shared.ErrEmailAPIFailed))
	}

	body, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrEmailAPIFailed, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("email sent", slog.String("subject", subject))
		return nil
	}

	var apiErr sendError
	_ = json.Unmarshal(respBody, &apiErr)
	err = fmt.Errorf("%w: status %d: %s", shared.ErrEmailAPIFailed, resp.StatusCode, apiErr.Message)

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Templates
// ─────────────────────────────────────────────────────────────────────────────

var matchTmpl = template.Must(template.New("match").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(`<!doctype html>
<html><body style="font-family: Georgia, serif; max-width: 600px; margin: 0 auto;">
<p>the drop is here. meet your match:</p>
{{if .PhotoURL}}<img src="{{.PhotoURL}}" alt="{{.Name}}" width="240" style="border-radius: 12px;">{{end}}
<h2>{{.Name}}</h2>
<ul>
<li>year: {{.Cohort}}</li>
<li>major: {{.Major}}</li>
<li>gender: {{.Gender}}</li>
{{if .Ethnicity}}<li>ethnicity: {{join .Ethnicity ", "}}</li>{{end}}
<li>instagram: {{.Instagram}}</li>
<li>score difference: {{printf "%.1f" .ScoreDiff}}</li>
</ul>
<p>say hi. see you next drop.</p>
</body></html>`))

var noMatchTmpl = template.Must(template.New("nomatch").Parse(`<!doctype html>
<html><body style="font-family: Georgia, serif; max-width: 600px; margin: 0 auto;">
<p>hey {{.}},</p>
<p>we couldn't find you a match in this drop. you're first in line next time.</p>
</body></html>`))

// RenderMatch renders the match email body.
func RenderMatch(p notification.MatchProfile) (string, error) {
	var buf bytes.Buffer
	if err := matchTmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render match email: %w", err)
	}
	return buf.String(), nil
}

// RenderNoMatch renders the no-match email body.
func RenderNoMatch(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		name = "there"
	}
	var buf bytes.Buffer
	if err := noMatchTmpl.Execute(&buf, name); err != nil {
		return "", fmt.Errorf("render no-match email: %w", err)
	}
	return buf.String(), nil
}
