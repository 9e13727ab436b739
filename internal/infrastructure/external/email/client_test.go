package email

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/drop-matcher/internal/domain/notification"
	"github.com/alem-hub/drop-matcher/internal/domain/shared"
	"github.com/alem-hub/drop-matcher/pkg/logger"
	"github.com/alem-hub/drop-matcher/pkg/retry"
)

func TestClient_NotifyMatch(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL, APIKey: "key", From: "drops <m@x.io>", Logger: logger.Discard()})
	err := c.NotifyMatch(context.Background(),
		notification.Recipient{Email: "a@x.io"},
		notification.MatchProfile{Name: "Bea <b>", Cohort: "2027", Major: "CS", Ethnicity: []string{"asian", "white"}, ScoreDiff: 3.25},
	)
	require.NoError(t, err)

	assert.Equal(t, SubjectMatch, got.Subject)
	assert.Equal(t, []string{"a@x.io"}, got.To)
	assert.Contains(t, got.HTML, "Bea &lt;b&gt;")
	assert.Contains(t, got.HTML, "asian, white")
	assert.Contains(t, got.HTML, "3.2")
}

func TestClient_ErrorClassification(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusUnprocessableEntity)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"name":"validation_error","message":"bad from"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL, Logger: logger.Discard()})
	to := notification.Recipient{Email: "a@x.io", Name: "Al"}

	err := c.NotifyNoMatch(context.Background(), to)
	assert.True(t, retry.IsPermanent(err))
	assert.ErrorIs(t, err, shared.ErrEmailAPIFailed)
	assert.ErrorContains(t, err, "bad from")

	status.Store(http.StatusServiceUnavailable)
	err = c.NotifyNoMatch(context.Background(), to)
	assert.False(t, retry.IsPermanent(err))
	assert.ErrorIs(t, err, shared.ErrEmailAPIFailed)
}

func TestClient_EmptyRecipient(t *testing.T) {
	c := NewClient(Config{APIURL: "http://unused", Logger: logger.Discard()})
	err := c.NotifyNoMatch(context.Background(), notification.Recipient{})
	assert.True(t, retry.IsPermanent(err))
}

func TestRenderNoMatch_DefaultName(t *testing.T) {
	html, err := RenderNoMatch("")
	require.NoError(t, err)
	assert.Contains(t, html, "hey there")
}
