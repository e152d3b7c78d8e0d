package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CaseForAI/backend/go/internal/config"
	"CaseForAI/backend/go/pkg/circuitbreaker"
	pkghttp "CaseForAI/backend/go/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, url string, opts ...pkghttp.ClientOption) *Client {
	t.Helper()
	hc, err := pkghttp.NewClient(config.CircuitBreakerConfig{}, time.Second, opts...)
	require.NoError(t, err)
	return NewClient(config.EmailConfig{BaseURL: url, APIKey: "key", From: "cases@example.com"}, hc)
}

func TestSendPostsJSONWithBearerKey(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := newClient(t, srv.URL+"/").Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", Text: "body"})
	require.NoError(t, err)
	assert.Equal(t, "cases@example.com", got["from"])
	assert.Equal(t, "a@example.com", got["to"])
	assert.Equal(t, "body", got["text"])
}

func TestSendNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad recipient", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := newClient(t, srv.URL).Send(context.Background(), Message{To: "a@example.com", Subject: "Hi"})
	var se *pkghttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.StatusCode)
}

func TestSendReturnsCircuitOpen(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, pkghttp.WithBreaker(circuitbreaker.New(1, 1, time.Minute)))
	msg := Message{To: "a@example.com", Subject: "Hi"}
	assert.Error(t, c.Send(context.Background(), msg))

	err := c.Send(context.Background(), msg)
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitOpen))
	assert.Equal(t, 1, calls)
}

func TestSendWithoutProvider(t *testing.T) {
	c := NewClient(config.EmailConfig{}, nil)
	assert.ErrorIs(t, c.Send(context.Background(), Message{To: "a@example.com", Subject: "x"}), ErrNotConfigured)
}

func TestRenderShareInviteEscapesHTML(t *testing.T) {
	msg, err := RenderShareInvite("r@example.com", ShareInvite{
		RecipientName: "Dr. <Smith>",
		DocumentTitle: "Letter",
		Permission:    "view",
		Link:          "https://app.example.com/shared/tok",
		ExpiresAt:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "Letter shared with you", msg.Subject)
	assert.Contains(t, msg.HTML, "Dr. &lt;Smith&gt;")
	assert.Contains(t, msg.Text, "Dr. <Smith>")
	assert.Contains(t, msg.Text, "March 1, 2026")
	assert.Contains(t, msg.HTML, `href="https://app.example.com/shared/tok"`)
}

func TestRenderSignatureReminder(t *testing.T) {
	msg, err := RenderSignatureReminder("s@example.com", SignatureReminder{SignerName: "Sam", Subject: "Recommendation letter"})
	require.NoError(t, err)
	assert.Equal(t, "Reminder: Recommendation letter", msg.Subject)
	assert.Contains(t, msg.Text, "Hello Sam")
}
