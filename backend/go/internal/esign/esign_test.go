package esign

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CaseForAI/backend/go/internal/config"
	pkghttp "CaseForAI/backend/go/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T, srv *httptest.Server) *RESTProvider {
	t.Helper()
	hc, err := pkghttp.NewClient(config.CircuitBreakerConfig{}, time.Second)
	require.NoError(t, err)
	return NewRESTProvider(config.ESignConfig{BaseURL: srv.URL, APIKey: "k", WebhookSecret: "whsec"}, hc)
}

func TestRESTProviderRoutes(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/signature_requests":
			var req CreateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Len(t, req.Signers, 2)
			w.Write([]byte(`{"id":"prov-1"}`))
		case "/signature_requests/prov-1/files":
			w.Write([]byte("%PDF-signed"))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()
	p := newProvider(t, srv)
	ctx := context.Background()

	id, err := p.CreateRequest(ctx, CreateRequest{Subject: "s", Signers: []Signer{{Email: "a@x.io"}, {Email: "b@x.io"}}})
	require.NoError(t, err)
	assert.Equal(t, "prov-1", id)
	require.NoError(t, p.Remind(ctx, id, "a@x.io"))
	require.NoError(t, p.Cancel(ctx, id))
	data, err := p.DownloadSigned(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-signed", string(data))

	assert.Equal(t, []string{
		"POST /signature_requests",
		"POST /signature_requests/prov-1/remind",
		"POST /signature_requests/prov-1/cancel",
		"GET /signature_requests/prov-1/files",
	}, seen)
}

func TestCreateRequestProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusPaymentRequired)
	}))
	defer srv.Close()
	_, err := newProvider(t, srv).CreateRequest(context.Background(), CreateRequest{})
	assert.Error(t, err)
}

func TestVerifyWebhook(t *testing.T) {
	p := NewRESTProvider(config.ESignConfig{WebhookSecret: "whsec"}, nil)
	body := []byte(`{"type":"signer.signed","request_id":"prov-1"}`)
	sig := Sign([]byte("whsec"), body)

	assert.NoError(t, p.VerifyWebhook(body, sig))
	assert.NoError(t, p.VerifyWebhook(body, "sha256="+sig))
	assert.ErrorIs(t, p.VerifyWebhook(body, Sign([]byte("other"), body)), ErrInvalidSignature)
	assert.ErrorIs(t, p.VerifyWebhook([]byte(`{}`), sig), ErrInvalidSignature)
	assert.ErrorIs(t, p.VerifyWebhook(body, "zz"), ErrInvalidSignature)
	assert.ErrorIs(t, p.VerifyWebhook(body, ""), ErrInvalidSignature)

	unset := NewRESTProvider(config.ESignConfig{}, nil)
	assert.ErrorIs(t, unset.VerifyWebhook(body, Sign(nil, body)), ErrInvalidSignature)
}

func TestParseWebhook(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"type":"signer.viewed","request_id":"p","signer_email":"a@x.io"}`))
	require.NoError(t, err)
	assert.Equal(t, EventSignerViewed, ev.Type)
	assert.Equal(t, "a@x.io", ev.SignerMail)

	_, err = ParseWebhook([]byte(`{"type":"signer.viewed"}`))
	assert.Error(t, err)
}
