package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/kite/pkg/errors"
)

// fakeIssuer serves an OIDC discovery document and a token endpoint.
type fakeIssuer struct {
	srv           *httptest.Server
	tokenRequests atomic.Int64
	lastForm      atomic.Value // url.Values captured from the token request
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	f := &fakeIssuer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token_endpoint": f.srv.URL + "/oauth/token",
		})
	})
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenRequests.Add(1)
		require.NoError(t, r.ParseForm())
		f.lastForm.Store(r.Form)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"test-token-123","token_type":"Bearer","expires_in":3600}`)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func TestTokenManager_DiscoveryAndToken(t *testing.T) {
	issuer := newFakeIssuer(t)

	tm, err := NewTokenManager(context.Background(), OAuthConfig{
		Issuer:       issuer.srv.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Audience:     "https://example.com/api",
	}, WithInsecureTransport())
	require.NoError(t, err)
	assert.False(t, tm.RequireTransportSecurity())

	token, err := tm.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-token-123", token)

	md, err := tm.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"authorization": "Bearer test-token-123"}, md)

	// The audience parameter must reach the token endpoint.
	form := issuer.lastForm.Load().(url.Values)
	assert.Equal(t, "https://example.com/api", form.Get("audience"))
	assert.Equal(t, "client_credentials", form.Get("grant_type"))
}

func TestTokenManager_CachesTokens(t *testing.T) {
	issuer := newFakeIssuer(t)

	tm, err := NewTokenManager(context.Background(), OAuthConfig{
		Issuer:       issuer.srv.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, WithInsecureTransport())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := tm.Token(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, issuer.tokenRequests.Load(),
		"an unexpired token should be served from cache")
}

func TestTokenManager_DirectTokenURL(t *testing.T) {
	issuer := newFakeIssuer(t)

	// Point straight at the token endpoint. No discovery request happens,
	// which is observable because the issuer URL here is unroutable.
	tm, err := NewTokenManager(context.Background(), OAuthConfig{
		TokenURL:     issuer.srv.URL + "/oauth/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, WithInsecureTransport())
	require.NoError(t, err)

	token, err := tm.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-token-123", token)
}

func TestTokenManager_ConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  OAuthConfig
	}{
		{
			name: "missing client credentials",
			cfg:  OAuthConfig{Issuer: "https://issuer.example.com"},
		},
		{
			name: "missing issuer and token url",
			cfg:  OAuthConfig{ClientID: "id", ClientSecret: "secret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenManager(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
			assert.True(t, errors.IsUsage(err))
		})
	}
}

func TestTokenManager_DiscoveryFailures(t *testing.T) {
	t.Run("issuer returns 404", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		_, err := NewTokenManager(context.Background(), OAuthConfig{
			Issuer:       srv.URL,
			ClientID:     "id",
			ClientSecret: "secret",
		})
		require.Error(t, err)
		assert.Equal(t, errors.CodeAuth, errors.GetCode(err))
	})

	t.Run("document lacks token_endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"issuer":"whatever"}`)
		}))
		defer srv.Close()

		_, err := NewTokenManager(context.Background(), OAuthConfig{
			Issuer:       srv.URL,
			ClientID:     "id",
			ClientSecret: "secret",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token_endpoint")
	})
}
