package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"google.golang.org/grpc/credentials"

	"github.com/TFMV/kite/pkg/errors"
)

// discoveryTimeout bounds the OIDC discovery request so a dead issuer does
// not hang connection setup.
const discoveryTimeout = 10 * time.Second

// OAuthConfig describes an OAuth 2.0 client-credentials grant.
type OAuthConfig struct {
	// Issuer is the OIDC issuer base URL. The token endpoint is located
	// through its discovery document unless TokenURL is set.
	Issuer string

	// TokenURL short-circuits discovery when the endpoint is already known.
	TokenURL string

	ClientID     string
	ClientSecret string

	// Audience is forwarded as the audience request parameter, which
	// Auth0 and Azure AD require.
	Audience string

	Scopes []string
}

// TokenManager fetches and caches client-credentials tokens and attaches
// them as bearer authorization on every RPC. The oauth2 library handles
// caching and refresh, so Token is cheap on the query hot path.
type TokenManager struct {
	source     oauth2.TokenSource
	requireTLS bool
}

var _ credentials.PerRPCCredentials = (*TokenManager)(nil)

// NewTokenManager resolves the token endpoint and prepares a cached token
// source. No token is fetched until the first RPC asks for one.
func NewTokenManager(ctx context.Context, cfg OAuthConfig, opts ...Option) (*TokenManager, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "oauth client id and secret are required")
	}

	endpoint := cfg.TokenURL
	if endpoint == "" {
		if cfg.Issuer == "" {
			return nil, errors.New(errors.CodeInvalidConfig, "oauth issuer or token url is required")
		}
		discovered, err := discoverTokenEndpoint(ctx, cfg.Issuer)
		if err != nil {
			return nil, err
		}
		endpoint = discovered
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     endpoint,
		Scopes:       cfg.Scopes,
	}
	if cfg.Audience != "" {
		cc.EndpointParams = url.Values{"audience": {cfg.Audience}}
	}

	s := applyOptions(opts)
	return &TokenManager{
		source:     cc.TokenSource(ctx),
		requireTLS: !s.allowInsecure,
	}, nil
}

// Token returns a valid access token, fetching or refreshing as needed.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	token, err := m.source.Token()
	if err != nil {
		return "", errors.Wrap(err, errors.CodeAuth, "failed to obtain oauth token")
	}
	return token.AccessToken, nil
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (m *TokenManager) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (m *TokenManager) RequireTransportSecurity() bool {
	return m.requireTLS
}

// discoverTokenEndpoint fetches the OIDC discovery document and returns the
// issuer's token endpoint.
func discoverTokenEndpoint(ctx context.Context, issuer string) (string, error) {
	discoveryURL := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"

	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidConfig, "invalid oauth issuer URL")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeAuth, "OIDC discovery request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.CodeAuth, "OIDC discovery failed with status %d", resp.StatusCode)
	}

	var discovery struct {
		TokenEndpoint string `json:"token_endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return "", errors.Wrap(err, errors.CodeAuth, "failed to parse OIDC discovery document")
	}
	if discovery.TokenEndpoint == "" {
		return "", errors.New(errors.CodeAuth, "token_endpoint missing from OIDC discovery document")
	}
	return discovery.TokenEndpoint, nil
}
