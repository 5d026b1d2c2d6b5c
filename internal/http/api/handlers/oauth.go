package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flux-project/flux-server/internal/config"
	"golang.org/x/oauth2"
)

// Expected statuses of the OAuth login flow.
const (
	StatusEtuUTTNotConfigured = "EtuUTTNotConfigured"
	StatusEtuUTTError         = "EtuUTTError"
)

// OAuthIdentity is the account returned by an OAuth provider.
type OAuthIdentity struct {
	Login string
	Name  string
}

// OAuthProvider is the narrow surface the login flow needs from an OAuth server.
type OAuthProvider interface {
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (*OAuthIdentity, error)
}

// EtuUTTProvider authenticates students against the EtuUTT OAuth server.
type EtuUTTProvider struct {
	oauth   *oauth2.Config
	baseURL string
}

// NewEtuUTTProvider returns nil when cfg is not enabled.
func NewEtuUTTProvider(cfg config.OAuthConfig) *EtuUTTProvider {
	if !cfg.Enabled() {
		return nil
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &EtuUTTProvider{
		baseURL: base,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"public"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  base + "/api/oauth/authorize",
				TokenURL: base + "/api/oauth/token",
			},
		},
	}
}

// AuthorizeURL implements OAuthProvider.
func (p *EtuUTTProvider) AuthorizeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

type etuUTTAccount struct {
	Data struct {
		Login    string `json:"login"`
		FullName string `json:"fullName"`
	} `json:"data"`
}

// Exchange implements OAuthProvider.
func (p *EtuUTTProvider) Exchange(ctx context.Context, code string) (*OAuthIdentity, error) {
	token, errExchange := p.oauth.Exchange(ctx, code)
	if errExchange != nil {
		return nil, fmt.Errorf("etuutt: exchange code: %w", errExchange)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/public/user/account", nil)
	if errReq != nil {
		return nil, errReq
	}
	resp, errDo := p.oauth.Client(ctx, token).Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("etuutt: fetch account: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("etuutt: fetch account: unexpected status %d", resp.StatusCode)
	}

	var account etuUTTAccount
	if errDecode := json.NewDecoder(resp.Body).Decode(&account); errDecode != nil {
		return nil, fmt.Errorf("etuutt: decode account: %w", errDecode)
	}
	login := strings.TrimSpace(account.Data.Login)
	if login == "" {
		return nil, errors.New("etuutt: account without login")
	}
	return &OAuthIdentity{Login: login, Name: strings.TrimSpace(account.Data.FullName)}, nil
}
