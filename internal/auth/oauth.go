package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OAuthConfig holds the Google OAuth client settings used for the
// authorization-code exchange (OAuthLogin).
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// UserInfo is the subset of the provider's profile response the dispatch
// plane persists.
type UserInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// OAuthExchanger exchanges an authorization code with an external identity
// provider for the caller's email and display name.
type OAuthExchanger struct {
	cfg OAuthConfig
}

// NewOAuthExchanger builds an exchanger with provider defaults filled in.
func NewOAuthExchanger(cfg OAuthConfig) *OAuthExchanger {
	if cfg.AuthURL == "" {
		cfg.AuthURL = "https://accounts.google.com/o/oauth2/v2/auth"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &OAuthExchanger{cfg: cfg}
}

// AuthURL returns the provider authorization URL the UI should redirect to.
func (e *OAuthExchanger) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", e.cfg.ClientID)
	q.Set("redirect_uri", e.cfg.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	return e.cfg.AuthURL + "?" + q.Encode()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Exchange trades an authorization code for the caller's email/name.
func (e *OAuthExchanger) Exchange(ctx context.Context, code, redirectURI string) (UserInfo, error) {
	if redirectURI == "" {
		redirectURI = e.cfg.RedirectURL
	}

	form := url.Values{}
	form.Set("client_id", e.cfg.ClientID)
	form.Set("client_secret", e.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return UserInfo{}, fmt.Errorf("auth: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("auth: token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return UserInfo{}, fmt.Errorf("auth: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("auth: token exchange failed: status %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return UserInfo{}, fmt.Errorf("auth: decode token response: %w", err)
	}

	return e.fetchUserInfo(ctx, tok.AccessToken)
}

func (e *OAuthExchanger) fetchUserInfo(ctx context.Context, accessToken string) (UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.UserInfoURL, nil)
	if err != nil {
		return UserInfo{}, fmt.Errorf("auth: build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("auth: userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("auth: userinfo failed: status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return UserInfo{}, fmt.Errorf("auth: decode userinfo: %w", err)
	}
	return info, nil
}
