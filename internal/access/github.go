package access

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"powersched/internal/types"
)

const (
	githubTokenURL = "https://github.com/login/oauth/access_token"
	githubUserURL  = "https://api.github.com/user"
)

// GithubExchangerConfig configures the GitHub OAuth code exchange.
type GithubExchangerConfig struct {
	ClientID     string
	ClientSecret string

	// Override URLs for testing.
	TokenURL string
	UserURL  string
}

// GithubExchanger trades a GitHub authorization code for the user's identity.
// It performs two sequential HTTP calls:
//  1. Token exchange (authorization code -> access token)
//  2. GET /user (access token -> login and display name)
//
// The access token is never returned; scope is authentication only. The
// login is matched against the user registry afterwards.
type GithubExchanger struct {
	http         *http.Client
	clientID     string
	clientSecret string
	tokenURL     string
	userURL      string
}

// NewGithubExchanger creates an exchanger with the given config.
func NewGithubExchanger(httpClient *http.Client, cfg GithubExchangerConfig) *GithubExchanger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = githubTokenURL
	}
	userURL := cfg.UserURL
	if userURL == "" {
		userURL = githubUserURL
	}
	return &GithubExchanger{
		http:         httpClient,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     tokenURL,
		userURL:      userURL,
	}
}

// Exchange resolves an authorization code to an identity.
func (e *GithubExchanger) Exchange(ctx context.Context, code string) (types.Identity, error) {
	accessToken, err := e.exchangeCodeForToken(ctx, code)
	if err != nil {
		return types.Identity{}, err
	}
	return e.fetchUser(ctx, accessToken)
}

func (e *GithubExchanger) exchangeCodeForToken(ctx context.Context, code string) (string, error) {
	params := url.Values{}
	params.Set("client_id", e.clientID)
	params.Set("client_secret", e.clientSecret)
	params.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"building GitHub token exchange request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeRemoteUnavailable,
			"GitHub token exchange request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", types.NewAppError(types.ErrCodeAccessTokenInvalid,
			fmt.Sprintf("GitHub token exchange failed (%d): %s", resp.StatusCode, truncate(body)), nil)
	}

	var tokenResp struct {
		AccessToken      string `json:"access_token"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"decoding GitHub token response", err)
	}
	// GitHub reports errors in a 200 body.
	if tokenResp.Error != "" {
		return "", types.NewAppError(types.ErrCodeAccessTokenInvalid,
			fmt.Sprintf("GitHub token exchange failed: %s - %s", tokenResp.Error, tokenResp.ErrorDescription), nil)
	}
	if tokenResp.AccessToken == "" {
		return "", types.NewAppError(types.ErrCodeAccessTokenInvalid,
			"GitHub returned an empty access token", nil)
	}
	return tokenResp.AccessToken, nil
}

func (e *GithubExchanger) fetchUser(ctx context.Context, accessToken string) (types.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.userURL, nil)
	if err != nil {
		return types.Identity{}, types.NewAppError(types.ErrCodeInternalUnexpected,
			"building GitHub user request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return types.Identity{}, types.NewAppError(types.ErrCodeRemoteUnavailable,
			"GitHub user request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return types.Identity{}, types.NewAppError(types.ErrCodeAccessTokenInvalid,
			fmt.Sprintf("GitHub user lookup failed (%d): %s", resp.StatusCode, truncate(body)), nil)
	}

	var user struct {
		Login string `json:"login"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return types.Identity{}, types.NewAppError(types.ErrCodeInternalUnexpected,
			"decoding GitHub user response", err)
	}
	if user.Name == "" {
		user.Name = user.Login
	}
	return types.Identity{Login: user.Login, Name: user.Name}, nil
}

func truncate(body []byte) string {
	const maxLen = 200
	s := string(body)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
