// Package main is the OAuth code-exchange Lambda. The frontend sends a
// GitHub authorization code; the Lambda trades it for the user's identity,
// checks the user registry, and returns a signed session token that the CLI
// and the schedule store API accept as a bearer credential.
//
// Required environment variables (secrets may arrive via _SSM_PARAM
// indirection, resolved at cold start):
//
//	GITHUB_CLIENT_ID, GITHUB_CLIENT_SECRET  OAuth app credentials
//	SESSION_SECRET                          HMAC key for session tokens
//	USERS_JSON                              path of the packaged user registry
//	GHE_BASE_URL                            GitHub Enterprise base URL (optional;
//	                                        empty means github.com)
//	ALLOWED_ORIGIN                          CORS origin (optional, default *)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"powersched/internal/access"
	"powersched/internal/config"
	"powersched/internal/types"
)

// exchangeRequest is the POST body from the frontend.
type exchangeRequest struct {
	Code string `json:"code"`
}

// exchangeResponse is returned on a successful exchange.
type exchangeResponse struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler holds the Lambda's cold-start dependencies.
type Handler struct {
	exchanger     *access.GithubExchanger
	registry      *access.Registry
	sessionSecret []byte
	sessionTTL    time.Duration
	allowedOrigin string
	logger        *slog.Logger
	clock         types.Clock
}

// Handle processes one API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if event.HTTPMethod == http.MethodOptions {
		return h.respond(http.StatusOK, nil), nil
	}

	var req exchangeRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil || req.Code == "" {
		return h.respond(http.StatusBadRequest, errorResponse{Error: "missing authorization code"}), nil
	}

	identity, err := h.exchanger.Exchange(ctx, req.Code)
	if err != nil {
		h.logger.Error("code exchange failed", "error", err)
		return h.respondError(err, http.StatusUnauthorized, "token exchange failed"), nil
	}

	user, err := h.registry.FindByGitHub(identity.Login)
	if err != nil {
		h.logger.Warn("login not in user registry", "login", identity.Login)
		return h.respondError(err, http.StatusUnauthorized, "access refused"), nil
	}

	token, err := access.SignToken(h.sessionSecret, identity, h.clock.Now(), h.sessionTTL)
	if err != nil {
		h.logger.Error("signing session token failed", "error", err)
		return h.respond(http.StatusInternalServerError, errorResponse{Error: "internal server error"}), nil
	}

	h.logger.Info("oauth exchange succeeded", "login", identity.Login, "user", user.ID)
	return h.respond(http.StatusOK, exchangeResponse{
		Login: identity.Login,
		Name:  identity.Name,
		Token: token,
	}), nil
}

func (h *Handler) respond(status int, body any) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Access-Control-Allow-Origin":  h.allowedOrigin,
			"Access-Control-Allow-Headers": "Content-Type",
			"Access-Control-Allow-Methods": "POST, OPTIONS",
			"Content-Type":                 "application/json",
		},
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			resp.StatusCode = http.StatusInternalServerError
			resp.Body = `{"error":"internal server error"}`
			return resp
		}
		resp.Body = string(raw)
	}
	return resp
}

// respondError maps an AppError to its HTTP status, falling back to the
// given default for plain errors. Internal details stay out of the body.
func (h *Handler) respondError(err error, fallback int, message string) events.APIGatewayProxyResponse {
	status := fallback
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
		message = appErr.Message
	}
	return h.respond(status, errorResponse{Error: message})
}

// newHandler builds the handler from the environment. Secrets referenced via
// _SSM_PARAM variables must already be resolved.
func newHandler(logger *slog.Logger) (*Handler, error) {
	usersPath := os.Getenv("USERS_JSON")
	if usersPath == "" {
		usersPath = "users.json"
	}
	registry, err := access.LoadRegistry(usersPath)
	if err != nil {
		return nil, fmt.Errorf("loading user registry: %w", err)
	}

	secret := os.Getenv("SESSION_SECRET")
	if len(secret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}

	ttl := 12 * time.Hour
	if raw := os.Getenv("SESSION_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing SESSION_TTL: %w", err)
		}
		ttl = parsed
	}

	origin := os.Getenv("ALLOWED_ORIGIN")
	if origin == "" {
		origin = "*"
	}

	cfg := access.GithubExchangerConfig{
		ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
	}
	// GitHub Enterprise hosts the OAuth endpoints under the instance's own
	// domain; github.com defaults apply when no base URL is set.
	if gheBase := os.Getenv("GHE_BASE_URL"); gheBase != "" {
		cfg.TokenURL = gheBase + "/login/oauth/access_token"
		cfg.UserURL = gheBase + "/api/v3/user"
	}

	return &Handler{
		exchanger:     access.NewGithubExchanger(nil, cfg),
		registry:      registry,
		sessionSecret: []byte(secret),
		sessionTTL:    ttl,
		allowedOrigin: origin,
		logger:        logger,
		clock:         types.RealClock{},
	}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "eu-central-1"
	}
	if err := config.ResolveSecrets(config.NewSSMProvider(region)); err != nil {
		logger.Error("resolving secrets failed", "error", err)
		os.Exit(1)
	}

	handler, err := newHandler(logger)
	if err != nil {
		logger.Error("cold start failed", "error", err)
		os.Exit(1)
	}

	lambda.Start(handler.Handle)
}
