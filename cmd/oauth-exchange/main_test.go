package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"powersched/internal/access"
	"powersched/internal/types"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// newTestHandler wires a handler against a fake GitHub backend.
func newTestHandler(t *testing.T, github http.HandlerFunc) *Handler {
	t.Helper()

	srv := httptest.NewServer(github)
	t.Cleanup(srv.Close)

	registry, err := access.ParseRegistry([]byte(
		`[{"id":"u1","name":"Ada Admin","github_user":"ada","role":"Admin","applications":"*"}]`))
	if err != nil {
		t.Fatalf("parsing registry: %v", err)
	}

	return &Handler{
		exchanger: access.NewGithubExchanger(srv.Client(), access.GithubExchangerConfig{
			ClientID:     "client",
			ClientSecret: "secret",
			TokenURL:     srv.URL + "/login/oauth/access_token",
			UserURL:      srv.URL + "/user",
		}),
		registry:      registry,
		sessionSecret: []byte(testSecret),
		sessionTTL:    time.Hour,
		allowedOrigin: "https://ui.example.com",
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:         types.RealClock{},
	}
}

func githubStub(login string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login/oauth/access_token":
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_test"})
		case "/user":
			_ = json.NewEncoder(w).Encode(map[string]string{"login": login, "name": "Ada Admin"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestHandle_SuccessIssuesVerifiableToken(t *testing.T) {
	h := newTestHandler(t, githubStub("ada"))

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Body:       `{"code":"abc123"}`,
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, resp.Body)
	}
	if got := resp.Headers["Access-Control-Allow-Origin"]; got != "https://ui.example.com" {
		t.Errorf("CORS origin = %q", got)
	}

	var body exchangeResponse
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Login != "ada" {
		t.Errorf("login = %q, want ada", body.Login)
	}

	identity, err := access.VerifyToken([]byte(testSecret), body.Token, time.Now())
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if identity.Login != "ada" {
		t.Errorf("token login = %q, want ada", identity.Login)
	}
}

func TestHandle_CORSPreflight(t *testing.T) {
	h := newTestHandler(t, githubStub("ada"))

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodOptions,
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandle_MissingCode(t *testing.T) {
	h := newTestHandler(t, githubStub("ada"))

	resp, _ := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Body:       `{}`,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandle_UnknownLoginRefused(t *testing.T) {
	h := newTestHandler(t, githubStub("stranger"))

	resp, _ := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Body:       `{"code":"abc123"}`,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401; body = %s", resp.StatusCode, resp.Body)
	}
}

func TestHandle_ExchangeFailure(t *testing.T) {
	h := newTestHandler(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
	})

	resp, _ := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Body:       `{"code":"expired"}`,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401; body = %s", resp.StatusCode, resp.Body)
	}
}
