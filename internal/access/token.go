package access

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"powersched/internal/types"
)

// Session tokens are minted by the OAuth exchange after a successful GitHub
// code exchange and verified locally by everything else. A token is the
// base64url encoding of a JSON claims blob followed by an HMAC-SHA256
// signature over that blob.

type tokenClaims struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	ExpiresAt int64  `json:"exp"`
}

// SignToken mints a session token for the identity, valid for ttl.
func SignToken(secret []byte, id types.Identity, now time.Time, ttl time.Duration) (string, error) {
	claims, err := json.Marshal(tokenClaims{
		Login:     id.Login,
		Name:      id.Name,
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("encoding token claims: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(claims)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(claims) + "." + enc.EncodeToString(sig), nil
}

// VerifyToken checks a session token's signature and expiry and returns the
// embedded identity. Any malformed, forged, or expired token yields
// ErrCodeAccessTokenInvalid; callers must not distinguish the cases.
func VerifyToken(secret []byte, token string, now time.Time) (types.Identity, error) {
	invalid := func(msg string) (types.Identity, error) {
		return types.Identity{}, types.NewAppError(types.ErrCodeAccessTokenInvalid, msg, nil)
	}

	enc := base64.RawURLEncoding
	dot := -1
	for i := range token {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return invalid("session token is malformed")
	}

	claims, err := enc.DecodeString(token[:dot])
	if err != nil {
		return invalid("session token is malformed")
	}
	sig, err := enc.DecodeString(token[dot+1:])
	if err != nil {
		return invalid("session token is malformed")
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(claims)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return invalid("session token signature mismatch")
	}

	var c tokenClaims
	if err := json.Unmarshal(claims, &c); err != nil {
		return invalid("session token is malformed")
	}
	if now.Unix() >= c.ExpiresAt {
		return invalid("session token has expired")
	}
	return types.Identity{Login: c.Login, Name: c.Name}, nil
}
