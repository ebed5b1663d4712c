package config

import (
	"context"
	"os"
)

// SecretProvider resolves secret values by key. Production uses the SSM
// provider; local development uses plain environment variables. Keys that
// cannot be found are omitted from the result rather than reported as errors,
// so the loader can name exactly which variables stayed unresolved.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// EnvVarProvider resolves secrets from the process environment. It exists so
// local runs can exercise the same resolution path as SSM-backed ones.
type EnvVarProvider struct{}

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up with os.LookupEnv. Unset keys are
// omitted; a set-but-empty variable is returned as the empty string.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
