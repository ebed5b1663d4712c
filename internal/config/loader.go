// loader.go loads the process configuration: force UTC, read an optional
// .env file, resolve *_SSM_PARAM secret indirections (outside local),
// populate the Config struct via envconfig, and validate it.
package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError carries the loading stage that failed alongside the cause.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// A variable like DATABASE_URL_SSM_PARAM holds the SSM path whose decrypted
// value becomes DATABASE_URL.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that skips SSM resolution entirely.
const localEnv = "local"

// loaderDeps abstracts the process environment so loader tests run against a
// plain map instead of mutating real env vars.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads, resolves, and validates the configuration. The provider
// resolves *_SSM_PARAM secrets and may be nil when APP_ENV is "local" or no
// such indirections exist.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	// Schedules and timestamps are defined in UTC; pin the process to it.
	time.Local = time.UTC

	// An absent .env file is fine. godotenv never overrides variables that
	// are already set, keeping the env > dotenv > SSM priority.
	_ = godotenv.Load()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}
	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	return &cfg, nil
}

// ResolveSecrets runs only the SSM resolution step, for entry points (the
// OAuth exchange Lambda) that read individual env vars instead of calling
// LoadConfig. Call it before any os.Getenv that depends on a resolved value.
// A no-op when APP_ENV is "local".
func ResolveSecrets(provider SecretProvider) error {
	if appEnv, _ := os.LookupEnv("APP_ENV"); appEnv == localEnv {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

// resolveSSMParams finds every *_SSM_PARAM variable whose target is not
// already set, fetches the secrets behind their paths in one provider call,
// and injects the values into the environment for envconfig to pick up.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	// target env var name -> SSM path
	pending := make(map[string]string)
	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		// Directly set values outrank SSM.
		if _, set := deps.lookupEnv(target); set {
			continue
		}
		pending[target] = path
	}
	if len(pending) == 0 {
		return nil
	}

	if provider == nil {
		return &ConfigError{
			Type: ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)",
				strings.Join(sortedKeys(pending), ", ")),
		}
	}

	paths := make([]string, 0, len(pending))
	for _, path := range pending {
		paths = append(paths, path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	missing := make(map[string]string)
	for target, path := range pending {
		value, ok := resolved[path]
		if !ok {
			missing[target] = path
			continue
		}
		if err := deps.setEnv(target, value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", target),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type: ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s",
				strings.Join(sortedKeys(missing), ", ")),
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
