package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"powersched/internal/types"
)

// TestConfig_SecretFieldsUseSecretString verifies that every field holding a
// credential is typed as SecretString so it cannot leak through logs or JSON.
func TestConfig_SecretFieldsUseSecretString(t *testing.T) {
	secretFields := []struct {
		structType reflect.Type
		field      string
	}{
		{reflect.TypeOf(DatabaseConfig{}), "URL"},
		{reflect.TypeOf(AuthConfig{}), "GithubClientSecret"},
		{reflect.TypeOf(AuthConfig{}), "SessionSecret"},
	}

	secretStringType := reflect.TypeOf(types.SecretString(""))
	for _, sf := range secretFields {
		t.Run(fmt.Sprintf("%s.%s", sf.structType.Name(), sf.field), func(t *testing.T) {
			f, ok := sf.structType.FieldByName(sf.field)
			if !ok {
				t.Fatalf("field %s not found on %s", sf.field, sf.structType.Name())
			}
			if f.Type != secretStringType {
				t.Errorf("%s.%s has type %s, want types.SecretString",
					sf.structType.Name(), sf.field, f.Type)
			}
		})
	}
}

// TestConfig_EnvconfigTags verifies the environment variable binding of each
// configuration field.
func TestConfig_EnvconfigTags(t *testing.T) {
	cases := []struct {
		structType reflect.Type
		field      string
		envVar     string
	}{
		{reflect.TypeOf(Config{}), "Environment", "APP_ENV"},
		{reflect.TypeOf(Config{}), "Service", "SERVICE_NAME"},
		{reflect.TypeOf(Config{}), "LogLevel", "LOG_LEVEL"},
		{reflect.TypeOf(ServerConfig{}), "Port", "PORT"},
		{reflect.TypeOf(DatabaseConfig{}), "URL", "DATABASE_URL"},
		{reflect.TypeOf(DatabaseConfig{}), "MaxConns", "DB_MAX_CONNS"},
		{reflect.TypeOf(RemoteConfig{}), "BaseURL", "REMOTE_STORE_URL"},
		{reflect.TypeOf(RemoteConfig{}), "RetryAttempts", "REMOTE_RETRY_ATTEMPTS"},
		{reflect.TypeOf(RemoteConfig{}), "BaseDelay", "REMOTE_RETRY_BASE_DELAY"},
		{reflect.TypeOf(LocalConfig{}), "StorePath", "LOCAL_STORE_PATH"},
		{reflect.TypeOf(DataConfig{}), "InventoryPath", "INVENTORY_CSV"},
		{reflect.TypeOf(DataConfig{}), "UsersPath", "USERS_JSON"},
		{reflect.TypeOf(AuthConfig{}), "GithubClientID", "GITHUB_CLIENT_ID"},
		{reflect.TypeOf(AuthConfig{}), "SessionSecret", "SESSION_SECRET"},
		{reflect.TypeOf(AWSConfig{}), "Region", "AWS_REGION"},
	}

	for _, c := range cases {
		t.Run(c.envVar, func(t *testing.T) {
			f, ok := c.structType.FieldByName(c.field)
			if !ok {
				t.Fatalf("field %s not found on %s", c.field, c.structType.Name())
			}
			if got := f.Tag.Get("envconfig"); got != c.envVar {
				t.Errorf("%s.%s envconfig tag = %q, want %q",
					c.structType.Name(), c.field, got, c.envVar)
			}
		})
	}
}

// TestConfig_RequiredValidations verifies the fail-fast validation rules.
func TestConfig_RequiredValidations(t *testing.T) {
	cases := []struct {
		structType reflect.Type
		field      string
		contains   string
	}{
		{reflect.TypeOf(Config{}), "Environment", "required"},
		{reflect.TypeOf(DatabaseConfig{}), "URL", "required"},
		{reflect.TypeOf(RemoteConfig{}), "BaseURL", "required"},
		{reflect.TypeOf(AuthConfig{}), "SessionSecret", "min=32"},
	}

	for _, c := range cases {
		t.Run(fmt.Sprintf("%s.%s", c.structType.Name(), c.field), func(t *testing.T) {
			f, _ := c.structType.FieldByName(c.field)
			if tag := f.Tag.Get("validate"); !strings.Contains(tag, c.contains) {
				t.Errorf("%s.%s validate tag = %q, want it to contain %q",
					c.structType.Name(), c.field, tag, c.contains)
			}
		})
	}
}

// TestConfig_Defaults verifies default values for optional settings.
func TestConfig_Defaults(t *testing.T) {
	cases := []struct {
		structType reflect.Type
		field      string
		want       string
	}{
		{reflect.TypeOf(Config{}), "Service", "powersched"},
		{reflect.TypeOf(Config{}), "LogLevel", "info"},
		{reflect.TypeOf(ServerConfig{}), "Port", "8080"},
		{reflect.TypeOf(RemoteConfig{}), "RetryAttempts", "3"},
		{reflect.TypeOf(RemoteConfig{}), "BaseDelay", "500ms"},
		{reflect.TypeOf(LocalConfig{}), "StorePath", ".powersched"},
		{reflect.TypeOf(DataConfig{}), "AuditLimit", "200"},
		{reflect.TypeOf(AuthConfig{}), "SessionTTL", "12h"},
	}

	for _, c := range cases {
		t.Run(fmt.Sprintf("%s.%s", c.structType.Name(), c.field), func(t *testing.T) {
			f, _ := c.structType.FieldByName(c.field)
			if got := f.Tag.Get("default"); got != c.want {
				t.Errorf("%s.%s default = %q, want %q",
					c.structType.Name(), c.field, got, c.want)
			}
		})
	}
}

// TestConfig_JSONDumpRedactsSecrets guards against a config dump leaking
// credentials.
func TestConfig_JSONDumpRedactsSecrets(t *testing.T) {
	cfg := Config{
		Database: DatabaseConfig{URL: "postgres://user:hunter2@db/powersched"},
		Auth: AuthConfig{
			GithubClientSecret: "gh-secret-value",
			SessionSecret:      "session-secret-value-that-is-long",
		},
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	for _, secret := range []string{"hunter2", "gh-secret-value", "session-secret-value"} {
		if strings.Contains(string(raw), secret) {
			t.Errorf("JSON dump leaked secret %q", secret)
		}
	}
}
