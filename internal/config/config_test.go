package config

import (
	"errors"
	"os"
	"testing"
	"time"
)

// clearSettingsEnv blanks every setting for the test; viper treats empty
// variables as unset.
func clearSettingsEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		KeyPipefyToken, KeyPATToken, KeyBaseURL, KeyAPIPath, KeyMaxAttempts,
		KeyTimeout, KeyRetryDelay, KeyRetryHint, KeyVerifySSL, KeyPipeID,
		KeyArchiveURL, KeyArchiveTimeout, KeyFunctionName, KeyFunctionVersion, KeyListenAddr,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	clearSettingsEnv(t)

	s, err := LoadSettings("", "testdata/absent.env")
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	if s.APIEndpoint() != "https://api.pipefy.com/graphql" {
		t.Errorf("APIEndpoint() = %q", s.APIEndpoint())
	}
	if s.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", s.MaxAttempts)
	}
	if s.Timeout != 30*time.Second || s.RetryDelay != 30*time.Second {
		t.Errorf("Timeout = %v, RetryDelay = %v, want 30s both", s.Timeout, s.RetryDelay)
	}
	if !s.VerifySSL {
		t.Error("expected VerifySSL by default")
	}
	if s.ListenAddr != ":8090" || s.FunctionName != "fundsync" {
		t.Errorf("unexpected defaults %+v", s)
	}
}

func TestLoadSettings_Environment(t *testing.T) {
	clearSettingsEnv(t)
	t.Setenv(KeyPipefyToken, `{"url_oauth_pipefy":"https://auth.test/token","client_id":"id","client_secret":"sec"}`)
	t.Setenv(KeyPATToken, " pat ")
	t.Setenv(KeyMaxAttempts, "5")
	t.Setenv(KeyTimeout, "10")
	t.Setenv(KeyRetryDelay, "2")
	t.Setenv(KeyVerifySSL, "false")
	t.Setenv(KeyPipeID, "301")
	t.Setenv(KeyRetryHint, "status != 400")

	s, err := LoadSettings("", "testdata/absent.env")
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	if s.Credentials.OAuthURL != "https://auth.test/token" || s.Credentials.ClientID != "id" || s.Credentials.ClientSecret != "sec" {
		t.Errorf("Credentials = %+v", s.Credentials)
	}
	if s.RetryDelay != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s", s.RetryDelay)
	}

	cfg := s.PipefyConfig()
	if cfg.StaticToken != "pat" {
		t.Errorf("StaticToken = %q, want trimmed token", cfg.StaticToken)
	}
	if cfg.MaxAttempts != 5 || cfg.Timeout != 10*time.Second {
		t.Errorf("MaxAttempts = %d, Timeout = %v", cfg.MaxAttempts, cfg.Timeout)
	}
	if !cfg.InsecureSkipVerify {
		t.Error("REQUESTS_SSL=false must disable verification")
	}
	if cfg.OAuthEndpoint != "https://auth.test/token" || cfg.RetryHintFromBody != "status != 400" {
		t.Errorf("unexpected pipefy config %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("pipefy config must be valid: %v", err)
	}
}

func TestLoadSettings_SettingsFile(t *testing.T) {
	clearSettingsEnv(t)
	t.Setenv(KeyPipeID, "99")

	s, err := LoadSettings("testdata/settings.yaml", "testdata/absent.env")
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	if s.APIEndpoint() != "https://pipefy.test/queries" {
		t.Errorf("APIEndpoint() = %q", s.APIEndpoint())
	}
	if s.MaxAttempts != 5 || s.RetryDelay != 10*time.Second {
		t.Errorf("MaxAttempts = %d, RetryDelay = %v", s.MaxAttempts, s.RetryDelay)
	}
	if s.PipeID != "99" {
		t.Errorf("PipeID = %q, environment must win over the file", s.PipeID)
	}
}

func TestLoadSettings_EnvFile(t *testing.T) {
	clearSettingsEnv(t)
	// godotenv skips variables that already exist, even when empty.
	for _, key := range []string{KeyPATToken, KeyPipefyToken} {
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unsetenv: %v", err)
		}
	}

	s, err := LoadSettings("", "testdata/test.env")
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	if s.PATToken != "pat-from-env-file" {
		t.Errorf("PATToken = %q", s.PATToken)
	}
	if s.Credentials.ClientID != "cid" {
		t.Errorf("Credentials = %+v", s.Credentials)
	}
}

func TestLoadSettings_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{"malformed credentials", map[string]string{KeyPipefyToken: "{not json"}, ""},
		{"zero attempts", map[string]string{KeyMaxAttempts: "0"}, ""},
		{"negative delay", map[string]string{KeyRetryDelay: "-1"}, ""},
		{"missing settings file", nil, "testdata/absent.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearSettingsEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadSettings(tt.file, "testdata/absent.env")
			if !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("expected ErrInvalidSettings, got %v", err)
			}
		})
	}
}
