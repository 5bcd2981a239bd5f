// Package config provides functionality for parsing and validating
// request files (JSON/YAML) and loading runtime settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/canectors/fundsync/internal/logger"
	"github.com/canectors/fundsync/internal/pipefy"
)

// Setting keys, read from the environment, a .env file or a YAML settings file
const (
	KeyPipefyToken     = "PIPEFY_TOKEN"
	KeyPATToken        = "PFY_PAT_TOKEN"
	KeyBaseURL         = "PFY_BASE_URL"
	KeyAPIPath         = "PFY_API_URL"
	KeyMaxAttempts     = "PFY_QTD_TENTATIVAS_RECONEXAO"
	KeyTimeout         = "PFY_TIMEOUT_CONEXAO"
	KeyRetryDelay      = "PFY_RETRY_DELAY"
	KeyRetryHint       = "PFY_RETRY_HINT"
	KeyVerifySSL       = "REQUESTS_SSL"
	KeyPipeID          = "PIPE_ID"
	KeyArchiveURL      = "ARCHIVE_URL"
	KeyArchiveTimeout  = "ARCHIVE_TIMEOUT"
	KeyFunctionName    = "FUNCTION_NAME"
	KeyFunctionVersion = "FUNCTION_VERSION"
	KeyListenAddr      = "LISTEN_ADDR"
)

// DefaultEnvFile is loaded when LoadSettings is given no env files.
const DefaultEnvFile = ".env"

// ErrInvalidSettings is returned when a setting cannot be interpreted.
var ErrInvalidSettings = errors.New("invalid settings")

// PipefyCredentials is the JSON document held in PIPEFY_TOKEN.
type PipefyCredentials struct {
	OAuthURL     string `json:"url_oauth_pipefy"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Settings holds the process-wide runtime settings.
type Settings struct {
	Credentials PipefyCredentials
	PATToken    string
	BaseURL     string
	APIPath     string
	MaxAttempts int
	Timeout     time.Duration
	RetryDelay  time.Duration
	RetryHint   string
	VerifySSL   bool

	// PipeID is used when a request carries no pipe_id
	PipeID string

	ArchiveURL     string
	ArchiveTimeout time.Duration

	FunctionName    string
	FunctionVersion string
	ListenAddr      string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyBaseURL, "https://api.pipefy.com")
	v.SetDefault(KeyAPIPath, "/graphql")
	v.SetDefault(KeyMaxAttempts, 3)
	v.SetDefault(KeyTimeout, 30)
	v.SetDefault(KeyVerifySSL, true)
	v.SetDefault(KeyArchiveTimeout, 60)
	v.SetDefault(KeyFunctionName, "fundsync")
	v.SetDefault(KeyFunctionVersion, "1.0.0")
	v.SetDefault(KeyListenAddr, ":8090")
}

// LoadSettings reads runtime settings.
//
// The env files (default .env) are loaded first without overriding variables
// already set; missing env files are ignored. settingsFile is an optional YAML
// file whose keys are the setting names. Environment variables take
// precedence over the settings file.
func LoadSettings(settingsFile string, envFiles ...string) (*Settings, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%w: loading %s: %w", ErrInvalidSettings, envFile, err)
		}
		logger.Debug("env file loaded", slog.String("path", envFile))
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrInvalidSettings, settingsFile, err)
		}
	}

	return settingsFrom(v)
}

func settingsFrom(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		PATToken:        strings.TrimSpace(v.GetString(KeyPATToken)),
		BaseURL:         v.GetString(KeyBaseURL),
		APIPath:         v.GetString(KeyAPIPath),
		MaxAttempts:     v.GetInt(KeyMaxAttempts),
		Timeout:         seconds(v.GetInt(KeyTimeout)),
		RetryHint:       v.GetString(KeyRetryHint),
		VerifySSL:       v.GetBool(KeyVerifySSL),
		PipeID:          strings.TrimSpace(v.GetString(KeyPipeID)),
		ArchiveURL:      v.GetString(KeyArchiveURL),
		ArchiveTimeout:  seconds(v.GetInt(KeyArchiveTimeout)),
		FunctionName:    v.GetString(KeyFunctionName),
		FunctionVersion: v.GetString(KeyFunctionVersion),
		ListenAddr:      v.GetString(KeyListenAddr),
	}

	// The pause between attempts defaults to the connection timeout.
	s.RetryDelay = s.Timeout
	if v.IsSet(KeyRetryDelay) {
		s.RetryDelay = seconds(v.GetInt(KeyRetryDelay))
	}

	if raw := strings.TrimSpace(v.GetString(KeyPipefyToken)); raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.Credentials); err != nil {
			return nil, fmt.Errorf("%w: %s is not a JSON object: %w", ErrInvalidSettings, KeyPipefyToken, err)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Validate checks numeric settings.
func (s *Settings) Validate() error {
	if s.MaxAttempts < 1 {
		return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalidSettings, KeyMaxAttempts, s.MaxAttempts)
	}
	if s.Timeout < 0 || s.RetryDelay < 0 || s.ArchiveTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidSettings)
	}
	return nil
}

// APIEndpoint joins the base url and api path.
func (s *Settings) APIEndpoint() string {
	return s.BaseURL + s.APIPath
}

// PipefyConfig builds the client configuration.
func (s *Settings) PipefyConfig() pipefy.Config {
	return pipefy.Config{
		APIEndpoint:        s.APIEndpoint(),
		OAuthEndpoint:      s.Credentials.OAuthURL,
		ClientID:           s.Credentials.ClientID,
		ClientSecret:       s.Credentials.ClientSecret,
		StaticToken:        s.PATToken,
		MaxAttempts:        s.MaxAttempts,
		RetryDelay:         s.RetryDelay,
		Timeout:            s.Timeout,
		InsecureSkipVerify: !s.VerifySSL,
		RetryHintFromBody:  s.RetryHint,
	}
}
