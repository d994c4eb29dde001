package config

import (
	"errors"
	"os"
	"time"

	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/jrsteele09/go-mail-oauth/oauth2"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnvVar names the optional YAML file layered under the environment.
const ConfigFileEnvVar = "MAILAUTH_CONFIG"

type Config interface {
	EnvConfig
	OAuthConfig
	AppConfig
}

type EnvConfig interface {
	GetAppName() string
	GetLogLevel() string
	GetEnv() string
}

type OAuthConfig interface {
	GetClientID() string
	GetTenantID() string
	GetAuthority() string
	GetRedirectURI() string
	GetPromptType() oauth2.PromptType
	GetScopes() []string
	GetLoginTimeout() time.Duration
	GetVerifyIDToken() bool
}

type AppConfig interface {
	GetClientSecret() string
	GetAppScopes() []string
	GetMailbox() string
}

// File is the layout of the YAML configuration file. Empty fields fall back to the defaults.
type File struct {
	AppName       string        `yaml:"app_name"`
	LogLevel      string        `yaml:"log_level"`
	ClientID      string        `yaml:"client_id"`
	TenantID      string        `yaml:"tenant_id"`
	Authority     string        `yaml:"authority"`
	RedirectURI   string        `yaml:"redirect_uri"`
	Prompt        string        `yaml:"prompt"`
	Scopes        []string      `yaml:"scopes"`
	LoginTimeout  time.Duration `yaml:"login_timeout"`
	VerifyIDToken *bool         `yaml:"verify_id_token"`
	ClientSecret  string        `yaml:"client_secret"`
	AppScopes     []string      `yaml:"app_scopes"`
	Mailbox       string        `yaml:"mailbox"`
}

type mainConfig struct {
	EnvVars
	OAuth
	App
}

// New returns configuration read from the environment only.
func New() Config {
	return newConfig(&File{})
}

func newConfig(f *File) mainConfig {
	return mainConfig{
		EnvVars: EnvVars{file: f},
		OAuth:   OAuth{file: f},
		App:     App{file: f},
	}
}

// Load layers the environment over the YAML file at path, or at $MAILAUTH_CONFIG
// when path is empty. A file that does not exist leaves only the environment and defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(ConfigFileEnvVar)
	}
	if path == "" {
		return New(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info().Str("path", path).Msg("No config file found, using environment and defaults")
			return New(), nil
		}
		return nil, autherrors.Wrapf(err, "error reading config file %s", path)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, autherrors.Wrapf(err, "error loading config from %s", path)
	}
	log.Debug().Str("path", path).Msg("Loaded configuration file")
	return newConfig(&f), nil
}
