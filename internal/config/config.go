// Package config loads the relay configuration. Environment variables are
// the primary transport (matching existing .env deployments); an optional
// YAML file can supply the same keys, with the environment taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"tgrelay/internal/domain"
)

// Config is the root configuration for the relay.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Rules    RulesConfig    `yaml:"rules"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TelegramConfig holds the credentials used to authenticate to the network.
type TelegramConfig struct {
	APIID    string `yaml:"apiId"`
	APIHash  string `yaml:"apiHash"`
	BotToken string `yaml:"botToken"`
}

// RulesConfig carries the raw forwarding configuration text. Parsing and
// validation of the rules themselves happen in the rules package.
type RulesConfig struct {
	SourceID        string `yaml:"sourceId"`        // legacy single-pair form
	TargetID        string `yaml:"targetId"`        // legacy single-pair form
	ForwardingRules string `yaml:"forwardingRules"` // src:tgt[:tgt...][,src:tgt...]
}

type LoggingConfig struct {
	File           string `yaml:"file"`
	DisableConsole bool   `yaml:"disableConsole"`
}

func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			File: "telegram_forwarder.log",
		},
	}
}

// Load reads the optional YAML file at path, then overlays environment
// variables so .env-style deployments keep working unchanged. An empty path
// means environment-only. Credential validation is left to Validate so
// dry-run commands can inspect rules without credentials.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
		data = []byte(ExpandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.Logging.File = ExpandPath(cfg.Logging.File)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setIfPresent(&cfg.Telegram.APIID, "API_ID")
	setIfPresent(&cfg.Telegram.APIHash, "API_HASH")
	setIfPresent(&cfg.Telegram.BotToken, "BOT_TOKEN")
	setIfPresent(&cfg.Rules.SourceID, "SOURCE_ID")
	setIfPresent(&cfg.Rules.TargetID, "TARGET_ID")
	setIfPresent(&cfg.Rules.ForwardingRules, "FORWARDING_RULES")
	setIfPresent(&cfg.Logging.File, "LOG_FILE")
}

func setIfPresent(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate checks the credential fields required to connect.
//
// The original tool treated the bot token as optional and fell back to an
// interactive user session; the Bot API transport has no such mode, so the
// token is required here.
func Validate(cfg *Config) error {
	if cfg.Telegram.APIID == "" || cfg.Telegram.APIHash == "" {
		return domain.NewConfigError("Missing API_ID or API_HASH. Check your .env file.")
	}
	if cfg.Telegram.BotToken == "" {
		return domain.NewConfigError("Missing BOT_TOKEN. The Bot API transport requires a bot token.")
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Sanitize returns a copy of cfg with credential fields masked for display.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Telegram.APIHash = mask(cfg.Telegram.APIHash)
	out.Telegram.BotToken = mask(cfg.Telegram.BotToken)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
