// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMongo    = "mongo"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	TelegramToken string
	StoreBackend  string

	MongoURI      string
	MongoDatabase string

	CatalogTable string
	StateTable   string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	SuggestionTimeout time.Duration
	StateIdleTTL      time.Duration

	// ParamPrefix enables SSM lookups for secrets missing from the environment.
	ParamPrefix   string
	WebhookSecret string

	LogLevel slog.Level
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, which has the signature of os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	envInt := func(key string, def int) int {
		v := get(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return def
		}
		return n
	}

	cfg := Config{
		TelegramToken:     get("TELEGRAM_BOT_TOKEN"),
		StoreBackend:      strings.ToLower(get("STORE_BACKEND")),
		MongoURI:          get("MONGODB_URI"),
		MongoDatabase:     get("MONGODB_DB"),
		CatalogTable:      get("CATALOG_TABLE"),
		StateTable:        get("STATE_TABLE"),
		OpenAIAPIKey:      get("OPENAI_API_KEY"),
		OpenAIModel:       get("OPENAI_MODEL"),
		OpenAIBaseURL:     get("OPENAI_BASE_URL"),
		SuggestionTimeout: time.Duration(envInt("SUGGESTION_TIMEOUT_SECONDS", 30)) * time.Second,
		StateIdleTTL:      time.Duration(envInt("STATE_IDLE_TTL_MINUTES", 0)) * time.Minute,
		ParamPrefix:       get("PARAM_PREFIX"),
		WebhookSecret:     get("WEBHOOK_SECRET"),
		LogLevel:          parseLevel(get("LOG_LEVEL")),
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = BackendMongo
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-3.5-turbo"
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "flanner"
	}
	if cfg.SuggestionTimeout == 0 {
		cfg.SuggestionTimeout = 30 * time.Second
	}
	return cfg, nil
}

// Validate checks the settings a deployment cannot run without. Secrets may
// instead come from SSM when ParamPrefix is set.
func (c Config) Validate() error {
	var errs []error
	if c.TelegramToken == "" && c.ParamPrefix == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN or PARAM_PREFIX is required"))
	}
	if c.OpenAIAPIKey == "" && c.ParamPrefix == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY or PARAM_PREFIX is required"))
	}
	switch c.StoreBackend {
	case BackendMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo backend"))
		}
	case BackendDynamoDB:
		if c.CatalogTable == "" {
			errs = append(errs, errors.New("CATALOG_TABLE is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger returns the JSON logger used by every binary.
func (c Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.LogLevel}))
}
