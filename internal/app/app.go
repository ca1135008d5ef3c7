// Package app wires configuration into the services shared by the polling
// bot and the webhook function.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"flanner/internal/bot"
	"flanner/internal/config"
	"flanner/internal/integrations/openai"
	"flanner/internal/integrations/paramstore"
	"flanner/internal/integrations/telegram"
	"flanner/internal/repository"
	"flanner/internal/usecase"
)

// SSM parameter names, relative to PARAM_PREFIX.
const (
	paramTelegramToken = "telegram-bot-token"
	paramOpenAIKey     = "openai-api-key"
)

const mongoConnectTimeout = 10 * time.Second

// App holds the long-lived clients of one process.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	aws    *aws.Config
	params *paramstore.Client
	dynamo *awsdynamodb.Client

	Catalog usecase.CatalogStore
	LLM     *openai.Client

	closers []func(context.Context) error
}

// New connects the catalog store and builds the LLM client.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger}

	if cfg.ParamPrefix != "" {
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		a.params, err = paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
		if err != nil {
			return nil, fmt.Errorf("app: create SSM client: %w", err)
		}
	}

	if err := a.openCatalog(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}

	llm, err := a.newLLM()
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	a.LLM = llm
	return a, nil
}

func (a *App) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.aws != nil {
		return *a.aws, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("app: load AWS config: %w", err)
	}
	a.aws = &cfg
	return cfg, nil
}

func (a *App) dynamoClient(ctx context.Context) (*awsdynamodb.Client, error) {
	if a.dynamo != nil {
		return a.dynamo, nil
	}
	awsCfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	a.dynamo = awsdynamodb.NewFromConfig(awsCfg)
	return a.dynamo, nil
}

func (a *App) openCatalog(ctx context.Context) error {
	switch a.cfg.StoreBackend {
	case config.BackendDynamoDB:
		db, err := a.dynamoClient(ctx)
		if err != nil {
			return err
		}
		store, err := repository.New(db, a.cfg.CatalogTable)
		if err != nil {
			return fmt.Errorf("app: create dynamodb catalog: %w", err)
		}
		a.Catalog = store
		a.logger.Info("catalog store ready", "backend", config.BackendDynamoDB, "table", a.cfg.CatalogTable)
		return nil
	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(a.cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("app: connect mongo: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)
		if err := client.Ping(connectCtx, nil); err != nil {
			return fmt.Errorf("app: ping mongo: %w", err)
		}
		store, err := repository.NewMongoStore(client.Database(a.cfg.MongoDatabase), 0)
		if err != nil {
			return fmt.Errorf("app: create mongo catalog: %w", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		a.Catalog = store
		a.logger.Info("catalog store ready", "backend", config.BackendMongo, "database", a.cfg.MongoDatabase)
		return nil
	default:
		return fmt.Errorf("app: unknown store backend %q", a.cfg.StoreBackend)
	}
}

func (a *App) newLLM() (*openai.Client, error) {
	opts := []openai.Option{openai.WithBaseURL(a.cfg.OpenAIBaseURL)}
	switch {
	case a.cfg.OpenAIAPIKey != "":
		opts = append(opts, openai.WithAPIKey(a.cfg.OpenAIAPIKey))
	case a.params != nil:
		opts = append(opts, openai.WithTokenGetter(a.params, paramOpenAIKey))
	}
	client, err := openai.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("app: create OpenAI client: %w", err)
	}
	return client, nil
}

// TelegramToken returns the bot token from the environment or, failing
// that, from SSM.
func (a *App) TelegramToken(ctx context.Context) (string, error) {
	if a.cfg.TelegramToken != "" {
		return a.cfg.TelegramToken, nil
	}
	if a.params == nil {
		return "", errors.New("app: no telegram token configured")
	}
	token, err := a.params.GetToken(ctx, paramTelegramToken)
	if err != nil {
		return "", fmt.Errorf("app: fetch telegram token: %w", err)
	}
	return token, nil
}

// ChatStates returns the DynamoDB conversation state store.
func (a *App) ChatStates(ctx context.Context) (*repository.ChatStateStore, error) {
	if a.cfg.StateTable == "" {
		return nil, errors.New("app: STATE_TABLE is required for shared chat state")
	}
	db, err := a.dynamoClient(ctx)
	if err != nil {
		return nil, err
	}
	return repository.NewChatStateStore(db, a.cfg.StateTable)
}

// Dispatcher builds the catalog and suggestion services and the dispatcher
// on top of them.
func (a *App) Dispatcher(states bot.StateStore, sender bot.Sender) (*bot.Dispatcher, error) {
	catalog, err := usecase.NewCatalogService(a.Catalog, a.logger)
	if err != nil {
		return nil, err
	}
	suggest, err := usecase.NewSuggestService(a.Catalog, a.LLM, a.cfg.OpenAIModel, a.cfg.SuggestionTimeout, a.logger)
	if err != nil {
		return nil, err
	}
	return bot.NewDispatcher(states, sender, catalog, suggest, a.logger)
}

// TelegramCommands is the command menu registered with Telegram.
func TelegramCommands() []telegram.Command {
	cmds := make([]telegram.Command, 0, len(bot.Commands()))
	for _, c := range bot.Commands() {
		cmds = append(cmds, telegram.Command{Name: c.TelegramName(), Description: c.Description()})
	}
	return cmds
}

// Close releases the clients opened by New.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
