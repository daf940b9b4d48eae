package builder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/grantwise/coach-backend/internal/api"
	chatapi "github.com/grantwise/coach-backend/internal/api/chat"
	"github.com/grantwise/coach-backend/internal/config"
	"github.com/grantwise/coach-backend/internal/document"
	"github.com/grantwise/coach-backend/internal/generator"
	"github.com/grantwise/coach-backend/internal/integration/embedding"
	"github.com/grantwise/coach-backend/internal/integration/llm"
	"github.com/grantwise/coach-backend/internal/pkg/formatter"
	"github.com/grantwise/coach-backend/internal/store"
	"github.com/grantwise/coach-backend/internal/workflow"
	pkghttp "github.com/grantwise/coach-backend/pkg/http"
)

func Build() (*App, error) {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	logger.Info("Building application",
		zap.String("environment", cfg.Environment),
		zap.String("server_addr", cfg.ServerAddr()),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	// Session store backend
	app := &App{logger: logger}
	var sessionStore store.Store
	switch cfg.SessionStore {
	case config.SessionStorePostgres:
		db, err := setupDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("setup database: %w", err)
		}
		logger.Info("Running database migrations")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("Database migrations completed successfully")
		app.db = db
		sessionStore = store.NewPostgres(db)
	case config.SessionStoreMemory:
		sessionStore = store.NewMemory(cfg.SessionTTL)
	}
	logger.Info("Session store initialized", zap.String("backend", cfg.SessionStore))

	// External service connectors (with mock support)
	var llmConnector generator.LLMConnector
	var embedder document.Embedder
	if cfg.EnableMocks {
		logger.Info("Using mock connectors for external services")
		llmConnector = llm.NewMockConnector(logger)
		embedder = embedding.NewMockConnector(logger)
	} else {
		logger.Info("Using real connectors for external services")
		llmConnector = llm.NewConnector(cfg.LLMConnectorCfg, cfg.GPTModel, logger)
		embedder = embedding.NewConnector(cfg.EmbeddingConnectorCfg, logger)
	}

	// Document retrieval service
	loader := document.NewLoader(pkghttp.NewClient())
	docService := document.NewService(loader, embedder, logger)
	logger.Info("Document service initialized")

	// Workflow engine
	gens := generator.NewSet(llmConnector, docService, generator.Config{
		TokensPerChunk: cfg.TokensPerChunk,
		TopK:           cfg.RetrievalTopK,
	}, logger)
	registry := workflow.NewRegistry(workflow.Generators{
		ValidateUpload:         gens.ValidateUpload,
		AnswerQuestion:         gens.AnswerQuestionStream,
		CheckComprehensiveness: gens.CheckComprehensiveness,
		AnswerImplicit:         gens.AnswerImplicitStream,
		FinalAnswer:            gens.FinalAnswerStream,
		ImprovedAnswer:         gens.ImprovedAnswerStream,
	}, cfg.DevMode)
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("validate step registry: %w", err)
	}
	engine := workflow.NewEngine(registry, sessionStore)
	logger.Info("Workflow engine initialized")

	// API handlers and router
	chatHandler := chatapi.NewHandler(engine, formatter.NewFactory())
	router := api.SetupRouter(chatHandler, cfg.APIToken, logger)
	logger.Info("HTTP router configured")

	app.server = api.NewServer(cfg.ServerAddr(), router)

	logger.Info("Application built successfully",
		zap.String("environment", cfg.Environment),
	)

	return app, nil
}
