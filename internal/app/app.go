package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ManideepBangaru/lumos-backend/internal/config"
	"github.com/ManideepBangaru/lumos-backend/internal/core"
	"github.com/ManideepBangaru/lumos-backend/internal/core/contextbuilder"
	"github.com/ManideepBangaru/lumos-backend/internal/core/database"
	"github.com/ManideepBangaru/lumos-backend/internal/core/ingestion_engine"
	"github.com/ManideepBangaru/lumos-backend/internal/core/llm"
	objectclient "github.com/ManideepBangaru/lumos-backend/internal/core/object-client"
	"github.com/ManideepBangaru/lumos-backend/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	LLM          *llm.GeminiLLM
	Ingestor     *ingestion_engine.DocumentIngestor
	Chat         *services.ChatService
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := database.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("object client initialized and ready")

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm provider: %w", err)
	}

	ingestor := ingestion_engine.NewDocumentIngestor(dbClient, objClient, cfg)

	assembler := contextbuilder.NewAssembler(contextbuilder.NewResolver(objClient), cfg.MaxContextImages)
	chat := services.NewChatService(dbClient, llmProvider, assembler, cfg.Domain)

	server := NewServer(cfg, dbClient, objClient, ingestor, chat)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		LLM:          llmProvider,
		Ingestor:     ingestor,
		Chat:         chat,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.LLM != nil {
		_ = a.LLM.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
