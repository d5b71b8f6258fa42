package main

import (
	"log"

	"github.com/gin-gonic/gin"

	api "github.com/inboxforge/core/cmd/api"
	"github.com/inboxforge/core/internal/ai/factory"
	"github.com/inboxforge/core/internal/column"
	"github.com/inboxforge/core/internal/config"
	"github.com/inboxforge/core/internal/enrich"
	"github.com/inboxforge/core/internal/move"
	"github.com/inboxforge/core/internal/provider/gmail"
	"github.com/inboxforge/core/internal/search"
	"github.com/inboxforge/core/internal/secretbox"
	"github.com/inboxforge/core/internal/snooze"
	"github.com/inboxforge/core/internal/store"
	syncengine "github.com/inboxforge/core/internal/sync"
	"github.com/inboxforge/core/internal/vectorindex"
)

func main() {
	cfg := config.Load()

	db, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := store.Migrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	st := store.New(db)

	box, err := secretbox.NewBox(cfg.EncryptionKey)
	if err != nil {
		log.Fatal("failed to initialize secret box:", err)
	}

	gmailAdapter := gmail.New(cfg.GoogleClientID, cfg.GoogleClientSecret)

	aiProvider, err := factory.New(factory.Config{
		Provider:      factory.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		log.Fatal("failed to initialize AI provider:", err)
	}

	engine := syncengine.New(st, gmailAdapter, box, syncengine.Config{
		TokenNearExpiryBackground: cfg.TokenNearExpiryBackground,
		TokenNearExpiryOnDemand:   cfg.TokenNearExpiryOnDemand,
		SyncWatchdogThreshold:     cfg.SyncWatchdogThreshold,
		FullSyncMaxMessages:       cfg.FullSyncMaxMessages,
		FullSyncPageSize:          cfg.FullSyncPageSize,
		IncrementalTickInterval:   cfg.IncrementalTickInterval,
		TokenRefreshTickInterval:  cfg.TokenRefreshTickInterval,
		RetryTickInterval:         cfg.RetryTickInterval,
	})
	engine.Start()
	defer engine.Stop()

	columns := column.New(st.Columns)
	moveCoordinator := move.New(st, gmailAdapter, engine)
	searchService := search.New(st, aiProvider)

	// Chroma acceleration is optional; a missing API key disables it
	// and every caller falls back to the Store's brute-force scan.
	index, err := vectorindex.New(vectorindex.Config{
		APIKey:       cfg.ChromaAPIKey,
		Tenant:       cfg.ChromaTenant,
		Database:     cfg.ChromaDatabase,
		GeminiAPIKey: cfg.GeminiAPIKey,
	})
	if err != nil {
		log.Printf("vector index disabled: %v", err)
	} else if index != nil {
		searchService.SetIndex(index)
	}

	snoozeScheduler := snooze.New(st.Messages, cfg.SnoozeTickInterval)
	snoozeScheduler.Start()
	defer snoozeScheduler.Stop()

	enrichWorker := enrich.New(st, aiProvider, cfg.EnrichmentTickInterval, cfg.EnrichmentBatchSize)
	if index != nil {
		enrichWorker.SetIndex(index)
	}
	enrichWorker.Start()
	defer enrichWorker.Stop()

	router := gin.Default()
	api.SetupRoutes(router, api.Deps{
		Store:   st,
		Gmail:   gmailAdapter,
		Sync:    engine,
		Columns: columns,
		Move:    moveCoordinator,
		AI:      aiProvider,
		Search:  searchService,
		Box:     box,

		RedirectURI:       cfg.GoogleRedirectURI,
		AccessTokenSecret: cfg.AccessTokenSecret,
		AccessTokenAud:    cfg.AccessTokenAud,
		AccessTokenIss:    cfg.AccessTokenIss,
	})

	log.Printf("server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("failed to start server:", err)
	}
}
