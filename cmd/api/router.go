// Package api wires the core's HTTP surface: one handler type per
// resource group, grounded on the teacher's cmd/api/router.go route
// groups, generalized from /api to the /v1 prefix and resources this
// workspace exposes.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/inboxforge/core/internal/ai"
	"github.com/inboxforge/core/internal/column"
	"github.com/inboxforge/core/internal/move"
	"github.com/inboxforge/core/internal/provider/gmail"
	"github.com/inboxforge/core/internal/search"
	"github.com/inboxforge/core/internal/secretbox"
	"github.com/inboxforge/core/internal/store"
)

// Deps bundles everything the router needs to build its handlers.
type Deps struct {
	Store     *store.Store
	Gmail     *gmail.Adapter
	Sync      syncEngine
	Columns   *column.Manager
	Move      *move.Coordinator
	AI        ai.Provider
	Search    *search.Service
	Box       *secretbox.Box

	RedirectURI       string
	AccessTokenSecret string
	AccessTokenAud    string
	AccessTokenIss    string
}

func SetupRoutes(r *gin.Engine, d Deps) {
	r.GET("/v1/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	mailboxHandler := NewMailboxHandler(d.Store, d.Gmail, d.Box, d.Sync, d.RedirectURI)
	emailHandler := NewEmailHandler(d.Store, d.Gmail, d.Sync, d.Move, d.AI, d.Search)
	kanbanHandler := NewKanbanHandler(d.Columns)
	attachmentHandler := NewAttachmentHandler(d.Store, d.Gmail, d.Sync)

	v1 := r.Group("/v1")
	v1.Use(AuthMiddleware(d.AccessTokenSecret, d.AccessTokenAud, d.AccessTokenIss))
	{
		mailboxes := v1.Group("/mailboxes")
		{
			mailboxes.GET("", mailboxHandler.List)
			mailboxes.POST("/connect", mailboxHandler.Connect)
			mailboxes.GET("/:id", mailboxHandler.Get)
			mailboxes.POST("/:id/sync", mailboxHandler.Sync)
			mailboxes.GET("/:id/stats", mailboxHandler.Stats)
			mailboxes.GET("/:id/labels", mailboxHandler.Labels)
			mailboxes.DELETE("/:id", mailboxHandler.Delete)
		}

		emails := v1.Group("/emails")
		{
			emails.GET("", emailHandler.List)
			emails.POST("/send", emailHandler.Send)
			emails.GET("/search/fuzzy", emailHandler.FuzzySearch)
			emails.GET("/search/semantic", emailHandler.SemanticSearch)
			emails.GET("/search/suggestions", emailHandler.SearchSuggestions)
			emails.POST("/generate-embeddings", emailHandler.GenerateEmbeddingsBatch)
			emails.GET("/:id", emailHandler.Get)
			emails.PATCH("/:id", emailHandler.Patch)
			emails.DELETE("/:id", emailHandler.Delete)
			emails.POST("/:id/summarize", emailHandler.Summarize)
			emails.POST("/:id/move-to-column", emailHandler.MoveToColumn)
			emails.POST("/:id/generate-embedding", emailHandler.GenerateEmbedding)
		}

		kanban := v1.Group("/kanban/columns")
		{
			kanban.GET("", kanbanHandler.List)
			kanban.POST("", kanbanHandler.Create)
			kanban.PATCH("/:id", kanbanHandler.Patch)
			kanban.DELETE("/:id", kanbanHandler.Delete)
			kanban.POST("/initialize", kanbanHandler.Initialize)
		}

		v1.GET("/attachments/:id", attachmentHandler.Get)
	}
}
