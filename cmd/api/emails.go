package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inboxforge/core/internal/ai"
	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/enrich"
	"github.com/inboxforge/core/internal/move"
	"github.com/inboxforge/core/internal/provider"
	"github.com/inboxforge/core/internal/provider/gmail"
	"github.com/inboxforge/core/internal/search"
	"github.com/inboxforge/core/internal/store"
)

type EmailHandler struct {
	store *store.Store
	gmail *gmail.Adapter
	sync  syncEngine
	move  *move.Coordinator
	ai    ai.Provider
	search *search.Service
}

func NewEmailHandler(st *store.Store, g *gmail.Adapter, eng syncEngine, mv *move.Coordinator, aiProvider ai.Provider, svc *search.Service) *EmailHandler {
	return &EmailHandler{store: st, gmail: g, sync: eng, move: mv, ai: aiProvider, search: svc}
}

func queryInt(c *gin.Context, key string, def int) int {
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}

func queryBoolPtr(c *gin.Context, key string) *bool {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v := raw == "true" || raw == "1"
	return &v
}

// List implements GET /emails with the full filter surface §6 names.
func (h *EmailHandler) List(c *gin.Context) {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)

	filter := store.MessageFilter{
		UserID:         userID(c),
		MailboxID:      c.Query("mailboxId"),
		Search:         c.Query("search"),
		IsRead:         queryBoolPtr(c, "isRead"),
		IsStarred:      queryBoolPtr(c, "isStarred"),
		HasAttachments: queryBoolPtr(c, "hasAttachments"),
		Category:       store.MessageCategory(c.Query("category")),
		TaskStatus:     store.TaskStatus(c.Query("taskStatus")),
		FromEmail:      c.Query("fromEmail"),
		Label:          c.Query("label"),
		ExcludeLabel:   c.Query("excludeLabel"),
		IsSnoozed:      queryBoolPtr(c, "isSnoozed"),
		SortBy:         c.DefaultQuery("sortBy", "receivedAt"),
		SortOrder:      c.DefaultQuery("sortOrder", "DESC"),
		Page:           page,
		Limit:          limit,
	}

	messages, total, err := h.store.Messages.List(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	c.JSON(http.StatusOK, gin.H{
		"data": messages,
		"meta": gin.H{
			"itemsPerPage": limit,
			"totalItems":   total,
			"currentPage":  page,
			"totalPages":   totalPages,
		},
		"links": gin.H{
			"self": fmt.Sprintf("/v1/emails?page=%d&limit=%d", page, limit),
		},
	})
}

func (h *EmailHandler) ownedMessage(c *gin.Context) (*store.Message, error) {
	msg, err := h.store.Messages.GetByID(c.Param("id"))
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, apperr.NotFound("email not found")
	}
	mb, err := h.store.Mailboxes.GetByID(msg.MailboxID)
	if err != nil {
		return nil, err
	}
	if mb == nil || mb.UserID != userID(c) {
		return nil, apperr.NotFound("email not found")
	}
	return msg, nil
}

func (h *EmailHandler) Get(c *gin.Context) {
	msg, err := h.ownedMessage(c)
	if err != nil {
		respondError(c, err)
		return
	}
	attachments, err := h.store.Attachments.ListByMessage(msg.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "attachments": attachments})
}

type patchEmailRequest struct {
	IsRead       *bool      `json:"isRead"`
	IsStarred    *bool      `json:"isStarred"`
	IsPinned     *bool      `json:"isPinned"`
	TaskStatus   *string    `json:"taskStatus"`
	TaskDeadline *time.Time `json:"taskDeadline"`
	SnoozedUntil *time.Time `json:"snoozedUntil"`
}

// Patch implements PATCH /emails/{id}: flags, task workflow fields, and
// snooze in one request, setting snoozedUntil null unsnoozes per §6.
// A presence map (rather than the decoded struct alone) distinguishes
// an explicit `"snoozedUntil": null` from the field being omitted.
func (h *EmailHandler) Patch(c *gin.Context) {
	msg, err := h.ownedMessage(c)
	if err != nil {
		respondError(c, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		respondError(c, apperr.Validation("malformed request body"))
		return
	}
	var present map[string]interface{}
	if err := json.Unmarshal(body, &present); err != nil {
		respondError(c, apperr.Validation("malformed request body"))
		return
	}
	var req patchEmailRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(c, apperr.Validation("malformed request body"))
		return
	}

	if req.IsRead != nil || req.IsStarred != nil || req.IsPinned != nil {
		if err := h.store.Messages.SetFlags(msg.ID, req.IsRead, req.IsStarred, req.IsPinned); err != nil {
			respondError(c, err)
			return
		}
	}
	if req.TaskStatus != nil {
		status := store.TaskStatus(*req.TaskStatus)
		if err := h.store.Messages.SetTaskFields(msg.ID, status, req.TaskDeadline); err != nil {
			respondError(c, err)
			return
		}
	}
	if _, ok := present["snoozedUntil"]; ok {
		if err := h.store.Messages.SetSnooze(msg.ID, req.SnoozedUntil); err != nil {
			respondError(c, err)
			return
		}
	}

	updated, err := h.store.Messages.GetByID(msg.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *EmailHandler) Delete(c *gin.Context) {
	msg, err := h.ownedMessage(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.Messages.SoftDelete(msg.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type sendRequest struct {
	MailboxID string   `json:"mailboxId" binding:"required"`
	To        []string `json:"to" binding:"required"`
	Cc        []string `json:"cc"`
	Bcc       []string `json:"bcc"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	BodyHTML  string   `json:"bodyHtml"`
	InReplyTo string   `json:"inReplyTo"`
	ThreadID  string   `json:"threadId"`
}

// Send implements POST /emails/send.
func (h *EmailHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("to, mailboxId are required"))
		return
	}

	mb, err := h.store.Mailboxes.GetByID(req.MailboxID)
	if err != nil {
		respondError(c, err)
		return
	}
	if mb == nil || mb.UserID != userID(c) {
		respondError(c, apperr.NotFound("mailbox not found"))
		return
	}

	_, creds, err := h.sync.PrepareCredentials(c.Request.Context(), mb.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	messageID, err := h.gmail.SendEmail(c.Request.Context(), creds, provider.Draft{
		To: req.To, Cc: req.Cc, Bcc: req.Bcc,
		Subject: req.Subject, BodyText: req.Body, BodyHTML: req.BodyHTML,
		ReplyToMessageID: req.InReplyTo, ThreadID: req.ThreadID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messageId": messageID})
}

// Summarize implements POST /emails/{id}/summarize.
func (h *EmailHandler) Summarize(c *gin.Context) {
	msg, err := h.ownedMessage(c)
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := h.ai.Summarize(c.Request.Context(), msg.BodyText)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.Messages.SetSummary(msg.ID, summary); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emailId": msg.ID, "summary": summary, "saved": true})
}

type moveRequest struct {
	ColumnID          string `json:"columnId" binding:"required"`
	ArchiveFromInbox  bool   `json:"archiveFromInbox"`
}

// MoveToColumn implements POST /emails/{id}/move-to-column.
func (h *EmailHandler) MoveToColumn(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("columnId is required"))
		return
	}
	updated, err := h.move.MoveMessageToColumn(c.Request.Context(), userID(c), c.Param("id"), req.ColumnID, req.ArchiveFromInbox)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// FuzzySearch implements GET /emails/search/fuzzy.
func (h *EmailHandler) FuzzySearch(c *gin.Context) {
	q := search.FuzzyQuery{
		UserID:        userID(c),
		MailboxID:     c.Query("mailboxId"),
		Query:         c.Query("q"),
		Threshold:     queryFloat(c, "threshold", 0.2),
		Scope:         search.Scope(c.DefaultQuery("scope", string(search.ScopeAll))),
		WeightSubject: queryFloat(c, "weightSubject", 0.4),
		WeightSender:  queryFloat(c, "weightSender", 0.2),
		WeightBody:    queryFloat(c, "weightBody", 0.4),
		Page:          queryInt(c, "page", 1),
		Limit:         queryInt(c, "limit", 20),
	}
	page, err := h.search.Fuzzy(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": page.Messages, "meta": gin.H{"totalItems": page.Total}})
}

// SemanticSearch implements GET /emails/search/semantic.
func (h *EmailHandler) SemanticSearch(c *gin.Context) {
	q := search.SemanticQuery{
		UserID:    userID(c),
		MailboxID: c.Query("mailboxId"),
		Query:     c.Query("q"),
		MinCosine: queryFloat(c, "minSimilarity", 0.5),
		Page:      queryInt(c, "page", 1),
		Limit:     queryInt(c, "limit", 20),
	}
	page, err := h.search.Semantic(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": page.Messages, "meta": gin.H{"totalItems": page.Total}})
}

// SearchSuggestions implements GET /emails/search/suggestions.
func (h *EmailHandler) SearchSuggestions(c *gin.Context) {
	out, err := h.search.Suggestions(c.Request.Context(), userID(c), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"contacts":       out.Contacts,
		"keywords":       out.Keywords,
		"recentSearches": []string{},
	})
}

// GenerateEmbedding implements POST /emails/{id}/generate-embedding,
// forcing enrichment outside the Enrichment Worker's own sweep.
func (h *EmailHandler) GenerateEmbedding(c *gin.Context) {
	msg, err := h.ownedMessage(c)
	if err != nil {
		respondError(c, err)
		return
	}
	vec, err := h.ai.Embed(c.Request.Context(), enrich.Projection(msg))
	if err != nil {
		respondError(c, apperr.AiFailure("embedding generation failed", err))
		return
	}
	if err := h.store.Messages.SetEmbedding(msg.ID, vec, time.Now()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emailId": msg.ID, "saved": true})
}

// GenerateEmbeddingsBatch implements POST /emails/generate-embeddings?limit=.
func (h *EmailHandler) GenerateEmbeddingsBatch(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	mailboxes, err := h.store.Mailboxes.ListByUser(userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	processed := 0
	for _, mb := range mailboxes {
		messages, err := h.store.Messages.ListMissingEmbeddings(mb.ID, limit-processed)
		if err != nil {
			respondError(c, err)
			return
		}
		for _, msg := range messages {
			vec, err := h.ai.Embed(c.Request.Context(), enrich.Projection(msg))
			if err != nil {
				log.Printf("[Enrich] mailbox %s: failed to embed message %s: %v", mb.ID, msg.ID, err)
				continue
			}
			if err := h.store.Messages.SetEmbedding(msg.ID, vec, time.Now()); err != nil {
				log.Printf("[Enrich] mailbox %s: failed to persist embedding for message %s: %v", mb.ID, msg.ID, err)
				continue
			}
			processed++
		}
		if processed >= limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"processed": processed})
}

func queryFloat(c *gin.Context, key string, def float64) float64 {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}
