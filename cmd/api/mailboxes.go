package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/provider"
	"github.com/inboxforge/core/internal/provider/gmail"
	"github.com/inboxforge/core/internal/secretbox"
	"github.com/inboxforge/core/internal/store"
)

// syncEngine is the subset of *sync.Engine the mailbox and search
// handlers drive: on-demand sync and provider-ready credentials.
type syncEngine interface {
	SyncOnDemand(ctx context.Context, mailboxID string, forceFull bool) error
	PrepareCredentials(ctx context.Context, mailboxID string) (*store.Mailbox, provider.Credentials, error)
}

type MailboxHandler struct {
	store       *store.Store
	gmail       *gmail.Adapter
	box         *secretbox.Box
	sync        syncEngine
	redirectURI string
}

func NewMailboxHandler(st *store.Store, g *gmail.Adapter, box *secretbox.Box, eng syncEngine, redirectURI string) *MailboxHandler {
	return &MailboxHandler{store: st, gmail: g, box: box, sync: eng, redirectURI: redirectURI}
}

func (h *MailboxHandler) List(c *gin.Context) {
	mailboxes, err := h.store.Mailboxes.ListByUser(userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mailboxes": mailboxes})
}

func (h *MailboxHandler) Get(c *gin.Context) {
	mb, err := h.ownedMailbox(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mb)
}

type connectRequest struct {
	Code         string `json:"code" binding:"required"`
	CodeVerifier string `json:"codeVerifier"`
}

// Connect implements POST /mailboxes/connect: exchange the external
// OAuth code, seal the resulting tokens, and create the mailbox row,
// returning 409 if this user already connected that address.
func (h *MailboxHandler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("code is required"))
		return
	}

	result, err := h.gmail.ExchangeCode(c.Request.Context(), req.Code, h.redirectURI, req.CodeVerifier)
	if err != nil {
		respondError(c, err)
		return
	}

	uid := userID(c)
	existing, err := h.store.Mailboxes.GetByUserAndAddress(uid, result.Address)
	if err != nil {
		respondError(c, err)
		return
	}
	if existing != nil {
		respondError(c, apperr.Conflict("mailbox already connected"))
		return
	}

	sealedAccess, err := h.box.Seal([]byte(result.AccessToken))
	if err != nil {
		respondError(c, err)
		return
	}
	sealedRefresh, err := h.box.Seal([]byte(result.RefreshToken))
	if err != nil {
		respondError(c, err)
		return
	}

	mb := &store.Mailbox{
		UserID:         uid,
		Provider:       store.ProviderGmail,
		Address:        result.Address,
		AccessToken:    sealedAccess,
		RefreshToken:   sealedRefresh,
		TokenExpiresAt: result.ExpiresAt,
		Active:         true,
	}
	if err := h.store.Mailboxes.Create(mb); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mb)
}

func (h *MailboxHandler) ownedMailbox(c *gin.Context) (*store.Mailbox, error) {
	mb, err := h.store.Mailboxes.GetByID(c.Param("id"))
	if err != nil {
		return nil, err
	}
	if mb == nil || mb.UserID != userID(c) {
		return nil, apperr.NotFound("mailbox not found")
	}
	return mb, nil
}

func (h *MailboxHandler) Delete(c *gin.Context) {
	mb, err := h.ownedMailbox(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.Mailboxes.SoftDelete(mb.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Sync implements POST /mailboxes/{id}/sync: fire-and-forget, returns
// 202 immediately while the Sync Engine does the work in the
// background (§4.1's ProviderTransient/ProviderFatal kinds are never
// surfaced synchronously here).
func (h *MailboxHandler) Sync(c *gin.Context) {
	mb, err := h.ownedMailbox(c)
	if err != nil {
		respondError(c, err)
		return
	}
	forceFull := c.Query("full") == "true"
	go func() {
		_ = h.sync.SyncOnDemand(context.Background(), mb.ID, forceFull)
	}()
	c.Status(http.StatusAccepted)
}

type statBucket struct {
	Total  int64 `json:"total"`
	Unread int64 `json:"unread"`
}

// Stats implements GET /mailboxes/{id}/stats, one bucket per system
// label §6 names.
func (h *MailboxHandler) Stats(c *gin.Context) {
	mb, err := h.ownedMailbox(c)
	if err != nil {
		respondError(c, err)
		return
	}

	labels := map[string]string{
		"inbox":   "INBOX",
		"starred": "STARRED",
		"drafts":  "DRAFT",
		"sent":    "SENT",
		"spam":    "SPAM",
		"trash":   "TRASH",
	}
	out := gin.H{}
	for key, label := range labels {
		total, unread, err := h.store.Messages.CountByMailboxAndLabel(mb.ID, label)
		if err != nil {
			respondError(c, err)
			return
		}
		out[key] = statBucket{Total: total, Unread: unread}
	}
	c.JSON(http.StatusOK, out)
}

// visibleSystemLabels is the exact set §6 names as client-visible;
// Gmail's type=="system" labels outside this set (UNREAD, CHAT, ...)
// are internal and must not reach the client in either bucket.
var visibleSystemLabels = map[string]bool{
	"INBOX": true, "SENT": true, "DRAFT": true, "TRASH": true, "SPAM": true,
	"STARRED": true, "IMPORTANT": true,
	"CATEGORY_PERSONAL": true, "CATEGORY_SOCIAL": true, "CATEGORY_PROMOTIONS": true,
	"CATEGORY_UPDATES": true, "CATEGORY_FORUMS": true,
}

// Labels implements GET /mailboxes/{id}/labels, classifying the
// upstream label list into system vs user the way §6 specifies:
// system-typed labels outside the visible allow-list are hidden
// entirely rather than leaking into either bucket.
func (h *MailboxHandler) Labels(c *gin.Context) {
	mb, err := h.ownedMailbox(c)
	if err != nil {
		respondError(c, err)
		return
	}
	_, creds, err := h.sync.PrepareCredentials(c.Request.Context(), mb.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	labels, err := h.gmail.ListLabels(c.Request.Context(), creds)
	if err != nil {
		respondError(c, err)
		return
	}
	system := make([]gin.H, 0)
	user := make([]gin.H, 0)
	for _, l := range labels {
		row := gin.H{"id": l.ID, "name": l.Name}
		switch {
		case l.System && visibleSystemLabels[l.Name]:
			system = append(system, row)
		case !l.System:
			user = append(user, row)
		default:
			// internal system label (UNREAD, CHAT, ...) — hidden per §6
		}
	}
	c.JSON(http.StatusOK, gin.H{"system": system, "user": user})
}
