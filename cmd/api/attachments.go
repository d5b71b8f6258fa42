package api

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/provider/gmail"
	"github.com/inboxforge/core/internal/store"
)

type AttachmentHandler struct {
	store *store.Store
	gmail *gmail.Adapter
	sync  syncEngine
}

func NewAttachmentHandler(st *store.Store, g *gmail.Adapter, eng syncEngine) *AttachmentHandler {
	return &AttachmentHandler{store: st, gmail: g, sync: eng}
}

// Get implements GET /attachments/{id}: binary download with the
// headers §6 specifies, resolving ownership through the
// attachment→message→mailbox→user chain rather than a denormalized
// userId column on Attachment.
func (h *AttachmentHandler) Get(c *gin.Context) {
	att, err := h.store.Attachments.GetByID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if att == nil {
		respondError(c, apperr.NotFound("attachment not found"))
		return
	}
	msg, err := h.store.Messages.GetByID(att.MessageID)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg == nil {
		respondError(c, apperr.NotFound("attachment not found"))
		return
	}
	mb, err := h.store.Mailboxes.GetByID(msg.MailboxID)
	if err != nil {
		respondError(c, err)
		return
	}
	if mb == nil || mb.UserID != userID(c) {
		respondError(c, apperr.NotFound("attachment not found"))
		return
	}

	_, creds, err := h.sync.PrepareCredentials(c.Request.Context(), mb.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := h.gmail.GetAttachment(c.Request.Context(), creds, msg.ProviderMessageID, att.ProviderAttachmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(att.Filename)))
	c.Header("Content-Type", att.MimeType)
	c.Header("Content-Length", strconv.FormatInt(int64(len(data)), 10))
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(200, att.MimeType, data)
}
