// Package move implements moving a message between Kanban columns
// (§4.4), keeping the upstream mailbox and the local Store in sync by
// committing the provider-side label change before any local write.
package move

import (
	"context"

	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/provider"
	"github.com/inboxforge/core/internal/store"
)

// credentialSource is the subset of *sync.Engine the coordinator needs;
// narrowed to an interface so tests can fake it without building a real
// Engine.
type credentialSource interface {
	PrepareCredentials(ctx context.Context, mailboxID string) (*store.Mailbox, provider.Credentials, error)
}

type Coordinator struct {
	store    *store.Store
	provider provider.Provider
	creds    credentialSource
}

func New(st *store.Store, p provider.Provider, creds credentialSource) *Coordinator {
	return &Coordinator{store: st, provider: p, creds: creds}
}

// MoveMessageToColumn implements §4.4's algorithm: verify ownership,
// compute the label delta from the target column's labelToken and
// archiveFromInbox, commit it against the provider first, and only on
// provider success update local labels/derived flags/column.
func (c *Coordinator) MoveMessageToColumn(ctx context.Context, userID, messageID, targetColumnID string, archiveFromInbox bool) (*store.Message, error) {
	msg, err := c.store.Messages.GetByID(messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, apperr.NotFound("message not found")
	}

	mb, err := c.store.Mailboxes.GetByID(msg.MailboxID)
	if err != nil {
		return nil, err
	}
	if mb == nil || mb.UserID != userID {
		return nil, apperr.NotFound("message not found")
	}

	col, err := c.store.Columns.GetByID(userID, targetColumnID)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, apperr.NotFound("column not found")
	}

	var add, remove []string
	if col.LabelToken != "" {
		add = []string{col.LabelToken}
	}
	if archiveFromInbox {
		remove = []string{"INBOX"}
	}

	if len(add) > 0 || len(remove) > 0 {
		_, creds, err := c.creds.PrepareCredentials(ctx, mb.ID)
		if err != nil {
			return nil, err
		}
		if err := c.provider.ModifyMessageLabels(ctx, creds, msg.ProviderMessageID, add, remove); err != nil {
			return nil, err
		}
	}

	newLabels := store.MergeLabels(msg.Labels, add, remove)
	if err := c.store.Messages.SetLabels(messageID, newLabels); err != nil {
		return nil, err
	}
	targetID := targetColumnID
	if err := c.store.Messages.SetColumn(messageID, &targetID); err != nil {
		return nil, err
	}

	updated, err := c.store.Messages.GetByID(messageID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}
