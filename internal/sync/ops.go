package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/provider"
	"github.com/inboxforge/core/internal/store"
)

// toStoreMessage maps a provider.ParsedMessage onto a store.Message row,
// grounded on the teacher's convertGmailMessageToEmail mapping, generalized
// to the full field set the Store carries.
func toStoreMessage(mailboxID string, pm provider.ParsedMessage) (*store.Message, []*store.Attachment) {
	msg := &store.Message{
		MailboxID:         mailboxID,
		ProviderMessageID: pm.ProviderMessageID,
		ProviderThreadID:  pm.ProviderThreadID,
		Subject:           pm.Subject,
		Snippet:           pm.Snippet,
		FromEmail:         pm.FromEmail,
		FromName:          pm.FromName,
		ToEmails:          store.StringArray(pm.ToEmails),
		CcEmails:          store.StringArray(pm.CcEmails),
		BccEmails:         store.StringArray(pm.BccEmails),
		BodyHTML:          pm.BodyHTML,
		BodyText:          pm.BodyText,
		ReceivedAt:        time.UnixMilli(pm.ReceivedAt),
		Labels:            store.StringArray(pm.Labels),
	}
	attachments := make([]*store.Attachment, 0, len(pm.Attachments))
	for _, a := range pm.Attachments {
		attachments = append(attachments, &store.Attachment{
			ProviderAttachmentID: a.ProviderAttachmentID,
			Filename:             a.Filename,
			MimeType:             a.MimeType,
			Size:                 a.Size,
			ContentID:            a.ContentID,
			Inline:               a.Inline,
		})
	}
	return msg, attachments
}

// FullSync implements §4.1's full-sync protocol. maxMessages<=0 uses the
// engine's configured default.
func (e *Engine) FullSync(ctx context.Context, mailboxID string, maxMessages int) error {
	ran, err := e.withGuard(func() error {
		return e.doFullSync(ctx, mailboxID, maxMessages)
	})
	if !ran {
		return nil // another sync in flight; skip rather than queue (§5)
	}
	return err
}

func (e *Engine) doFullSync(ctx context.Context, mailboxID string, maxMessages int) error {
	mb, err := e.store.Mailboxes.GetByID(mailboxID)
	if err != nil {
		return err
	}
	if mb == nil {
		return apperr.NotFound("mailbox not found")
	}
	if maxMessages <= 0 {
		maxMessages = e.cfg.FullSyncMaxMessages
	}
	if maxMessages <= 0 {
		maxMessages = 200
	}
	pageSize := e.cfg.FullSyncPageSize
	if pageSize <= 0 || pageSize > 50 {
		pageSize = 50
	}

	if err := e.store.Mailboxes.SetSyncing(mailboxID); err != nil {
		return err
	}

	creds, err := e.buildCredentials(mb)
	if err != nil {
		_ = e.store.Mailboxes.MarkError(mailboxID, err.Error())
		return err
	}

	profile, err := e.provider.GetProfile(ctx, creds)
	if err != nil {
		_ = e.store.Mailboxes.MarkError(mailboxID, fmt.Sprintf("full sync: failed to fetch profile: %v", err))
		return err
	}

	fetched := 0
	pageToken := ""
	for fetched < maxMessages {
		remaining := maxMessages - fetched
		batch := pageSize
		if remaining < batch {
			batch = remaining
		}
		res, err := e.provider.ListMessages(ctx, creds, provider.ListOptions{
			MaxResults: batch,
			PageToken:  pageToken,
			LabelIDs:   []string{"INBOX"},
		})
		if err != nil {
			_ = e.store.Mailboxes.MarkError(mailboxID, fmt.Sprintf("full sync: failed to list messages: %v", err))
			return err
		}
		if len(res.Messages) == 0 {
			break
		}
		ids := make([]string, len(res.Messages))
		for i, m := range res.Messages {
			ids[i] = m.ID
		}
		parsed, err := e.provider.GetMessages(ctx, creds, ids)
		if err != nil {
			_ = e.store.Mailboxes.MarkError(mailboxID, fmt.Sprintf("full sync: failed to hydrate messages: %v", err))
			return err
		}
		for _, pm := range parsed {
			msg, attachments := toStoreMessage(mailboxID, pm)
			if _, err := e.store.Messages.Upsert(msg, attachments); err != nil {
				log.Printf("[Sync] full sync: mailbox %s: failed to upsert message %s: %v", mailboxID, pm.ProviderMessageID, err)
			}
		}
		fetched += len(res.Messages)
		pageToken = res.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if err := e.store.Mailboxes.MarkSynced(mailboxID, profile.HistoryCursor); err != nil {
		return err
	}
	if err := e.store.Mailboxes.RecomputeCounters(mailboxID); err != nil {
		return err
	}
	e.clearRetry(mailboxID)
	log.Printf("[Sync] full sync complete for mailbox %s: fetched %d message(s)", mailboxID, fetched)
	return nil
}

// IncrementalSync implements §4.1's incremental-sync protocol.
func (e *Engine) IncrementalSync(ctx context.Context, mailboxID string) error {
	ran, err := e.withGuard(func() error {
		return e.doIncrementalSync(ctx, mailboxID)
	})
	if !ran {
		return nil
	}
	return err
}

func (e *Engine) doIncrementalSync(ctx context.Context, mailboxID string) error {
	mb, err := e.store.Mailboxes.GetByID(mailboxID)
	if err != nil {
		return err
	}
	if mb == nil {
		return apperr.NotFound("mailbox not found")
	}
	if mb.HistoryCursor == "" {
		// withGuard already holds the guard; doFullSync doesn't take it
		// again since it's called directly, not through FullSync.
		return e.doFullSync(ctx, mailboxID, 0)
	}

	if err := e.store.Mailboxes.SetSyncing(mailboxID); err != nil {
		return err
	}

	creds, err := e.buildCredentials(mb)
	if err != nil {
		_ = e.store.Mailboxes.MarkError(mailboxID, err.Error())
		return err
	}

	changes, err := e.provider.GetHistoryChanges(ctx, creds, mb.HistoryCursor)
	if err != nil {
		if apperr.Is(err, apperr.KindProviderStaleCursor) {
			return e.recoverStaleCursor(ctx, mb)
		}
		e.scheduleRetry(mailboxID, err)
		return err
	}

	added := dedup(changes.MessagesAdded)
	deleted := dedup(changes.MessagesDeleted)

	if len(added) > 0 {
		parsed, err := e.provider.GetMessages(ctx, creds, added)
		if err != nil {
			e.scheduleRetry(mailboxID, err)
			return err
		}
		for _, pm := range parsed {
			msg, attachments := toStoreMessage(mailboxID, pm)
			if _, err := e.store.Messages.Upsert(msg, attachments); err != nil {
				log.Printf("[Sync] incremental sync: mailbox %s: failed to upsert message %s: %v", mailboxID, pm.ProviderMessageID, err)
			}
		}
	}

	if len(deleted) > 0 {
		if err := e.store.Messages.SoftDeleteByProviderIDs(mailboxID, deleted); err != nil {
			log.Printf("[Sync] incremental sync: mailbox %s: failed to soft-delete messages: %v", mailboxID, err)
		}
	}

	for _, mod := range changes.LabelsModified {
		if err := e.store.Messages.ApplyLabelDelta(mailboxID, mod.MessageID, dedup(mod.LabelsAdded), dedup(mod.LabelsRemoved)); err != nil {
			log.Printf("[Sync] incremental sync: mailbox %s: failed to apply label delta for %s: %v", mailboxID, mod.MessageID, err)
		}
	}

	if err := e.store.Mailboxes.MarkSynced(mailboxID, changes.Cursor); err != nil {
		return err
	}
	if err := e.store.Mailboxes.RecomputeCounters(mailboxID); err != nil {
		return err
	}
	e.clearRetry(mailboxID)
	return nil
}

// SyncOnDemand is the entry point the HTTP layer's POST
// /mailboxes/{id}/sync handler calls. forceFull bypasses the history
// cursor and re-runs a full sync regardless of current state.
func (e *Engine) SyncOnDemand(ctx context.Context, mailboxID string, forceFull bool) error {
	if forceFull {
		return e.FullSync(ctx, mailboxID, 0)
	}
	return e.IncrementalSync(ctx, mailboxID)
}

func (e *Engine) scheduleRetry(mailboxID string, cause error) {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()

	entry, ok := e.retryQueue[mailboxID]
	if !ok {
		entry = &retryEntry{}
		e.retryQueue[mailboxID] = entry
	}
	entry.attempts++

	if entry.attempts > maxRetryAttempts {
		delete(e.retryQueue, mailboxID)
		_ = e.store.Mailboxes.MarkError(mailboxID, fmt.Sprintf("%v (max retries exceeded)", cause))
		return
	}

	backoff := retryBackoff[len(retryBackoff)-1]
	if entry.attempts-1 < len(retryBackoff) {
		backoff = retryBackoff[entry.attempts-1]
	}
	entry.nextTry = e.now().Add(backoff)
	_ = e.store.Mailboxes.MarkError(mailboxID, cause.Error())
}

func (e *Engine) clearRetry(mailboxID string) {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	delete(e.retryQueue, mailboxID)
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
