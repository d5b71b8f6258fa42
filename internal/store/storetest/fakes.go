// Package storetest provides in-memory fakes of the store repository
// interfaces so the Sync Engine, Move Coordinator, Column Manager,
// Search Service, Snooze Scheduler, and Enrichment Worker can be
// unit-tested without a live Postgres connection.
package storetest

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inboxforge/core/internal/store"
)

// Mailboxes is an in-memory store.MailboxRepository.
type Mailboxes struct {
	mu   sync.Mutex
	rows map[string]*store.Mailbox
}

func NewMailboxes() *Mailboxes { return &Mailboxes{rows: map[string]*store.Mailbox{}} }

func (m *Mailboxes) Create(mb *store.Mailbox) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mb.ID == "" {
		mb.ID = uuid.New().String()
	}
	if mb.SyncStatus == "" {
		mb.SyncStatus = store.SyncStatusPending
	}
	now := time.Now()
	mb.CreatedAt, mb.UpdatedAt = now, now
	clone := *mb
	m.rows[mb.ID] = &clone
	return nil
}

func (m *Mailboxes) GetByID(id string) (*store.Mailbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.DeletedAt != nil {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (m *Mailboxes) GetByUserAndAddress(userID, address string) (*store.Mailbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID == userID && row.Address == address && row.DeletedAt == nil {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *Mailboxes) ListByUser(userID string) ([]*store.Mailbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Mailbox
	for _, row := range m.rows {
		if row.UserID == userID && row.DeletedAt == nil {
			clone := *row
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Mailboxes) ListActive() ([]*store.Mailbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Mailbox
	for _, row := range m.rows {
		if row.Active && row.DeletedAt == nil {
			clone := *row
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *Mailboxes) Update(mb *store.Mailbox) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[mb.ID]; !ok {
		return nil
	}
	mb.UpdatedAt = time.Now()
	clone := *mb
	m.rows[mb.ID] = &clone
	return nil
}

func (m *Mailboxes) SetSyncing(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.SyncStatus = store.SyncStatusSyncing
		row.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Mailboxes) SetPending(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.SyncStatus = store.SyncStatusPending
		row.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Mailboxes) MarkSynced(id, historyCursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		now := time.Now()
		row.SyncStatus = store.SyncStatusSynced
		row.LastSyncAt = &now
		row.LastSyncError = ""
		row.HistoryCursor = historyCursor
		row.UpdatedAt = now
	}
	return nil
}

func (m *Mailboxes) MarkError(id, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.SyncStatus = store.SyncStatusError
		row.LastSyncError = lastError
		row.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Mailboxes) SetHistoryCursor(id, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.HistoryCursor = cursor
		row.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Mailboxes) SetTokens(id, accessToken, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.AccessToken = accessToken
		if refreshToken != "" {
			row.RefreshToken = refreshToken
		}
		row.TokenExpiresAt = expiresAt
		row.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Mailboxes) RecomputeCounters(id string) error {
	return nil // exercised against the real store only; callers that need the count use Messages directly in tests
}

func (m *Mailboxes) SoftDelete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		now := time.Now()
		row.DeletedAt = &now
		row.Active = false
		row.UpdatedAt = now
	}
	return nil
}

func (m *Mailboxes) ResetStuckSyncing(threshold time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	var ids []string
	for _, row := range m.rows {
		if row.SyncStatus == store.SyncStatusSyncing && row.UpdatedAt.Before(cutoff) {
			row.SyncStatus = store.SyncStatusSynced
			row.UpdatedAt = time.Now()
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

// Messages is an in-memory store.MessageRepository.
type Messages struct {
	mu          sync.Mutex
	rows        map[string]*store.Message
	attachments map[string][]*store.Attachment
	mailboxes   *Mailboxes // optional; resolves MessageFilter.UserID the way the real join does
}

func NewMessages() *Messages {
	return &Messages{rows: map[string]*store.Message{}, attachments: map[string][]*store.Attachment{}}
}

// NewMessagesWithMailboxes wires a Mailboxes fake in so List can honor
// MessageFilter.UserID the same way the GORM repository's join does.
func NewMessagesWithMailboxes(mailboxes *Mailboxes) *Messages {
	return &Messages{rows: map[string]*store.Message{}, attachments: map[string][]*store.Attachment{}, mailboxes: mailboxes}
}

func (m *Messages) GetByID(id string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.DeletedAt != nil {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (m *Messages) GetByProviderID(mailboxID, providerMessageID string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.MailboxID == mailboxID && row.ProviderMessageID == providerMessageID && row.DeletedAt == nil {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *Messages) Upsert(msg *store.Message, attachments []*store.Attachment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	isRead, isStarred := store.DeriveReadStarred(msg.Labels)
	msg.IsRead = isRead
	msg.IsStarred = isStarred
	msg.HasAttachments = len(attachments) > 0
	msg.Category = store.DeriveCategory(msg.Labels)

	for _, row := range m.rows {
		if row.MailboxID == msg.MailboxID && row.ProviderMessageID == msg.ProviderMessageID && row.DeletedAt == nil {
			msg.ID = row.ID
			msg.CreatedAt = row.CreatedAt
			msg.UpdatedAt = time.Now()
			clone := *msg
			m.rows[row.ID] = &clone
			return false, nil
		}
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now()
	msg.CreatedAt, msg.UpdatedAt = now, now
	if msg.TaskStatus == "" {
		msg.TaskStatus = store.TaskStatusNone
	}
	clone := *msg
	m.rows[msg.ID] = &clone

	stored := make([]*store.Attachment, 0, len(attachments))
	for _, a := range attachments {
		ac := *a
		if ac.ID == "" {
			ac.ID = uuid.New().String()
		}
		ac.MessageID = msg.ID
		ac.CreatedAt = now
		stored = append(stored, &ac)
	}
	m.attachments[msg.ID] = stored
	return true, nil
}

func (m *Messages) ApplyLabelDelta(mailboxID, providerMessageID string, added, removed []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.MailboxID == mailboxID && row.ProviderMessageID == providerMessageID && row.DeletedAt == nil {
			merged := store.MergeLabels(row.Labels, added, removed)
			isRead, isStarred := store.DeriveReadStarred(merged)
			row.Labels = merged
			row.Category = store.DeriveCategory(merged)
			row.IsRead = isRead
			row.IsStarred = isStarred
			row.UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

func (m *Messages) SoftDeleteByProviderIDs(mailboxID string, providerMessageIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := store.DedupStrings(providerMessageIDs)
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	now := time.Now()
	for _, row := range m.rows {
		if row.MailboxID == mailboxID && set[row.ProviderMessageID] && row.DeletedAt == nil {
			row.DeletedAt = &now
		}
	}
	return nil
}

func (m *Messages) SetLabels(id string, labels []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil
	}
	isRead, isStarred := store.DeriveReadStarred(labels)
	row.Labels = labels
	row.Category = store.DeriveCategory(labels)
	row.IsRead = isRead
	row.IsStarred = isStarred
	row.UpdatedAt = time.Now()
	return nil
}

func (m *Messages) SetColumn(id string, columnID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.ColumnID = columnID
		row.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Messages) SetTaskFields(id string, status store.TaskStatus, deadline *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.TaskStatus = status
		row.TaskDeadline = deadline
		row.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Messages) SetFlags(id string, isRead, isStarred, pinned *bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil
	}
	if isRead != nil {
		row.IsRead = *isRead
	}
	if isStarred != nil {
		row.IsStarred = *isStarred
	}
	if pinned != nil {
		row.Pinned = *pinned
	}
	row.UpdatedAt = time.Now()
	return nil
}

func (m *Messages) SetSnooze(id string, until *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil
	}
	row.SnoozedUntil = until
	row.IsSnoozed = until != nil && until.After(time.Now())
	row.UpdatedAt = time.Now()
	return nil
}

func (m *Messages) SetSummary(id string, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.AiSummary = summary
		row.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Messages) SetEmbedding(id string, embedding []float32, generatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.Embedding = embedding
		row.EmbeddingGeneratedAt = &generatedAt
		row.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Messages) SetActionItems(id string, actionItemJSON string, urgency int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.AiActionItem = actionItemJSON
		u := urgency
		row.UrgencyScore = &u
		row.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Messages) SoftDelete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		now := time.Now()
		row.DeletedAt = &now
	}
	return nil
}

func (m *Messages) List(f store.MessageFilter) ([]*store.Message, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*store.Message
	for _, row := range m.rows {
		if row.DeletedAt != nil {
			continue
		}
		if f.MailboxID != "" && row.MailboxID != f.MailboxID {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(row.Subject), strings.ToLower(f.Search)) &&
			!strings.Contains(strings.ToLower(row.Snippet), strings.ToLower(f.Search)) &&
			!strings.Contains(strings.ToLower(row.FromEmail), strings.ToLower(f.Search)) &&
			!strings.Contains(strings.ToLower(row.FromName), strings.ToLower(f.Search)) {
			continue
		}
		if f.UserID != "" && m.mailboxes != nil {
			mb, _ := m.mailboxes.GetByID(row.MailboxID)
			if mb == nil || mb.UserID != f.UserID {
				continue
			}
		}
		if f.IsRead != nil && row.IsRead != *f.IsRead {
			continue
		}
		if f.IsStarred != nil && row.IsStarred != *f.IsStarred {
			continue
		}
		if f.HasAttachments != nil && row.HasAttachments != *f.HasAttachments {
			continue
		}
		if f.Category != "" && row.Category != f.Category {
			continue
		}
		if f.TaskStatus != "" && row.TaskStatus != f.TaskStatus {
			continue
		}
		if f.FromEmail != "" && row.FromEmail != f.FromEmail {
			continue
		}
		if f.Label != "" && !containsLabel(row.Labels, f.Label) {
			continue
		}
		if f.ExcludeLabel != "" && containsLabel(row.Labels, f.ExcludeLabel) {
			continue
		}
		if f.IsSnoozed != nil && row.IsSnoozed != *f.IsSnoozed {
			continue
		}
		clone := *row
		matched = append(matched, &clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		less := matched[i].ReceivedAt.After(matched[j].ReceivedAt)
		switch f.SortBy {
		case "subject":
			less = matched[i].Subject < matched[j].Subject
		case "fromEmail":
			less = matched[i].FromEmail < matched[j].FromEmail
		}
		if f.SortOrder == "ASC" {
			return !less
		}
		return less
	})

	total := int64(len(matched))
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []*store.Message{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *Messages) ListSnoozeExpired(now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, row := range m.rows {
		if row.DeletedAt == nil && row.IsSnoozed && row.SnoozedUntil != nil && !row.SnoozedUntil.After(now) {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

func (m *Messages) ClearSnoozeBatch(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for id, row := range m.rows {
		if set[id] {
			row.IsSnoozed = false
			row.SnoozedUntil = nil
			row.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (m *Messages) ListMissingEmbeddings(mailboxID string, limit int) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Message
	for _, row := range m.rows {
		if row.MailboxID == mailboxID && row.DeletedAt == nil && row.EmbeddingGeneratedAt == nil {
			clone := *row
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Messages) CountByMailboxAndCategory(mailboxID string, category store.MessageCategory) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, unread int64
	for _, row := range m.rows {
		if row.MailboxID == mailboxID && row.Category == category && row.DeletedAt == nil {
			total++
			if !row.IsRead {
				unread++
			}
		}
	}
	return total, unread, nil
}

func (m *Messages) CountByMailboxAndLabel(mailboxID, label string) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, unread int64
	for _, row := range m.rows {
		if row.MailboxID == mailboxID && row.DeletedAt == nil && containsLabel(row.Labels, label) {
			total++
			if !row.IsRead {
				unread++
			}
		}
	}
	return total, unread, nil
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// Columns is an in-memory store.ColumnRepository.
type Columns struct {
	mu   sync.Mutex
	rows map[string]*store.Column
}

func NewColumns() *Columns { return &Columns{rows: map[string]*store.Column{}} }

func (c *Columns) Create(col *store.Column) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col.ID == "" {
		col.ID = uuid.New().String()
	}
	now := time.Now()
	col.CreatedAt, col.UpdatedAt = now, now
	clone := *col
	c.rows[col.ID] = &clone
	return nil
}

func (c *Columns) GetByID(userID, id string) (*store.Column, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[id]
	if !ok || row.UserID != userID {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (c *Columns) GetByTitle(userID, title string) (*store.Column, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.rows {
		if row.UserID == userID && strings.EqualFold(row.Title, title) {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (c *Columns) ListByUser(userID string) ([]*store.Column, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*store.Column
	for _, row := range c.rows {
		if row.UserID == userID {
			clone := *row
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (c *Columns) Update(col *store.Column) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rows[col.ID]; !ok {
		return nil
	}
	col.UpdatedAt = time.Now()
	clone := *col
	c.rows[col.ID] = &clone
	return nil
}

func (c *Columns) Delete(userID, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if row, ok := c.rows[id]; ok && row.UserID == userID {
		delete(c.rows, id)
	}
	return nil
}

func (c *Columns) MaxOrderIndex(userID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	max := -1
	for _, row := range c.rows {
		if row.UserID == userID && row.OrderIndex > max {
			max = row.OrderIndex
		}
	}
	return max, nil
}

func (c *Columns) ShiftOrderIndexes(userID string, lo, hi, delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lo > hi {
		return nil
	}
	for _, row := range c.rows {
		if row.UserID == userID && row.OrderIndex >= lo && row.OrderIndex <= hi {
			row.OrderIndex += delta
			row.UpdatedAt = time.Now()
		}
	}
	return nil
}
