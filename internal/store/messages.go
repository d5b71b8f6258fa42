package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageFilter shapes the GET /emails listing surface (§6) and is
// reused internally by the Search Service for its mailbox/field scoping.
type MessageFilter struct {
	UserID    string
	MailboxID string
	// Search is a plain substring match across subject/snippet/sender,
	// distinct from the Search Service's scored fuzzy/semantic queries.
	Search         string
	IsRead         *bool
	IsStarred      *bool
	HasAttachments *bool
	Category       MessageCategory
	TaskStatus     TaskStatus
	FromEmail      string
	Label          string
	ExcludeLabel   string
	IsSnoozed      *bool
	SortBy         string // receivedAt | subject | fromEmail
	SortOrder      string // ASC | DESC
	Page           int
	Limit          int
}

// MessageRepository defines the operations the Sync Engine, Move
// Coordinator, Search Service, Snooze Scheduler, and Enrichment Worker
// perform against the Message table.
type MessageRepository interface {
	GetByID(id string) (*Message, error)
	GetByProviderID(mailboxID, providerMessageID string) (*Message, error)
	// Upsert implements the §4.1 ingestion algorithm: lookup by
	// (mailboxId, providerMessageId); overwrite scalars+labels if present,
	// insert (+attachments in one batch) if absent. Derived fields are
	// recomputed from labels/attachments in both paths. Returns whether a
	// new row was inserted, which callers use to decide whether to enqueue
	// embedding generation.
	Upsert(msg *Message, attachments []*Attachment) (created bool, err error)
	ApplyLabelDelta(mailboxID, providerMessageID string, added, removed []string) error
	SoftDeleteByProviderIDs(mailboxID string, providerMessageIDs []string) error
	SetLabels(id string, labels []string) error
	SetColumn(id string, columnID *string) error
	SetTaskFields(id string, status TaskStatus, deadline *time.Time) error
	SetFlags(id string, isRead, isStarred, pinned *bool) error
	SetSnooze(id string, until *time.Time) error
	SetSummary(id string, summary string) error
	SetEmbedding(id string, embedding []float32, generatedAt time.Time) error
	// SetActionItems persists the AI Adapter's extracted tasks
	// (JSON-encoded) and urgency score for a message.
	SetActionItems(id string, actionItemJSON string, urgency int) error
	SoftDelete(id string) error
	List(filter MessageFilter) ([]*Message, int64, error)
	// ListSnoozeExpired returns ids where isSnoozed and snoozedUntil<=now.
	ListSnoozeExpired(now time.Time) ([]string, error)
	ClearSnoozeBatch(ids []string) error
	// ListMissingEmbeddings returns up to limit non-deleted messages with
	// a null embedding for the mailbox, newest first.
	ListMissingEmbeddings(mailboxID string, limit int) ([]*Message, error)
	CountByMailboxAndCategory(mailboxID string, category MessageCategory) (total, unread int64, err error)
	CountByMailboxAndLabel(mailboxID, label string) (total, unread int64, err error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) GetByID(id string) (*Message, error) {
	var m Message
	err := r.db.Where("id = ? AND deleted_at IS NULL", id).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *messageRepository) GetByProviderID(mailboxID, providerMessageID string) (*Message, error) {
	var m Message
	err := r.db.Where("mailbox_id = ? AND provider_message_id = ? AND deleted_at IS NULL", mailboxID, providerMessageID).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *messageRepository) Upsert(msg *Message, attachments []*Attachment) (bool, error) {
	isRead, isStarred := DeriveReadStarred(msg.Labels)
	msg.IsRead = isRead
	msg.IsStarred = isStarred
	msg.HasAttachments = len(attachments) > 0
	msg.Category = DeriveCategory(msg.Labels)

	var existing Message
	err := r.db.Where("mailbox_id = ? AND provider_message_id = ? AND deleted_at IS NULL", msg.MailboxID, msg.ProviderMessageID).First(&existing).Error

	if err == nil {
		// Present: overwrite scalar fields and label set; never re-insert
		// attachments (I6: providerMessageId stays unique, the row is
		// updated in place).
		msg.ID = existing.ID
		msg.CreatedAt = existing.CreatedAt
		msg.UpdatedAt = time.Now()
		return false, r.db.Model(&Message{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"subject":                msg.Subject,
			"snippet":                msg.Snippet,
			"from_email":             msg.FromEmail,
			"from_name":              msg.FromName,
			"to_emails":              msg.ToEmails,
			"cc_emails":              msg.CcEmails,
			"bcc_emails":             msg.BccEmails,
			"body_html":              msg.BodyHTML,
			"body_text":              msg.BodyText,
			"received_at":            msg.ReceivedAt,
			"is_read":                msg.IsRead,
			"is_starred":             msg.IsStarred,
			"has_attachments":        msg.HasAttachments,
			"labels":                 msg.Labels,
			"category":               msg.Category,
			"provider_thread_id":     msg.ProviderThreadID,
			"updated_at":             msg.UpdatedAt,
		}).Error
	}
	if err != gorm.ErrRecordNotFound {
		return false, err
	}

	// Absent: insert, then the attachments in one batch, then leave the
	// embedding fields null so the Enrichment Worker picks the row up.
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now()
	msg.CreatedAt, msg.UpdatedAt = now, now
	if msg.TaskStatus == "" {
		msg.TaskStatus = TaskStatusNone
	}

	return true, r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		if len(attachments) == 0 {
			return nil
		}
		for _, a := range attachments {
			if a.ID == "" {
				a.ID = uuid.New().String()
			}
			a.MessageID = msg.ID
			a.CreatedAt = now
		}
		return tx.Create(&attachments).Error
	})
}

// ApplyLabelDelta implements the labelsModified step of incremental sync:
// new labels = (old \ removed) ∪ added, then isRead/isStarred recomputed.
func (r *messageRepository) ApplyLabelDelta(mailboxID, providerMessageID string, added, removed []string) error {
	var m Message
	err := r.db.Where("mailbox_id = ? AND provider_message_id = ? AND deleted_at IS NULL", mailboxID, providerMessageID).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil // message not locally known yet; a later full/added pass will create it
		}
		return err
	}
	merged := MergeLabels(m.Labels, added, removed)
	isRead, isStarred := DeriveReadStarred(merged)
	return r.db.Model(&Message{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
		"labels":     StringArray(merged),
		"category":   DeriveCategory(merged),
		"is_read":    isRead,
		"is_starred": isStarred,
		"updated_at": time.Now(),
	}).Error
}

func (r *messageRepository) SoftDeleteByProviderIDs(mailboxID string, providerMessageIDs []string) error {
	ids := DedupStrings(providerMessageIDs)
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&Message{}).
		Where("mailbox_id = ? AND provider_message_id IN ? AND deleted_at IS NULL", mailboxID, ids).
		Update("deleted_at", time.Now()).Error
}

func (r *messageRepository) SetLabels(id string, labels []string) error {
	isRead, isStarred := DeriveReadStarred(labels)
	return r.db.Model(&Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"labels":     StringArray(labels),
		"category":   DeriveCategory(labels),
		"is_read":    isRead,
		"is_starred": isStarred,
		"updated_at": time.Now(),
	}).Error
}

func (r *messageRepository) SetColumn(id string, columnID *string) error {
	return r.db.Model(&Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"column_id":  columnID,
		"updated_at": time.Now(),
	}).Error
}

func (r *messageRepository) SetTaskFields(id string, status TaskStatus, deadline *time.Time) error {
	return r.db.Model(&Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"task_status":   status,
		"task_deadline": deadline,
		"updated_at":    time.Now(),
	}).Error
}

func (r *messageRepository) SetFlags(id string, isRead, isStarred, pinned *bool) error {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if isRead != nil {
		updates["is_read"] = *isRead
	}
	if isStarred != nil {
		updates["is_starred"] = *isStarred
	}
	if pinned != nil {
		updates["pinned"] = *pinned
	}
	return r.db.Model(&Message{}).Where("id = ?", id).Updates(updates).Error
}

func (r *messageRepository) SetSnooze(id string, until *time.Time) error {
	isSnoozed := until != nil && until.After(time.Now())
	return r.db.Model(&Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_snoozed":    isSnoozed,
		"snoozed_until": until,
		"updated_at":    time.Now(),
	}).Error
}

func (r *messageRepository) SetSummary(id string, summary string) error {
	return r.db.Model(&Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"ai_summary": summary,
		"updated_at": time.Now(),
	}).Error
}

func (r *messageRepository) SetEmbedding(id string, embedding []float32, generatedAt time.Time) error {
	return r.db.Model(&Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"embedding":             Float32Array(embedding),
		"embedding_generated_at": generatedAt,
		"updated_at":            time.Now(),
	}).Error
}

func (r *messageRepository) SetActionItems(id string, actionItemJSON string, urgency int) error {
	return r.db.Model(&Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"ai_action_item": actionItemJSON,
		"urgency_score":  urgency,
		"updated_at":     time.Now(),
	}).Error
}

func (r *messageRepository) SoftDelete(id string) error {
	return r.db.Model(&Message{}).Where("id = ?", id).Update("deleted_at", time.Now()).Error
}

func (r *messageRepository) List(f MessageFilter) ([]*Message, int64, error) {
	q := r.db.Model(&Message{}).
		Joins("JOIN mailboxes ON mailboxes.id = messages.mailbox_id").
		Where("messages.deleted_at IS NULL AND mailboxes.deleted_at IS NULL")
	if f.UserID != "" {
		q = q.Where("mailboxes.user_id = ?", f.UserID)
	}
	if f.MailboxID != "" {
		q = q.Where("messages.mailbox_id = ?", f.MailboxID)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("messages.subject LIKE ? OR messages.snippet LIKE ? OR messages.from_email LIKE ? OR messages.from_name LIKE ?", like, like, like, like)
	}
	if f.IsRead != nil {
		q = q.Where("messages.is_read = ?", *f.IsRead)
	}
	if f.IsStarred != nil {
		q = q.Where("messages.is_starred = ?", *f.IsStarred)
	}
	if f.HasAttachments != nil {
		q = q.Where("messages.has_attachments = ?", *f.HasAttachments)
	}
	if f.Category != "" {
		q = q.Where("messages.category = ?", f.Category)
	}
	if f.TaskStatus != "" {
		q = q.Where("messages.task_status = ?", f.TaskStatus)
	}
	if f.FromEmail != "" {
		q = q.Where("messages.from_email = ?", f.FromEmail)
	}
	if f.Label != "" {
		q = q.Where("messages.labels LIKE ?", "%\""+f.Label+"\"%")
	}
	if f.ExcludeLabel != "" {
		q = q.Where("messages.labels NOT LIKE ?", "%\""+f.ExcludeLabel+"\"%")
	}
	if f.IsSnoozed != nil {
		q = q.Where("messages.is_snoozed = ?", *f.IsSnoozed)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortCol := "messages.received_at"
	switch f.SortBy {
	case "subject":
		sortCol = "messages.subject"
	case "fromEmail":
		sortCol = "messages.from_email"
	}
	order := "DESC"
	if f.SortOrder == "ASC" {
		order = "ASC"
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var messages []*Message
	err := q.Order(sortCol + " " + order).
		Limit(limit).Offset((page - 1) * limit).
		Select("messages.*").
		Find(&messages).Error
	return messages, total, err
}

func (r *messageRepository) ListSnoozeExpired(now time.Time) ([]string, error) {
	var ids []string
	err := r.db.Model(&Message{}).
		Where("is_snoozed = ? AND snoozed_until <= ? AND deleted_at IS NULL", true, now).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *messageRepository) ClearSnoozeBatch(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&Message{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"is_snoozed":    false,
		"snoozed_until": nil,
		"updated_at":    time.Now(),
	}).Error
}

func (r *messageRepository) ListMissingEmbeddings(mailboxID string, limit int) ([]*Message, error) {
	var messages []*Message
	err := r.db.Where("mailbox_id = ? AND deleted_at IS NULL AND embedding_generated_at IS NULL", mailboxID).
		Order("received_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *messageRepository) CountByMailboxAndCategory(mailboxID string, category MessageCategory) (int64, int64, error) {
	var total, unread int64
	q := r.db.Model(&Message{}).Where("mailbox_id = ? AND category = ? AND deleted_at IS NULL", mailboxID, category)
	if err := q.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := q.Where("is_read = ?", false).Count(&unread).Error; err != nil {
		return 0, 0, err
	}
	return total, unread, nil
}

func (r *messageRepository) CountByMailboxAndLabel(mailboxID, label string) (int64, int64, error) {
	var total, unread int64
	pattern := "%\"" + label + "\"%"
	q := r.db.Model(&Message{}).Where("mailbox_id = ? AND labels LIKE ? AND deleted_at IS NULL", mailboxID, pattern)
	if err := q.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := q.Where("is_read = ?", false).Count(&unread).Error; err != nil {
		return 0, 0, err
	}
	return total, unread, nil
}
