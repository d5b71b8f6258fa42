package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MailboxRepository defines the operations the Sync Engine, Move
// Coordinator, and HTTP boundary need against the Mailbox table.
type MailboxRepository interface {
	Create(mailbox *Mailbox) error
	GetByID(id string) (*Mailbox, error)
	GetByUserAndAddress(userID, address string) (*Mailbox, error)
	ListByUser(userID string) ([]*Mailbox, error)
	ListActive() ([]*Mailbox, error)
	Update(mailbox *Mailbox) error
	SetSyncing(id string) error
	// SetPending is used by stale-cursor recovery (§4.1) to release a
	// mailbox back to the pre-sync state before a fresh full sync.
	SetPending(id string) error
	MarkSynced(id, historyCursor string) error
	MarkError(id, lastError string) error
	SetHistoryCursor(id, cursor string) error
	// SetTokens overwrites the encrypted token envelopes and expiry in
	// one statement, so a concurrent refresh never clobbers an unrelated
	// field a reader loaded stale (§5 token-mutation policy).
	SetTokens(id, accessToken, refreshToken string, expiresAt time.Time) error
	RecomputeCounters(id string) error
	SoftDelete(id string) error
	// ResetStuckSyncing forces any mailbox stuck in Syncing past the
	// watchdog threshold back to Synced, per §5. Returns the affected ids.
	ResetStuckSyncing(threshold time.Duration) ([]string, error)
}

type mailboxRepository struct {
	db *gorm.DB
}

func NewMailboxRepository(db *gorm.DB) MailboxRepository {
	return &mailboxRepository{db: db}
}

func (r *mailboxRepository) Create(mailbox *Mailbox) error {
	if mailbox.ID == "" {
		mailbox.ID = uuid.New().String()
	}
	if mailbox.SyncStatus == "" {
		mailbox.SyncStatus = SyncStatusPending
	}
	now := time.Now()
	mailbox.CreatedAt, mailbox.UpdatedAt = now, now
	return r.db.Create(mailbox).Error
}

func (r *mailboxRepository) GetByID(id string) (*Mailbox, error) {
	var m Mailbox
	err := r.db.Where("id = ? AND deleted_at IS NULL", id).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *mailboxRepository) GetByUserAndAddress(userID, address string) (*Mailbox, error) {
	var m Mailbox
	err := r.db.Where("user_id = ? AND address = ? AND deleted_at IS NULL", userID, address).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *mailboxRepository) ListByUser(userID string) ([]*Mailbox, error) {
	var mailboxes []*Mailbox
	err := r.db.Where("user_id = ? AND deleted_at IS NULL", userID).Order("created_at ASC").Find(&mailboxes).Error
	return mailboxes, err
}

func (r *mailboxRepository) ListActive() ([]*Mailbox, error) {
	var mailboxes []*Mailbox
	err := r.db.Where("active = ? AND deleted_at IS NULL", true).Find(&mailboxes).Error
	return mailboxes, err
}

func (r *mailboxRepository) Update(mailbox *Mailbox) error {
	mailbox.UpdatedAt = time.Now()
	return r.db.Save(mailbox).Error
}

func (r *mailboxRepository) SetSyncing(id string) error {
	return r.db.Model(&Mailbox{}).Where("id = ?", id).Updates(map[string]interface{}{
		"sync_status": SyncStatusSyncing,
		"updated_at":  time.Now(),
	}).Error
}

func (r *mailboxRepository) SetPending(id string) error {
	return r.db.Model(&Mailbox{}).Where("id = ?", id).Updates(map[string]interface{}{
		"sync_status": SyncStatusPending,
		"updated_at":  time.Now(),
	}).Error
}

func (r *mailboxRepository) MarkSynced(id, historyCursor string) error {
	now := time.Now()
	return r.db.Model(&Mailbox{}).Where("id = ?", id).Updates(map[string]interface{}{
		"sync_status":     SyncStatusSynced,
		"last_sync_at":    now,
		"last_sync_error": "",
		"history_cursor":  historyCursor,
		"updated_at":      now,
	}).Error
}

func (r *mailboxRepository) MarkError(id, lastError string) error {
	return r.db.Model(&Mailbox{}).Where("id = ?", id).Updates(map[string]interface{}{
		"sync_status":     SyncStatusError,
		"last_sync_error": lastError,
		"updated_at":      time.Now(),
	}).Error
}

func (r *mailboxRepository) SetHistoryCursor(id, cursor string) error {
	return r.db.Model(&Mailbox{}).Where("id = ?", id).Updates(map[string]interface{}{
		"history_cursor": cursor,
		"updated_at":     time.Now(),
	}).Error
}

func (r *mailboxRepository) SetTokens(id, accessToken, refreshToken string, expiresAt time.Time) error {
	updates := map[string]interface{}{
		"access_token":     accessToken,
		"token_expires_at": expiresAt,
		"updated_at":       time.Now(),
	}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	return r.db.Model(&Mailbox{}).Where("id = ?", id).Updates(updates).Error
}

// RecomputeCounters recounts unreadCount and totalMessages by counting
// non-soft-deleted rows, never by delta arithmetic, so retries converge.
func (r *mailboxRepository) RecomputeCounters(id string) error {
	var total, unread int64
	if err := r.db.Model(&Message{}).Where("mailbox_id = ? AND deleted_at IS NULL", id).Count(&total).Error; err != nil {
		return err
	}
	if err := r.db.Model(&Message{}).Where("mailbox_id = ? AND deleted_at IS NULL AND is_read = ?", id, false).Count(&unread).Error; err != nil {
		return err
	}
	return r.db.Model(&Mailbox{}).Where("id = ?", id).Updates(map[string]interface{}{
		"total_messages": total,
		"unread_count":   unread,
		"updated_at":     time.Now(),
	}).Error
}

func (r *mailboxRepository) SoftDelete(id string) error {
	now := time.Now()
	return r.db.Model(&Mailbox{}).Where("id = ?", id).Updates(map[string]interface{}{
		"deleted_at": now,
		"active":     false,
		"updated_at": now,
	}).Error
}

func (r *mailboxRepository) ResetStuckSyncing(threshold time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-threshold)
	var stuck []Mailbox
	if err := r.db.Where("sync_status = ? AND updated_at < ?", SyncStatusSyncing, cutoff).Find(&stuck).Error; err != nil {
		return nil, err
	}
	if len(stuck) == 0 {
		return nil, nil
	}
	ids := make([]string, len(stuck))
	for i, m := range stuck {
		ids[i] = m.ID
	}
	err := r.db.Model(&Mailbox{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"sync_status": SyncStatusSynced,
		"updated_at":  time.Now(),
	}).Error
	return ids, err
}
