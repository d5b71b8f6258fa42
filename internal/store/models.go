// Package store is the durable, transactional record of users, mailboxes,
// messages, attachments, columns, and embeddings. It is backed by GORM
// over PostgreSQL, following the teacher's domain-package conventions
// (plain structs with gorm tags, a JSON-array column type for string
// slices) generalized to the shapes this workspace needs.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// StringArray persists a Go string slice as a JSON array in a text
// column. Used for Message.Labels, Message.ToEmails/CcEmails/BccEmails.
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal([]string(a))
}

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = []string{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*a = []string{}
		return nil
	}
	if len(bytes) == 0 {
		*a = []string{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Float32Array persists the fixed-width embedding vector. Stored as a
// JSON array rather than pgvector's native type so the Store stays
// portable to any SQL backend GORM supports; cosine similarity is
// computed application-side by the Search Service and Enrichment Worker.
type Float32Array []float32

func (a Float32Array) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal([]float32(a))
}

func (a *Float32Array) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*a = nil
		return nil
	}
	if len(bytes) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// AuthProvider tags how a User authenticates.
type AuthProvider string

const (
	AuthProviderLocal    AuthProvider = "local"
	AuthProviderExternal AuthProvider = "external"
)

// User is a stable account record. Registration, password hashing, and
// JWT issuance happen outside the core; this row is the identity the
// core's writers key off of.
type User struct {
	ID                string       `gorm:"primaryKey"`
	Email             string       `gorm:"uniqueIndex;not null"`
	DisplayName       string       `gorm:"not null;default:''"`
	AuthProvider      AuthProvider `gorm:"not null;default:'local'"`
	ExternalAccountID string       `gorm:"default:''"`
	Verified          bool         `gorm:"not null;default:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SyncStatus is the Sync Engine's per-mailbox state (§4.1).
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
)

// ProviderTag identifies the upstream mail provider. Gmail is the only
// one implemented; the field exists so a second provider adapter would
// not require a schema change.
type ProviderTag string

const ProviderGmail ProviderTag = "gmail"

// Mailbox is one connected provider account. Tokens are stored as
// Secret Box envelopes (internal/secretbox), never in the clear.
type Mailbox struct {
	ID          string      `gorm:"primaryKey"`
	UserID      string      `gorm:"index:idx_mailbox_user_email,unique;not null"`
	Provider    ProviderTag `gorm:"not null"`
	Address     string      `gorm:"index:idx_mailbox_user_email,unique;not null"`
	AccessToken string      `gorm:"not null"` // secretbox envelope
	RefreshToken string     `gorm:"not null"` // secretbox envelope
	TokenExpiresAt time.Time

	SyncStatus    SyncStatus `gorm:"index;not null;default:'pending'"`
	LastSyncAt    *time.Time
	LastSyncError string `gorm:"default:''"`
	HistoryCursor string `gorm:"default:''"`

	TotalMessages int `gorm:"not null;default:0"`
	UnreadCount   int `gorm:"not null;default:0"`

	Active bool `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
}

// MessageCategory is derived at ingest time from CATEGORY_* labels (I7).
type MessageCategory string

const (
	CategoryPrimary     MessageCategory = "primary"
	CategorySocial      MessageCategory = "social"
	CategoryPromotions  MessageCategory = "promotions"
	CategoryUpdates     MessageCategory = "updates"
	CategoryForums      MessageCategory = "forums"
)

// TaskStatus tracks the lightweight task workflow a Message can carry.
type TaskStatus string

const (
	TaskStatusNone       TaskStatus = "none"
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// EmbeddingDimensions is the fixed width specified for Message.Embedding.
const EmbeddingDimensions = 768

// Message is one shadowed Gmail message plus the local workspace
// overlay (task status, column, snooze, AI fields).
type Message struct {
	ID               string `gorm:"primaryKey"`
	MailboxID        string `gorm:"index:idx_msg_mailbox_provider,unique;not null"`
	ProviderMessageID string `gorm:"index:idx_msg_mailbox_provider,unique;not null"`
	ProviderThreadID string `gorm:"index;default:''"`

	Subject string `gorm:"default:''"`
	Snippet string `gorm:"default:''"`

	FromEmail string `gorm:"not null"`
	FromName  string `gorm:"default:''"`

	ToEmails  StringArray `gorm:"type:text"`
	CcEmails  StringArray `gorm:"type:text"`
	BccEmails StringArray `gorm:"type:text"`

	BodyHTML string `gorm:"type:text;default:''"`
	BodyText string `gorm:"type:text;default:''"`

	ReceivedAt time.Time `gorm:"index:idx_msg_mailbox_received"`

	IsRead         bool `gorm:"index:idx_msg_mailbox_read;not null;default:false"`
	IsStarred      bool `gorm:"not null;default:false"`
	HasAttachments bool `gorm:"not null;default:false"`

	Labels StringArray `gorm:"type:text"`

	Category   MessageCategory `gorm:"index:idx_msg_mailbox_category;not null;default:'primary'"`
	TaskStatus TaskStatus      `gorm:"not null;default:'none'"`
	TaskDeadline *time.Time

	Pinned       bool       `gorm:"not null;default:false"`
	IsSnoozed    bool       `gorm:"index:idx_msg_snooze;not null;default:false"`
	SnoozedUntil *time.Time `gorm:"index:idx_msg_snooze"`

	AiSummary      string  `gorm:"type:text;default:''"`
	AiActionItem   string  `gorm:"type:text;default:''"` // JSON-encoded TaskExtraction, empty when absent
	UrgencyScore   *int

	ColumnID *string `gorm:"index"`

	Embedding            Float32Array `gorm:"type:text"`
	EmbeddingGeneratedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
}

// Attachment is owned by exactly one Message (one-way ownership per the
// cyclic-association note: resolve the message side by query, not by a
// back-reference).
type Attachment struct {
	ID                 string `gorm:"primaryKey"`
	MessageID          string `gorm:"index;not null"`
	ProviderAttachmentID string `gorm:"not null"`
	Filename           string `gorm:"not null"`
	MimeType           string `gorm:"not null;default:'application/octet-stream'"`
	Size               int64  `gorm:"not null;default:0"`
	ContentID          string `gorm:"default:''"`
	Inline             bool   `gorm:"not null;default:false"`
	CreatedAt          time.Time
}

// Column is a user-defined Kanban bucket, optionally bound to a Gmail
// label token.
type Column struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index:idx_column_user_title,unique;not null"`
	Title       string `gorm:"index:idx_column_user_title,unique;not null"`
	OrderIndex  int    `gorm:"index:idx_column_user_order;not null"`
	LabelToken  string `gorm:"default:''"`
	Color       string `gorm:"default:''"`
	IsDefault   bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
