package store

import "gorm.io/gorm"

// Store bundles the per-entity repositories behind one constructor, the
// way the teacher's main.go wires one repository per domain type off a
// shared *gorm.DB.
type Store struct {
	Users       UserRepository
	Mailboxes   MailboxRepository
	Messages    MessageRepository
	Attachments AttachmentRepository
	Columns     ColumnRepository
}

func New(db *gorm.DB) *Store {
	return &Store{
		Users:       NewUserRepository(db),
		Mailboxes:   NewMailboxRepository(db),
		Messages:    NewMessageRepository(db),
		Attachments: NewAttachmentRepository(db),
		Columns:     NewColumnRepository(db),
	}
}
