package store

import (
	"gorm.io/gorm"
)

// AttachmentRepository is read-mostly: attachments are written in a
// single batch by MessageRepository.Upsert and never updated afterward.
type AttachmentRepository interface {
	GetByID(id string) (*Attachment, error)
	ListByMessage(messageID string) ([]*Attachment, error)
}

type attachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) GetByID(id string) (*Attachment, error) {
	var a Attachment
	err := r.db.Where("id = ?", id).First(&a).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *attachmentRepository) ListByMessage(messageID string) ([]*Attachment, error) {
	var attachments []*Attachment
	err := r.db.Where("message_id = ?", messageID).Find(&attachments).Error
	return attachments, err
}
