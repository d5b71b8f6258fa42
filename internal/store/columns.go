package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ColumnRepository defines the CRUD and ordering operations the Column
// Manager needs. Gap-preserving reorder and default-column seeding are
// orchestrated by internal/column; this repository exposes the raw
// primitives (including a range shift) that orchestration needs.
type ColumnRepository interface {
	Create(col *Column) error
	GetByID(userID, id string) (*Column, error)
	GetByTitle(userID, title string) (*Column, error)
	ListByUser(userID string) ([]*Column, error)
	Update(col *Column) error
	Delete(userID, id string) error
	MaxOrderIndex(userID string) (int, error)
	// ShiftOrderIndexes adds delta to orderIndex for every column of
	// userID whose orderIndex is in [lo, hi] inclusive.
	ShiftOrderIndexes(userID string, lo, hi, delta int) error
}

type columnRepository struct {
	db *gorm.DB
}

func NewColumnRepository(db *gorm.DB) ColumnRepository {
	return &columnRepository{db: db}
}

func (r *columnRepository) Create(col *Column) error {
	if col.ID == "" {
		col.ID = uuid.New().String()
	}
	now := time.Now()
	col.CreatedAt, col.UpdatedAt = now, now
	return r.db.Create(col).Error
}

func (r *columnRepository) GetByID(userID, id string) (*Column, error) {
	var c Column
	err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&c).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *columnRepository) GetByTitle(userID, title string) (*Column, error) {
	var c Column
	err := r.db.Where("user_id = ? AND title = ?", userID, title).First(&c).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *columnRepository) ListByUser(userID string) ([]*Column, error) {
	var columns []*Column
	err := r.db.Where("user_id = ?", userID).Order("order_index ASC").Find(&columns).Error
	return columns, err
}

func (r *columnRepository) Update(col *Column) error {
	col.UpdatedAt = time.Now()
	return r.db.Save(col).Error
}

func (r *columnRepository) Delete(userID, id string) error {
	return r.db.Where("user_id = ? AND id = ?", userID, id).Delete(&Column{}).Error
}

func (r *columnRepository) MaxOrderIndex(userID string) (int, error) {
	var maxIdx *int
	err := r.db.Model(&Column{}).Where("user_id = ?", userID).Select("MAX(order_index)").Scan(&maxIdx).Error
	if err != nil {
		return -1, err
	}
	if maxIdx == nil {
		return -1, nil
	}
	return *maxIdx, nil
}

func (r *columnRepository) ShiftOrderIndexes(userID string, lo, hi, delta int) error {
	if lo > hi {
		return nil
	}
	return r.db.Model(&Column{}).
		Where("user_id = ? AND order_index >= ? AND order_index <= ?", userID, lo, hi).
		Updates(map[string]interface{}{
			"order_index": gorm.Expr("order_index + ?", delta),
			"updated_at":  time.Now(),
		}).Error
}
