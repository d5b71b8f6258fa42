// Package column implements the Kanban-style column workspace a user's
// messages are organized into (§4.5), grounded on the teacher's
// GetKanbanColumns default-seeding logic, generalized from its
// runtime dedup-by-ColumnID (needed there because the teacher had no
// DB uniqueness constraint) to rely on the Store's (userId, title)
// constraint instead.
package column

import (
	"log"

	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/store"
)

// defaultColumn is one row of the seed set §4.5 names.
type defaultColumn struct {
	title      string
	labelToken string
	isDefault  bool
}

var defaults = []defaultColumn{
	{title: "Inbox", labelToken: "INBOX", isDefault: true},
	{title: "Important", labelToken: "IMPORTANT", isDefault: true},
	{title: "Starred", labelToken: "STARRED", isDefault: true},
	{title: "To Do", labelToken: "", isDefault: false},
	{title: "In Progress", labelToken: "", isDefault: false},
	{title: "Done", labelToken: "", isDefault: false},
}

// Manager owns Create/Update/Delete/reorder/seeding for a user's columns.
type Manager struct {
	columns store.ColumnRepository
}

func New(columns store.ColumnRepository) *Manager {
	return &Manager{columns: columns}
}

// Create rejects a duplicate title and assigns max(orderIndex)+1 when
// the caller omits one.
func (m *Manager) Create(userID, title, labelToken, color string, orderIndex *int) (*store.Column, error) {
	existing, err := m.columns.GetByTitle(userID, title)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("a column with this title already exists")
	}

	idx := 0
	if orderIndex != nil {
		idx = *orderIndex
	} else {
		max, err := m.columns.MaxOrderIndex(userID)
		if err != nil {
			return nil, err
		}
		idx = max + 1
	}

	col := &store.Column{
		UserID:     userID,
		Title:      title,
		OrderIndex: idx,
		LabelToken: labelToken,
		Color:      color,
	}
	if err := m.columns.Create(col); err != nil {
		return nil, err
	}
	return col, nil
}

// Update handles rename-uniqueness and the gap-preserving reorder from
// §4.5: moving forward shifts the open range (old, new] left by one;
// moving backward shifts [new, old) right by one.
func (m *Manager) Update(userID, id string, title *string, labelToken, color *string, newOrderIndex *int) (*store.Column, error) {
	col, err := m.columns.GetByID(userID, id)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, apperr.NotFound("column not found")
	}

	if title != nil && *title != col.Title {
		existing, err := m.columns.GetByTitle(userID, *title)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != id {
			return nil, apperr.Conflict("a column with this title already exists")
		}
		col.Title = *title
	}
	if labelToken != nil {
		col.LabelToken = *labelToken
	}
	if color != nil {
		col.Color = *color
	}

	if newOrderIndex != nil && *newOrderIndex != col.OrderIndex {
		old, target := col.OrderIndex, *newOrderIndex
		if target > old {
			if err := m.columns.ShiftOrderIndexes(userID, old+1, target, -1); err != nil {
				return nil, err
			}
		} else {
			if err := m.columns.ShiftOrderIndexes(userID, target, old-1, 1); err != nil {
				return nil, err
			}
		}
		col.OrderIndex = target
	}

	if err := m.columns.Update(col); err != nil {
		return nil, err
	}
	return col, nil
}

// Delete forbids removing a default column and re-densifies the
// remaining columns' order indices to 0..N-1 afterward.
func (m *Manager) Delete(userID, id string) error {
	col, err := m.columns.GetByID(userID, id)
	if err != nil {
		return err
	}
	if col == nil {
		return apperr.NotFound("column not found")
	}
	if col.IsDefault {
		return apperr.Conflict("default columns cannot be deleted")
	}

	if err := m.columns.Delete(userID, id); err != nil {
		return err
	}

	max, err := m.columns.MaxOrderIndex(userID)
	if err != nil {
		return err
	}
	if max < col.OrderIndex {
		return nil
	}
	// Re-densify: every column with an index past the deleted one shifts
	// down by one so indices stay contiguous.
	return m.columns.ShiftOrderIndexes(userID, col.OrderIndex+1, max, -1)
}

// List returns a user's columns ordered by orderIndex, seeding the
// defaults first if the user has none yet.
func (m *Manager) List(userID string) ([]*store.Column, error) {
	if err := m.SeedDefaults(userID); err != nil {
		return nil, err
	}
	return m.columns.ListByUser(userID)
}

// SeedDefaults creates the six default columns described in §4.5 the
// first time it is invoked for a user. It is idempotent: any column
// already present (matched by title) is left alone.
func (m *Manager) SeedDefaults(userID string) error {
	existing, err := m.columns.ListByUser(userID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.Title] = true
	}

	for i, d := range defaults {
		if have[d.title] {
			continue
		}
		col := &store.Column{
			UserID:     userID,
			Title:      d.title,
			OrderIndex: i,
			LabelToken: d.labelToken,
			IsDefault:  d.isDefault,
		}
		if err := m.columns.Create(col); err != nil {
			log.Printf("[Column] failed to seed default column %q for user %s: %v", d.title, userID, err)
			continue
		}
	}
	return nil
}
