package column

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/store"
	"github.com/inboxforge/core/internal/store/storetest"
)

func TestCreateRejectsDuplicateTitle(t *testing.T) {
	cols := storetest.NewColumns()
	m := New(cols)

	_, err := m.Create("u1", "Projects", "", "", nil)
	require.NoError(t, err)

	_, err = m.Create("u1", "Projects", "", "", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestCreateAssignsNextOrderIndexWhenOmitted(t *testing.T) {
	cols := storetest.NewColumns()
	m := New(cols)

	a, err := m.Create("u1", "A", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, a.OrderIndex)

	b, err := m.Create("u1", "B", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, b.OrderIndex)
}

func TestUpdateForwardMoveShiftsOpenRangeLeft(t *testing.T) {
	cols := storetest.NewColumns()
	m := New(cols)
	require.NoError(t, m.SeedDefaults("u1"))

	all, err := cols.ListByUser("u1")
	require.NoError(t, err)
	require.Len(t, all, 6)

	// Move "Inbox" (index 0) to index 3. Columns at indices 1,2,3 shift left by one.
	var inboxID string
	for _, c := range all {
		if c.Title == "Inbox" {
			inboxID = c.ID
		}
	}
	require.NotEmpty(t, inboxID)

	target := 3
	_, err = m.Update("u1", inboxID, nil, nil, nil, &target)
	require.NoError(t, err)

	after, err := cols.ListByUser("u1")
	require.NoError(t, err)
	byTitle := indexByTitle(after)
	assert.Equal(t, 3, byTitle["Inbox"])
	assert.Equal(t, 0, byTitle["Important"])
	assert.Equal(t, 1, byTitle["Starred"])
	assert.Equal(t, 2, byTitle["To Do"])
	assert.Equal(t, 4, byTitle["In Progress"])
	assert.Equal(t, 5, byTitle["Done"])
}

func TestUpdateBackwardMoveShiftsRangeRight(t *testing.T) {
	cols := storetest.NewColumns()
	m := New(cols)
	require.NoError(t, m.SeedDefaults("u1"))

	all, err := cols.ListByUser("u1")
	require.NoError(t, err)
	var done string
	for _, c := range all {
		if c.Title == "Done" {
			done = c.ID
		}
	}
	require.NotEmpty(t, done)

	target := 0
	_, err = m.Update("u1", done, nil, nil, nil, &target)
	require.NoError(t, err)

	after, err := cols.ListByUser("u1")
	require.NoError(t, err)
	byTitle := indexByTitle(after)
	assert.Equal(t, 0, byTitle["Done"])
	assert.Equal(t, 1, byTitle["Inbox"])
	assert.Equal(t, 2, byTitle["Important"])
	assert.Equal(t, 3, byTitle["Starred"])
	assert.Equal(t, 4, byTitle["To Do"])
	assert.Equal(t, 5, byTitle["In Progress"])
}

func TestUpdateRejectsRenameToExistingTitle(t *testing.T) {
	cols := storetest.NewColumns()
	m := New(cols)

	a, err := m.Create("u1", "A", "", "", nil)
	require.NoError(t, err)
	_, err = m.Create("u1", "B", "", "", nil)
	require.NoError(t, err)

	rename := "B"
	_, err = m.Update("u1", a.ID, &rename, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestDeleteForbidsDefaultColumn(t *testing.T) {
	cols := storetest.NewColumns()
	m := New(cols)
	require.NoError(t, m.SeedDefaults("u1"))

	all, err := cols.ListByUser("u1")
	require.NoError(t, err)
	var inboxID string
	for _, c := range all {
		if c.Title == "Inbox" {
			inboxID = c.ID
		}
	}

	err = m.Delete("u1", inboxID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestDeleteRedensifiesRemainingIndices(t *testing.T) {
	cols := storetest.NewColumns()
	m := New(cols)
	require.NoError(t, m.SeedDefaults("u1"))

	all, err := cols.ListByUser("u1")
	require.NoError(t, err)
	var todoID string
	for _, c := range all {
		if c.Title == "To Do" { // index 3, non-default
			todoID = c.ID
		}
	}
	require.NotEmpty(t, todoID)

	require.NoError(t, m.Delete("u1", todoID))

	after, err := cols.ListByUser("u1")
	require.NoError(t, err)
	require.Len(t, after, 5)
	byTitle := indexByTitle(after)
	assert.Equal(t, 0, byTitle["Inbox"])
	assert.Equal(t, 1, byTitle["Important"])
	assert.Equal(t, 2, byTitle["Starred"])
	assert.Equal(t, 3, byTitle["In Progress"])
	assert.Equal(t, 4, byTitle["Done"])
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	cols := storetest.NewColumns()
	m := New(cols)

	require.NoError(t, m.SeedDefaults("u1"))
	require.NoError(t, m.SeedDefaults("u1"))

	all, err := cols.ListByUser("u1")
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestSeedDefaultsLabelsAndFlags(t *testing.T) {
	cols := storetest.NewColumns()
	m := New(cols)
	require.NoError(t, m.SeedDefaults("u1"))

	all, err := cols.ListByUser("u1")
	require.NoError(t, err)
	byTitle := make(map[string]struct {
		labelToken string
		isDefault  bool
	}, len(all))
	for _, c := range all {
		byTitle[c.Title] = struct {
			labelToken string
			isDefault  bool
		}{c.LabelToken, c.IsDefault}
	}

	assert.Equal(t, "INBOX", byTitle["Inbox"].labelToken)
	assert.True(t, byTitle["Inbox"].isDefault)
	assert.Equal(t, "IMPORTANT", byTitle["Important"].labelToken)
	assert.Equal(t, "STARRED", byTitle["Starred"].labelToken)
	assert.False(t, byTitle["To Do"].isDefault)
	assert.Empty(t, byTitle["To Do"].labelToken)
}

func indexByTitle(cols []*store.Column) map[string]int {
	out := make(map[string]int, len(cols))
	for _, c := range cols {
		out[c.Title] = c.OrderIndex
	}
	return out
}
