package snooze

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/core/internal/store"
	"github.com/inboxforge/core/internal/store/storetest"
)

func TestTickClearsOnlyExpiredSnoozes(t *testing.T) {
	messages := storetest.NewMessages()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	expired := &store.Message{MailboxID: "mb1", ProviderMessageID: "p1", FromEmail: "a@b.com"}
	_, err := messages.Upsert(expired, nil)
	require.NoError(t, err)
	require.NoError(t, messages.SetSnooze(expired.ID, &past))

	active := &store.Message{MailboxID: "mb1", ProviderMessageID: "p2", FromEmail: "a@b.com"}
	_, err = messages.Upsert(active, nil)
	require.NoError(t, err)
	require.NoError(t, messages.SetSnooze(active.ID, &future))

	s := New(messages, time.Minute)
	s.tick()

	got, err := messages.GetByID(expired.ID)
	require.NoError(t, err)
	assert.False(t, got.IsSnoozed)
	assert.Nil(t, got.SnoozedUntil)

	stillSnoozed, err := messages.GetByID(active.ID)
	require.NoError(t, err)
	assert.True(t, stillSnoozed.IsSnoozed)
	assert.NotNil(t, stillSnoozed.SnoozedUntil)
}

func TestTickNoOpWhenNothingExpired(t *testing.T) {
	messages := storetest.NewMessages()
	s := New(messages, time.Minute)
	s.tick() // must not panic or error on an empty store
}

func TestStartStopStopsTheTickerGoroutine(t *testing.T) {
	messages := storetest.NewMessages()
	s := New(messages, 10*time.Millisecond)
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}
