package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/provider"
	"github.com/inboxforge/core/internal/secretbox"
	"github.com/inboxforge/core/internal/store"
	"github.com/inboxforge/core/internal/store/storetest"
)

// fakeProvider is a minimal provider.Provider stub whose behavior is
// configured per-test via function fields.
type fakeProvider struct {
	listMessagesFn       func(ctx context.Context, creds provider.Credentials, opts provider.ListOptions) (provider.ListResult, error)
	getMessagesFn        func(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.ParsedMessage, error)
	getHistoryChangesFn  func(ctx context.Context, creds provider.Credentials, sinceCursor string) (provider.HistoryChanges, error)
	getProfileFn         func(ctx context.Context, creds provider.Credentials) (provider.Profile, error)
	refreshTokensFn      func(ctx context.Context, creds provider.Credentials) (provider.TokenRefreshResult, error)
}

func (f *fakeProvider) ListMessages(ctx context.Context, creds provider.Credentials, opts provider.ListOptions) (provider.ListResult, error) {
	return f.listMessagesFn(ctx, creds, opts)
}
func (f *fakeProvider) GetMessage(ctx context.Context, creds provider.Credentials, id string) (provider.ParsedMessage, error) {
	return provider.ParsedMessage{}, nil
}
func (f *fakeProvider) GetMessages(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.ParsedMessage, error) {
	return f.getMessagesFn(ctx, creds, ids)
}
func (f *fakeProvider) GetHistoryChanges(ctx context.Context, creds provider.Credentials, sinceCursor string) (provider.HistoryChanges, error) {
	return f.getHistoryChangesFn(ctx, creds, sinceCursor)
}
func (f *fakeProvider) ModifyMessageLabels(ctx context.Context, creds provider.Credentials, id string, add, remove []string) error {
	return nil
}
func (f *fakeProvider) GetProfile(ctx context.Context, creds provider.Credentials) (provider.Profile, error) {
	return f.getProfileFn(ctx, creds)
}
func (f *fakeProvider) SendEmail(ctx context.Context, creds provider.Credentials, draft provider.Draft) (string, error) {
	return "", nil
}
func (f *fakeProvider) RefreshTokens(ctx context.Context, creds provider.Credentials) (provider.TokenRefreshResult, error) {
	return f.refreshTokensFn(ctx, creds)
}
func (f *fakeProvider) ListLabels(ctx context.Context, creds provider.Credentials) ([]provider.Label, error) {
	return nil, nil
}
func (f *fakeProvider) GetAttachment(ctx context.Context, creds provider.Credentials, messageID, attachmentID string) ([]byte, error) {
	return nil, nil
}

var _ provider.Provider = (*fakeProvider)(nil)

func testBox(t *testing.T) *secretbox.Box {
	t.Helper()
	b, err := secretbox.NewBox("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	return b
}

func seedMailbox(t *testing.T, mailboxes *storetest.Mailboxes, box *secretbox.Box) *store.Mailbox {
	t.Helper()
	access, err := box.Seal([]byte("access-token"))
	require.NoError(t, err)
	refresh, err := box.Seal([]byte("refresh-token"))
	require.NoError(t, err)
	mb := &store.Mailbox{
		UserID:         "user-1",
		Provider:       store.ProviderGmail,
		Address:        "user@example.com",
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenExpiresAt: time.Now().Add(time.Hour),
		Active:         true,
	}
	require.NoError(t, mailboxes.Create(mb))
	return mb
}

func newTestEngine(p provider.Provider, mailboxes *storetest.Mailboxes, messages *storetest.Messages, box *secretbox.Box) *Engine {
	return New(&store.Store{Mailboxes: mailboxes, Messages: messages}, p, box, Config{
		TokenNearExpiryBackground: 10 * time.Minute,
		TokenNearExpiryOnDemand:   5 * time.Minute,
		SyncWatchdogThreshold:     5 * time.Minute,
		FullSyncMaxMessages:       200,
		FullSyncPageSize:          50,
	})
}

func TestFullSyncIngestsMessagesAndMarksSynced(t *testing.T) {
	box := testBox(t)
	mailboxes := storetest.NewMailboxes()
	messages := storetest.NewMessages()
	mb := seedMailbox(t, mailboxes, box)

	p := &fakeProvider{
		getProfileFn: func(ctx context.Context, creds provider.Credentials) (provider.Profile, error) {
			return provider.Profile{HistoryCursor: "cursor-1"}, nil
		},
		listMessagesFn: func(ctx context.Context, creds provider.Credentials, opts provider.ListOptions) (provider.ListResult, error) {
			if opts.PageToken != "" {
				return provider.ListResult{}, nil
			}
			return provider.ListResult{Messages: []provider.MessageRef{{ID: "m1"}, {ID: "m2"}}}, nil
		},
		getMessagesFn: func(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.ParsedMessage, error) {
			out := make([]provider.ParsedMessage, len(ids))
			for i, id := range ids {
				out[i] = provider.ParsedMessage{ProviderMessageID: id, FromEmail: "a@example.com", Labels: []string{"INBOX"}}
			}
			return out, nil
		},
	}

	e := newTestEngine(p, mailboxes, messages, box)
	require.NoError(t, e.FullSync(context.Background(), mb.ID, 0))

	updated, err := mailboxes.GetByID(mb.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SyncStatusSynced, updated.SyncStatus)
	assert.Equal(t, "cursor-1", updated.HistoryCursor)

	m1, err := messages.GetByProviderID(mb.ID, "m1")
	require.NoError(t, err)
	require.NotNil(t, m1)
	assert.True(t, m1.IsRead) // INBOX without UNREAD derives isRead=true (I4)
}

func TestIncrementalSyncFallsBackToFullSyncWhenCursorEmpty(t *testing.T) {
	box := testBox(t)
	mailboxes := storetest.NewMailboxes()
	messages := storetest.NewMessages()
	mb := seedMailbox(t, mailboxes, box)

	called := false
	p := &fakeProvider{
		getProfileFn: func(ctx context.Context, creds provider.Credentials) (provider.Profile, error) {
			called = true
			return provider.Profile{HistoryCursor: "cursor-x"}, nil
		},
		listMessagesFn: func(ctx context.Context, creds provider.Credentials, opts provider.ListOptions) (provider.ListResult, error) {
			return provider.ListResult{}, nil
		},
		getMessagesFn: func(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.ParsedMessage, error) {
			return nil, nil
		},
	}

	e := newTestEngine(p, mailboxes, messages, box)
	require.NoError(t, e.IncrementalSync(context.Background(), mb.ID))
	assert.True(t, called)

	updated, err := mailboxes.GetByID(mb.ID)
	require.NoError(t, err)
	assert.Equal(t, "cursor-x", updated.HistoryCursor)
}

func TestIncrementalSyncAppliesAddedDeletedAndLabelModified(t *testing.T) {
	box := testBox(t)
	mailboxes := storetest.NewMailboxes()
	messages := storetest.NewMessages()
	mb := seedMailbox(t, mailboxes, box)
	require.NoError(t, mailboxes.SetHistoryCursor(mb.ID, "cursor-0"))
	mb, _ = mailboxes.GetByID(mb.ID)

	// Pre-seed a message that will be deleted and one that gets a label delta.
	_, err := messages.Upsert(&store.Message{MailboxID: mb.ID, ProviderMessageID: "old-1", FromEmail: "x@example.com", Labels: store.StringArray{"INBOX"}}, nil)
	require.NoError(t, err)
	_, err = messages.Upsert(&store.Message{MailboxID: mb.ID, ProviderMessageID: "keep-1", FromEmail: "y@example.com", Labels: store.StringArray{"INBOX", "UNREAD"}}, nil)
	require.NoError(t, err)

	p := &fakeProvider{
		getHistoryChangesFn: func(ctx context.Context, creds provider.Credentials, sinceCursor string) (provider.HistoryChanges, error) {
			assert.Equal(t, "cursor-0", sinceCursor)
			return provider.HistoryChanges{
				Cursor:          "cursor-1",
				MessagesAdded:   []string{"new-1", "new-1"},
				MessagesDeleted: []string{"old-1"},
				LabelsModified: []provider.LabelModification{
					{MessageID: "keep-1", LabelsRemoved: []string{"UNREAD"}},
				},
			}, nil
		},
		getMessagesFn: func(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.ParsedMessage, error) {
			assert.Equal(t, []string{"new-1"}, ids) // deduplicated before fetch
			return []provider.ParsedMessage{{ProviderMessageID: "new-1", FromEmail: "z@example.com", Labels: []string{"INBOX"}}}, nil
		},
	}

	e := newTestEngine(p, mailboxes, messages, box)
	require.NoError(t, e.IncrementalSync(context.Background(), mb.ID))

	deleted, err := messages.GetByProviderID(mb.ID, "old-1")
	require.NoError(t, err)
	assert.Nil(t, deleted)

	added, err := messages.GetByProviderID(mb.ID, "new-1")
	require.NoError(t, err)
	require.NotNil(t, added)

	kept, err := messages.GetByProviderID(mb.ID, "keep-1")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.True(t, kept.IsRead) // UNREAD removed -> isRead becomes true
}

func TestIncrementalSyncRecoversFromStaleCursor(t *testing.T) {
	box := testBox(t)
	mailboxes := storetest.NewMailboxes()
	messages := storetest.NewMessages()
	mb := seedMailbox(t, mailboxes, box)
	require.NoError(t, mailboxes.SetHistoryCursor(mb.ID, "stale-cursor"))

	fullSyncRan := false
	p := &fakeProvider{
		getHistoryChangesFn: func(ctx context.Context, creds provider.Credentials, sinceCursor string) (provider.HistoryChanges, error) {
			return provider.HistoryChanges{}, apperr.ProviderStaleCursor("cursor too old")
		},
		getProfileFn: func(ctx context.Context, creds provider.Credentials) (provider.Profile, error) {
			fullSyncRan = true
			return provider.Profile{HistoryCursor: "fresh-cursor"}, nil
		},
		listMessagesFn: func(ctx context.Context, creds provider.Credentials, opts provider.ListOptions) (provider.ListResult, error) {
			return provider.ListResult{}, nil
		},
		getMessagesFn: func(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.ParsedMessage, error) {
			return nil, nil
		},
	}

	e := newTestEngine(p, mailboxes, messages, box)
	require.NoError(t, e.IncrementalSync(context.Background(), mb.ID))
	assert.True(t, fullSyncRan)

	updated, err := mailboxes.GetByID(mb.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-cursor", updated.HistoryCursor)
	assert.Equal(t, store.SyncStatusSynced, updated.SyncStatus)
}

func TestWithGuardSkipsConcurrentSync(t *testing.T) {
	box := testBox(t)
	mailboxes := storetest.NewMailboxes()
	messages := storetest.NewMessages()
	e := newTestEngine(&fakeProvider{}, mailboxes, messages, box)

	e.inFlight.Store(true)
	ran, err := e.withGuard(func() error { return nil })
	assert.False(t, ran)
	assert.NoError(t, err)
}

func TestScheduleRetryBackoffThenExhaustion(t *testing.T) {
	box := testBox(t)
	mailboxes := storetest.NewMailboxes()
	messages := storetest.NewMessages()
	mb := seedMailbox(t, mailboxes, box)
	e := newTestEngine(&fakeProvider{}, mailboxes, messages, box)

	cause := assert.AnError
	for i := 0; i < maxRetryAttempts; i++ {
		e.scheduleRetry(mb.ID, cause)
	}

	e.retryMu.Lock()
	entry, stillQueued := e.retryQueue[mb.ID]
	e.retryMu.Unlock()
	require.True(t, stillQueued)
	assert.Equal(t, maxRetryAttempts, entry.attempts)

	e.scheduleRetry(mb.ID, cause) // 4th attempt exceeds the cap

	e.retryMu.Lock()
	_, stillQueued = e.retryQueue[mb.ID]
	e.retryMu.Unlock()
	assert.False(t, stillQueued)

	updated, err := mailboxes.GetByID(mb.ID)
	require.NoError(t, err)
	assert.Contains(t, updated.LastSyncError, "max retries exceeded")
}
