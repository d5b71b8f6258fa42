package move

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/provider"
	"github.com/inboxforge/core/internal/store"
	"github.com/inboxforge/core/internal/store/storetest"
)

type fakeProvider struct {
	modifyCalls []modifyCall
	modifyErr   error
}

type modifyCall struct {
	id            string
	add, remove   []string
}

func (f *fakeProvider) ListMessages(ctx context.Context, creds provider.Credentials, opts provider.ListOptions) (provider.ListResult, error) {
	return provider.ListResult{}, nil
}
func (f *fakeProvider) GetMessage(ctx context.Context, creds provider.Credentials, id string) (provider.ParsedMessage, error) {
	return provider.ParsedMessage{}, nil
}
func (f *fakeProvider) GetMessages(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.ParsedMessage, error) {
	return nil, nil
}
func (f *fakeProvider) GetAttachment(ctx context.Context, creds provider.Credentials, messageID, attachmentID string) ([]byte, error) {
	return nil, nil
}
func (f *fakeProvider) ModifyMessageLabels(ctx context.Context, creds provider.Credentials, id string, add, remove []string) error {
	f.modifyCalls = append(f.modifyCalls, modifyCall{id: id, add: add, remove: remove})
	return f.modifyErr
}
func (f *fakeProvider) SendEmail(ctx context.Context, creds provider.Credentials, draft provider.Draft) (string, error) {
	return "", nil
}
func (f *fakeProvider) ListLabels(ctx context.Context, creds provider.Credentials) ([]provider.Label, error) {
	return nil, nil
}
func (f *fakeProvider) GetProfile(ctx context.Context, creds provider.Credentials) (provider.Profile, error) {
	return provider.Profile{}, nil
}
func (f *fakeProvider) GetHistoryChanges(ctx context.Context, creds provider.Credentials, cursor string) (provider.HistoryChanges, error) {
	return provider.HistoryChanges{}, nil
}
func (f *fakeProvider) RefreshTokens(ctx context.Context, creds provider.Credentials) (provider.TokenRefreshResult, error) {
	return provider.TokenRefreshResult{}, nil
}

var _ provider.Provider = (*fakeProvider)(nil)

type fakeCredSource struct {
	mailboxes *storetest.Mailboxes
}

func (f *fakeCredSource) PrepareCredentials(ctx context.Context, mailboxID string) (*store.Mailbox, provider.Credentials, error) {
	mb, err := f.mailboxes.GetByID(mailboxID)
	if err != nil {
		return nil, provider.Credentials{}, err
	}
	return mb, provider.Credentials{AccessToken: "tok"}, nil
}

func newFixture(t *testing.T) (*Coordinator, *store.Store, *fakeProvider, string, string) {
	t.Helper()
	mailboxes := storetest.NewMailboxes()
	messages := storetest.NewMessages()
	columns := storetest.NewColumns()

	mb := &store.Mailbox{ID: "mb1", UserID: "u1", Active: true}
	require.NoError(t, mailboxes.Create(mb))

	col := &store.Column{UserID: "u1", Title: "To Do", OrderIndex: 0, LabelToken: "TODO"}
	require.NoError(t, columns.Create(col))

	msg := &store.Message{MailboxID: "mb1", ProviderMessageID: "pm1", FromEmail: "a@b.com", Labels: store.StringArray{"INBOX", "UNREAD"}}
	_, err := messages.Upsert(msg, nil)
	require.NoError(t, err)
	stored, err := messages.GetByProviderID("mb1", "pm1")
	require.NoError(t, err)

	st := &store.Store{Mailboxes: mailboxes, Messages: messages, Columns: columns}
	p := &fakeProvider{}
	c := New(st, p, &fakeCredSource{mailboxes: mailboxes})
	return c, st, p, stored.ID, col.ID
}

func TestMoveMessageToColumnCommitsProviderBeforeLocalState(t *testing.T) {
	c, st, p, msgID, colID := newFixture(t)

	updated, err := c.MoveMessageToColumn(context.Background(), "u1", msgID, colID, true)
	require.NoError(t, err)

	require.Len(t, p.modifyCalls, 1)
	assert.Equal(t, "pm1", p.modifyCalls[0].id)
	assert.Equal(t, []string{"TODO"}, p.modifyCalls[0].add)
	assert.Equal(t, []string{"INBOX"}, p.modifyCalls[0].remove)

	assert.Contains(t, []string(updated.Labels), "TODO")
	assert.NotContains(t, []string(updated.Labels), "INBOX")
	assert.Contains(t, []string(updated.Labels), "UNREAD")
	assert.False(t, updated.IsRead)
	require.NotNil(t, updated.ColumnID)
	assert.Equal(t, colID, *updated.ColumnID)

	stored, err := st.Messages.GetByID(msgID)
	require.NoError(t, err)
	assert.Equal(t, colID, *stored.ColumnID)
}

func TestMoveMessageToColumnFailsWithoutLocalUpdateOnProviderError(t *testing.T) {
	c, st, p, msgID, colID := newFixture(t)
	p.modifyErr = apperr.ProviderFatal("boom", nil)

	_, err := c.MoveMessageToColumn(context.Background(), "u1", msgID, colID, true)
	require.Error(t, err)

	stored, err := st.Messages.GetByID(msgID)
	require.NoError(t, err)
	assert.Nil(t, stored.ColumnID)
	assert.Contains(t, []string(stored.Labels), "INBOX")
}

func TestMoveMessageToColumnRejectsUnknownColumn(t *testing.T) {
	c, _, _, msgID, _ := newFixture(t)
	_, err := c.MoveMessageToColumn(context.Background(), "u1", msgID, "nonexistent", false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestMoveMessageToColumnRejectsCrossUserMessage(t *testing.T) {
	c, _, _, msgID, colID := newFixture(t)
	_, err := c.MoveMessageToColumn(context.Background(), "someone-else", msgID, colID, false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestMoveMessageToColumnWithoutLabelTokenOrArchiveSkipsProviderCall(t *testing.T) {
	mailboxes := storetest.NewMailboxes()
	messages := storetest.NewMessages()
	columns := storetest.NewColumns()

	mb := &store.Mailbox{ID: "mb1", UserID: "u1", Active: true}
	require.NoError(t, mailboxes.Create(mb))
	col := &store.Column{UserID: "u1", Title: "Done", OrderIndex: 0} // no label token
	require.NoError(t, columns.Create(col))
	msg := &store.Message{MailboxID: "mb1", ProviderMessageID: "pm1", FromEmail: "a@b.com", Labels: store.StringArray{"INBOX"}}
	_, err := messages.Upsert(msg, nil)
	require.NoError(t, err)
	stored, err := messages.GetByProviderID("mb1", "pm1")
	require.NoError(t, err)

	st := &store.Store{Mailboxes: mailboxes, Messages: messages, Columns: columns}
	p := &fakeProvider{}
	c := New(st, p, &fakeCredSource{mailboxes: mailboxes})

	_, err = c.MoveMessageToColumn(context.Background(), "u1", stored.ID, col.ID, false)
	require.NoError(t, err)
	assert.Empty(t, p.modifyCalls)
}
