package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/core/internal/ai"
	"github.com/inboxforge/core/internal/store"
	"github.com/inboxforge/core/internal/store/storetest"
)

type fakeAI struct {
	embedding []float32
	err       error
}

func (f *fakeAI) Summarize(ctx context.Context, text string) (string, error) { return "", nil }
func (f *fakeAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}
func (f *fakeAI) ExtractActionItems(ctx context.Context, text string) (ai.ActionItems, error) {
	return ai.ActionItems{}, nil
}

var _ ai.Provider = (*fakeAI)(nil)

func seedFixture(t *testing.T) (*store.Store, string) {
	t.Helper()
	mailboxes := storetest.NewMailboxes()
	mb := &store.Mailbox{ID: "mb1", UserID: "u1", Active: true}
	require.NoError(t, mailboxes.Create(mb))
	messages := storetest.NewMessagesWithMailboxes(mailboxes)

	seed := []*store.Message{
		{MailboxID: "mb1", ProviderMessageID: "p1", Subject: "Quarterly Invoice", FromEmail: "billing@acme.com", FromName: "Acme Billing", BodyText: "Please find attached your quarterly invoice for review.", Labels: store.StringArray{"INBOX"}},
		{MailboxID: "mb1", ProviderMessageID: "p2", Subject: "Team standup notes", FromEmail: "alice@acme.com", FromName: "Alice", BodyText: "Notes from today's standup meeting.", Labels: store.StringArray{"INBOX"}},
		{MailboxID: "mb1", ProviderMessageID: "p3", Subject: "Re: Invoice question", FromEmail: "bob@acme.com", FromName: "Bob", BodyText: "I have a question about the invoice amount.", Labels: store.StringArray{"INBOX"}},
	}
	for _, m := range seed {
		_, err := messages.Upsert(m, nil)
		require.NoError(t, err)
	}

	st := &store.Store{Mailboxes: mailboxes, Messages: messages}
	return st, "u1"
}

func TestFuzzyFindsSubjectMatchesRankedByRelevance(t *testing.T) {
	st, userID := seedFixture(t)
	s := New(st, &fakeAI{})

	page, err := s.Fuzzy(context.Background(), FuzzyQuery{
		UserID: userID, Query: "invoice", Scope: ScopeAll,
		WeightSubject: 1.0, WeightSender: 0.3, WeightBody: 0.2,
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	subjects := []string{page.Messages[0].Subject, page.Messages[1].Subject}
	assert.Contains(t, subjects, "Quarterly Invoice")
	assert.Contains(t, subjects, "Re: Invoice question")
}

func TestFuzzyEmptyQueryReturnsEmptyWithoutError(t *testing.T) {
	st, userID := seedFixture(t)
	s := New(st, &fakeAI{})

	page, err := s.Fuzzy(context.Background(), FuzzyQuery{UserID: userID, Query: "   "})
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Equal(t, 0, page.Total)
}

func TestFuzzySenderScopeMatchesByName(t *testing.T) {
	st, userID := seedFixture(t)
	s := New(st, &fakeAI{})

	page, err := s.Fuzzy(context.Background(), FuzzyQuery{
		UserID: userID, Query: "alice", Scope: ScopeSender,
		WeightSender: 1.0, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "Alice", page.Messages[0].FromName)
}

func TestSemanticFiltersByMinimumCosine(t *testing.T) {
	st, userID := seedFixture(t)

	all, _, err := st.Messages.List(store.MessageFilter{UserID: userID})
	require.NoError(t, err)
	require.NotEmpty(t, all)

	closeVec := make([]float32, ai.EmbeddingDimensions)
	closeVec[0] = 1
	require.NoError(t, st.Messages.SetEmbedding(all[0].ID, closeVec, time.Now()))

	farVec := make([]float32, ai.EmbeddingDimensions)
	farVec[1] = 1
	require.NoError(t, st.Messages.SetEmbedding(all[1].ID, farVec, time.Now()))

	s := New(st, &fakeAI{embedding: closeVec})

	page, err := s.Semantic(context.Background(), SemanticQuery{
		UserID: userID, Query: "invoice", MinCosine: 0.9, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, all[0].ID, page.Messages[0].ID)
}

func TestSuggestionsReturnsContactsAndKeywords(t *testing.T) {
	st, userID := seedFixture(t)
	s := New(st, &fakeAI{})

	out, err := s.Suggestions(context.Background(), userID, "ali")
	require.NoError(t, err)
	assert.Contains(t, out.Contacts, "Alice")
}
