package enrich

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/core/internal/ai"
	"github.com/inboxforge/core/internal/store"
	"github.com/inboxforge/core/internal/store/storetest"
)

type fakeAI struct {
	calls []string
	err   error
	vec   []float32
}

func (f *fakeAI) Summarize(ctx context.Context, text string) (string, error) { return "", nil }
func (f *fakeAI) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	if f.vec != nil {
		return f.vec, nil
	}
	return make([]float32, ai.EmbeddingDimensions), nil
}
func (f *fakeAI) ExtractActionItems(ctx context.Context, text string) (ai.ActionItems, error) {
	return ai.ActionItems{}, nil
}

var _ ai.Provider = (*fakeAI)(nil)

func TestTickEmbedsMessagesMissingEmbeddings(t *testing.T) {
	mailboxes := storetest.NewMailboxes()
	require.NoError(t, mailboxes.Create(&store.Mailbox{ID: "mb1", UserID: "u1", Active: true}))
	messages := storetest.NewMessages()
	msg := &store.Message{MailboxID: "mb1", ProviderMessageID: "p1", Subject: "Hello", FromName: "Alice", BodyText: strings.Repeat("x", 3000)}
	_, err := messages.Upsert(msg, nil)
	require.NoError(t, err)

	st := &store.Store{Mailboxes: mailboxes, Messages: messages}
	fa := &fakeAI{}
	w := New(st, fa, time.Minute, 50)

	w.tick()

	require.Len(t, fa.calls, 1)
	assert.Contains(t, fa.calls[0], "Subject: Hello")
	assert.Contains(t, fa.calls[0], "From: Alice")
	assert.LessOrEqual(t, len(fa.calls[0]), 2000+100) // body capped at 2000 chars plus headers

	updated, err := messages.GetByID(msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.EmbeddingGeneratedAt)
	assert.Len(t, updated.Embedding, ai.EmbeddingDimensions)
}

func TestTickSkipsMessagesAlreadyEmbedded(t *testing.T) {
	mailboxes := storetest.NewMailboxes()
	require.NoError(t, mailboxes.Create(&store.Mailbox{ID: "mb1", UserID: "u1", Active: true}))
	messages := storetest.NewMessages()
	msg := &store.Message{MailboxID: "mb1", ProviderMessageID: "p1", FromEmail: "a@b.com"}
	_, err := messages.Upsert(msg, nil)
	require.NoError(t, err)
	require.NoError(t, messages.SetEmbedding(msg.ID, make([]float32, ai.EmbeddingDimensions), time.Now()))

	st := &store.Store{Mailboxes: mailboxes, Messages: messages}
	fa := &fakeAI{}
	w := New(st, fa, time.Minute, 50)

	w.tick()
	assert.Empty(t, fa.calls)
}

func TestEnrichMailboxContinuesAfterPerMessageFailure(t *testing.T) {
	mailboxes := storetest.NewMailboxes()
	require.NoError(t, mailboxes.Create(&store.Mailbox{ID: "mb1", UserID: "u1", Active: true}))
	messages := storetest.NewMessages()
	for i := 0; i < 2; i++ {
		_, err := messages.Upsert(&store.Message{MailboxID: "mb1", ProviderMessageID: string(rune('a' + i)), FromEmail: "a@b.com"}, nil)
		require.NoError(t, err)
	}

	st := &store.Store{Mailboxes: mailboxes, Messages: messages}
	fa := &fakeAI{err: assertError{}}
	w := New(st, fa, time.Minute, 50)

	w.enrichMailbox(context.Background(), "mb1")
	assert.Len(t, fa.calls, 2) // both attempted despite both failing
}

type assertError struct{}

func (assertError) Error() string { return "embedding provider unavailable" }

func TestProjectionFallsBackToEmailWhenNoName(t *testing.T) {
	msg := &store.Message{Subject: "Hi", FromEmail: "a@b.com", BodyText: "short body"}
	p := Projection(msg)
	assert.Contains(t, p, "From: a@b.com")
	assert.Contains(t, p, "Content: short body")
}
