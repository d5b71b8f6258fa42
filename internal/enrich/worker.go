// Package enrich computes and persists message embeddings on a fixed
// timer, grounded on the teacher's syncWorker/EmailSyncJob queue
// pattern, generalized from a push queue to the spec's pull-based
// per-mailbox sweep (§4.8).
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/inboxforge/core/internal/ai"
	"github.com/inboxforge/core/internal/store"
	"github.com/inboxforge/core/internal/vectorindex"
)

const defaultBatchSize = 50
const bodyProjectionCap = 2000

type Worker struct {
	store     *store.Store
	ai        ai.Provider
	index     *vectorindex.Index
	interval  time.Duration
	batchSize int
	now       func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// SetIndex wires an optional Chroma mirror: every embedding this
// worker persists to the Store is also best-effort upserted into the
// index so the Search Service can accelerate semantic queries.
func (w *Worker) SetIndex(idx *vectorindex.Index) {
	w.index = idx
}

func New(st *store.Store, aiProvider ai.Provider, interval time.Duration, batchSize int) *Worker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Worker{
		store:     st,
		ai:        aiProvider,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

func (w *Worker) Start() {
	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.tick()
			case <-w.stopCh:
				return
			}
		}
	}()
}

func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) tick() {
	mailboxes, err := w.store.Mailboxes.ListActive()
	if err != nil {
		log.Printf("[Enrich] failed to list active mailboxes: %v", err)
		return
	}
	ctx := context.Background()
	for _, mb := range mailboxes {
		w.enrichMailbox(ctx, mb.ID)
	}
}

func (w *Worker) enrichMailbox(ctx context.Context, mailboxID string) {
	messages, err := w.store.Messages.ListMissingEmbeddings(mailboxID, w.batchSize)
	if err != nil {
		log.Printf("[Enrich] mailbox %s: failed to list messages missing embeddings: %v", mailboxID, err)
		return
	}
	for _, msg := range messages {
		if err := w.enrichMessage(ctx, msg); err != nil {
			log.Printf("[Enrich] mailbox %s: failed to embed message %s: %v", mailboxID, msg.ID, err)
		}
	}
}

func (w *Worker) enrichMessage(ctx context.Context, msg *store.Message) error {
	projection := Projection(msg)
	vec, err := w.ai.Embed(ctx, projection)
	if err != nil {
		return err
	}
	if err := w.store.Messages.SetEmbedding(msg.ID, vec, w.now()); err != nil {
		return err
	}
	if w.index != nil {
		if err := w.index.Upsert(ctx, msg.ID, msg.MailboxID, projection); err != nil {
			log.Printf("[Enrich] mailbox %s: failed to mirror embedding for message %s into vector index: %v", msg.MailboxID, msg.ID, err)
		}
	}
	w.extractActionItems(ctx, msg)
	return nil
}

// extractActionItems is a best-effort addition to the embedding pass:
// a failure here never fails the message's embedding, it only leaves
// AiActionItem/UrgencyScore unset for this sweep.
func (w *Worker) extractActionItems(ctx context.Context, msg *store.Message) {
	items, err := w.ai.ExtractActionItems(ctx, msg.BodyText)
	if err != nil {
		log.Printf("[Enrich] mailbox %s: failed to extract action items for message %s: %v", msg.MailboxID, msg.ID, err)
		return
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		log.Printf("[Enrich] mailbox %s: failed to encode action items for message %s: %v", msg.MailboxID, msg.ID, err)
		return
	}
	if err := w.store.Messages.SetActionItems(msg.ID, string(encoded), items.Urgency); err != nil {
		log.Printf("[Enrich] mailbox %s: failed to persist action items for message %s: %v", msg.MailboxID, msg.ID, err)
	}
}

// Projection builds the canonicalized text §4.8 feeds to the AI
// Adapter: subject, sender, and a capped slice of the body, one per
// line. Exported so the HTTP layer's on-demand embedding endpoints
// project messages identically to the background sweep.
func Projection(msg *store.Message) string {
	from := msg.FromName
	if from == "" {
		from = msg.FromEmail
	}
	body := msg.BodyText
	if len(body) > bodyProjectionCap {
		body = body[:bodyProjectionCap]
	}
	return strings.Join([]string{
		fmt.Sprintf("Subject: %s", msg.Subject),
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("Content: %s", body),
	}, "\n")
}
