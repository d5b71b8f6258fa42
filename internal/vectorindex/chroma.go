// Package vectorindex mirrors message embeddings into a Chroma
// collection as a best-effort ANN accelerator for the Search Service,
// grounded on the teacher's pkg/chroma/client.go (same Chroma Cloud
// HTTP client, same Gemini embedding function, same
// GetOrCreateCollection-once-at-startup shape). The relational Store
// remains the canonical embedding record (§4.2); this index is
// optional and any failure here falls back to the Store's brute-force
// cosine scan, never surfaced as a request error.
package vectorindex

import (
	"context"
	"fmt"
	"os"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
)

const collectionName = "messages"

// Config carries the Chroma Cloud connection parameters. An empty
// APIKey means the index is disabled.
type Config struct {
	APIKey       string
	Tenant       string
	Database     string
	GeminiAPIKey string
}

// Index wraps a single pre-created Chroma collection scoped to message
// embeddings.
type Index struct {
	collection chroma.Collection
}

// New builds the index, or returns (nil, nil) when Chroma is not
// configured so callers can treat a nil *Index as "no acceleration
// available" without special-casing every call site.
func New(cfg Config) (*Index, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	if cfg.GeminiAPIKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: create embedding function: %w", err)
	}

	var opts []chroma.ClientOption
	opts = append(opts, chroma.WithBaseURL(chroma.ChromaCloudEndpoint), chroma.WithCloudAPIKey(cfg.APIKey))
	switch {
	case cfg.Database != "" && cfg.Tenant != "":
		opts = append(opts, chroma.WithDatabaseAndTenant(cfg.Database, cfg.Tenant))
	case cfg.Tenant != "":
		opts = append(opts, chroma.WithTenant(cfg.Tenant))
	}
	client, err := chroma.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: create chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		context.Background(),
		collectionName,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: get or create collection: %w", err)
	}

	return &Index{collection: collection}, nil
}

// Upsert mirrors one message's canonicalized text into the collection,
// tagged with its owning mailbox so Query can scope results. Called by
// the Enrichment Worker right after it persists a Store embedding.
func (idx *Index) Upsert(ctx context.Context, messageID, mailboxID, text string) error {
	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"mailbox_id": mailboxID,
	})
	if err != nil {
		return fmt.Errorf("vectorindex: build metadata: %w", err)
	}
	return idx.collection.Upsert(
		ctx,
		chroma.WithIDs(chroma.DocumentID(messageID)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(text),
	)
}

// Delete removes a message's mirrored entry. Not required for
// correctness — semanticViaIndex re-checks every hit against the
// Store, which already excludes soft-deleted rows — but keeps the
// collection from growing unbounded with entries the Store no longer
// serves. Exported for callers that want to prune eagerly.
func (idx *Index) Delete(ctx context.Context, messageID string) error {
	return idx.collection.Delete(ctx, chroma.WithIDsDelete(chroma.DocumentID(messageID)))
}

// Result is one scored hit from Query.
type Result struct {
	MessageID string
	Distance  float64
}

// Query runs an ANN search scoped to mailboxID (or across all of the
// caller's mailboxes when mailboxID is empty and the caller has
// already filtered candidates by ownership). n bounds the number of
// hits Chroma returns; the Search Service still re-checks ownership
// and the similarity threshold against the Store's own record before
// including a hit.
func (idx *Index) Query(ctx context.Context, mailboxID, queryText string, n int) ([]Result, error) {
	var queryOpts []chroma.CollectionQueryOption
	queryOpts = append(queryOpts, chroma.WithQueryTexts(queryText), chroma.WithNResults(n))
	if mailboxID != "" {
		queryOpts = append(queryOpts, chroma.WithWhereQuery(chroma.EqString("mailbox_id", mailboxID)))
	}

	results, err := idx.collection.Query(ctx, queryOpts...)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: query: %w", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return nil, nil
	}

	idGroups := results.GetIDGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}

	out := make([]Result, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		r := Result{MessageID: string(id)}
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			r.Distance = float64(distanceGroups[0][i])
		}
		out = append(out, r)
	}
	return out, nil
}
