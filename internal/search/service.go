// Package search implements fuzzy, semantic, and suggestion search
// over a user's messages (§4.6), grounded on the teacher's pkg/fuzzy
// scorer and internal/email/usecase/vector_search.go, generalized into
// the spec's weighted-relevance and cosine-threshold contracts.
package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/inboxforge/core/internal/ai"
	"github.com/inboxforge/core/internal/store"
	"github.com/inboxforge/core/internal/vectorindex"
)

// candidateFetchCap bounds how many of a scope's messages are pulled
// into memory for scoring. Scoring is a pure function of text the
// database cannot rank, so candidates are paged in and ranked here;
// a mailbox with more messages than this cap has its tail dropped from
// ranking, which is logged rather than done silently.
const candidateFetchCap = 2000

// Scope selects which fields a Fuzzy query considers.
type Scope string

const (
	ScopeSubject Scope = "subject"
	ScopeSender  Scope = "sender"
	ScopeBody    Scope = "body"
	ScopeAll     Scope = "all"
)

// FuzzyQuery is the input to Fuzzy.
type FuzzyQuery struct {
	UserID        string
	MailboxID     string
	Query         string
	Threshold     float64 // τ, default 0.2
	Scope         Scope
	WeightSubject float64 // ws
	WeightSender  float64 // wsender
	WeightBody    float64 // wb
	Page          int
	Limit         int
}

// SemanticQuery is the input to Semantic.
type SemanticQuery struct {
	UserID    string
	MailboxID string
	Query     string
	MinCosine float64 // σ, default 0.5
	Page      int
	Limit     int
}

// Page is a scored result page.
type Page struct {
	Messages []*store.Message
	Total    int
}

type Service struct {
	store *store.Store
	ai    ai.Provider
	index *vectorindex.Index
}

func New(st *store.Store, aiProvider ai.Provider) *Service {
	return &Service{store: st, ai: aiProvider}
}

// SetIndex wires an optional Chroma-backed ANN accelerator. Left unset,
// Semantic always uses the Store's brute-force cosine scan.
func (s *Service) SetIndex(idx *vectorindex.Index) {
	s.index = idx
}

func (s *Service) fetchCandidates(userID, mailboxID string) ([]*store.Message, error) {
	var out []*store.Message
	page := 1
	const pageSize = 100
	for len(out) < candidateFetchCap {
		msgs, total, err := s.store.Messages.List(store.MessageFilter{
			UserID:    userID,
			MailboxID: mailboxID,
			Page:      page,
			Limit:     pageSize,
			SortBy:    "receivedAt",
			SortOrder: "DESC",
		})
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
		if len(msgs) < pageSize || int64(len(out)) >= total {
			break
		}
		page++
	}
	return out, nil
}

type scored struct {
	msg       *store.Message
	relevance float64
}

// Fuzzy implements §4.6's weighted fuzzy search. Empty/whitespace query
// returns an empty result without touching the store.
func (s *Service) Fuzzy(ctx context.Context, q FuzzyQuery) (Page, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return Page{}, nil
	}
	if q.Threshold == 0 {
		q.Threshold = 0.2
	}
	if q.Scope == "" {
		q.Scope = ScopeAll
	}

	candidates, err := s.fetchCandidates(q.UserID, q.MailboxID)
	if err != nil {
		return Page{}, err
	}

	queryTokens := tokenize(query)
	queryLower := strings.ToLower(query)

	var matched []scored
	for _, m := range candidates {
		subjectScore := 0.0
		senderScore := 0.0
		bodyScore := 0.0
		include := false

		if q.Scope == ScopeSubject || q.Scope == ScopeAll {
			subjectScore = math.Max(wordSim(query, m.Subject), sim(m.Subject, query))
			if subjectScore > q.Threshold || strings.Contains(strings.ToLower(m.Subject), queryLower) {
				include = true
			}
		}
		if q.Scope == ScopeSender || q.Scope == ScopeAll {
			senderScore = math.Max(
				math.Max(wordSim(query, m.FromName), sim(m.FromName, query)),
				math.Max(wordSim(query, m.FromEmail), sim(m.FromEmail, query)),
			)
			if senderScore > q.Threshold ||
				strings.Contains(strings.ToLower(m.FromName), queryLower) ||
				strings.Contains(strings.ToLower(m.FromEmail), queryLower) {
				include = true
			}
		}
		if q.Scope == ScopeBody || q.Scope == ScopeAll {
			bodyTokens := tokenize(m.BodyText + " " + m.AiSummary)
			bodyScore = phraseRank(bodyTokens, queryTokens)
			if bodyScore > 0 {
				include = true
			}
		}

		if !include {
			continue
		}

		ws, wsender, wb := q.WeightSubject, q.WeightSender, q.WeightBody
		relevance := ws*subjectScore + wsender*senderScore + wb*bodyScore
		matched = append(matched, scored{msg: m, relevance: relevance})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].relevance != matched[j].relevance {
			return matched[i].relevance > matched[j].relevance
		}
		return matched[i].msg.ID < matched[j].msg.ID
	})

	return paginate(matched, q.Page, q.Limit), nil
}

// Semantic implements §4.6's cosine-similarity search over embeddings.
func (s *Service) Semantic(ctx context.Context, q SemanticQuery) (Page, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return Page{}, nil
	}
	if q.MinCosine == 0 {
		q.MinCosine = 0.5
	}

	if s.index != nil {
		if page, ok := s.semanticViaIndex(ctx, q, query); ok {
			return page, nil
		}
	}

	vec, err := s.ai.Embed(ctx, query)
	if err != nil {
		return Page{}, err
	}

	candidates, err := s.fetchCandidates(q.UserID, q.MailboxID)
	if err != nil {
		return Page{}, err
	}

	var matched []scored
	for _, m := range candidates {
		if len(m.Embedding) == 0 {
			continue
		}
		sc := 1 - cosineDistance(vec, m.Embedding)
		if sc >= q.MinCosine {
			matched = append(matched, scored{msg: m, relevance: sc})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].relevance != matched[j].relevance {
			return matched[i].relevance > matched[j].relevance
		}
		return matched[i].msg.ID < matched[j].msg.ID
	})

	return paginate(matched, q.Page, q.Limit), nil
}

// semanticViaIndex serves Semantic from the Chroma accelerator. ok is
// false whenever the index couldn't answer (disabled, transient error,
// or a hit that no longer resolves in the Store), signaling the caller
// to fall back to the brute-force scan rather than return a partial
// or stale result.
func (s *Service) semanticViaIndex(ctx context.Context, q SemanticQuery, query string) (Page, bool) {
	results, err := s.index.Query(ctx, q.MailboxID, query, q.Page*q.Limit+q.Limit)
	if err != nil {
		return Page{}, false
	}

	var matched []scored
	for _, r := range results {
		msg, err := s.store.Messages.GetByID(r.MessageID)
		if err != nil || msg == nil {
			continue
		}
		mb, err := s.store.Mailboxes.GetByID(msg.MailboxID)
		if err != nil || mb == nil || mb.UserID != q.UserID {
			continue
		}
		if q.MailboxID != "" && msg.MailboxID != q.MailboxID {
			continue
		}
		sc := 1 - r.Distance
		if sc >= q.MinCosine {
			matched = append(matched, scored{msg: msg, relevance: sc})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].relevance != matched[j].relevance {
			return matched[i].relevance > matched[j].relevance
		}
		return matched[i].msg.ID < matched[j].msg.ID
	})

	return paginate(matched, q.Page, q.Limit), true
}

func cosineDistance(a []float32, b store.Float32Array) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	return 1 - cos
}

func paginate(matched []scored, page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]*store.Message, 0, end-start)
	for _, s := range matched[start:end] {
		out = append(out, s.msg)
	}
	return Page{Messages: out, Total: total}
}

// Suggestions is the result of a suggestion query, split the way the
// HTTP boundary's search/suggestions endpoint reports it.
type Suggestions struct {
	Contacts []string
	Keywords []string
}

// Suggestions implements §4.6's contact/keyword suggestion split.
func (s *Service) Suggestions(ctx context.Context, userID, prefix string) (Suggestions, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return Suggestions{}, nil
	}

	candidates, err := s.fetchCandidates(userID, "")
	if err != nil {
		return Suggestions{}, err
	}

	contacts := make([]string, 0, 10)
	seenContacts := make(map[string]bool)
	keywordFreq := make(map[string]int)

	for _, m := range candidates {
		label := m.FromName
		if label == "" {
			label = m.FromEmail
		}
		if label != "" && !seenContacts[label] && strings.Contains(strings.ToLower(label), prefix) {
			seenContacts[label] = true
			if len(contacts) < 10 {
				contacts = append(contacts, label)
			}
		}
		for _, tok := range tokenize(m.Subject) {
			if len(tok) > 3 {
				keywordFreq[tok]++
			}
		}
	}

	type kf struct {
		word  string
		count int
	}
	keywords := make([]kf, 0, len(keywordFreq))
	for w, c := range keywordFreq {
		keywords = append(keywords, kf{w, c})
	}
	sort.SliceStable(keywords, func(i, j int) bool {
		if keywords[i].count != keywords[j].count {
			return keywords[i].count > keywords[j].count
		}
		return keywords[i].word < keywords[j].word
	})
	if len(keywords) > 10 {
		keywords = keywords[:10]
	}

	words := make([]string, 0, len(keywords))
	for _, k := range keywords {
		words = append(words, k.word)
	}
	return Suggestions{Contacts: contacts, Keywords: words}, nil
}
