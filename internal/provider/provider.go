// Package provider abstracts the mail provider contract the Sync
// Engine and Move Coordinator consume (§4.3): list, fetch, modify
// labels, history diff, profile, send, attachments, label listing.
// internal/provider/gmail is the only implementation.
package provider

import "context"

// Credentials carries the per-call OAuth material. OnRefresh, when set,
// is invoked whenever the underlying token source silently rotates the
// access token mid-call (the way the teacher's notifyTokenSource does),
// so the caller can persist the new token without a separate round trip.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // unix seconds, 0 if unknown
	OnRefresh    func(accessToken string, expiresAt int64) error
}

// MessageRef is the lightweight identity returned by listing calls.
type MessageRef struct {
	ID       string
	ThreadID string
}

// ListOptions shapes ListMessages.
type ListOptions struct {
	MaxResults int
	PageToken  string
	Query      string
	LabelIDs   []string
}

// ListResult is one page of message identities.
type ListResult struct {
	Messages      []MessageRef
	NextPageToken string
}

// ParsedAttachment is one MIME part the adapter recognized as an
// attachment (including inline, content-id-bearing parts).
type ParsedAttachment struct {
	ProviderAttachmentID string
	Filename             string
	MimeType             string
	Size                 int64
	ContentID            string
	Inline               bool
}

// ParsedMessage is the provider-neutral shape the Sync Engine ingests.
// Sender headers of the form `"Name" <addr>` or `Name <addr>` are
// parsed into (FromName, FromEmail); unparseable input becomes
// (empty, raw).
type ParsedMessage struct {
	ProviderMessageID string
	ProviderThreadID  string
	Subject           string
	Snippet           string
	FromEmail         string
	FromName          string
	ToEmails          []string
	CcEmails          []string
	BccEmails         []string
	BodyHTML          string
	BodyText          string
	ReceivedAt        int64 // unix millis
	IsRead            bool
	IsStarred         bool
	Labels            []string
	Attachments       []ParsedAttachment
}

// LabelModification is one message's add/remove delta as reported by
// a history page.
type LabelModification struct {
	MessageID      string
	LabelsAdded    []string
	LabelsRemoved  []string
}

// HistoryChanges is the fully-paged result of GetHistoryChanges: the
// cursor is the last one seen across all pages, and each id list has
// already been deduplicated.
type HistoryChanges struct {
	Cursor           string
	MessagesAdded    []string
	MessagesDeleted  []string
	LabelsModified   []LabelModification
}

// Profile is the provider account snapshot used to seed a full sync's
// history cursor.
type Profile struct {
	Address       string
	MessagesTotal int64
	ThreadsTotal  int64
	HistoryCursor string
}

// Label is a provider label, classified system vs user per §6.
type Label struct {
	ID     string
	Name   string
	System bool
}

// Draft is an outbound message. ReplyToMessageID/ThreadID, when set,
// thread the send via In-Reply-To/References.
type Draft struct {
	To              []string
	Cc              []string
	Bcc             []string
	Subject         string
	BodyText        string
	BodyHTML        string
	ReplyToMessageID string
	ThreadID        string
}

// TokenRefreshResult is returned by an explicit RefreshTokens call.
type TokenRefreshResult struct {
	AccessToken string
	ExpiresAt   int64
}

// Provider is the mail provider contract consumed by the Sync Engine
// and Move Coordinator (§4.3). All methods are cancellable via ctx.
type Provider interface {
	ListMessages(ctx context.Context, creds Credentials, opts ListOptions) (ListResult, error)
	GetMessage(ctx context.Context, creds Credentials, id string) (ParsedMessage, error)
	// GetMessages is best-effort: per-id failures are dropped from the
	// result and logged, never returned as an error, and calls are
	// batched internally in groups of <=50.
	GetMessages(ctx context.Context, creds Credentials, ids []string) ([]ParsedMessage, error)
	GetHistoryChanges(ctx context.Context, creds Credentials, sinceCursor string) (HistoryChanges, error)
	// ModifyMessageLabels is a no-op if both add and remove are empty.
	ModifyMessageLabels(ctx context.Context, creds Credentials, id string, add, remove []string) error
	GetProfile(ctx context.Context, creds Credentials) (Profile, error)
	SendEmail(ctx context.Context, creds Credentials, draft Draft) (string, error)
	RefreshTokens(ctx context.Context, creds Credentials) (TokenRefreshResult, error)
	ListLabels(ctx context.Context, creds Credentials) ([]Label, error)
	GetAttachment(ctx context.Context, creds Credentials, messageID, attachmentID string) ([]byte, error)
}
