// Package gmail implements internal/provider.Provider against the
// Gmail API, generalizing the teacher's pkg/gmail/service.go from a
// handler-shaped client into the Sync Engine's provider-neutral
// contract.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"mime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/provider"
)

const (
	batchSize        = 50
	sendSizeCapBytes = 25 * 1024 * 1024
	user             = "me"
)

// Adapter implements provider.Provider against the Gmail API.
type Adapter struct {
	clientID     string
	clientSecret string
}

func New(clientID, clientSecret string) *Adapter {
	return &Adapter{clientID: clientID, clientSecret: clientSecret}
}

var _ provider.Provider = (*Adapter)(nil)

// notifyTokenSource wraps the oauth2 token source so a silent refresh
// mid-call is reported back to the caller, generalizing the teacher's
// notifyTokenSource from a fire-and-forget callback into one that
// surfaces the error instead of only printing it.
type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  string
	onRefresh func(accessToken string, expiresAt int64) error
	err      error
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.onRefresh != nil && s.current != t.AccessToken {
		s.current = t.AccessToken
		if cbErr := s.onRefresh(t.AccessToken, t.Expiry.Unix()); cbErr != nil {
			s.err = cbErr
		}
	}
	return t, nil
}

func (a *Adapter) client(ctx context.Context, creds provider.Credentials) (*gmailapi.Service, *notifyTokenSource, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}
	if creds.RefreshToken != "" {
		token.Expiry = time.Now() // force the oauth2 library to validate/refresh eagerly
	}

	cfg := &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrapped := &notifyTokenSource{
		src:      cfg.TokenSource(ctx, token),
		current:  creds.AccessToken,
		onRefresh: creds.OnRefresh,
	}
	httpClient := oauth2.NewClient(ctx, wrapped)

	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, nil, apperr.ProviderFatal("unable to create gmail client", err)
	}
	return srv, wrapped, nil
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "404") {
		return apperr.ProviderStaleCursor(msg)
	}
	if strings.Contains(msg, "401") || strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "invalid_token") {
		return apperr.ProviderFatal("gmail credentials rejected", err)
	}
	if strings.Contains(msg, "500") || strings.Contains(msg, "503") || strings.Contains(msg, "429") {
		return apperr.ProviderTransient("gmail transient failure", err)
	}
	return apperr.ProviderTransient(msg, err)
}

func (a *Adapter) ListMessages(ctx context.Context, creds provider.Credentials, opts provider.ListOptions) (provider.ListResult, error) {
	srv, _, err := a.client(ctx, creds)
	if err != nil {
		return provider.ListResult{}, err
	}

	q := srv.Users.Messages.List(user)
	if opts.Query != "" {
		q = q.Q(opts.Query)
	}
	if len(opts.LabelIDs) > 0 {
		q = q.LabelIds(opts.LabelIDs...)
	}
	maxResults := int64(opts.MaxResults)
	if maxResults <= 0 || maxResults > 500 {
		maxResults = 50
	}
	q = q.MaxResults(maxResults)
	if opts.PageToken != "" {
		q = q.PageToken(opts.PageToken)
	}

	resp, err := q.Context(ctx).Do()
	if err != nil {
		return provider.ListResult{}, classifyErr(err)
	}

	refs := make([]provider.MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, provider.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return provider.ListResult{Messages: refs, NextPageToken: resp.NextPageToken}, nil
}

func (a *Adapter) GetMessage(ctx context.Context, creds provider.Credentials, id string) (provider.ParsedMessage, error) {
	srv, _, err := a.client(ctx, creds)
	if err != nil {
		return provider.ParsedMessage{}, err
	}
	msg, err := srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return provider.ParsedMessage{}, classifyErr(err)
	}
	return parseMessage(msg), nil
}

// GetMessages is best-effort: per-id failures are logged and dropped,
// the rest of the batch still returns, generalizing the teacher's
// GetEmails concurrent-fetch-then-sort pattern into <=50-wide batches
// without a global 10-slot semaphore (Gmail's own per-user QPS budget
// governs concurrency at that scale).
func (a *Adapter) GetMessages(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.ParsedMessage, error) {
	srv, _, err := a.client(ctx, creds)
	if err != nil {
		return nil, err
	}

	results := make([]provider.ParsedMessage, 0, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		type outcome struct {
			msg provider.ParsedMessage
			ok  bool
		}
		out := make(chan outcome, len(batch))
		for _, id := range batch {
			go func(id string) {
				m, err := srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
				if err != nil {
					log.Printf("[Gmail] failed to fetch message %s: %v", id, err)
					out <- outcome{ok: false}
					return
				}
				out <- outcome{msg: parseMessage(m), ok: true}
			}(id)
		}
		for i := 0; i < len(batch); i++ {
			if o := <-out; o.ok {
				results = append(results, o.msg)
			}
		}
	}
	return results, nil
}

func (a *Adapter) GetHistoryChanges(ctx context.Context, creds provider.Credentials, sinceCursor string) (provider.HistoryChanges, error) {
	srv, _, err := a.client(ctx, creds)
	if err != nil {
		return provider.HistoryChanges{}, err
	}

	startHistoryID, err := strconv.ParseUint(sinceCursor, 10, 64)
	if err != nil {
		return provider.HistoryChanges{}, apperr.ProviderFatal(fmt.Sprintf("invalid history cursor %q", sinceCursor), err)
	}

	var added, deleted []string
	labelMods := map[string]*provider.LabelModification{}
	var lastCursor string
	pageToken := ""

	for {
		q := srv.Users.History.List(user).StartHistoryId(startHistoryID)
		if pageToken != "" {
			q = q.PageToken(pageToken)
		}
		resp, err := q.Context(ctx).Do()
		if err != nil {
			return provider.HistoryChanges{}, classifyErr(err)
		}

		for _, h := range resp.History {
			for _, m := range h.MessagesAdded {
				if m.Message != nil {
					added = append(added, m.Message.Id)
				}
			}
			for _, m := range h.MessagesDeleted {
				if m.Message != nil {
					deleted = append(deleted, m.Message.Id)
				}
			}
			for _, m := range h.LabelsAdded {
				if m.Message == nil {
					continue
				}
				mod := labelModFor(labelMods, m.Message.Id)
				mod.LabelsAdded = append(mod.LabelsAdded, m.LabelIds...)
			}
			for _, m := range h.LabelsRemoved {
				if m.Message == nil {
					continue
				}
				mod := labelModFor(labelMods, m.Message.Id)
				mod.LabelsRemoved = append(mod.LabelsRemoved, m.LabelIds...)
			}
		}
		if resp.HistoryId != 0 {
			lastCursor = fmt.Sprintf("%d", resp.HistoryId)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	mods := make([]provider.LabelModification, 0, len(labelMods))
	for _, m := range labelMods {
		m.LabelsAdded = dedup(m.LabelsAdded)
		m.LabelsRemoved = dedup(m.LabelsRemoved)
		mods = append(mods, *m)
	}

	if lastCursor == "" {
		lastCursor = sinceCursor
	}

	return provider.HistoryChanges{
		Cursor:          lastCursor,
		MessagesAdded:   dedup(added),
		MessagesDeleted: dedup(deleted),
		LabelsModified:  mods,
	}, nil
}

func labelModFor(m map[string]*provider.LabelModification, id string) *provider.LabelModification {
	mod, ok := m[id]
	if !ok {
		mod = &provider.LabelModification{MessageID: id}
		m[id] = mod
	}
	return mod
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (a *Adapter) ModifyMessageLabels(ctx context.Context, creds provider.Credentials, id string, add, remove []string) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	srv, _, err := a.client(ctx, creds)
	if err != nil {
		return err
	}
	req := &gmailapi.ModifyMessageRequest{}
	if len(add) > 0 {
		req.AddLabelIds = add
	}
	if len(remove) > 0 {
		req.RemoveLabelIds = remove
	}
	_, err = srv.Users.Messages.Modify(user, id, req).Context(ctx).Do()
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

func (a *Adapter) GetProfile(ctx context.Context, creds provider.Credentials) (provider.Profile, error) {
	srv, _, err := a.client(ctx, creds)
	if err != nil {
		return provider.Profile{}, err
	}
	p, err := srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return provider.Profile{}, classifyErr(err)
	}
	return provider.Profile{
		Address:       p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
		HistoryCursor: fmt.Sprintf("%d", p.HistoryId),
	}, nil
}

// SendEmail composes RFC-style MIME per §4.3: multipart/alternative
// when an HTML body is present, base64url-encoded Raw payload, a 25MiB
// cap, and In-Reply-To/References threading headers when a reply
// context is supplied. This generalizes the teacher's simpler
// multipart/mixed-with-attachments composer (body + file parts only,
// no alternative text/html pairing, no threading headers).
func (a *Adapter) SendEmail(ctx context.Context, creds provider.Credentials, draft provider.Draft) (string, error) {
	srv, _, err := a.client(ctx, creds)
	if err != nil {
		return "", err
	}

	raw, err := composeMIME(draft)
	if err != nil {
		return "", err
	}
	if len(raw) > sendSizeCapBytes {
		return "", apperr.Validation("message exceeds the 25 MiB send size cap")
	}

	msg := &gmailapi.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if draft.ThreadID != "" {
		msg.ThreadId = draft.ThreadID
	}

	sent, err := srv.Users.Messages.Send(user, msg).Context(ctx).Do()
	if err != nil {
		return "", classifyErr(err)
	}
	return sent.Id, nil
}

func composeMIME(draft provider.Draft) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(draft.To, ", ")))
	if len(draft.Cc) > 0 {
		buf.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(draft.Cc, ", ")))
	}
	if len(draft.Bcc) > 0 {
		buf.WriteString(fmt.Sprintf("Bcc: %s\r\n", strings.Join(draft.Bcc, ", ")))
	}
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", draft.Subject)))
	if draft.ReplyToMessageID != "" {
		buf.WriteString(fmt.Sprintf("In-Reply-To: <%s>\r\n", draft.ReplyToMessageID))
		buf.WriteString(fmt.Sprintf("References: <%s>\r\n", draft.ReplyToMessageID))
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	if draft.BodyHTML == "" {
		buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		buf.WriteString(draft.BodyText)
		return buf.Bytes(), nil
	}

	boundary := "inboxforge_alt_boundary"
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary))

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	buf.WriteString(draft.BodyText)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	buf.WriteString(draft.BodyHTML)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s--", boundary))
	return buf.Bytes(), nil
}

func (a *Adapter) RefreshTokens(ctx context.Context, creds provider.Credentials) (provider.TokenRefreshResult, error) {
	srv, wrapped, err := a.client(ctx, creds)
	if err != nil {
		return provider.TokenRefreshResult{}, err
	}
	// Force a round trip so the wrapped token source has a chance to rotate.
	if _, err := srv.Users.GetProfile(user).Context(ctx).Do(); err != nil {
		return provider.TokenRefreshResult{}, classifyErr(err)
	}
	if wrapped.err != nil {
		return provider.TokenRefreshResult{}, wrapped.err
	}
	return provider.TokenRefreshResult{AccessToken: wrapped.current}, nil
}

func (a *Adapter) ListLabels(ctx context.Context, creds provider.Credentials) ([]provider.Label, error) {
	srv, _, err := a.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	resp, err := srv.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, classifyErr(err)
	}
	labels := make([]provider.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, provider.Label{ID: l.Id, Name: l.Name, System: l.Type == "system"})
	}
	return labels, nil
}

func (a *Adapter) GetAttachment(ctx context.Context, creds provider.Credentials, messageID, attachmentID string) ([]byte, error) {
	srv, _, err := a.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	part, err := srv.Users.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, classifyErr(err)
	}
	data, err := base64.URLEncoding.DecodeString(part.Data)
	if err != nil {
		return nil, apperr.ProviderFatal("unable to decode attachment data", err)
	}
	return data, nil
}

// parseMessage generalizes the teacher's convertGmailMessageToEmail
// into provider.ParsedMessage, adding multi-recipient header splitting,
// name/email sender-header parsing, and a richer attachment walk
// (inline vs regular, content-id).
func parseMessage(msg *gmailapi.Message) provider.ParsedMessage {
	fromName, fromEmail := parseAddress(header(msg.Payload.Headers, "From"))
	bodyHTML, bodyText := bodies(msg.Payload)
	isRead, isStarred := !hasLabel(msg.LabelIds, "UNREAD"), hasLabel(msg.LabelIds, "STARRED")

	return provider.ParsedMessage{
		ProviderMessageID: msg.Id,
		ProviderThreadID:  msg.ThreadId,
		Subject:           header(msg.Payload.Headers, "Subject"),
		Snippet:           msg.Snippet,
		FromEmail:         fromEmail,
		FromName:          fromName,
		ToEmails:          splitAddresses(header(msg.Payload.Headers, "To")),
		CcEmails:          splitAddresses(header(msg.Payload.Headers, "Cc")),
		BccEmails:         splitAddresses(header(msg.Payload.Headers, "Bcc")),
		BodyHTML:          bodyHTML,
		BodyText:          bodyText,
		ReceivedAt:        msg.InternalDate,
		IsRead:            isRead,
		IsStarred:         isStarred,
		Labels:            msg.LabelIds,
		Attachments:       attachments(msg.Payload),
	}
}

func header(headers []*gmailapi.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// parseAddress handles `"Name" <addr>` and `Name <addr>`; unparseable
// input becomes (empty, raw), per §4.1's ParsedMessage contract.
func parseAddress(raw string) (name, email string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	open := strings.LastIndex(raw, "<")
	closeIdx := strings.LastIndex(raw, ">")
	if open < 0 || closeIdx < open {
		return "", raw
	}
	email = strings.TrimSpace(raw[open+1 : closeIdx])
	name = strings.TrimSpace(raw[:open])
	name = strings.Trim(name, `"`)
	if decoded, err := (&mime.WordDecoder{}).DecodeHeader(name); err == nil {
		name = decoded
	}
	return name, email
}

func splitAddresses(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if _, email := parseAddress(p); email != "" {
			out = append(out, email)
		}
	}
	return out
}

func bodies(payload *gmailapi.MessagePart) (html, text string) {
	if payload.Body != nil && payload.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			if payload.MimeType == "text/html" {
				return string(data), ""
			}
			return "", string(data)
		}
	}

	var walk func(parts []*gmailapi.MessagePart)
	walk = func(parts []*gmailapi.MessagePart) {
		for _, part := range parts {
			switch part.MimeType {
			case "text/html":
				if part.Body != nil && part.Body.Data != "" {
					if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
						html = string(data)
					}
				}
			case "text/plain":
				if part.Body != nil && part.Body.Data != "" {
					if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
						text = string(data)
					}
				}
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}
	walk(payload.Parts)
	return html, text
}

func attachments(payload *gmailapi.MessagePart) []provider.ParsedAttachment {
	var out []provider.ParsedAttachment
	var walk func(parts []*gmailapi.MessagePart)
	walk = func(parts []*gmailapi.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
				contentID := strings.Trim(header(part.Headers, "Content-ID"), "<>")
				out = append(out, provider.ParsedAttachment{
					ProviderAttachmentID: part.Body.AttachmentId,
					Filename:             part.Filename,
					MimeType:             part.MimeType,
					Size:                 part.Body.Size,
					ContentID:            contentID,
					Inline:               contentID != "",
				})
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}
	walk(payload.Parts)
	return out
}

func hasLabel(labels []string, target string) bool {
	for _, l := range labels {
		if l == target {
			return true
		}
	}
	return false
}
