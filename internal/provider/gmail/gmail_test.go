package gmail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inboxforge/core/internal/provider"
)

func TestParseAddressQuotedName(t *testing.T) {
	name, email := parseAddress(`"Jane Doe" <jane@example.com>`)
	assert.Equal(t, "Jane Doe", name)
	assert.Equal(t, "jane@example.com", email)
}

func TestParseAddressUnquotedName(t *testing.T) {
	name, email := parseAddress(`Jane Doe <jane@example.com>`)
	assert.Equal(t, "Jane Doe", name)
	assert.Equal(t, "jane@example.com", email)
}

func TestParseAddressUnparseableFallsBackToRaw(t *testing.T) {
	name, email := parseAddress("not-an-address-header")
	assert.Equal(t, "", name)
	assert.Equal(t, "not-an-address-header", email)
}

func TestSplitAddressesMultiple(t *testing.T) {
	got := splitAddresses("a@example.com, \"B\" <b@example.com>")
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got)
}

func TestComposeMIMEPlainTextOnly(t *testing.T) {
	raw, err := composeMIME(provider.Draft{
		To:       []string{"x@example.com"},
		Subject:  "Hello",
		BodyText: "Plain body",
	})
	assert.NoError(t, err)
	s := string(raw)
	assert.Contains(t, s, "To: x@example.com")
	assert.Contains(t, s, "text/plain")
	assert.NotContains(t, s, "multipart/alternative")
}

func TestComposeMIMEWithHTMLUsesMultipartAlternative(t *testing.T) {
	raw, err := composeMIME(provider.Draft{
		To:       []string{"x@example.com"},
		Subject:  "Hello",
		BodyText: "Plain body",
		BodyHTML: "<p>Plain body</p>",
	})
	assert.NoError(t, err)
	s := string(raw)
	assert.Contains(t, s, "multipart/alternative")
	assert.Contains(t, s, "text/plain")
	assert.Contains(t, s, "text/html")
}

func TestComposeMIMEThreadingHeaders(t *testing.T) {
	raw, err := composeMIME(provider.Draft{
		To:               []string{"x@example.com"},
		Subject:          "Re: Hello",
		BodyText:         "reply",
		ReplyToMessageID: "abc123",
	})
	assert.NoError(t, err)
	s := string(raw)
	assert.True(t, strings.Contains(s, "In-Reply-To: <abc123>"))
	assert.True(t, strings.Contains(s, "References: <abc123>"))
}

func TestDedup(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, dedup([]string{"a", "b", "a"}))
}

func TestHasLabel(t *testing.T) {
	assert.True(t, hasLabel([]string{"INBOX", "UNREAD"}, "UNREAD"))
	assert.False(t, hasLabel([]string{"INBOX"}, "UNREAD"))
}
