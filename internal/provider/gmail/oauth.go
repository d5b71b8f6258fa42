package gmail

import (
	"context"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/inboxforge/core/internal/apperr"
)

var scopes = []string{
	gmailapi.MailGoogleComScope,
}

// ExchangeResult is the outcome of a successful authorization-code
// exchange: the tokens to encrypt and persist plus the mailbox address
// the exchanged token authenticates, used by the HTTP connect handler.
type ExchangeResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Address      string
}

// ExchangeCode trades an authorization code (plus PKCE verifier, if the
// client used one) for tokens and resolves the authenticated address
// via the profile endpoint, the way the teacher's OAuth callback path
// does before creating a Mailbox row.
func (a *Adapter) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (ExchangeResult, error) {
	cfg := &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
	}

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}

	token, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return ExchangeResult{}, apperr.Unauthorized("invalid or expired authorization code")
	}

	httpClient := oauth2.NewClient(ctx, cfg.TokenSource(ctx, token))
	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return ExchangeResult{}, apperr.ProviderFatal("unable to create gmail client", err)
	}
	profile, err := srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return ExchangeResult{}, classifyErr(err)
	}

	return ExchangeResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Address:      profile.EmailAddress,
	}, nil
}
