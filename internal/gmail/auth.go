package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Credentials holds everything needed to build an authenticated service.
// Token acquisition itself (the browser consent flow) lives in
// scripts/get-gmail-token.go; this package only consumes stored tokens.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	TokenFile    string
	UserEmail    string

	RequestTimeout time.Duration
}

// NewService builds an authenticated Gmail service from stored credentials.
// The token is read from TokenFile when set, otherwise assembled from the
// refresh/access token fields. Extra scopes (e.g. full mailbox access for
// permanent deletion) may be appended by the caller.
func NewService(ctx context.Context, creds *Credentials, extraScopes ...string) (*gmailapi.Service, error) {
	if creds == nil {
		return nil, &InvalidParameterError{Param: "credentials", Reason: "must not be nil"}
	}

	scopes := append([]string{gmailapi.GmailModifyScope}, extraScopes...)
	oauthConfig := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}

	token, err := loadToken(creds)
	if err != nil {
		return nil, err
	}

	httpClient := oauthConfig.Client(ctx, token)
	if creds.RequestTimeout > 0 {
		httpClient.Timeout = creds.RequestTimeout
	}

	service, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return service, nil
}

// loadToken reads the OAuth token from the token file if configured, falling
// back to the token fields on the credentials themselves.
func loadToken(creds *Credentials) (*oauth2.Token, error) {
	if creds.TokenFile != "" {
		if token, err := readTokenFile(creds.TokenFile); err == nil {
			return token, nil
		} else if creds.RefreshToken == "" && creds.AccessToken == "" {
			return nil, fmt.Errorf("failed to read token file %s: %w", creds.TokenFile, err)
		}
	}

	if creds.RefreshToken == "" && creds.AccessToken == "" {
		return nil, &InvalidParameterError{
			Param:  "credentials",
			Reason: "no token file, refresh token, or access token configured",
		}
	}

	return &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}, nil
}

// readTokenFile parses an oauth2.Token saved as JSON.
func readTokenFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return token, nil
}
