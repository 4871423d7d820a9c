package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"voicecal/internal/auth"
	"voicecal/internal/models"
)

const (
	credentialsFile = "credentials.json"
	redirectURL     = "urn:ietf:wg:oauth:2.0:oob" // For desktop app flow
)

// Credentials resolves the OAuth token source for one call.
type Credentials interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// FileCredentials reads a token saved by the auth command and refreshes it
// through the OAuth config when it expires.
type FileCredentials struct {
	Config *oauth2.Config
	Path   string
}

func (f FileCredentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	token, err := tokenFromFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: token file %s not found, run the 'auth' command first", models.ErrAuth, f.Path)
		}
		return nil, fmt.Errorf("%w: could not read token file %s: %v", models.ErrAuth, f.Path, err)
	}
	if f.Config == nil {
		return oauth2.StaticTokenSource(token), nil
	}
	return f.Config.TokenSource(ctx, token), nil
}

// BearerCredentials uses the access token placed on the request context by
// auth.Middleware.
type BearerCredentials struct{}

func (BearerCredentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	token, ok := auth.BearerFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no bearer token on request", models.ErrAuth)
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
}

// GetOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes the client id and secret over a local credentials.json file.
func GetOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("credentials.json not found. Please set google_client_id and google_client_secret or place credentials.json in the working directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectURL
	return config, nil
}

// TokenFromWeb is called by the auth flow to retrieve a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
