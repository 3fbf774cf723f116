// Package facebook signs users in with Facebook Login and reads their Graph
// profile.
package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benpsk/account-starter/internal/account"
	"golang.org/x/oauth2"
	fbendpoint "golang.org/x/oauth2/facebook"
)

const (
	defaultGraphURL = "https://graph.facebook.com"
	loginFields     = "id,name,first_name,last_name,email,gender,location"
	apiFields       = "id,name,email,first_name,last_name,gender,link,locale,timezone"
)

var (
	ErrNotConfigured = errors.New("facebook login is not configured")
	ErrExchange      = errors.New("facebook code exchange failed")
	ErrGraph         = errors.New("facebook graph request failed")
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint and GraphURL default to Facebook's production hosts.
	Endpoint   oauth2.Endpoint
	GraphURL   string
	HTTPClient *http.Client
}

type Provider struct {
	oauth    *oauth2.Config
	graphURL string
	client   *http.Client
}

func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, ErrNotConfigured
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = fbendpoint.Endpoint
	}
	graphURL := strings.TrimRight(strings.TrimSpace(cfg.GraphURL), "/")
	if graphURL == "" {
		graphURL = defaultGraphURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  strings.TrimSpace(cfg.RedirectURL),
			Endpoint:     endpoint,
			Scopes:       []string{"email", "public_profile"},
		},
		graphURL: graphURL,
		client:   client,
	}, nil
}

func (p *Provider) Name() string {
	return account.ProviderFacebook
}

// AuthCodeURL returns the login dialog URL carrying state and the S256
// challenge for verifier.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for a token and reads the profile
// the token belongs to.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (account.ProviderProfile, error) {
	if strings.TrimSpace(code) == "" {
		return account.ProviderProfile{}, fmt.Errorf("%w: missing code", ErrExchange)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return account.ProviderProfile{}, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	var me struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Gender    string `json:"gender"`
		Location  struct {
			Name string `json:"name"`
		} `json:"location"`
	}
	if err := p.get(ctx, token.AccessToken, "/me", loginFields, &me); err != nil {
		return account.ProviderProfile{}, err
	}
	if strings.TrimSpace(me.ID) == "" {
		return account.ProviderProfile{}, fmt.Errorf("%w: profile without id", ErrGraph)
	}

	name := strings.TrimSpace(strings.TrimSpace(me.FirstName) + " " + strings.TrimSpace(me.LastName))
	if name == "" {
		name = strings.TrimSpace(me.Name)
	}
	return account.ProviderProfile{
		Provider:    account.ProviderFacebook,
		ID:          strings.TrimSpace(me.ID),
		Email:       strings.TrimSpace(me.Email),
		Name:        name,
		Gender:      strings.TrimSpace(me.Gender),
		Location:    strings.TrimSpace(me.Location.Name),
		AccessToken: token.AccessToken,
	}, nil
}

// GraphUser is the public Graph profile shown on the API page.
type GraphUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Link      string `json:"link,omitempty"`
	Locale    string `json:"locale,omitempty"`
	Timezone  any    `json:"timezone,omitempty"`
}

// User reads the Graph profile of userID with a stored access token.
func (p *Provider) User(ctx context.Context, accessToken, userID string) (GraphUser, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = "me"
	}
	var out GraphUser
	if err := p.get(ctx, accessToken, "/"+url.PathEscape(userID), apiFields, &out); err != nil {
		return GraphUser{}, err
	}
	return out, nil
}

func (p *Provider) get(ctx context.Context, accessToken, path, fields string, dst any) error {
	client := p.oauth.Client(context.WithValue(ctx, oauth2.HTTPClient, p.client), &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
	q := url.Values{}
	q.Set("fields", fields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGraph, err)
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGraph, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrGraph, err)
	}
	if res.StatusCode != http.StatusOK {
		var graphErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &graphErr)
		return fmt.Errorf("%w: status %d: %s", ErrGraph, res.StatusCode, graphErr.Error.Message)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrGraph, err)
	}
	return nil
}
