package connections

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/geekconsole/geekconsole/internal/config"
)

// ProviderGitHub is the only provider currently wired in. The Provider
// interface keeps the flow generic so a second one is a registration, not
// a rewrite.
const ProviderGitHub = "github"

// mockPrefix on a client id selects the fake provider: the whole OAuth
// dance short-circuits locally, which is how development and tests run
// without real GitHub credentials.
const mockPrefix = "MOCK_"

// Provider abstracts an external identity provider's OAuth flow.
type Provider interface {
	// Name is the stable provider key stored on connections.
	Name() string

	// AuthorizationURL is where the user's browser is sent to consent.
	// state ties the eventual callback to this request.
	AuthorizationURL(state string) string

	// Exchange redeems the callback code for the identity's profile.
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// NewGitHubProvider returns either the real GitHub provider or, when the
// configured client id carries the mock prefix, the local fake.
func NewGitHubProvider(cfg config.GitHubConfig, baseURL string) Provider {
	if strings.HasPrefix(cfg.ClientID, mockPrefix) {
		return &mockProvider{name: ProviderGitHub}
	}
	return &githubProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  strings.TrimSuffix(baseURL, "/") + "/auth/github/callback",
			Scopes:       []string{"read:user", "user:email"},
		},
	}
}

// githubProvider talks to the real GitHub OAuth and REST APIs.
type githubProvider struct {
	oauth *oauth2.Config
}

func (p *githubProvider) Name() string { return ProviderGitHub }

func (p *githubProvider) AuthorizationURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

func (p *githubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging oauth code: %w", err)
	}

	client := p.oauth.Client(ctx, token)
	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		return nil, fmt.Errorf("fetching github profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github profile request returned %d", resp.StatusCode)
	}

	var gh struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&gh); err != nil {
		return nil, fmt.Errorf("decoding github profile: %w", err)
	}

	profile := &Profile{
		ProviderID: strconv.FormatInt(gh.ID, 10),
		Username:   gh.Login,
		Name:       gh.Name,
		Email:      gh.Email,
		AvatarURL:  gh.AvatarURL,
	}
	if profile.Name == "" {
		profile.Name = gh.Login
	}

	// The public email field is often empty. Fall back to the primary
	// address from the emails endpoint.
	if profile.Email == "" {
		if email, err := p.primaryEmail(ctx, client); err == nil {
			profile.Email = email
		}
	}

	return profile, nil
}

func (p *githubProvider) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	resp, err := client.Get("https://api.github.com/user/emails")
	if err != nil {
		return "", fmt.Errorf("fetching github emails: %w", err)
	}
	defer resp.Body.Close()

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", fmt.Errorf("decoding github emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", fmt.Errorf("no verified primary email")
}

// mockProvider short-circuits the OAuth dance with a fixed local identity.
type mockProvider struct {
	name string
}

func (p *mockProvider) Name() string { return p.name }

func (p *mockProvider) AuthorizationURL(state string) string {
	// Send the browser straight back to our own callback, echoing the
	// state and a recognizable code.
	return "/auth/" + p.name + "/callback?code=MOCK_CODE&state=" + state
}

func (p *mockProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	if code != "MOCK_CODE" {
		return nil, fmt.Errorf("mock provider rejected code %q", code)
	}
	return &Profile{
		ProviderID: "MOCK_12345",
		Username:   "mockuser",
		Name:       "Mock User",
		Email:      "mock@example.com",
		AvatarURL:  "",
	}, nil
}
