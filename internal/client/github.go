package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/kube-rca/authcore/internal/config"
	"github.com/kube-rca/authcore/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

var (
	GitHubUserEndpoint   = "https://api.github.com/user"
	GitHubEmailsEndpoint = "https://api.github.com/user/emails"
)

// GitHubFetcher reads the user from the GitHub REST API. GitHub only
// returns a public email on /user, so the verified primary address is
// looked up on /user/emails when the profile has none.
type GitHubFetcher struct {
	oauth      *oauth2.Config
	userURL    string
	emailsURL  string
	httpClient *http.Client
}

func NewGitHubFetcher(cfg config.ProviderConfig, redirectURL string) *GitHubFetcher {
	return &GitHubFetcher{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       mergeScopes(cfg.Scopes, "read:user", "user:email"),
			Endpoint:     github.Endpoint,
		},
		userURL:    GitHubUserEndpoint,
		emailsURL:  GitHubEmailsEndpoint,
		httpClient: defaultHTTPClient(),
	}
}

func (g *GitHubFetcher) Name() string {
	return ProviderGitHub
}

func (g *GitHubFetcher) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHubFetcher) FetchProfile(ctx context.Context, code string) (model.ProviderProfile, error) {
	ctx = exchangeContext(ctx, g.httpClient)
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return model.ProviderProfile{}, fmt.Errorf("%w: github: %v", ErrProviderExchange, err)
	}
	api := g.oauth.Client(ctx, tok)

	var user githubUser
	if err := getJSON(ctx, api, g.userURL, &user); err != nil {
		return model.ProviderProfile{}, err
	}
	if user.ID == 0 {
		return model.ProviderProfile{}, fmt.Errorf("%w: github: user id missing", ErrProviderProfile)
	}

	email := user.Email
	if email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, api, g.emailsURL, &emails); err != nil {
			return model.ProviderProfile{}, err
		}
		email = primaryEmail(emails)
	}
	if email == "" {
		return model.ProviderProfile{}, fmt.Errorf("%w: github: no verified email", ErrProviderProfile)
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return model.ProviderProfile{
		Provider: ProviderGitHub,
		Subject:  strconv.FormatInt(user.ID, 10),
		Email:    email,
		Name:     name,
	}, nil
}

func primaryEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}

func getJSON(ctx context.Context, httpClient *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderProfile, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s returned %d: %s", ErrProviderProfile, url, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProviderProfile, url, err)
	}
	return nil
}
