package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/authcore/internal/client"
	"github.com/kube-rca/authcore/internal/model"
	"github.com/kube-rca/authcore/internal/service"
	"github.com/rs/zerolog"
)

// OAuthHandler runs the authorization code login against the configured
// providers and hands the resulting token pair to the frontend.
type OAuthHandler struct {
	fetchers    client.Fetchers
	states      client.StateStore
	reconciler  *service.Reconciler
	issuer      *service.TokenIssuer
	frontendURL string
	log         zerolog.Logger
}

func NewOAuthHandler(
	fetchers client.Fetchers,
	states client.StateStore,
	reconciler *service.Reconciler,
	issuer *service.TokenIssuer,
	frontendURL string,
	log zerolog.Logger,
) *OAuthHandler {
	return &OAuthHandler{
		fetchers:    fetchers,
		states:      states,
		reconciler:  reconciler,
		issuer:      issuer,
		frontendURL: frontendURL,
		log:         log.With().Str("component", "oauth").Logger(),
	}
}

// Authorize godoc
// @Summary Start a provider login
// @Tags oauth
// @Param provider path string true "google or github"
// @Success 302
// @Failure 404 {object} model.ErrorResponse
// @Router /oauth2/authorization/{provider} [get]
func (h *OAuthHandler) Authorize(c *gin.Context) {
	fetcher, err := h.fetchers.Get(c.Param("provider"))
	if err != nil {
		writeError(c, err)
		return
	}

	state, err := client.NewState()
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.states.Save(c.Request.Context(), state, fetcher.Name()); err != nil {
		writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, fetcher.AuthCodeURL(state))
}

// Callback godoc
// @Summary Provider login callback
// @Description Redirects to OAUTH_FRONTEND_REDIRECT_URL with the token pair as query parameters, or returns it as JSON when no frontend URL is configured.
// @Tags oauth
// @Produce json
// @Param provider path string true "google or github"
// @Param code query string true "Authorization code"
// @Param state query string true "State from the authorization request"
// @Success 200 {object} model.TokenPair
// @Success 302
// @Failure 400 {object} model.ErrorResponse
// @Failure 502 {object} model.ErrorResponse
// @Router /login/oauth2/code/{provider} [get]
func (h *OAuthHandler) Callback(c *gin.Context) {
	pair, err := h.complete(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.deliver(c, pair)
}

func (h *OAuthHandler) complete(c *gin.Context) (model.TokenPair, error) {
	ctx := c.Request.Context()

	fetcher, err := h.fetchers.Get(c.Param("provider"))
	if err != nil {
		return model.TokenPair{}, err
	}

	if providerErr := c.Query("error"); providerErr != "" {
		h.log.Info().Str("provider", fetcher.Name()).Str("provider_error", providerErr).Msg("provider denied login")
		return model.TokenPair{}, client.ErrProviderExchange
	}

	state, code := c.Query("state"), c.Query("code")
	if state == "" || code == "" {
		return model.TokenPair{}, service.ErrInvalidInput
	}
	provider, err := h.states.Consume(ctx, state)
	if err != nil {
		return model.TokenPair{}, err
	}
	if provider != fetcher.Name() {
		return model.TokenPair{}, client.ErrStateNotFound
	}

	profile, err := fetcher.FetchProfile(ctx, code)
	if err != nil {
		return model.TokenPair{}, err
	}

	account, isNew, err := h.reconciler.Reconcile(ctx, fetcher.Name(), profile)
	if err != nil {
		return model.TokenPair{}, err
	}
	if isNew {
		account, err = h.reconciler.FinalizeSignup(ctx, fetcher.Name(), profile, profile.Role)
		if err != nil {
			return model.TokenPair{}, err
		}
	}

	return h.issuer.IssueForLogin(ctx, account)
}

func (h *OAuthHandler) deliver(c *gin.Context, pair model.TokenPair) {
	if h.frontendURL == "" {
		c.JSON(http.StatusOK, pair)
		return
	}
	target, err := h.frontendTarget(url.Values{
		"accessToken":  {pair.AccessToken},
		"refreshToken": {pair.RefreshToken},
		"grantType":    {pair.GrantType},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

func (h *OAuthHandler) fail(c *gin.Context, err error) {
	spec := classify(err)
	if spec.code == CodeInternal {
		h.log.Error().Err(err).Msg("provider login failed")
	}
	if h.frontendURL == "" {
		writeError(c, err)
		return
	}
	target, urlErr := h.frontendTarget(url.Values{"error": {string(spec.code)}})
	if urlErr != nil {
		writeError(c, errors.Join(err, urlErr))
		return
	}
	c.Redirect(http.StatusFound, target)
}

func (h *OAuthHandler) frontendTarget(params url.Values) (string, error) {
	u, err := url.Parse(h.frontendURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for key, values := range params {
		q[key] = values
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
