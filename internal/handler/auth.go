package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/authcore/internal/model"
	"github.com/kube-rca/authcore/internal/service"
)

type AuthHandler struct {
	auth     *service.Authenticator
	issuer   *service.TokenIssuer
	accounts *service.AccountService
}

func NewAuthHandler(auth *service.Authenticator, issuer *service.TokenIssuer, accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{auth: auth, issuer: issuer, accounts: accounts}
}

// Login godoc
// @Summary Login with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Email and password"
// @Success 200 {object} model.TokenPair
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 429 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, service.ErrInvalidInput)
		return
	}

	account, err := h.auth.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	pair, err := h.issuer.IssueForLogin(c.Request.Context(), account)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Signup godoc
// @Summary Create a local account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.SignupRequest true "Email, password, name and role"
// @Success 200 {object} model.AccountResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req model.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, service.ErrInvalidInput)
		return
	}

	account, err := h.accounts.Signup(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewAccountResponse(account))
}

// Reissue godoc
// @Summary Rotate the token pair
// @Description Takes the expired access token as the bearer token. The stored refresh token must still be valid.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.TokenPair
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/reissue [post]
func (h *AuthHandler) Reissue(c *gin.Context) {
	raw, ok := bearerToken(c)
	if !ok {
		writeError(c, errUnauthorized)
		return
	}

	pair, err := h.issuer.Rotate(c.Request.Context(), raw)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Logout godoc
// @Summary Logout
// @Description Removes the refresh token. The access token stays valid until it expires.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.AuthLogoutResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		writeError(c, errUnauthorized)
		return
	}

	if err := h.issuer.Revoke(c.Request.Context(), user.Email); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.AuthLogoutResponse{Status: "logged_out"})
}

// Me godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.AuthMeResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		writeError(c, errUnauthorized)
		return
	}
	c.JSON(http.StatusOK, model.AuthMeResponse{
		Email: user.Email,
		Role:  user.Role,
	})
}

// DeleteMe godoc
// @Summary Delete current account
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.StatusResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /auth/me [delete]
func (h *AuthHandler) DeleteMe(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		writeError(c, errUnauthorized)
		return
	}

	if err := h.accounts.Delete(c.Request.Context(), user.Email); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "deleted"})
}
