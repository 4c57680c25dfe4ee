package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/authcore/internal/client"
	"github.com/kube-rca/authcore/internal/model"
	"github.com/kube-rca/authcore/internal/service"
	"github.com/kube-rca/authcore/internal/token"
)

type ErrorCode string

const (
	CodeMalformedToken           ErrorCode = "MALFORMED_TOKEN"
	CodeUnsupportedToken         ErrorCode = "UNSUPPORTED_TOKEN"
	CodeExpiredToken             ErrorCode = "EXPIRED_TOKEN"
	CodeInvalidSignature         ErrorCode = "INVALID_SIGNATURE"
	CodeAccountNotFound          ErrorCode = "ACCOUNT_NOT_FOUND"
	CodeInvalidCredentials       ErrorCode = "INVALID_CREDENTIALS"
	CodeProviderAccountCollision ErrorCode = "PROVIDER_ACCOUNT_COLLISION"
	CodeAccountAlreadyExists     ErrorCode = "ACCOUNT_ALREADY_EXISTS"
	CodeSessionNotFound          ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionExpired           ErrorCode = "SESSION_EXPIRED"
	CodeAccessTokenNotExpired    ErrorCode = "ACCESS_TOKEN_NOT_EXPIRED"
	CodeInvalidInput             ErrorCode = "INVALID_INPUT"
	CodeUnauthorized             ErrorCode = "UNAUTHORIZED"
	CodeForbidden                ErrorCode = "FORBIDDEN"
	CodeTooManyRequests          ErrorCode = "TOO_MANY_REQUESTS"
	CodeProviderFailure          ErrorCode = "PROVIDER_FAILURE"
	CodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

type errorSpec struct {
	status  int
	code    ErrorCode
	message string
}

// Ordered: the first sentinel matched by errors.Is wins.
var errorTable = []struct {
	err  error
	spec errorSpec
}{
	{token.ErrMalformed, errorSpec{http.StatusBadRequest, CodeMalformedToken, "token is malformed"}},
	{token.ErrUnsupported, errorSpec{http.StatusBadRequest, CodeUnsupportedToken, "token type is not supported here"}},
	{token.ErrExpired, errorSpec{http.StatusBadRequest, CodeExpiredToken, "token has expired"}},
	// 404 is kept for compatibility with existing clients.
	{token.ErrSignatureInvalid, errorSpec{http.StatusNotFound, CodeInvalidSignature, "token signature is invalid"}},
	{service.ErrAccountNotFound, errorSpec{http.StatusNotFound, CodeAccountNotFound, "account not found"}},
	{service.ErrInvalidCredentials, errorSpec{http.StatusBadRequest, CodeInvalidCredentials, "invalid email or password"}},
	{service.ErrProviderAccountCollision, errorSpec{http.StatusBadRequest, CodeProviderAccountCollision, "email is registered with a password account"}},
	{service.ErrAccountAlreadyExists, errorSpec{http.StatusBadRequest, CodeAccountAlreadyExists, "account already exists"}},
	{service.ErrSessionNotFound, errorSpec{http.StatusUnauthorized, CodeSessionNotFound, "no active session, log in again"}},
	{service.ErrSessionExpired, errorSpec{http.StatusUnauthorized, CodeSessionExpired, "session expired, log in again"}},
	{service.ErrAccessTokenNotExpired, errorSpec{http.StatusBadRequest, CodeAccessTokenNotExpired, "access token is still valid"}},
	{service.ErrInvalidInput, errorSpec{http.StatusBadRequest, CodeInvalidInput, "invalid input"}},
	{client.ErrUnknownProvider, errorSpec{http.StatusNotFound, CodeInvalidInput, "unknown provider"}},
	{client.ErrStateNotFound, errorSpec{http.StatusBadRequest, CodeInvalidInput, "login request expired, try again"}},
	{client.ErrProviderExchange, errorSpec{http.StatusBadGateway, CodeProviderFailure, "provider rejected the login"}},
	{client.ErrProviderProfile, errorSpec{http.StatusBadGateway, CodeProviderFailure, "provider profile unavailable"}},
	{errUnauthorized, errorSpec{http.StatusUnauthorized, CodeUnauthorized, "authentication required"}},
	{errForbidden, errorSpec{http.StatusForbidden, CodeForbidden, "insufficient role"}},
	{errTooManyRequests, errorSpec{http.StatusTooManyRequests, CodeTooManyRequests, "too many requests, try again later"}},
}

var (
	errUnauthorized    = errors.New("unauthorized")
	errForbidden       = errors.New("forbidden")
	errTooManyRequests = errors.New("too many requests")
)

var internalError = errorSpec{http.StatusInternalServerError, CodeInternal, "server error"}

func classify(err error) errorSpec {
	for _, entry := range errorTable {
		if errors.Is(err, entry.err) {
			return entry.spec
		}
	}
	return internalError
}

func newErrorResponse(spec errorSpec) model.ErrorResponse {
	return model.ErrorResponse{
		StatusCode: spec.status,
		Status:     http.StatusText(spec.status),
		Code:       string(spec.code),
		Message:    spec.message,
	}
}

// writeError aborts the chain with the structured body for err.
// Unclassified errors are logged and surface as INTERNAL_ERROR.
func writeError(c *gin.Context, err error) {
	spec := classify(err)
	if spec.code == CodeInternal {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(spec.status, newErrorResponse(spec))
}
