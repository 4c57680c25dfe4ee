package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const GrantTypeBearer = "Bearer"

var (
	ErrUnknownRole        = errors.New("unknown role")
	ErrPartialFederation  = errors.New("provider and provider id must be set together")
	ErrMissingAccountMail = errors.New("account email is required")
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// ParseRole accepts the role name in any letter case. An empty string maps
// to RoleMember.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case "", RoleMember:
		return RoleMember, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrUnknownRole
	}
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Account is a persisted principal. Email is the stable identifier.
// Provider and ProviderID are either both set (federated) or both empty
// (local password account).
type Account struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Provider     string
	ProviderID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a *Account) IsFederated() bool {
	return a.Provider != "" && a.ProviderID != ""
}

func (a *Account) IsLocal() bool {
	return a.Provider == "" && a.ProviderID == ""
}

func (a *Account) Validate() error {
	if strings.TrimSpace(a.Email) == "" {
		return ErrMissingAccountMail
	}
	if !a.Role.Valid() {
		return ErrUnknownRole
	}
	if !a.IsFederated() && !a.IsLocal() {
		return ErrPartialFederation
	}
	return nil
}

// AuthUser is the request-scoped principal rebuilt from verified access
// token claims.
type AuthUser struct {
	Email string
	Role  Role
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	GrantType    string `json:"grantType"`
}

type RefreshTokenRecord struct {
	Subject   string
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProviderProfile is the identity an external provider reports after a
// successful authorization code exchange. Role is the authority the
// provider granted, if any; an empty Role signs up as MEMBER.
type ProviderProfile struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Role     Role
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SignupRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type AccountResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Provider string `json:"provider,omitempty"`
}

func NewAccountResponse(a *Account) AccountResponse {
	return AccountResponse{
		ID:       a.ID.String(),
		Email:    a.Email,
		Name:     a.Name,
		Role:     a.Role,
		Provider: a.Provider,
	}
}

type AuthMeResponse struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
