// Package token issues and verifies the HS256 bearer tokens handed to
// clients. Access tokens carry subject, role and expiry; refresh tokens
// carry only an expiry and a unique id.
package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kube-rca/authcore/internal/model"
)

var (
	ErrMalformed        = errors.New("token malformed")
	ErrUnsupported      = errors.New("token unsupported")
	ErrExpired          = errors.New("token expired")
	ErrSignatureInvalid = errors.New("token signature invalid")

	ErrMissingSecret = errors.New("token signing secret is required")
)

// Claims is the decoded, validated payload of a token. Subject and Role are
// empty for refresh tokens.
type Claims struct {
	Subject   string
	Role      model.Role
	ID        string
	ExpiresAt time.Time
}

type wireClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Codec struct {
	key []byte
	now func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now for both issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec derives the HMAC key from secret once. The codec is read-only
// afterwards and safe for concurrent use.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	sum := sha256.Sum256([]byte(secret))
	c := &Codec{
		key: sum[:],
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Codec) Issue(subject string, role model.Role, ttl time.Duration) (string, error) {
	now := c.now()
	claims := wireClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return c.sign(claims)
}

func (c *Codec) IssueAnonymous(ttl time.Duration) (string, error) {
	claims := wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(c.now().Add(ttl)),
		},
	}
	return c.sign(claims)
}

func (c *Codec) sign(claims wireClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks structure, algorithm, signature and expiry, in that order.
// The returned error always wraps exactly one of ErrMalformed,
// ErrUnsupported, ErrSignatureInvalid or ErrExpired.
func (c *Codec) Verify(tokenStr string) (Claims, error) {
	return c.parse(tokenStr, jwt.WithExpirationRequired())
}

// VerifyAccess is Verify plus the requirement that the token is an access
// token, i.e. it names a subject and a known role. A refresh token
// presented here fails with ErrUnsupported.
func (c *Codec) VerifyAccess(tokenStr string) (Claims, error) {
	claims, err := c.Verify(tokenStr)
	if err != nil {
		return Claims{}, err
	}
	if err := requireAccess(claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// ParseExpired decodes an access token without enforcing exp. The
// signature is still checked, so only tokens this codec issued are
// accepted.
func (c *Codec) ParseExpired(tokenStr string) (Claims, error) {
	claims, err := c.parse(tokenStr, jwt.WithoutClaimsValidation())
	if err != nil {
		return Claims{}, err
	}
	if err := requireAccess(claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (c *Codec) IsValid(tokenStr string) bool {
	_, err := c.Verify(tokenStr)
	return err == nil
}

func (c *Codec) parse(tokenStr string, opts ...jwt.ParserOption) (Claims, error) {
	opts = append(opts, jwt.WithTimeFunc(c.now), jwt.WithStrictDecoding())
	parser := jwt.NewParser(opts...)
	wc := &wireClaims{}
	_, err := parser.ParseWithClaims(tokenStr, wc, c.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) && signatureOnlyMalformed(parser, tokenStr) {
			return Claims{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return Claims{}, classify(err)
	}

	claims := Claims{
		Subject: wc.Subject,
		ID:      wc.ID,
	}
	if wc.Role != "" {
		claims.Role = model.Role(wc.Role)
	}
	if wc.ExpiresAt != nil {
		claims.ExpiresAt = wc.ExpiresAt.Time
	}
	return claims, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("%w: alg %v", ErrUnsupported, t.Header["alg"])
	}
	if typ, ok := t.Header["typ"].(string); ok && !strings.EqualFold(typ, "JWT") {
		return nil, fmt.Errorf("%w: typ %s", ErrUnsupported, typ)
	}
	return c.key, nil
}

// signatureOnlyMalformed reports whether header and payload decode cleanly,
// so a malformed error from the full parse came from the signature
// segment. A signature that is not canonical base64url is a bad signature.
func signatureOnlyMalformed(parser *jwt.Parser, tokenStr string) bool {
	_, _, err := parser.ParseUnverified(tokenStr, &wireClaims{})
	return err == nil
}

func requireAccess(claims Claims) error {
	if claims.Subject == "" {
		return fmt.Errorf("%w: no subject", ErrUnsupported)
	}
	if !claims.Role.Valid() {
		return fmt.Errorf("%w: role %q", ErrUnsupported, claims.Role)
	}
	return nil
}

// classify maps jwt parser errors onto the four token error kinds. The
// order matters: keyfunc rejections also carry jwt.ErrTokenUnverifiable
// and expiry failures also carry jwt.ErrTokenInvalidClaims.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrUnsupported):
		return err
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
