// Package token signs and verifies the stateless bearer tokens issued
// per authenticated account: a short-lived access token and a long-lived
// refresh token. Tokens are never persisted; identity is reconstructed
// purely by verification.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is the only verification error this package returns.
// Signature failure, expiry, and wrong token kind are deliberately
// indistinguishable so a caller holding a rejected token learns nothing
// about why it was rejected.
var ErrInvalid = errors.New("invalid or expired token")

const (
	// DefaultAccessTTL applies when IssueAccess is called with ttl <= 0.
	DefaultAccessTTL = time.Hour
	// RefreshTTL is fixed; refresh lifetime is not caller-overridable.
	RefreshTTL = 30 * 24 * time.Hour
)

// Claims is the signed payload. Field names are wire-level contract:
// any consumer of these tokens round-trips them by name.
type Claims struct {
	AccountKind       string `json:"type"`
	IsRefreshToken    bool   `json:"isRefreshToken,omitempty"`
	OAuthAccessToken  string `json:"oauthAccessToken,omitempty"`
	OAuthRefreshToken string `json:"oauthRefreshToken,omitempty"`
	jwt.RegisteredClaims
}

// Embedded carries third-party OAuth tokens to merge into the payload
// before signing. Zero value embeds nothing.
type Embedded struct {
	AccessToken  string
	RefreshToken string
}

// Codec issues and verifies both token kinds with one symmetric key.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Config for NewCodec. TTLs fall back to the package defaults when zero.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// NewCodec validates the signing secret and fixes the TTLs.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("token secret must be at least 16 bytes")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = RefreshTTL
	}
	return &Codec{
		secret:     cfg.Secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// AccessTTL reports the TTL applied to access tokens issued without an
// explicit override. Cookie max-age mirrors this value.
func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// IssueAccess signs an access token for one account. ttl <= 0 selects
// the configured default.
func (c *Codec) IssueAccess(accountID, accountKind string, ttl time.Duration, embedded Embedded) (string, error) {
	if ttl <= 0 {
		ttl = c.accessTTL
	}
	return c.sign(accountID, accountKind, ttl, false, embedded)
}

// IssueRefresh signs a refresh token. Its TTL is fixed at construction.
func (c *Codec) IssueRefresh(accountID, accountKind string, embedded Embedded) (string, error) {
	return c.sign(accountID, accountKind, c.refreshTTL, true, embedded)
}

func (c *Codec) sign(accountID, accountKind string, ttl time.Duration, isRefresh bool, embedded Embedded) (string, error) {
	if accountID == "" || accountKind == "" {
		return "", errors.New("token subject and kind are required")
	}
	now := time.Now()
	claims := Claims{
		AccountKind:       accountKind,
		IsRefreshToken:    isRefresh,
		OAuthAccessToken:  embedded.AccessToken,
		OAuthRefreshToken: embedded.RefreshToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// VerifyAccess verifies signature and expiry, then rejects tokens that
// carry the refresh marker.
func (c *Codec) VerifyAccess(tokenStr string) (*Claims, error) {
	claims, err := c.verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.IsRefreshToken {
		return nil, ErrInvalid
	}
	return claims, nil
}

// VerifyRefresh verifies signature and expiry, then rejects tokens
// without the refresh marker.
func (c *Codec) VerifyRefresh(tokenStr string) (*Claims, error) {
	claims, err := c.verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if !claims.IsRefreshToken {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (c *Codec) verify(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || claims.AccountKind == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}
