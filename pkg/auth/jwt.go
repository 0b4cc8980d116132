package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the JWT authenticator.
type JWTConfig struct {
	// Issuer is the expected iss claim.
	Issuer string

	// SigningKey is the HMAC key used to sign and verify tokens.
	SigningKey []byte

	// RoleClaimPath is the path to roles in the claims. Defaults to "roles".
	RoleClaimPath string

	// RolePrefix filters roles to those with this prefix.
	RolePrefix string
}

// JWTAuthenticator validates HMAC-signed JWT bearer tokens.
type JWTAuthenticator struct {
	cfg       JWTConfig
	extractor *ClaimsExtractor
}

// NewJWTAuthenticator creates a new JWT authenticator.
func NewJWTAuthenticator(cfg JWTConfig) (*JWTAuthenticator, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("jwt issuer is required")
	}
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("jwt signing key is required")
	}

	extractor := DefaultClaimsExtractor()
	if cfg.RoleClaimPath != "" {
		extractor.RoleClaimPath = cfg.RoleClaimPath
	}
	extractor.RolePrefix = cfg.RolePrefix

	return &JWTAuthenticator{cfg: cfg, extractor: extractor}, nil
}

// Authenticate validates the token in ctx and returns the user it names.
func (a *JWTAuthenticator) Authenticate(ctx context.Context) (*UserContext, error) {
	token := GetToken(ctx)
	if token == "" {
		return nil, errors.New("no token found in context")
	}

	claims, err := a.parse(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	uc := a.extractor.Extract(claims)
	if uc.UserID == "" {
		return nil, errors.New("missing sub claim")
	}
	return uc, nil
}

func (a *JWTAuthenticator) parse(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.cfg.SigningKey, nil
	}, jwt.WithIssuer(a.cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	return claims, nil
}

// Issue signs a token for userID valid for ttl. The server uses it for
// local development and the headless player for its test accounts.
func (a *JWTAuthenticator) Issue(userID string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": a.cfg.Issuer,
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if len(roles) > 0 {
		prefixed := make([]string, len(roles))
		for i, r := range roles {
			prefixed[i] = a.cfg.RolePrefix + r
		}
		claims[a.extractor.RoleClaimPath] = prefixed
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

var _ Authenticator = (*JWTAuthenticator)(nil)
