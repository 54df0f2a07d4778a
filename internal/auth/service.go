package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/frahmantamala/disbursement/internal"
)

// TokenVerifier validates RS256 operator tokens against the configured
// public key.
type TokenVerifier struct {
	publicKey *rsa.PublicKey
	issuer    string
}

func NewTokenVerifier(cfg internal.SecurityConfig) (*TokenVerifier, error) {
	key, err := cfg.GetPublicKey()
	if err != nil {
		return nil, fmt.Errorf("load jwt public key: %w", err)
	}
	return &TokenVerifier{publicKey: key, issuer: cfg.Issuer}, nil
}

// VerifyToken validates a JWT token and returns claims
func (v *TokenVerifier) VerifyToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}

// TokenIssuer signs operator tokens. Only used by the dev token command.
type TokenIssuer struct {
	privateKey *rsa.PrivateKey
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

func NewTokenIssuer(cfg internal.SecurityConfig) (*TokenIssuer, error) {
	if cfg.JWTPrivateKey == "" {
		return nil, errors.New("security.jwt_private_key is not configured")
	}
	key, err := cfg.GetPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("load jwt private key: %w", err)
	}
	ttl := cfg.AccessTokenDuration
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{privateKey: key, issuer: cfg.Issuer, ttl: ttl, now: time.Now}, nil
}

// Issue creates a signed token for subject. Unknown permissions are rejected.
func (i *TokenIssuer) Issue(subject string, permissions []string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	for _, p := range permissions {
		if !slices.Contains(AllPermissions, p) {
			return "", time.Time{}, fmt.Errorf("unknown permission %q", p)
		}
	}

	issuedAt := i.now().UTC()
	expiresAt := issuedAt.Add(i.ttl)
	claims := &Claims{
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}
