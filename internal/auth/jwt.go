package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"texttones/internal/conversions"
)

// ErrUnauthenticated is returned for missing or rejected identity tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier validates HS256 identity tokens and turns them into principals.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
	}
}

type identityClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Issue signs a token for p. Production tokens come from the identity
// provider; Issue is used by tests.
func (v *Verifier) Issue(p conversions.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email:   p.Email,
		Name:    p.DisplayName,
		Picture: p.PhotoURL,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and returns the principal it identifies.
func (v *Verifier) Verify(tokenString string) (conversions.Principal, error) {
	if tokenString == "" {
		return conversions.Principal{}, fmt.Errorf("%w: token is empty", ErrUnauthenticated)
	}

	token, err := jwt.ParseWithClaims(tokenString, &identityClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return conversions.Principal{}, fmt.Errorf("%w: parse token: %w", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*identityClaims)
	if !ok || !token.Valid {
		return conversions.Principal{}, fmt.Errorf("%w: invalid token claims", ErrUnauthenticated)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return conversions.Principal{}, fmt.Errorf("%w: invalid issuer %q", ErrUnauthenticated, claims.Issuer)
	}
	if claims.Subject == "" {
		return conversions.Principal{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}

	return conversions.Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}, nil
}
