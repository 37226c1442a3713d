package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Resolver resolves the principal behind a request; (nil, nil) means an
// anonymous caller.
type Resolver interface {
	Resolve(r *http.Request) (*Principal, error)
}

type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver accepts HMAC-signed bearer tokens issued by the identity
// provider (or by `bowlctl token` in development).
type JWTResolver struct {
	Secret []byte
	Issuer string
}

var ErrInvalidToken = errors.New("invalid token")

func (j *JWTResolver) Resolve(r *http.Request) (*Principal, error) {
	raw := bearer(r)
	if raw == "" {
		return nil, nil
	}
	return j.Parse(raw)
}

func (j *JWTResolver) Parse(raw string) (*Principal, error) {
	var claims Claims
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.Issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.Secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	p := &Principal{ID: claims.Subject}
	if claims.Role != "" {
		role, err := ParseRole(claims.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		p.Role = role
	}
	return p, nil
}

// Issue signs a token for subject with the given role. Used by bowlctl and
// tests.
func (j *JWTResolver) Issue(subject string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    j.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Secret)
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	parts := strings.Fields(h)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
