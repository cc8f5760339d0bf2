package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/citizen-appointments/internal/appointment"
)

const issuer = "citizen-appointments"

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

// Claims carries the actor behind a request. Subject is the actor id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts validated claims into the lifecycle actor.
func (c *Claims) Actor() (appointment.Actor, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return appointment.Actor{}, fmt.Errorf("%w: subject is not a uuid", ErrTokenInvalid)
	}
	role, err := appointment.ParseRole(c.Role)
	if err != nil || role == appointment.RoleSystem {
		return appointment.Actor{}, fmt.Errorf("%w: role %q", ErrTokenInvalid, c.Role)
	}
	return appointment.Actor{ID: id, Role: role}, nil
}

// IssueToken signs an HS256 access token for actor.
func IssueToken(actor appointment.Actor, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken verifies signature, issuer and expiry and returns the claims.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrTokenInvalid
}
