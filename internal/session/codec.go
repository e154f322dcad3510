package session

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpiredToken = errors.New("session token has expired")
	ErrWeakSecret   = errors.New("session secret must be at least 32 characters long")
)

const minSecretLength = 32

type claims struct {
	Session
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens with HS256
type Codec struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewCodec creates a codec; tokens it issues expire after ttl
func NewCodec(secretKey string, ttl time.Duration) (*Codec, error) {
	if len(secretKey) < minSecretLength {
		return nil, ErrWeakSecret
	}
	return &Codec{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// Encode signs s and returns the token with its expiry
func (c *Codec) Encode(s Session) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.ttl)

	cl := claims{
		Session: s,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if s.User != nil {
		cl.Subject = strconv.FormatInt(s.User.ID, 10)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, cl)
	tokenString, err := token.SignedString(c.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Decode verifies a token and returns the session it carries
func (c *Codec) Decode(tokenString string) (Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secretKey, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrExpiredToken
		}
		return Session{}, ErrInvalidToken
	}

	cl, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Session{}, ErrInvalidToken
	}
	return cl.Session, nil
}

// TTL returns the token lifetime
func (c *Codec) TTL() time.Duration {
	return c.ttl
}
