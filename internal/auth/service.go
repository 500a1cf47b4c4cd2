package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Streams authenticate with a bearer token issued when the stream is
// registered; there are no user accounts.
const streamTokenTTL = 24 * time.Hour

type Service struct {
	secret []byte
}

type Claims struct {
	StreamID string `json:"stream_id"`
	jwt.RegisteredClaims
}

func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

func (s *Service) IssueToken(streamID string) (string, error) {
	claims := Claims{
		StreamID: streamID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(streamTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) ValidateToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", errors.New("token invalid")
	}
	return claims.StreamID, nil
}
