package services

import (
	"errors"
	"time"

	"roomrelay/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// JoinClaims is the signed grant a client presents when joining a
// room. An empty Room claim grants access to any room.
type JoinClaims struct {
	Room     domain.RoomID `json:"room,omitempty"`
	Username string        `json:"username,omitempty"`
	Recorder bool          `json:"recorder,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and validates join tokens. A service constructed
// with an empty secret accepts everything, which keeps open deployments
// working without a token exchange.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Enabled reports whether join tokens are enforced.
func (s *TokenService) Enabled() bool {
	return len(s.secret) > 0
}

func (s *TokenService) GenerateJoinToken(roomID domain.RoomID, username string, recorder bool) (string, error) {
	claims := &JoinClaims{
		Room:     roomID,
		Username: username,
		Recorder: recorder,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateJoinToken checks the token's signature and expiry and, when
// the token is room-scoped, that it matches the requested room.
func (s *TokenService) ValidateJoinToken(tokenString string, roomID domain.RoomID) (*JoinClaims, error) {
	if !s.Enabled() {
		return &JoinClaims{Room: roomID}, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &JoinClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JoinClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Room != "" && claims.Room != roomID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
