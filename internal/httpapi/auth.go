// ABOUTME: Widget session tokens, HS256 JWTs binding a session to its conversation
// ABOUTME: Minted on session creation, verified on every send and events request

package httpapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

const sessionTokenTTL = 24 * time.Hour

// SessionTokens mints and verifies the widget's bearer tokens. The
// subject is the session id; a "conv" claim pins the conversation so a
// client can never subscribe to someone else's events.
type SessionTokens struct {
	secret []byte
}

// NewSessionTokens creates a token authority with the given secret.
func NewSessionTokens(secret []byte) *SessionTokens {
	return &SessionTokens{secret: secret}
}

// Mint issues a token for the session and its conversation.
func (t *SessionTokens) Mint(sessionID, conversationID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  sessionID,
		"conv": conversationID,
		"iat":  now.Unix(),
		"exp":  now.Add(sessionTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify validates the token and returns the session and conversation ids.
func (t *SessionTokens) Verify(tokenString string) (sessionID, conversationID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrExpiredToken
		}
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	conv, ok := claims["conv"].(string)
	if !ok || conv == "" {
		return "", "", fmt.Errorf("%w: conv", ErrMissingClaim)
	}
	return sub, conv, nil
}
