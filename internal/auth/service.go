package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Service turns a bearer token into the opaque user id a connection acts as.
// Token issuance lives in the identity service; this side only verifies.
type Service struct {
	secret  []byte
	devMode bool
}

func NewService(secret string, devMode bool) *Service {
	return &Service{
		secret:  []byte(secret),
		devMode: devMode,
	}
}

func (s *Service) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	if len(s.secret) == 0 {
		return nil, fmt.Errorf("no signing secret configured")
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// UserIDFromToken reads the user id from the "user_id" claim, falling back
// to the standard subject.
func (s *Service) UserIDFromToken(tokenString string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}

	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("invalid user ID in token")
	}
	return sub, nil
}

// Authenticate resolves the user behind a websocket upgrade request. Browsers
// cannot set headers on websocket requests, so the token may also arrive as
// the "token" query parameter. In development a plain "userId" parameter is
// accepted when no token is given.
func (s *Service) Authenticate(r *http.Request) (string, error) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenStr = strings.TrimPrefix(h, "Bearer ")
		}
	}

	if tokenStr == "" {
		if s.devMode {
			if userID := r.URL.Query().Get("userId"); userID != "" {
				return userID, nil
			}
		}
		return "", fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	userID, err := s.UserIDFromToken(tokenStr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return userID, nil
}
