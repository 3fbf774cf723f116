package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	apiTokenIssuer   = "account-starter"
	apiTokenAudience = "account-starter-api"
)

type parsedAPIAccessToken struct {
	AccountID uuid.UUID
}

func (h handler) issueAPIAccessToken(accountID uuid.UUID, now time.Time) (string, time.Time, error) {
	if accountID == uuid.Nil || strings.TrimSpace(h.apiAccessTokenSecret) == "" {
		return "", time.Time{}, errors.New("api access token not configured")
	}
	ttl := h.apiAccessTokenTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	expiresAt := now.Add(ttl)
	jti, err := randomToken(20)
	if err != nil {
		return "", time.Time{}, err
	}
	claims := jwt.RegisteredClaims{
		ID:        jti,
		Subject:   accountID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		Issuer:    apiTokenIssuer,
		Audience:  []string{apiTokenAudience},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.apiAccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (h handler) parseAPIAccessToken(tokenString string) (parsedAPIAccessToken, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" || strings.TrimSpace(h.apiAccessTokenSecret) == "" {
		return parsedAPIAccessToken{}, errors.New("unauthorized")
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(h.apiAccessTokenSecret), nil
	},
		jwt.WithIssuer(apiTokenIssuer),
		jwt.WithAudience(apiTokenAudience),
		jwt.WithTimeFunc(h.now),
	)
	if err != nil {
		return parsedAPIAccessToken{}, err
	}
	if !parsed.Valid {
		return parsedAPIAccessToken{}, errors.New("invalid token")
	}
	accountID, err := uuid.Parse(strings.TrimSpace(claims.Subject))
	if err != nil {
		return parsedAPIAccessToken{}, err
	}
	return parsedAPIAccessToken{AccountID: accountID}, nil
}

func bearerTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return ""
	}
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[7:])
}
