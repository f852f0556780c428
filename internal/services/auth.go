package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

// TokenVerifier authenticates the bearer credential presented at upgrade
// time. Session issuance lives with the external auth collaborator; this
// service only verifies what it issued.
type TokenVerifier interface {
	VerifyToken(tokenString string) (uuid.UUID, error)
}

type jwtVerifier struct {
	log       *logger.Logger
	secretKey []byte
}

func NewJWTVerifier(log *logger.Logger, secretKey string) TokenVerifier {
	return &jwtVerifier{
		log:       log.With("service", "JWTVerifier"),
		secretKey: []byte(secretKey),
	}
}

func (v *jwtVerifier) VerifyToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secretKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid token")
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(time.Now()) {
		return uuid.Nil, fmt.Errorf("token expired")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, fmt.Errorf("token missing subject")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token subject is not a user id: %w", err)
	}
	return userID, nil
}
