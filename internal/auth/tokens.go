package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload for doctor portal sessions.
type Claims struct {
	DoctorID string `json:"doctor_id"`
	jwt.RegisteredClaims
}

// SignToken issues an HMAC-signed bearer token for a doctor.
func SignToken(secret, doctorID string, expiry time.Duration, now time.Time) (string, error) {
	claims := Claims{
		DoctorID: doctorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   doctorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			Issuer:    "telemed-admin",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a bearer token and returns its claims.
func ParseToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.DoctorID == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
