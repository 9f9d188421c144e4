package services

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// confirmationTokenDigits gives roughly 99.7 bits of entropy.
const confirmationTokenDigits = 30

var confirmationTokenSpace = new(big.Int).Exp(big.NewInt(10), big.NewInt(confirmationTokenDigits), nil)

// newConfirmationToken draws a uniformly random, zero-padded decimal token.
func newConfirmationToken() (string, error) {
	n, err := rand.Int(rand.Reader, confirmationTokenSpace)
	if err != nil {
		return "", err
	}
	digits := n.String()
	return strings.Repeat("0", confirmationTokenDigits-len(digits)) + digits, nil
}

func issueToken(authorID int, secret []byte, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(authorID),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (int, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, errors.New("invalid token")
	}
	id, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || id < 1 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}
