// Package uploadtoken issues and verifies the signed capability tokens backing
// authorized uploads. A token lets its bearer upload into one folder on the
// authorizing user's behalf, without a session.
//
// Verification checks signature, scope, expiry and authorization id
// independently so each failure produces a distinct diagnostic.
package uploadtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const scopeAuthorizedUpload = "authorized_upload"

var (
	ErrBadSignature = errors.New("upload token signature is invalid")
	ErrWrongScope   = errors.New("upload token scope is invalid")
	ErrExpired      = errors.New("upload token has expired")
	ErrIDMismatch   = errors.New("upload token does not match this authorization")
)

var secret = []byte("change-me-in-production")

func SetSecret(s string) {
	if s != "" {
		secret = []byte(s)
	}
}

type claims struct {
	Scope    string `json:"scope"`
	UploadID string `json:"uploadID"`
	jwt.RegisteredClaims
}

// Sign mints a token bound to the authorization id and its expiry.
func Sign(uploadID uuid.UUID, expiresAt time.Time) (string, error) {
	c := claims{
		Scope:    scopeAuthorizedUpload,
		UploadID: uploadID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// Verify validates tokenString against the expected authorization id.
func Verify(tokenString string, uploadID uuid.UUID) error {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrBadSignature
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return ErrBadSignature
	}
	if c.Scope != scopeAuthorizedUpload {
		return ErrWrongScope
	}
	if c.UploadID != uploadID.String() {
		return ErrIDMismatch
	}
	return nil
}
