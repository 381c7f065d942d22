package apitest

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims de los tokens que emite el server de pruebas.
// Auth: Subject = email de la cuenta. User: Subject = id de la identidad.
type Claims struct {
	Scope   string `json:"scope"`
	Account string `json:"acc,omitempty"`
	jwt.RegisteredClaims
}

const (
	scopeAuth = "auth"
	scopeUser = "user"
)

type issuer struct {
	key     []byte
	authTTL time.Duration
	userTTL time.Duration
	now     func() time.Time
}

func (i *issuer) mint(scope, subject, account string, iat time.Time) (string, error) {
	ttl := i.authTTL
	if scope == scopeUser {
		ttl = i.userTTL
	}
	c := Claims{
		Scope:   scope,
		Account: account,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.key)
}

var errWrongScope = errors.New("apitest: scope del token incorrecto")

func (i *issuer) parse(raw, scope string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, err
	}
	if c.Scope != scope {
		return nil, errWrongScope
	}
	return &c, nil
}
