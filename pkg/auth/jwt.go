package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rxevidence/rxevidence/config"
)

const JwtAlg = "HS256"

const issuer = "rxevidence"

var ErrSecretNotSet = errors.New(
	"auth secret not set. ensure " + config.EnvPrefix + "_AUTH_SECRET is set in your environment",
)

// GenerateJWT returns a signed, non-expiring API token. Each token carries a
// random jti so that issued tokens can be told apart in logs.
func GenerateJWT(cfg *config.Config) (string, error) {
	secret := []byte(cfg.Auth.Secret)
	if len(secret) == 0 {
		return "", ErrSecretNotSet
	}

	claims := jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// JWTVerifier returns middleware that reads a bearer token from the request
// and verifies it against the configured secret.
func JWTVerifier(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	secret := []byte(cfg.Auth.Secret)
	if len(secret) == 0 {
		return nil, ErrSecretNotSet
	}
	tokenAuth := jwtauth.New(JwtAlg, secret, nil)
	return jwtauth.Verifier(tokenAuth), nil
}
