package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func respondWithError(c *gin.Context, code int, message interface{}) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

var (
	// ErrEmptyAuthHeader can be thrown if authing with a HTTP header, the Auth header needs to be set
	ErrEmptyAuthHeader = errors.New("auth header is empty")

	// ErrInvalidAuthHeader indicates auth header is invalid, could for example have the wrong Realm name
	ErrInvalidAuthHeader = errors.New("auth header is invalid")
)

func jwtFromHeader(c *gin.Context) (string, error) {
	authHeader := c.Request.Header.Get("Authorization")

	if authHeader == "" {
		return "", ErrEmptyAuthHeader
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if !(len(parts) == 2 && parts[0] == "Bearer") {
		return "", ErrInvalidAuthHeader
	}

	return parts[1], nil
}

// EventDeliveryAuthMiddleware rejects event deliveries that do not carry a
// valid OIDC token for the configured audience.
func EventDeliveryAuthMiddleware(jwtAuth *JwtAuth, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "event_auth").Logger()

	return func(c *gin.Context) {
		idToken, err := jwtFromHeader(c)
		if err != nil {
			log.Warn().Err(err).Msg("rejected event delivery")
			respondWithError(c, http.StatusUnauthorized, err.Error())
			return
		}

		token, err := jwtAuth.ParseJWT(idToken)
		if err != nil || !token.Valid {
			log.Warn().Err(err).Msg("rejected event delivery")
			respondWithError(c, http.StatusUnauthorized, "Invalid delivery token")
			return
		}

		sub, err := jwtAuth.sub(token)
		if err != nil {
			log.Warn().Err(err).Msg("rejected event delivery")
			respondWithError(c, http.StatusUnauthorized, "Sub does not exist")
			return
		}

		log.Debug().Str("sub", sub).Str("path", c.FullPath()).Msg("accepted event delivery")

		c.Next()
	}
}
