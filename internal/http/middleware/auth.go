package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"ip-workflow-service/internal/auth"
	"ip-workflow-service/internal/model"
)

const principalContextKey = "principal"

var (
	errHeaderMissing = errors.New("authorization header missing")
	errHeaderInvalid = errors.New("invalid authorization header")
)

// Auth resolves the bearer token into a model.Principal and binds the
// caller's id and role to the request logger.
func Auth(parser *auth.Parser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		claims, err := parser.Parse(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		principal := claims.Principal()
		c.Set(principalContextKey, principal)

		ctx := c.Request.Context()
		reqLog := zerolog.Ctx(ctx).With().
			Str("user_id", principal.UserID.String()).
			Str("role", string(principal.Role)).
			Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(ctx))
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errHeaderMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errHeaderInvalid
	}
	return token, nil
}

func MustPrincipal(c *gin.Context) (model.Principal, bool) {
	principal, ok := c.Get(principalContextKey)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := principal.(model.Principal)
	return p, ok
}
