package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// accessClaims is the minimal shape the core needs out of an access
// token. Issuance lives outside the core (§1 non-goal); this type only
// decodes what a token an outside auth service already signed carries.
type accessClaims struct {
	jwt.RegisteredClaims
}

// AuthMiddleware verifies the bearer token's signature and audience/
// issuer, then stashes the subject as "userID" the way the teacher's
// AuthMiddleware stashes the validated user, generalized from a
// usecase lookup to a pure JWT decode since token issuance is out of
// scope here.
func AuthMiddleware(secret, audience, issuer string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims := &accessClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithAudience(audience), jwt.WithIssuer(issuer))
		if err != nil || !token.Valid || claims.Subject == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("userID", claims.Subject)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	v, _ := c.Get("userID")
	id, _ := v.(string)
	return id
}
