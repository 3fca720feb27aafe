package admin

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	jwtverifier "github.com/okta/okta-jwt-verifier-golang"
)

var toValidate = map[string]string{
	"aud": "api://default",
	"cid": os.Getenv("OKTA_CLIENT_ID"),
}

// VerifyBearerToken wraps h, rejecting the request unless its Authorization
// header carries a bearer token Okta accepts. Set NLOCK_ENV=DEV to bypass
// verification entirely for local development, or NLOCK_ENV=QA plus
// NLOCK_QA_TOKEN for a simple equality check instead of a real Okta round
// trip.
func VerifyBearerToken(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verify(c) {
			h(c)
		}
	}
}

func verify(c *gin.Context) bool {
	if os.Getenv("NLOCK_ENV") == "DEV" {
		return true
	}

	token := c.Request.Header.Get("Authorization")
	if !strings.HasPrefix(token, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing bearer token"})
		return false
	}
	token = strings.TrimPrefix(token, "Bearer ")

	if os.Getenv("NLOCK_ENV") == "QA" {
		if token == os.Getenv("NLOCK_QA_TOKEN") {
			return true
		}
	}

	verifierSetup := jwtverifier.JwtVerifier{
		Issuer:           "https://" + os.Getenv("OKTA_DOMAIN") + "/oauth2/default",
		ClaimsToValidate: toValidate,
	}
	verifier := verifierSetup.New()
	if _, err := verifier.VerifyAccessToken(token); err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": err.Error()})
		return false
	}
	return true
}
