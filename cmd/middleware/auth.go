package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Authenticator verifies staff bearer tokens issued by an OIDC provider.
type Authenticator struct {
	verifier *oidc.IDTokenVerifier
	clientID string
	logger   logrus.FieldLogger
}

// NewAuthenticator discovers the provider at issuerURL. When clientID is set,
// tokens must have been issued to that client (azp claim).
func NewAuthenticator(ctx context.Context, issuerURL, clientID string, logger logrus.FieldLogger) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, err
	}
	verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	logger.Infof("[AUTH] OIDC verifier initialized for %s", issuerURL)
	return NewAuthenticatorWithVerifier(verifier, clientID, logger), nil
}

func NewAuthenticatorWithVerifier(verifier *oidc.IDTokenVerifier, clientID string, logger logrus.FieldLogger) *Authenticator {
	return &Authenticator{verifier: verifier, clientID: clientID, logger: logger}
}

func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth"})
			return
		}

		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		if tokenStr == auth {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid format"})
			return
		}

		idToken, err := a.verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			a.logger.Warnf("[AUTH] verify failed: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var claims struct {
			Sub string `json:"sub"`
			Azp string `json:"azp"`
		}
		if err := idToken.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "claim parse failed"})
			return
		}

		if a.clientID != "" && claims.Azp != a.clientID {
			a.logger.Warnf("[AUTH] rejected: azp=%s (expected %q)", claims.Azp, a.clientID)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid client"})
			return
		}

		c.Set("user_id", claims.Sub)
		c.Next()
	}
}
