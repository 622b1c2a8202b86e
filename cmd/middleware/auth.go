// cmd/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
)

// Context keys set by RequireAuth.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// Claims is the subset of the access token the service reads.
type Claims struct {
	Subject           string
	AuthorizedParty   string
	Name              string
	PreferredUsername string
	Roles             []string
}

// TokenVerifier checks a raw bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// OIDCVerifier verifies tokens against the issuer's published keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer. Audience is checked through azp in
// RequireAuth, so the client id check is skipped here.
func NewOIDCVerifier(ctx context.Context, issuerURL string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, err
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
	}, nil
}

type keycloakClaims struct {
	Sub               string `json:"sub"`
	Azp               string `json:"azp"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	var kc keycloakClaims
	if err := idToken.Claims(&kc); err != nil {
		return nil, err
	}
	roles := append([]string(nil), kc.RealmAccess.Roles...)
	if client, ok := kc.ResourceAccess[kc.Azp]; ok {
		roles = append(roles, client.Roles...)
	}
	return &Claims{
		Subject:           kc.Sub,
		AuthorizedParty:   kc.Azp,
		Name:              kc.Name,
		PreferredUsername: kc.PreferredUsername,
		Roles:             roles,
	}, nil
}

// ProfileRecorder stores the display name seen in a token.
type ProfileRecorder interface {
	UpsertProfile(ctx context.Context, userID, displayName string) error
}

type Auth struct {
	verifier TokenVerifier
	clientID string
	profiles ProfileRecorder
	seen     sync.Map
	logger   *zap.Logger
}

// NewAuth builds the middleware. An empty clientID accepts any azp; profiles
// may be nil.
func NewAuth(verifier TokenVerifier, clientID string, profiles ProfileRecorder, logger *zap.Logger) *Auth {
	return &Auth{verifier: verifier, clientID: clientID, profiles: profiles, logger: logger.Named("auth")}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": "UNAUTHORIZED", "message": msg},
	})
}

var errNoBearer = errors.New("invalid format")

func bearerToken(header string) (string, error) {
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || strings.TrimSpace(token) == "" {
		return "", errNoBearer
	}
	return strings.TrimSpace(token), nil
}

func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "missing auth")
			return
		}
		tokenStr, err := bearerToken(header)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		claims, err := a.verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			a.logger.Debug("verify failed", zap.Error(err))
			unauthorized(c, "invalid token")
			return
		}
		if claims.Subject == "" {
			unauthorized(c, "token has no subject")
			return
		}
		if a.clientID != "" && claims.AuthorizedParty != a.clientID {
			a.logger.Info("rejected client", zap.String("azp", claims.AuthorizedParty), zap.String("expected", a.clientID))
			unauthorized(c, "invalid client")
			return
		}

		a.recordProfile(c.Request.Context(), claims)

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextRole, models.RoleFromClaims(claims.Roles))
		c.Next()
	}
}

func (a *Auth) recordProfile(ctx context.Context, claims *Claims) {
	if a.profiles == nil {
		return
	}
	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = strings.TrimSpace(claims.PreferredUsername)
	}
	if name == "" {
		return
	}
	if prev, ok := a.seen.Load(claims.Subject); ok && prev.(string) == name {
		return
	}
	if err := a.profiles.UpsertProfile(ctx, claims.Subject, name); err != nil {
		a.logger.Warn("failed to record profile", zap.String("user_id", claims.Subject), zap.Error(err))
		return
	}
	a.seen.Store(claims.Subject, name)
}

// ActorFromContext returns the caller set by RequireAuth.
func ActorFromContext(c *gin.Context) (models.Actor, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		return models.Actor{}, false
	}
	role, ok := c.Get(ContextRole)
	if !ok {
		return models.Actor{UserID: userID, Role: models.RoleClient}, true
	}
	r, _ := role.(models.Role)
	if r == "" {
		r = models.RoleClient
	}
	return models.Actor{UserID: userID, Role: r}, true
}
