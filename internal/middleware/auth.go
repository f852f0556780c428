package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/requestdata"
	"github.com/yungbote/atelier-backend/internal/services"
	"github.com/yungbote/atelier-backend/internal/types"
)

type AuthMiddleware struct {
	log           *logger.Logger
	verifier      services.TokenVerifier
	membership    services.MembershipResolver
	internalToken string
}

func NewAuthMiddleware(log *logger.Logger, verifier services.TokenVerifier, membership services.MembershipResolver, internalToken string) *AuthMiddleware {
	return &AuthMiddleware{
		log:           log.With("middleware", "AuthMiddleware"),
		verifier:      verifier,
		membership:    membership,
		internalToken: internalToken,
	}
}

// RequireMember authenticates the bearer token, resolves the caller's role
// in the :spaceID of the route, and stashes both in the request context. A
// user without a membership row gets 403, not 404: space existence is not
// secret, its contents are.
func (am *AuthMiddleware) RequireMember() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		userID, err := am.verifier.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		spaceID, err := uuid.Parse(c.Param("spaceID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid space id"})
			return
		}
		role, ok, err := am.membership.ResolveRole(c.Request.Context(), spaceID, userID)
		if err != nil {
			am.log.Error("Membership resolution failed", "space_id", spaceID.String(), "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "membership lookup failed"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of this space"})
			return
		}
		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
			UserID:  userID,
			SpaceID: spaceID,
			Role:    role,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireInternal guards the executor-facing surface with the shared
// service token.
func (am *AuthMiddleware) RequireInternal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.internalToken == "" {
			am.log.Error("Internal surface called but INTERNAL_API_TOKEN is unset")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "internal surface disabled"})
			return
		}
		presented := ExtractToken(c)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(am.internalToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid internal token"})
			return
		}
		c.Next()
	}
}

// ExtractToken pulls the bearer credential from the Authorization header or
// the token query parameter. The query form exists for websocket upgrades,
// where browsers cannot set headers.
func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	return ""
}

// ActorRole reads the role RequireMember resolved, defaulting to viewer
// when the request carries no request data at all.
func ActorRole(c *gin.Context) types.Role {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		return types.RoleViewer
	}
	return rd.Role
}
