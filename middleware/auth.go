package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/deptcms/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextTokenKey stores the raw token so logout can revoke it.
	ContextTokenKey = "token"
	// ContextClaimsKey stores the parsed *utils.Claims.
	ContextClaimsKey = "claims"

	// AccessTokenCookie carries the token for browser pages.
	AccessTokenCookie = "access_token"
)

type authFailure struct {
	code    int
	message string
}

// bearerToken reads the Authorization header, then the access token cookie.
// ok is false when neither is present.
func bearerToken(ctx *gin.Context) (string, *authFailure, bool) {
	if authHeader := ctx.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", &authFailure{40102, "invalid authorization header format"}, true
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			return "", &authFailure{40103, "empty bearer token"}, true
		}
		return token, nil, true
	}
	if c, err := ctx.Cookie(AccessTokenCookie); err == nil && c != "" {
		return c, nil, true
	}
	return "", nil, false
}

// authenticate validates the request token and stores the identity in ctx.
func authenticate(ctx *gin.Context) (present bool, fail *authFailure) {
	token, fail, present := bearerToken(ctx)
	if !present || fail != nil {
		return present, fail
	}
	if utils.IsTokenBlacklisted(token) {
		return true, &authFailure{40104, "token revoked"}
	}
	claims, err := utils.ParseToken(token)
	if err != nil {
		return true, &authFailure{40105, "invalid token"}
	}
	ctx.Set(ContextUserIDKey, claims.UserID)
	ctx.Set(ContextUsernameKey, claims.Username)
	ctx.Set(ContextTokenKey, token)
	ctx.Set(ContextClaimsKey, claims)
	return true, nil
}

// AuthRequired ensures the request is authenticated via JWT. API requests
// get 401; browser page requests are sent to the login page.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		present, fail := authenticate(ctx)
		if !present {
			fail = &authFailure{40101, "authorization header missing"}
		}
		if fail != nil {
			if !utils.WantsJSON(ctx) {
				redirectToLogin(ctx)
				return
			}
			utils.Error(ctx, http.StatusUnauthorized, fail.code, fail.message)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// OptionalAuth sets the identity when a valid token is sent and otherwise
// continues as a guest.
func OptionalAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		_, _ = authenticate(ctx)
		ctx.Next()
	}
}

func redirectToLogin(ctx *gin.Context) {
	target := "/login"
	if p := ctx.Request.URL.RequestURI(); p != "" && p != "/" {
		target += "?redirect=" + url.QueryEscape(p)
	}
	ctx.Redirect(http.StatusFound, target)
	ctx.Abort()
}
