package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/utils"
)

// RequireRole lets the request through when the actor's role is at least
// required. Must run after CurrentActor.
func RequireRole(required policy.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		actor := ActorFrom(ctx)
		if policy.HasRoleOrHigher(actor, required) {
			ctx.Next()
			return
		}
		Forbid(ctx, required, actor, "insufficient role")
	}
}

// Forbid ends a denied request. API style requests get the 403 denial
// document; browser requests go to the login page when anonymous and get a
// plain 403 otherwise.
func Forbid(ctx *gin.Context, required policy.Role, actor policy.Actor, message string) {
	if utils.WantsJSON(ctx) {
		utils.Deny(ctx, 40301, message, required.String(), actor.Role.String())
		return
	}
	if actor.IsGuest() {
		redirectToLogin(ctx)
		return
	}
	ctx.AbortWithStatus(http.StatusForbidden)
}

// ForbidDenied answers a policy denial.
func ForbidDenied(ctx *gin.Context, d *policy.Denied) {
	msg := "this action is unauthorized"
	if d.CarveOut != "" {
		msg = string(d.CarveOut)
	}
	Forbid(ctx, d.Required, ActorFrom(ctx), msg)
}
