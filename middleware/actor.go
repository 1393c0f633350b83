package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/repository"
	"github.com/cppla/deptcms/utils"
)

// ContextActorKey stores the policy.Actor of the request.
const ContextActorKey = "actor"

// CurrentActor loads the role and teacher link of the authenticated user.
// Requests without identity become guests. A token for a removed account is
// treated as unauthenticated.
func CurrentActor(resolver policy.ActorResolver) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		v, ok := ctx.Get(ContextUserIDKey)
		if !ok {
			ctx.Set(ContextActorKey, policy.Guest())
			ctx.Next()
			return
		}
		id, _ := v.(uint)
		actor, err := resolver.Resolve(ctx.Request.Context(), id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				ctx.Set(ContextActorKey, policy.Guest())
				ctx.Next()
				return
			}
			utils.Sugar.Errorw("resolve actor failed", "user_id", id, "error", err)
			utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to load account")
			ctx.Abort()
			return
		}
		ctx.Set(ContextActorKey, actor)
		ctx.Next()
	}
}

// ActorFrom returns the request's actor, a guest when none was resolved.
func ActorFrom(ctx *gin.Context) policy.Actor {
	if v, ok := ctx.Get(ContextActorKey); ok {
		if a, ok := v.(policy.Actor); ok {
			return a
		}
	}
	return policy.Guest()
}
