package utils

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// JSONResponse defines the uniform structure for API responses.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, 200, 0, "success", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}

// DenialResponse is the 403 document for API style requests.
type DenialResponse struct {
	Code         int    `json:"code"`
	Message      string `json:"message"`
	RequiredRole string `json:"required_role"`
	UserRole     string `json:"user_role"`
}

// Deny aborts with 403 and the denial document.
func Deny(ctx *gin.Context, code int, message, requiredRole, userRole string) {
	ctx.AbortWithStatusJSON(403, DenialResponse{
		Code:         code,
		Message:      message,
		RequiredRole: requiredRole,
		UserRole:     userRole,
	})
}

// WantsJSON reports whether the request is API style: under /api/ or
// explicitly asking for JSON rather than HTML.
func WantsJSON(ctx *gin.Context) bool {
	if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
		return true
	}
	accept := strings.ToLower(ctx.GetHeader("Accept"))
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
