package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/cppla/deptcms/config"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/repository"
	"github.com/cppla/deptcms/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testActors = map[uint]policy.Actor{
	1: {ID: 1, Username: "root", Role: policy.RoleAdmin},
	2: {ID: 2, Username: "prof", Role: policy.RoleTeacher},
	3: {ID: 3, Username: "stud", Role: policy.RoleUser},
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	config.Set(config.AppConfig{JWTSecret: "test-secret"})
	mr := miniredis.RunT(t)
	utils.UseRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	resolver := policy.ResolverFunc(func(_ context.Context, id uint) (policy.Actor, error) {
		a, ok := testActors[id]
		if !ok {
			return policy.Actor{}, repository.ErrNotFound
		}
		return a, nil
	})

	r := gin.New()
	r.Use(OptionalAuth(), CurrentActor(resolver))
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.GET("/api/v1/manage/posts", RequireRole(policy.RoleTeacher), ok)
	r.GET("/api/v1/admin/users", RequireRole(policy.RoleAdmin), ok)
	r.GET("/manage", RequireRole(policy.RoleTeacher), ok)
	r.GET("/api/v1/auth/me", AuthRequired(), ok)
	r.GET("/account", AuthRequired(), ok)
	return r
}

func tokenFor(t *testing.T, id uint) string {
	t.Helper()
	tok, err := utils.GenerateToken(id, testActors[id].Username, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func do(r http.Handler, path, token, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRoleAllowsHigherRoles(t *testing.T) {
	r := newTestRouter(t)
	for _, id := range []uint{1, 2} {
		if w := do(r, "/api/v1/manage/posts", tokenFor(t, id), ""); w.Code != http.StatusOK {
			t.Errorf("user %d: status %d, want 200", id, w.Code)
		}
	}
}

func TestRequireRoleAPIDenialDocument(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, "/api/v1/admin/users", tokenFor(t, 2), "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", w.Code)
	}
	var body utils.DenialResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RequiredRole != "admin" || body.UserRole != "teacher" || body.Message == "" {
		t.Errorf("denial = %+v", body)
	}

	w = do(r, "/api/v1/manage/posts", "", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("guest api status %d, want 403", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.UserRole != "guest" || body.RequiredRole != "teacher" {
		t.Errorf("guest denial = %+v", body)
	}
}

func TestRequireRoleBrowserNegotiation(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, "/manage", "", "text/html,application/xhtml+xml")
	if w.Code != http.StatusFound {
		t.Fatalf("guest browser status %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "/login") {
		t.Errorf("location = %q", loc)
	}

	w = do(r, "/manage", tokenFor(t, 3), "text/html")
	if w.Code != http.StatusForbidden {
		t.Errorf("user browser status %d, want 403", w.Code)
	}

	w = do(r, "/manage", "", "application/json")
	if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), "required_role") {
		t.Errorf("json accept outside /api: status %d body %s", w.Code, w.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t)
	if w := do(r, "/api/v1/auth/me", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status %d", w.Code)
	}
	if w := do(r, "/api/v1/auth/me", "garbage", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status %d", w.Code)
	}
	if w := do(r, "/account", "", "text/html"); w.Code != http.StatusFound {
		t.Errorf("browser without token: status %d, want 302", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: tokenFor(t, 3)})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("cookie token: status %d", w.Code)
	}
}

func TestCurrentActorUnknownAccountIsGuest(t *testing.T) {
	r := newTestRouter(t)
	tok, _ := utils.GenerateToken(99, "ghost", time.Hour)
	w := do(r, "/api/v1/manage/posts", tok, "")
	if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), `"user_role":"guest"`) {
		t.Errorf("status %d body %s", w.Code, w.Body.String())
	}
}

func TestRateLimitScopes(t *testing.T) {
	r := gin.New()
	r.GET("/strict", RateLimit("strict-test", 1), func(c *gin.Context) { c.Status(http.StatusOK) })
	first := do(r, "/strict", "", "")
	second := do(r, "/strict", "", "")
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Errorf("codes = %d, %d", first.Code, second.Code)
	}
}
