package controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/config"
	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/routes"
	"github.com/cppla/deptcms/utils"
	"github.com/cppla/deptcms/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.PasswordCost = bcrypt.MinCost
	if err := validation.Register(); err != nil {
		panic(err)
	}
}

type env struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

type envelope struct {
	Code         int             `json:"code"`
	Message      string          `json:"message"`
	Data         json.RawMessage `json:"data"`
	RequiredRole string          `json:"required_role"`
	UserRole     string          `json:"user_role"`
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	config.Set(config.AppConfig{
		JWTSecret:             "controller-test-secret",
		GinMode:               "test",
		GinPath:               filepath.Join(dir, "gin.log"),
		RateLimitPerMinute:    100000,
		StaticDir:             filepath.Join(dir, "static"),
		PublicDiskRoot:        filepath.Join(dir, "public"),
		PublicURLPrefix:       "/storage",
		MaxUploadMB:           1,
		ContactCooldownSec:    60,
		ContactMaxPerIPPerDay: 5,
	})

	mr := miniredis.RunT(t)
	utils.UseRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &env{t: t, db: db, router: routes.SetupRouter(routes.NewDeps(db))}
}

// account creates a user with role and returns it with a bearer token.
func (e *env) account(username string, role policy.Role, teacherID *uint) (models.User, string) {
	e.t.Helper()
	u := models.User{Username: username, Name: username, Role: role, TeacherID: teacherID}
	if err := e.db.Create(&u).Error; err != nil {
		e.t.Fatalf("create user %s: %v", username, err)
	}
	token, err := utils.GenerateToken(u.ID, u.Username, time.Hour)
	if err != nil {
		e.t.Fatalf("token: %v", err)
	}
	return u, token
}

func (e *env) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(req, token)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var out envelope
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func data(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if raw := decode(t, w).Data; len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return m
}

func expect(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d: %s", w.Code, status, w.Body.String())
	}
}

// idOf reads data[key].id from a success response.
func idOf(t *testing.T, w *httptest.ResponseRecorder, key string) uint {
	t.Helper()
	obj, ok := data(t, w)[key].(map[string]any)
	if !ok {
		t.Fatalf("no %s in %s", key, w.Body.String())
	}
	return uint(obj["id"].(float64))
}

// total reads data.pagination.total from a list response.
func total(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	pg, ok := data(t, w)["pagination"].(map[string]any)
	if !ok {
		t.Fatalf("no pagination in %s", w.Body.String())
	}
	n, ok := pg["total"].(float64)
	if !ok {
		t.Fatalf("no total in %s", w.Body.String())
	}
	return int(n)
}

func TestManageRequiresTeacher(t *testing.T) {
	e := newEnv(t)
	_, member := e.account("reader", policy.RoleUser, nil)

	w := e.do(http.MethodGet, "/api/v1/manage/posts", "", nil)
	expect(t, w, http.StatusForbidden)
	if d := decode(t, w); d.RequiredRole != "teacher" || d.UserRole != "guest" {
		t.Errorf("denial = %+v", d)
	}

	w = e.do(http.MethodGet, "/api/v1/manage/posts", member, nil)
	expect(t, w, http.StatusForbidden)
	if d := decode(t, w); d.UserRole != "user" {
		t.Errorf("user_role = %q", d.UserRole)
	}

	req := httptest.NewRequest(http.MethodGet, "/manage", nil)
	req.Header.Set("Accept", "text/html")
	w = e.send(req, "")
	if w.Code != http.StatusFound || !strings.HasPrefix(w.Header().Get("Location"), "/login") {
		t.Errorf("browser guest: status %d location %q", w.Code, w.Header().Get("Location"))
	}
}

func TestPostVisibilityAndPublishing(t *testing.T) {
	e := newEnv(t)
	_, admin := e.account("admin", policy.RoleAdmin, nil)
	_, alice := e.account("alice", policy.RoleTeacher, nil)
	_, bob := e.account("bob", policy.RoleTeacher, nil)

	w := e.do(http.MethodPost, "/api/v1/manage/posts", alice, gin.H{"title": "Seminar", "content": "<p>Talk</p>"})
	expect(t, w, http.StatusOK)
	id := idOf(t, w, "post")
	path := fmt.Sprintf("/api/v1/posts/%d", id)

	expect(t, e.do(http.MethodGet, path, "", nil), http.StatusForbidden)
	expect(t, e.do(http.MethodGet, path, bob, nil), http.StatusForbidden)
	expect(t, e.do(http.MethodGet, path, alice, nil), http.StatusOK)
	expect(t, e.do(http.MethodGet, path, admin, nil), http.StatusOK)

	if w := e.do(http.MethodGet, "/api/v1/posts", "", nil); total(t, w) != 0 {
		t.Fatalf("draft listed publicly: %s", w.Body.String())
	}

	manage := fmt.Sprintf("/api/v1/manage/posts/%d", id)
	expect(t, e.do(http.MethodPut, manage, bob, gin.H{"title": "Hijacked"}), http.StatusForbidden)
	expect(t, e.do(http.MethodPut, manage, alice, gin.H{"title": "Seminar (room change)"}), http.StatusOK)

	expect(t, e.do(http.MethodPost, manage+"/publish", alice, nil), http.StatusForbidden)
	expect(t, e.do(http.MethodPost, manage+"/publish", admin, nil), http.StatusOK)

	w = e.do(http.MethodGet, path, "", nil)
	expect(t, w, http.StatusOK)
	if title := data(t, w)["post"].(map[string]any)["title"]; title != "Seminar (room change)" {
		t.Errorf("title = %v", title)
	}
	if w := e.do(http.MethodGet, "/api/v1/posts", "", nil); total(t, w) != 1 {
		t.Errorf("published post missing from list: %s", w.Body.String())
	}

	expect(t, e.do(http.MethodPost, manage+"/unpublish", admin, nil), http.StatusOK)
	if w := e.do(http.MethodGet, "/api/v1/posts", "", nil); total(t, w) != 0 {
		t.Errorf("cached list survived unpublish: %s", w.Body.String())
	}
	expect(t, e.do(http.MethodGet, path, "", nil), http.StatusForbidden)
}

func TestPostTrashLifecycle(t *testing.T) {
	e := newEnv(t)
	_, admin := e.account("admin", policy.RoleAdmin, nil)
	_, alice := e.account("alice", policy.RoleTeacher, nil)

	w := e.do(http.MethodPost, "/api/v1/manage/posts", alice, gin.H{"title": "Exam schedule"})
	expect(t, w, http.StatusOK)
	manage := fmt.Sprintf("/api/v1/manage/posts/%d", idOf(t, w, "post"))

	expect(t, e.do(http.MethodDelete, manage+"/force", admin, nil), http.StatusConflict)
	expect(t, e.do(http.MethodPost, manage+"/restore", alice, nil), http.StatusConflict)

	expect(t, e.do(http.MethodDelete, manage, alice, nil), http.StatusOK)
	expect(t, e.do(http.MethodDelete, manage, alice, nil), http.StatusNotFound)
	expect(t, e.do(http.MethodDelete, manage+"/force", alice, nil), http.StatusForbidden)

	expect(t, e.do(http.MethodPost, manage+"/restore", alice, nil), http.StatusOK)
	expect(t, e.do(http.MethodDelete, manage, alice, nil), http.StatusOK)
	expect(t, e.do(http.MethodDelete, manage+"/force", admin, nil), http.StatusOK)
	expect(t, e.do(http.MethodPost, manage+"/restore", admin, nil), http.StatusNotFound)

	var n int64
	e.db.Unscoped().Model(&models.Post{}).Count(&n)
	if n != 0 {
		t.Errorf("%d posts left after force delete", n)
	}
}

func TestComments(t *testing.T) {
	e := newEnv(t)
	_, admin := e.account("admin", policy.RoleAdmin, nil)
	_, alice := e.account("alice", policy.RoleTeacher, nil)
	_, carol := e.account("carol", policy.RoleUser, nil)
	_, dave := e.account("dave", policy.RoleUser, nil)

	w := e.do(http.MethodPost, "/api/v1/manage/posts", alice, gin.H{"title": "Open day"})
	expect(t, w, http.StatusOK)
	postID := idOf(t, w, "post")
	comments := fmt.Sprintf("/api/v1/posts/%d/comments", postID)

	expect(t, e.do(http.MethodPost, comments, carol, gin.H{"content": "Is it open to alumni?"}), http.StatusForbidden)
	expect(t, e.do(http.MethodPost, fmt.Sprintf("/api/v1/manage/posts/%d/publish", postID), admin, nil), http.StatusOK)

	expect(t, e.do(http.MethodPost, comments, "", gin.H{"content": "anonymous"}), http.StatusUnauthorized)
	expect(t, e.do(http.MethodPost, comments, carol, gin.H{"content": "<script>x</script>"}), http.StatusBadRequest)

	w = e.do(http.MethodPost, comments, carol, gin.H{"content": "Is it open to alumni?"})
	expect(t, w, http.StatusOK)
	first := idOf(t, w, "comment")
	w = e.do(http.MethodPost, comments, carol, gin.H{"content": "Thanks!"})
	expect(t, w, http.StatusOK)
	second := idOf(t, w, "comment")

	if w := e.do(http.MethodGet, comments, "", nil); total(t, w) != 2 {
		t.Errorf("comments: %s", w.Body.String())
	}

	expect(t, e.do(http.MethodDelete, fmt.Sprintf("/api/v1/comments/%d", first), dave, nil), http.StatusForbidden)
	expect(t, e.do(http.MethodDelete, fmt.Sprintf("/api/v1/comments/%d", first), carol, nil), http.StatusOK)
	expect(t, e.do(http.MethodDelete, fmt.Sprintf("/api/v1/comments/%d", second), admin, nil), http.StatusOK)

	if w := e.do(http.MethodGet, comments, "", nil); total(t, w) != 0 {
		t.Errorf("comments after delete: %s", w.Body.String())
	}
}

func TestLabMembersMayEdit(t *testing.T) {
	e := newEnv(t)
	_, admin := e.account("admin", policy.RoleAdmin, nil)
	prof := models.Teacher{Name: "Prof. Li"}
	if err := e.db.Create(&prof).Error; err != nil {
		t.Fatal(err)
	}
	_, member := e.account("li", policy.RoleTeacher, &prof.ID)
	_, outsider := e.account("wu", policy.RoleTeacher, nil)

	expect(t, e.do(http.MethodPost, "/api/v1/manage/labs", member, gin.H{"name": "Vision Lab"}), http.StatusForbidden)
	w := e.do(http.MethodPost, "/api/v1/manage/labs", admin, gin.H{"name": "Vision Lab"})
	expect(t, w, http.StatusOK)
	lab := fmt.Sprintf("/api/v1/manage/labs/%d", idOf(t, w, "lab"))

	expect(t, e.do(http.MethodPut, lab, member, gin.H{"name": "Vision and Graphics Lab"}), http.StatusForbidden)
	expect(t, e.do(http.MethodPost, lab+"/members", admin, gin.H{"teacher_id": prof.ID}), http.StatusOK)

	expect(t, e.do(http.MethodPut, lab, member, gin.H{"name": "Vision and Graphics Lab"}), http.StatusOK)
	expect(t, e.do(http.MethodPut, lab, outsider, gin.H{"name": "Mine now"}), http.StatusForbidden)
	expect(t, e.do(http.MethodGet, lab+"/analytics", member, nil), http.StatusOK)
	expect(t, e.do(http.MethodDelete, lab, member, nil), http.StatusForbidden)

	w = e.do(http.MethodGet, "/api/v1/labs", "", nil)
	expect(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "Vision and Graphics Lab") {
		t.Errorf("public list is stale: %s", w.Body.String())
	}
}

func TestLabPostsRespectPostPolicy(t *testing.T) {
	e := newEnv(t)
	_, admin := e.account("admin", policy.RoleAdmin, nil)
	prof := models.Teacher{Name: "Prof. Li"}
	if err := e.db.Create(&prof).Error; err != nil {
		t.Fatal(err)
	}
	_, li := e.account("li", policy.RoleTeacher, &prof.ID)
	_, bob := e.account("bob", policy.RoleTeacher, nil)

	w := e.do(http.MethodPost, "/api/v1/manage/labs", admin, gin.H{"name": "Vision Lab"})
	expect(t, w, http.StatusOK)
	labID := idOf(t, w, "lab")
	lab := fmt.Sprintf("/api/v1/manage/labs/%d", labID)
	w = e.do(http.MethodPost, "/api/v1/manage/labs", admin, gin.H{"name": "Robotics Lab"})
	expect(t, w, http.StatusOK)
	otherLab := idOf(t, w, "lab")
	expect(t, e.do(http.MethodPost, lab+"/members", admin, gin.H{"teacher_id": prof.ID}), http.StatusOK)

	w = e.do(http.MethodPost, "/api/v1/manage/posts", bob, gin.H{"title": "Bob private draft"})
	expect(t, w, http.StatusOK)
	draft := idOf(t, w, "post")
	expect(t, e.do(http.MethodPost, fmt.Sprintf("%s/posts/%d", lab, draft), li, nil), http.StatusForbidden)

	w = e.do(http.MethodPost, "/api/v1/manage/posts", li, gin.H{"title": "Reading group"})
	expect(t, w, http.StatusOK)
	own := idOf(t, w, "post")
	expect(t, e.do(http.MethodPost, fmt.Sprintf("%s/posts/%d", lab, own), li, nil), http.StatusOK)

	w = e.do(http.MethodPost, "/api/v1/manage/posts", li, gin.H{"title": "Robot demo"})
	expect(t, w, http.StatusOK)
	filed := idOf(t, w, "post")
	if err := e.db.Model(&models.Post{}).Where("id = ?", filed).Update("lab_id", otherLab).Error; err != nil {
		t.Fatal(err)
	}
	expect(t, e.do(http.MethodPost, fmt.Sprintf("%s/posts/%d", lab, filed), li, nil), http.StatusConflict)

	if err := e.db.Model(&models.Post{}).Where("id = ?", draft).Update("lab_id", labID).Error; err != nil {
		t.Fatal(err)
	}
	w = e.do(http.MethodGet, lab+"/posts", li, nil)
	expect(t, w, http.StatusOK)
	if total(t, w) != 1 || strings.Contains(w.Body.String(), "Bob private draft") {
		t.Errorf("member sees another teacher's draft: %s", w.Body.String())
	}
	if w := e.do(http.MethodGet, lab+"/posts", admin, nil); total(t, w) != 2 {
		t.Errorf("admin lab posts: %s", w.Body.String())
	}
}

func TestUserAdministration(t *testing.T) {
	e := newEnv(t)
	root, admin := e.account("admin", policy.RoleAdmin, nil)
	other, _ := e.account("admin2", policy.RoleAdmin, nil)
	_, teacher := e.account("alice", policy.RoleTeacher, nil)
	carol, carolToken := e.account("carol", policy.RoleUser, nil)

	w := e.do(http.MethodGet, "/api/v1/manage/users", teacher, nil)
	expect(t, w, http.StatusOK)
	if n := total(t, w); n != 1 {
		t.Errorf("teacher sees %d users, want only plain users", n)
	}

	w = e.do(http.MethodDelete, fmt.Sprintf("/api/v1/admin/users/%d", root.ID), admin, nil)
	expect(t, w, http.StatusForbidden)
	if msg := decode(t, w).Message; msg != string(policy.CarveOutDeleteSelf) {
		t.Errorf("message = %q", msg)
	}
	expect(t, e.do(http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d/role", other.ID), admin, gin.H{"role": "teacher"}), http.StatusForbidden)
	expect(t, e.do(http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d/role", carol.ID), admin, gin.H{"role": "admin"}), http.StatusForbidden)
	expect(t, e.do(http.MethodPost, "/api/v1/admin/users", admin, gin.H{"username": "eve", "password": "longenough", "role": "admin"}), http.StatusForbidden)

	expect(t, e.do(http.MethodGet, "/api/v1/manage/posts", carolToken, nil), http.StatusForbidden)
	expect(t, e.do(http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d/role", carol.ID), admin, gin.H{"role": "teacher"}), http.StatusOK)
	expect(t, e.do(http.MethodGet, "/api/v1/manage/posts", carolToken, nil), http.StatusOK)

	expect(t, e.do(http.MethodDelete, fmt.Sprintf("/api/v1/admin/users/%d", carol.ID), admin, nil), http.StatusOK)
	w = e.do(http.MethodGet, "/api/v1/manage/posts", carolToken, nil)
	expect(t, w, http.StatusForbidden)
	if d := decode(t, w); d.UserRole != "guest" {
		t.Errorf("trashed account resolved to %q", d.UserRole)
	}
}

func (e *env) upload(token string, postID uint, name string, content []byte) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("attachable_type", string(models.AttachablePost))
	_ = mw.WriteField("attachable_id", fmt.Sprint(postID))
	_ = mw.WriteField("title", "Handout")
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		e.t.Fatal(err)
	}
	_, _ = fw.Write(content)
	if err := mw.Close(); err != nil {
		e.t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/manage/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.send(req, token)
}

func TestAttachmentUploadAndDownload(t *testing.T) {
	e := newEnv(t)
	_, admin := e.account("admin", policy.RoleAdmin, nil)
	_, alice := e.account("alice", policy.RoleTeacher, nil)
	_, bob := e.account("bob", policy.RoleTeacher, nil)

	w := e.do(http.MethodPost, "/api/v1/manage/posts", alice, gin.H{"title": "Lecture notes"})
	expect(t, w, http.StatusOK)
	postID := idOf(t, w, "post")

	expect(t, e.upload(bob, postID, "notes.txt", []byte("hello")), http.StatusForbidden)
	expect(t, e.upload(alice, postID, "big.bin", bytes.Repeat([]byte("x"), 2<<20)), http.StatusRequestEntityTooLarge)

	w = e.upload(alice, postID, "notes.txt", []byte("chapter one"))
	expect(t, w, http.StatusOK)
	download := fmt.Sprintf("/attachments/%d/download", idOf(t, w, "attachment"))

	expect(t, e.do(http.MethodGet, download, "", nil), http.StatusNotFound)
	w = e.do(http.MethodGet, download, alice, nil)
	expect(t, w, http.StatusOK)
	if w.Body.String() != "chapter one" {
		t.Errorf("body = %q", w.Body.String())
	}

	expect(t, e.do(http.MethodPost, fmt.Sprintf("/api/v1/manage/posts/%d/publish", postID), admin, nil), http.StatusOK)
	w = e.do(http.MethodGet, download, "", nil)
	expect(t, w, http.StatusOK)
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "Handout") {
		t.Errorf("disposition = %q", cd)
	}

	w = e.do(http.MethodGet, fmt.Sprintf("/api/v1/attachments?attachable_type=post&attachable_id=%d", postID), "", nil)
	expect(t, w, http.StatusOK)
	if total(t, w) != 1 {
		t.Errorf("attachments: %s", w.Body.String())
	}
}

func TestAttachmentLinkRedirects(t *testing.T) {
	e := newEnv(t)
	_, admin := e.account("admin", policy.RoleAdmin, nil)

	w := e.do(http.MethodPost, "/api/v1/manage/posts", admin, gin.H{"title": "Call for papers", "status": "published"})
	expect(t, w, http.StatusOK)
	postID := idOf(t, w, "post")

	link := gin.H{
		"attachable_type": "post",
		"attachable_id":   postID,
		"title":           "Submission site",
		"external_url":    "javascript:alert(document.cookie)",
	}
	expect(t, e.do(http.MethodPost, "/api/v1/manage/attachments/link", admin, link), http.StatusBadRequest)

	link["external_url"] = "https://example.org/cfp"
	w = e.do(http.MethodPost, "/api/v1/manage/attachments/link", admin, link)
	expect(t, w, http.StatusOK)
	id := idOf(t, w, "attachment")

	w = e.do(http.MethodGet, fmt.Sprintf("/attachments/%d", id), "", nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "https://example.org/cfp" {
		t.Fatalf("status %d location %q", w.Code, w.Header().Get("Location"))
	}

	expect(t, e.do(http.MethodDelete, fmt.Sprintf("/api/v1/manage/attachments/%d", id), admin, nil), http.StatusOK)
	expect(t, e.do(http.MethodGet, fmt.Sprintf("/attachments/%d", id), "", nil), http.StatusNotFound)
}

func (e *env) contact(ip string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/contact", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = ip + ":40000"
	return e.send(req, "")
}

func TestContactMessages(t *testing.T) {
	e := newEnv(t)
	admin, adminToken := e.account("admin", policy.RoleAdmin, nil)
	_, teacher := e.account("alice", policy.RoleTeacher, nil)

	msg := gin.H{"name": "Visitor", "email": "visitor@example.org", "subject": "Admission", "message": "When does enrolment open?"}
	expect(t, e.contact("198.51.100.7", gin.H{"name": "Visitor"}), http.StatusBadRequest)
	w := e.contact("198.51.100.7", msg)
	expect(t, w, http.StatusOK)
	id := uint(data(t, w)["id"].(float64))
	expect(t, e.contact("198.51.100.7", msg), http.StatusTooManyRequests)
	expect(t, e.contact("198.51.100.8", msg), http.StatusOK)

	expect(t, e.do(http.MethodGet, "/api/v1/admin/contacts", teacher, nil), http.StatusForbidden)
	w = e.do(http.MethodGet, "/api/v1/admin/contacts?status=new", adminToken, nil)
	expect(t, w, http.StatusOK)
	if total(t, w) != 2 {
		t.Errorf("contacts: %s", w.Body.String())
	}

	status := fmt.Sprintf("/api/v1/admin/contacts/%d/status", id)
	expect(t, e.do(http.MethodPut, status, adminToken, gin.H{"status": "archived"}), http.StatusBadRequest)
	expect(t, e.do(http.MethodPut, status, adminToken, gin.H{"status": "resolved", "note": "Replied by email"}), http.StatusOK)

	var saved models.ContactMessage
	if err := e.db.First(&saved, id).Error; err != nil {
		t.Fatal(err)
	}
	if saved.Status != models.ContactResolved || saved.ProcessedBy == nil || *saved.ProcessedBy != admin.ID {
		t.Errorf("saved = %+v", saved)
	}

	w = e.do(http.MethodGet, "/api/v1/admin/contacts/export", adminToken, nil)
	expect(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Errorf("export is not a zip container")
	}

	expect(t, e.do(http.MethodDelete, fmt.Sprintf("/api/v1/admin/contacts/%d", id), adminToken, nil), http.StatusOK)
	expect(t, e.do(http.MethodGet, fmt.Sprintf("/api/v1/admin/contacts/%d", id), adminToken, nil), http.StatusNotFound)
}

func TestCatalogResources(t *testing.T) {
	e := newEnv(t)
	_, admin := e.account("admin", policy.RoleAdmin, nil)
	_, alice := e.account("alice", policy.RoleTeacher, nil)
	_, bob := e.account("bob", policy.RoleTeacher, nil)

	expect(t, e.do(http.MethodPost, "/api/v1/manage/staff", alice, gin.H{"name": "Ms. Chen"}), http.StatusForbidden)
	w := e.do(http.MethodPost, "/api/v1/manage/staff", admin, gin.H{"name": "Ms. Chen", "position": "Secretary"})
	expect(t, w, http.StatusOK)
	staff := fmt.Sprintf("/api/v1/manage/staff/%d", idOf(t, w, "staff"))

	if w := e.do(http.MethodGet, "/api/v1/staff", "", nil); total(t, w) != 1 {
		t.Fatalf("public staff: %s", w.Body.String())
	}
	expect(t, e.do(http.MethodDelete, staff, admin, nil), http.StatusOK)
	if w := e.do(http.MethodGet, "/api/v1/staff", "", nil); total(t, w) != 0 {
		t.Errorf("trashed staff still listed: %s", w.Body.String())
	}
	if w := e.do(http.MethodGet, "/api/v1/manage/staff?trashed=only", admin, nil); total(t, w) != 1 {
		t.Errorf("trash view: %s", w.Body.String())
	}
	expect(t, e.do(http.MethodPost, staff+"/restore", admin, nil), http.StatusOK)

	w = e.do(http.MethodPost, "/api/v1/manage/publications", alice, gin.H{"title": "On Graphs", "authors": "A. Li", "year": 2024})
	expect(t, w, http.StatusOK)
	pub := fmt.Sprintf("/api/v1/manage/publications/%d", idOf(t, w, "publication"))
	expect(t, e.do(http.MethodPut, pub, bob, gin.H{"title": "Mine", "year": 2024}), http.StatusForbidden)
	expect(t, e.do(http.MethodPut, pub, alice, gin.H{"title": "On Sparse Graphs", "authors": "A. Li", "year": 2024}), http.StatusOK)
	expect(t, e.do(http.MethodDelete, pub+"/force", alice, nil), http.StatusForbidden)

	w = e.do(http.MethodGet, "/api/v1/publications?year=2024", "", nil)
	expect(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "On Sparse Graphs") {
		t.Errorf("publications: %s", w.Body.String())
	}

	expect(t, e.do(http.MethodPost, "/api/v1/manage/courses", admin, gin.H{"code": "CS101", "name": "Intro", "program_id": 999}), http.StatusBadRequest)
}

func TestSiteAndStats(t *testing.T) {
	e := newEnv(t)
	_, teacher := e.account("alice", policy.RoleTeacher, nil)
	_, admin := e.account("admin", policy.RoleAdmin, nil)

	w := e.do(http.MethodGet, "/api/v1/site/footer", "", nil)
	expect(t, w, http.StatusOK)
	if name := data(t, w)["name"]; name != "Department" {
		t.Errorf("footer name = %v", name)
	}

	w = e.do(http.MethodGet, "/api/v1/manage/stats", teacher, nil)
	expect(t, w, http.StatusOK)
	if n := data(t, w)["user_count"]; n != float64(2) {
		t.Errorf("user_count = %v", n)
	}
	expect(t, e.do(http.MethodGet, "/api/v1/admin/stats/pages", teacher, nil), http.StatusForbidden)
	expect(t, e.do(http.MethodGet, "/api/v1/admin/stats/pages?days=0", admin, nil), http.StatusBadRequest)
	expect(t, e.do(http.MethodGet, "/api/v1/admin/stats/pages?days=7", admin, nil), http.StatusOK)

	w = e.do(http.MethodGet, "/api/v1/nothing-here", "", nil)
	expect(t, w, http.StatusNotFound)
	if decode(t, w).Code != 40400 {
		t.Errorf("unknown api route: %s", w.Body.String())
	}
}
