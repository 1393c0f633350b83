package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/cppla/deptcms/config"
)

func init() {
	gin.SetMode(gin.TestMode)
	PasswordCost = bcrypt.MinCost
}

func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	UseRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return mr
}

func TestKVOneTimeValues(t *testing.T) {
	mr := useMiniredis(t)

	SaveResetCode("a@example.org", "123456", time.Minute)
	if ConsumeResetCode("a@example.org", "000000") {
		t.Fatal("wrong code accepted")
	}
	// a wrong guess burns the code
	if ConsumeResetCode("a@example.org", "123456") {
		t.Fatal("code usable after a wrong guess")
	}

	SaveResetCode("a@example.org", "654321", time.Minute)
	if !ConsumeResetCode("a@example.org", "654321") {
		t.Fatal("right code rejected")
	}
	if ConsumeResetCode("a@example.org", "654321") {
		t.Fatal("code used twice")
	}

	if !ResetCooldownTry("a@example.org", time.Minute) || ResetCooldownTry("a@example.org", time.Minute) {
		t.Error("cooldown should allow exactly one send")
	}
	mr.FastForward(2 * time.Minute)
	if !ResetCooldownTry("a@example.org", time.Minute) {
		t.Error("cooldown did not expire")
	}

	SaveState("st", time.Minute)
	if !ConsumeState("st") || ConsumeState("st") || ConsumeState("") {
		t.Error("oauth state must be single use")
	}
}

func TestKVFallsBackToMemory(t *testing.T) {
	mr := useMiniredis(t)
	mr.Close()

	KVSet("k", "v", time.Minute)
	if v, ok := KVGet("k"); !ok || v != "v" {
		t.Fatalf("get = %q %v", v, ok)
	}
	if v, ok := KVTake("k"); !ok || v != "v" {
		t.Fatalf("take = %q %v", v, ok)
	}
	if _, ok := KVGet("k"); ok {
		t.Error("value survived take")
	}
}

func TestTokenBlacklist(t *testing.T) {
	useMiniredis(t)
	BlacklistToken("tok", time.Now().Add(time.Hour))
	if !IsTokenBlacklisted("tok") || IsTokenBlacklisted("other") {
		t.Error("blacklist mismatch")
	}
}

func TestContactThrottle(t *testing.T) {
	useMiniredis(t)
	config.Set(config.AppConfig{JWTSecret: "test", ContactCooldownSec: 60, ContactMaxPerIPPerDay: 2})

	if !ContactCooldownTry("1.2.3.4") {
		t.Fatal("first submission blocked")
	}
	if ContactCooldownTry("1.2.3.4") {
		t.Error("cooldown not enforced")
	}
	if !ContactCooldownTry("5.6.7.8") {
		t.Error("cooldown leaked across addresses")
	}

	for i := 0; i < 2; i++ {
		if !ContactDailyLimitCheck("1.2.3.4") {
			t.Fatalf("blocked after %d messages", i)
		}
		ContactDailyIncrement("1.2.3.4")
	}
	if ContactDailyLimitCheck("1.2.3.4") {
		t.Error("daily limit not enforced")
	}
}

func TestServeCached(t *testing.T) {
	useMiniredis(t)
	key := CachePostsPrefix + "list:test"

	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	if ServeCached(ctx, key) {
		t.Fatal("hit on empty cache")
	}
	SuccessCached(ctx, key, gin.H{"n": 1}, time.Minute)

	w2 := httptest.NewRecorder()
	ctx2, _ := gin.CreateTestContext(w2)
	if !ServeCached(ctx2, key) {
		t.Fatal("miss after SuccessCached")
	}
	if w2.Header().Get("X-Cache") != "HIT" {
		t.Error("cached response not marked")
	}
	if w2.Code != http.StatusOK || !strings.Contains(w2.Body.String(), `"n":1`) || !strings.Contains(w2.Body.String(), `"code":0`) {
		t.Errorf("cached body = %s", w2.Body.String())
	}

	InvalidateByPrefix(CachePostsPrefix)
	if _, ok := cachedEnvelope(key); ok {
		t.Error("entry survived invalidation")
	}
}

func TestWantsJSON(t *testing.T) {
	cases := []struct {
		path, accept string
		want         bool
	}{
		{"/api/v1/posts", "", true},
		{"/manage", "text/html,application/xhtml+xml", false},
		{"/manage", "application/json", true},
		{"/manage", "", false},
	}
	for _, c := range cases {
		ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
		ctx.Request = httptest.NewRequest(http.MethodGet, c.path, nil)
		if c.accept != "" {
			ctx.Request.Header.Set("Accept", c.accept)
		}
		if got := WantsJSON(ctx); got != c.want {
			t.Errorf("WantsJSON(%s, %q) = %v", c.path, c.accept, got)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	config.Set(config.AppConfig{JWTSecret: "round-trip-secret"})
	tok, err := GenerateToken(42, "ada", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseToken(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "ada" || claims.ID == "" {
		t.Errorf("claims = %+v", claims)
	}

	expired, _ := GenerateToken(42, "ada", -time.Hour)
	if _, err := ParseToken(expired); err == nil {
		t.Error("expired token accepted")
	}

	config.Set(config.AppConfig{JWTSecret: "another-secret"})
	if _, err := ParseToken(tok); err == nil {
		t.Error("token signed with another secret accepted")
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(hash, "correct horse") || CheckPassword(hash, "wrong") || CheckPassword("", "") {
		t.Error("password check mismatch")
	}
	if NeedsRehash(hash) {
		t.Error("fresh hash needs rehash")
	}
	if _, err := HashPassword(strings.Repeat("x", 73)); err != ErrPasswordTooLong {
		t.Errorf("long password err = %v", err)
	}
}

func TestUnique(t *testing.T) {
	got := Unique([]uint{3, 1, 3, 2, 1})
	want := []uint{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestVerificationCode(t *testing.T) {
	code := GenerateVerificationCode(6)
	if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
		t.Errorf("code = %q", code)
	}
}

func TestSendMailAsyncUsesMailer(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 2)
	prev := UseMailer(func(to, subject, body string) error {
		mu.Lock()
		got = append(got, to)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	defer UseMailer(prev)

	SendMailAsync([]string{"a@example.org", "b@example.org"}, "hi", "body")
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("mail not sent")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "a@example.org" {
		t.Errorf("recipients = %v", got)
	}
}

func TestBuildMessage(t *testing.T) {
	cfg := config.AppConfig{SMTPFrom: "noreply@example.org", SiteName: "Department"}
	msg := string(buildMessage(cfg, "a@example.org", "Reset", "line1\nline2"))
	for _, want := range []string{"From: Department <noreply@example.org>\r\n", "To: a@example.org\r\n", "Subject: Reset\r\n", "\r\n\r\nline1\r\nline2"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}

	config.Set(config.AppConfig{JWTSecret: "test"})
	if err := sendSMTP("a@example.org", "x", "y"); err != ErrMailNotConfigured {
		t.Errorf("unconfigured smtp err = %v", err)
	}
}
