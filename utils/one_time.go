package utils

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/mojocn/base64Captcha"
)

// GenerateVerificationCode creates a numeric code with given length.
func GenerateVerificationCode(n int) string {
	if n <= 0 {
		n = 6
	}
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			v = big.NewInt(time.Now().UnixNano() % 10)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits)
}

// SaveResetCode stores a password reset code for email.
func SaveResetCode(email, code string, ttl time.Duration) {
	KVSet("reset:email:"+email, code, ttl)
}

// ConsumeResetCode checks a reset code and burns it, even when it is wrong.
func ConsumeResetCode(email, code string) bool {
	v, ok := KVTake("reset:email:" + email)
	return ok && code != "" && v == code
}

// ResetCooldownTry reports whether a new reset mail may be sent to email.
func ResetCooldownTry(email string, cooldown time.Duration) bool {
	return KVSetNX("cooldown:reset:"+email, "1", cooldown)
}

// SaveState stores an OAuth state token with TTL to mitigate CSRF.
func SaveState(state string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	KVSet("oauth:state:"+state, "1", ttl)
}

// ConsumeState validates and removes a state token.
func ConsumeState(state string) bool {
	if state == "" {
		return false
	}
	_, ok := KVTake("oauth:state:" + state)
	return ok
}

// BlacklistToken revokes token until its natural expiry.
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	KVSet("jwt:blacklist:"+token, "1", ttl)
}

// IsTokenBlacklisted reports whether token was revoked by logout.
func IsTokenBlacklisted(token string) bool {
	_, ok := KVGet("jwt:blacklist:" + token)
	return ok
}

// kvCaptchaStore keeps captcha answers in the shared key value store so
// captchas work behind a load balancer.
type kvCaptchaStore struct {
	ttl time.Duration
}

func (s kvCaptchaStore) Set(id string, value string) error {
	KVSet("captcha:"+id, value, s.ttl)
	return nil
}

func (s kvCaptchaStore) Get(id string, clear bool) string {
	var v string
	if clear {
		v, _ = KVTake("captcha:" + id)
	} else {
		v, _ = KVGet("captcha:" + id)
	}
	return v
}

func (s kvCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}

var captchaStore base64Captcha.Store = kvCaptchaStore{ttl: 10 * time.Minute}

// GenerateCaptcha creates a digit captcha and returns its id and data URI.
func GenerateCaptcha() (string, string, error) {
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	id, b64, _, err := base64Captcha.NewCaptcha(driver, captchaStore).Generate()
	return id, b64, err
}

// VerifyCaptcha verifies the provided answer and consumes the captcha.
func VerifyCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return captchaStore.Verify(id, answer, true)
}
