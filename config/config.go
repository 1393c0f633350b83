package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	TokenTTLHours      int
	RateLimitPerMinute int
	AllowedOrigins     []string
	OAuthRedirectBase  string
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SkipMigrate bool
	// OAuth sign-in
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Site footer and notice bar
	SiteName      string
	FooterAddress string
	FooterPhone   string
	FooterEmail   string
	FooterLinks   []string
	NoticeTitle   string
	NoticeHTML    string
	StaticDir     string
	// SMTP for password reset and contact notifications
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool
	// Redis for caching, throttles and one-time codes
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Public disk for attachments
	PublicDiskRoot       string
	PublicURLPrefix      string
	MaxUploadMB          int
	DisableGuessFallback bool
	// Trash retention
	TrashRetentionDays    int
	TrashPurgeIntervalMin int
	// Contact form
	ContactNotifyEmails   []string
	ContactMaxPerIPPerDay int
	ContactCooldownSec    int
	ContactCaptchaEnabled bool
	// Admins
	AdminUsernames       []string
	AdminInitialPassword string
	ActorCacheTTLSeconds int
}

var (
	cfg    AppConfig
	loaded bool
	mu     sync.RWMutex
)

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	mu.Lock()
	defer mu.Unlock()
	if loaded {
		return cfg
	}

	// .env is optional; real environment variables always win over it.
	_ = godotenv.Load()

	// Precedence: config/config.json -> defaults -> environment variable overrides
	var c AppConfig
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &c); err != nil {
		log.Printf("invalid config/config.json: %v", err)
	}
	applyDefaults(&c)
	applyEnvOverrides(&c)

	if c.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	cfg = c
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()
	return Load()
}

// Set installs c as the active configuration after filling defaults.
// Used by tools and tests that do not read config.json.
func Set(c AppConfig) AppConfig {
	applyDefaults(&c)
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
	return c
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.TokenTTLHours == 0 {
		c.TokenTTLHours = 72
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.OAuthRedirectBase == "" {
		c.OAuthRedirectBase = "http://localhost:8080"
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		switch c.DBDriver {
		case "postgres":
			c.DBPort = "5432"
		default:
			c.DBPort = "3306"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "deptcms"
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.SiteName == "" {
		c.SiteName = "Department"
	}
	if c.StaticDir == "" {
		c.StaticDir = "./static"
	}
	if c.PublicDiskRoot == "" {
		c.PublicDiskRoot = "storage/app/public"
	}
	if c.PublicURLPrefix == "" {
		c.PublicURLPrefix = "/storage"
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = 50
	}
	if c.TrashPurgeIntervalMin == 0 {
		c.TrashPurgeIntervalMin = 60
	}
	if c.ContactMaxPerIPPerDay == 0 {
		c.ContactMaxPerIPPerDay = 5
	}
	if c.ContactCooldownSec == 0 {
		c.ContactCooldownSec = 30
	}
	if c.ActorCacheTTLSeconds == 0 {
		c.ActorCacheTTLSeconds = 30
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	strs := map[string]*string{
		"APP_PORT":                &c.AppPort,
		"JWT_SECRET":              &c.JWTSecret,
		"GIN_MODE":                &c.GinMode,
		"GIN_PATH":                &c.GinPath,
		"DB_DRIVER":               &c.DBDriver,
		"DATABASE_URI":            &c.DatabaseURI,
		"DB_HOST":                 &c.DBHost,
		"DB_PORT":                 &c.DBPort,
		"DB_USER":                 &c.DBUser,
		"DB_PASSWORD":             &c.DBPassword,
		"DB_NAME":                 &c.DBName,
		"GITHUB_CLIENT_ID":        &c.GitHubClientID,
		"GITHUB_CLIENT_SECRET":    &c.GitHubClientSecret,
		"GOOGLE_CLIENT_ID":        &c.GoogleClientID,
		"GOOGLE_CLIENT_SECRET":    &c.GoogleClientSecret,
		"OAUTH_REDIRECT_BASE_URL": &c.OAuthRedirectBase,
		"SITE_NAME":               &c.SiteName,
		"FOOTER_ADDRESS":          &c.FooterAddress,
		"FOOTER_PHONE":            &c.FooterPhone,
		"FOOTER_EMAIL":            &c.FooterEmail,
		"NOTICE_TITLE":            &c.NoticeTitle,
		"NOTICE_HTML":             &c.NoticeHTML,
		"STATIC_DIR":              &c.StaticDir,
		"SMTP_HOST":               &c.SMTPHost,
		"SMTP_USERNAME":           &c.SMTPUsername,
		"SMTP_PASSWORD":           &c.SMTPPassword,
		"SMTP_FROM":               &c.SMTPFrom,
		"SMTP_FROM_NAME":          &c.SMTPFromName,
		"REDIS_HOST":              &c.RedisHost,
		"REDIS_PASSWORD":          &c.RedisPassword,
		"LOG_LEVEL":               &c.LogLevel,
		"LOG_PATH":                &c.LogPath,
		"PUBLIC_DISK_ROOT":        &c.PublicDiskRoot,
		"PUBLIC_URL_PREFIX":       &c.PublicURLPrefix,
		"ADMIN_INITIAL_PASSWORD":  &c.AdminInitialPassword,
	}
	ints := map[string]*int{
		"TOKEN_TTL_HOURS":            &c.TokenTTLHours,
		"RATE_LIMIT_PER_MINUTE":      &c.RateLimitPerMinute,
		"SMTP_PORT":                  &c.SMTPPort,
		"REDIS_PORT":                 &c.RedisPort,
		"REDIS_DB":                   &c.RedisDB,
		"LOG_MAX_SIZE_MB":            &c.LogMaxSizeMB,
		"LOG_MAX_BACKUPS":            &c.LogMaxBackups,
		"LOG_MAX_AGE_DAYS":           &c.LogMaxAgeDays,
		"MAX_UPLOAD_MB":              &c.MaxUploadMB,
		"TRASH_RETENTION_DAYS":       &c.TrashRetentionDays,
		"TRASH_PURGE_INTERVAL_MIN":   &c.TrashPurgeIntervalMin,
		"CONTACT_MAX_PER_IP_PER_DAY": &c.ContactMaxPerIPPerDay,
		"CONTACT_COOLDOWN_SEC":       &c.ContactCooldownSec,
		"ACTOR_CACHE_TTL_SECONDS":    &c.ActorCacheTTLSeconds,
	}
	flags := map[string]*bool{
		"DB_SKIP_MIGRATE":         &c.SkipMigrate,
		"SMTP_TLS":                &c.SMTPTLS,
		"LOG_COMPRESS":            &c.LogCompress,
		"DISABLE_GUESS_FALLBACK":  &c.DisableGuessFallback,
		"CONTACT_CAPTCHA_ENABLED": &c.ContactCaptchaEnabled,
	}
	lists := map[string]*[]string{
		"CORS_ALLOWED_ORIGINS":  &c.AllowedOrigins,
		"FOOTER_LINKS":          &c.FooterLinks,
		"CONTACT_NOTIFY_EMAILS": &c.ContactNotifyEmails,
		"ADMIN_USERNAMES":       &c.AdminUsernames,
	}

	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			*dst = mustParseInt(key, v)
		}
	}
	for key, dst := range flags {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	for key, dst := range lists {
		if v := os.Getenv(key); v != "" {
			*dst = splitAndTrim(v)
		}
	}
	c.DBDriver = strings.ToLower(c.DBDriver)
}

func mustParseInt(key, val string) int {
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		log.Fatalf("config: %s must be an integer, got %q", key, val)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadJSONConfig reads the grouped JSON file into out if present. It returns
// an error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}
	applySections(raw, out)
	return nil
}

// applySections copies the known keys of each section onto out. Absent or
// zero keys leave the field untouched so defaults still apply.
func applySections(raw map[string]any, out *AppConfig) {
	type fields struct {
		strs  map[string]*string
		ints  map[string]*int
		flags map[string]*bool
		lists map[string]*[]string
	}
	sections := map[string]fields{
		"app": {
			strs: map[string]*string{
				"AppPort":           &out.AppPort,
				"JWTSecret":         &out.JWTSecret,
				"OAuthRedirectBase": &out.OAuthRedirectBase,
			},
			ints: map[string]*int{
				"TokenTTLHours":        &out.TokenTTLHours,
				"RateLimitPerMinute":   &out.RateLimitPerMinute,
				"ActorCacheTTLSeconds": &out.ActorCacheTTLSeconds,
			},
			lists: map[string]*[]string{
				"AllowedOrigins": &out.AllowedOrigins,
				"AdminUsernames": &out.AdminUsernames,
			},
		},
		"database": {
			strs: map[string]*string{
				"Driver":      &out.DBDriver,
				"DatabaseURI": &out.DatabaseURI,
				"DBHost":      &out.DBHost,
				"DBPort":      &out.DBPort,
				"DBUser":      &out.DBUser,
				"DBPassword":  &out.DBPassword,
				"DBName":      &out.DBName,
			},
			flags: map[string]*bool{"SkipMigrate": &out.SkipMigrate},
		},
		"redis": {
			strs: map[string]*string{
				"RedisHost":     &out.RedisHost,
				"RedisPassword": &out.RedisPassword,
			},
			ints: map[string]*int{
				"RedisPort": &out.RedisPort,
				"RedisDB":   &out.RedisDB,
			},
		},
		"gin": {
			strs: map[string]*string{
				"Mode":    &out.GinMode,
				"LogPath": &out.GinPath,
			},
		},
		"log": {
			strs: map[string]*string{
				"Level":   &out.LogLevel,
				"Path":    &out.LogPath,
				"GinMode": &out.GinMode,
				"GinPath": &out.GinPath,
			},
			ints: map[string]*int{
				"MaxSizeMB":  &out.LogMaxSizeMB,
				"MaxBackups": &out.LogMaxBackups,
				"MaxAgeDays": &out.LogMaxAgeDays,
			},
			flags: map[string]*bool{"Compress": &out.LogCompress},
		},
		"oauth": {
			strs: map[string]*string{
				"GitHubClientID":     &out.GitHubClientID,
				"GitHubClientSecret": &out.GitHubClientSecret,
				"GoogleClientID":     &out.GoogleClientID,
				"GoogleClientSecret": &out.GoogleClientSecret,
			},
		},
		"smtp": {
			strs: map[string]*string{
				"SMTPHost":     &out.SMTPHost,
				"SMTPUsername": &out.SMTPUsername,
				"SMTPPassword": &out.SMTPPassword,
				"SMTPFrom":     &out.SMTPFrom,
				"SMTPFromName": &out.SMTPFromName,
			},
			ints:  map[string]*int{"SMTPPort": &out.SMTPPort},
			flags: map[string]*bool{"SMTPTLS": &out.SMTPTLS},
		},
		"storage": {
			strs: map[string]*string{
				"PublicDiskRoot":  &out.PublicDiskRoot,
				"PublicURLPrefix": &out.PublicURLPrefix,
			},
			ints: map[string]*int{
				"MaxUploadMB":           &out.MaxUploadMB,
				"TrashRetentionDays":    &out.TrashRetentionDays,
				"TrashPurgeIntervalMin": &out.TrashPurgeIntervalMin,
			},
			flags: map[string]*bool{"DisableGuessFallback": &out.DisableGuessFallback},
		},
		"contact": {
			ints: map[string]*int{
				"MaxPerIPPerDay": &out.ContactMaxPerIPPerDay,
				"CooldownSec":    &out.ContactCooldownSec,
			},
			flags: map[string]*bool{"CaptchaEnabled": &out.ContactCaptchaEnabled},
			lists: map[string]*[]string{"NotifyEmails": &out.ContactNotifyEmails},
		},
		"admin": {
			strs:  map[string]*string{"InitialPassword": &out.AdminInitialPassword},
			lists: map[string]*[]string{"Usernames": &out.AdminUsernames},
		},
		"site": {
			strs: map[string]*string{
				"SiteName":      &out.SiteName,
				"FooterAddress": &out.FooterAddress,
				"FooterPhone":   &out.FooterPhone,
				"FooterEmail":   &out.FooterEmail,
				"NoticeTitle":   &out.NoticeTitle,
				"NoticeHTML":    &out.NoticeHTML,
				"StaticDir":     &out.StaticDir,
			},
			lists: map[string]*[]string{"FooterLinks": &out.FooterLinks},
		},
	}

	for name, f := range sections {
		m, ok := raw[name].(map[string]any)
		if !ok {
			continue
		}
		for key, dst := range f.strs {
			if v := getString(m, key); v != "" {
				*dst = v
			}
		}
		for key, dst := range f.ints {
			if v := getInt(m, key); v != 0 {
				*dst = v
			}
		}
		for key, dst := range f.flags {
			if b, ok := m[key].(bool); ok {
				*dst = b
			}
		}
		for key, dst := range f.lists {
			if list := getStringSlice(m, key); len(list) > 0 {
				*dst = list
			}
		}
	}
}

func getString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func getInt(m map[string]any, key string) int {
	switch t := m[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case json.Number:
		i, _ := t.Int64()
		return int(i)
	}
	return 0
}

func getStringSlice(m map[string]any, key string) []string {
	arr, ok := m[key].([]any)
	if !ok {
		return nil
	}
	res := make([]string, 0, len(arr))
	for _, it := range arr {
		if s, ok := it.(string); ok {
			res = append(res, s)
		}
	}
	return res
}
