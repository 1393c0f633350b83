package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/config"
	"github.com/cppla/deptcms/middleware"
	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/utils"
)

const (
	resetCodeTTL      = 15 * time.Minute
	resetCodeCooldown = time.Minute
)

// AuthController handles sign in, sign out and the account of the current user.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// Login verifies credentials and issues a JWT, also set as the access token cookie.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(ctx, &req) {
		return
	}

	login := strings.TrimSpace(req.Username)
	var user models.User
	if err := a.db.Where("username = ? OR (email <> '' AND email = ?)", login, login).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}
	if utils.NeedsRehash(user.PasswordHash) {
		if err := a.setPassword(&user, req.Password); err != nil {
			utils.Sugar.Warnw("rehash password failed", "user_id", user.ID, "error", err)
		}
	}

	a.issueToken(ctx, &user)
}

// issueToken stamps the login time, sets the cookie and answers with the token.
func (a *AuthController) issueToken(ctx *gin.Context, user *models.User) {
	now := time.Now()
	if err := a.db.Model(user).UpdateColumn("last_login_at", now).Error; err != nil {
		utils.Sugar.Warnw("update last login failed", "user_id", user.ID, "error", err)
	}
	user.LastLoginAt = &now

	ttl := utils.TokenTTL()
	token, err := utils.GenerateToken(user.ID, user.Username, ttl)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middleware.AccessTokenCookie, token, int(ttl.Seconds()), "/", "", ctx.Request.TLS != nil, true)

	utils.Success(ctx, gin.H{
		"token":      token,
		"expires_in": int(ttl.Seconds()),
		"user":       userResponse(*user),
	})
}

// Logout revokes the presented token until it would have expired.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	if token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "missing token")
		return
	}
	expiresAt := time.Now().Add(utils.TokenTTL())
	if v, ok := ctx.Get(middleware.ContextClaimsKey); ok {
		if claims, ok := v.(*utils.Claims); ok && claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
	}
	utils.BlacklistToken(token, expiresAt)

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", ctx.Request.TLS != nil, true)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current user with the linked teacher profile.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var user models.User
	if err := a.db.Preload("Teacher").First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}
	resp := userResponse(user)
	if user.Teacher != nil {
		resp["teacher"] = user.Teacher
	}
	utils.Success(ctx, resp)
}

// UpdateProfile changes the display fields of the current user.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req struct {
		Name      *string `json:"name" binding:"omitempty,max=128"`
		Email     *string `json:"email" binding:"omitempty,email,max=255"`
		AvatarURL *string `json:"avatar_url" binding:"omitempty,weburl,max=512"`
	}
	if !bindJSON(ctx, &req) {
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(utils.SanitizeStrict(*req.Name))
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" && email != user.Email {
			var count int64
			a.db.Model(&models.User{}).Where("email = ? AND id <> ?", email, user.ID).Count(&count)
			if count > 0 {
				utils.Error(ctx, http.StatusConflict, 40930, "email already in use")
				return
			}
		}
		user.Email = email
	}
	if req.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}

	if err := a.db.Model(&user).Select("name", "email", "avatar_url").Updates(&user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to update profile")
		return
	}
	utils.Success(ctx, userResponse(user))
}

// ChangePassword replaces the password after checking the current one.
// Accounts created through OAuth have no password and may set one directly.
func (a *AuthController) ChangePassword(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}
	if user.PasswordHash != "" && !utils.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		utils.Error(ctx, http.StatusBadRequest, 40031, "current password is incorrect")
		return
	}
	if err := a.setPassword(&user, req.NewPassword); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to update password")
		return
	}
	utils.Success(ctx, gin.H{"message": "password updated"})
}

func (a *AuthController) setPassword(user *models.User, password string) error {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return a.db.Model(user).UpdateColumn("password_hash", hash).Error
}

// ForgotPassword mails a reset code. The answer is the same whether or not
// the address belongs to an account.
func (a *AuthController) ForgotPassword(ctx *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !utils.ResetCooldownTry(email, resetCodeCooldown) {
		utils.Error(ctx, http.StatusTooManyRequests, 42901, "please wait before requesting another code")
		return
	}

	var user models.User
	if err := a.db.Where("LOWER(email) = ?", email).First(&user).Error; err == nil {
		code := utils.GenerateVerificationCode(6)
		utils.SaveResetCode(email, code, resetCodeTTL)
		site := config.Get().SiteName
		body := fmt.Sprintf("Your %s password reset code is %s. It expires in %d minutes.", site, code, int(resetCodeTTL.Minutes()))
		utils.SendMailAsync([]string{user.Email}, site+" password reset", body)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Sugar.Errorw("lookup reset email failed", "error", err)
	}
	utils.Success(ctx, gin.H{"message": "if the address is registered a code has been sent"})
}

// ResetPassword sets a new password with a mailed code. Codes are single use.
func (a *AuthController) ResetPassword(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Code     string `json:"code" binding:"required,len=6,numeric"`
		Password string `json:"password" binding:"required,min=8,max=72"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !utils.ConsumeResetCode(email, req.Code) {
		utils.Error(ctx, http.StatusBadRequest, 40032, "invalid or expired code")
		return
	}
	var user models.User
	if err := a.db.Where("LOWER(email) = ?", email).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40032, "invalid or expired code")
		return
	}
	if err := a.setPassword(&user, req.Password); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to update password")
		return
	}
	utils.Success(ctx, gin.H{"message": "password reset"})
}

// Captcha issues an image captcha for the public forms.
func (a *AuthController) Captcha(ctx *gin.Context) {
	id, b64, err := utils.GenerateCaptcha()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50007, "failed to generate captcha")
		return
	}
	utils.Success(ctx, gin.H{"captcha_id": id, "image": b64})
}

// OAuthRedirect generates a provider specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := ctx.Param("provider")
	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and signs the user in.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40005, "missing code or state")
		return
	}
	if !utils.ConsumeState(state) {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid or expired state")
		return
	}

	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer cancel()

	token, err := cfg.Exchange(reqCtx, code)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, "failed to exchange code")
		return
	}
	client := cfg.Client(reqCtx, token)

	var info *oauthUser
	switch provider {
	case "github":
		info, err = fetchGitHubUser(reqCtx, client)
	case "google":
		info, err = fetchGoogleUser(reqCtx, client)
	}
	if err != nil {
		utils.Sugar.Warnw("oauth user info failed", "provider", provider, "error", err)
		utils.Error(ctx, http.StatusBadGateway, 50205, "failed to load account from provider")
		return
	}

	user, err := a.findOrCreateOAuthUser(provider, info)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to persist user")
		return
	}
	a.issueToken(ctx, user)
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	switch strings.ToLower(provider) {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/github/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/google/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID          string
	Username    string
	DisplayName string
	Email       string
	AvatarURL   string
}

// findOrCreateOAuthUser links a provider identity to an account. New
// accounts get the user role; promotion is an admin decision.
func (a *AuthController) findOrCreateOAuthUser(provider string, data *oauthUser) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, data.ID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"avatar_url": data.AvatarURL}
		if e := strings.TrimSpace(data.Email); e != "" {
			updates["email"] = e
		}
		_ = a.db.Model(&user).Updates(updates)
		return &user, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	user = models.User{
		Username:   a.ensureUniqueUsername(data.Username, provider, data.ID),
		Name:       data.DisplayName,
		Email:      strings.TrimSpace(data.Email),
		Provider:   provider,
		ProviderID: data.ID,
		AvatarURL:  data.AvatarURL,
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (*oauthUser, error) {
	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, "https://api.github.com/user", &payload); err != nil {
		return nil, err
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	email := ""
	if err := getJSON(ctx, client, "https://api.github.com/user/emails", &emails); err == nil {
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	return &oauthUser{
		ID:          fmt.Sprintf("%d", payload.ID),
		Username:    payload.Login,
		DisplayName: fallback(payload.Name, payload.Login),
		Email:       email,
		AvatarURL:   payload.AvatarURL,
	}, nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client) (*oauthUser, error) {
	var payload struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &payload); err != nil {
		return nil, err
	}
	email := ""
	if payload.VerifiedEmail {
		email = payload.Email
	}
	return &oauthUser{
		ID:          payload.ID,
		Username:    strings.Split(payload.Email, "@")[0],
		DisplayName: payload.Name,
		Email:       email,
		AvatarURL:   payload.Picture,
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var builder strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			builder.WriteRune('_')
		}
	}
	return strings.Trim(builder.String(), "_")
}

func (a *AuthController) ensureUniqueUsername(base, provider, id string) string {
	base = sanitizeUsername(base)
	if base == "" {
		base = sanitizeUsername(fmt.Sprintf("%s_%s", provider, id))
		if base == "" {
			base = "user_" + utils.ShortID()
		}
	}

	candidate := base
	for suffix := 1; ; suffix++ {
		var count int64
		if err := a.db.Unscoped().Model(&models.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil || count == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}

// userResponse is the account view returned to its owner and to admins.
func userResponse(user models.User) gin.H {
	return gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"name":          user.Name,
		"email":         user.Email,
		"role":          user.Role,
		"role_label":    user.Role.String(),
		"teacher_id":    user.TeacherID,
		"provider":      user.Provider,
		"avatar_url":    user.AvatarURL,
		"last_login_at": user.LastLoginAt,
		"created_at":    user.CreatedAt,
		"is_admin":      user.Role == policy.RoleAdmin,
	}
}
