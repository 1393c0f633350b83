package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/config"
	"github.com/cppla/deptcms/middleware"
	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/repository"
	"github.com/cppla/deptcms/utils"
)

const contactExportLimit = 10000

// ContactController receives contact form messages and lets admins process them.
type ContactController struct {
	db       *gorm.DB
	gate     *policy.Gate
	messages *repository.Store[models.ContactMessage]
}

// NewContactController creates a new ContactController instance.
func NewContactController(db *gorm.DB, gate *policy.Gate) *ContactController {
	return &ContactController{db: db, gate: gate, messages: repository.New[models.ContactMessage](db)}
}

// Submit accepts a message from the public form.
func (c *ContactController) Submit(ctx *gin.Context) {
	if !authorize(ctx, c.gate, policy.ActionCreate, policy.KindContactMessage, nil) {
		return
	}
	var req struct {
		Name          string `json:"name" binding:"required,max=128"`
		Email         string `json:"email" binding:"required,email,max=255"`
		Phone         string `json:"phone" binding:"max=64"`
		Subject       string `json:"subject" binding:"max=255"`
		Message       string `json:"message" binding:"required,max=5000"`
		CaptchaID     string `json:"captcha_id"`
		CaptchaAnswer string `json:"captcha_answer"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	cfg := config.Get()
	if cfg.ContactCaptchaEnabled && !utils.VerifyCaptcha(req.CaptchaID, strings.TrimSpace(req.CaptchaAnswer)) {
		utils.Error(ctx, http.StatusBadRequest, 40070, "invalid captcha")
		return
	}

	ip := ctx.ClientIP()
	if !utils.ContactDailyLimitCheck(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42970, "daily message limit reached")
		return
	}
	if !utils.ContactCooldownTry(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42971, "please wait before sending another message")
		return
	}

	msg := models.ContactMessage{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Subject:   req.Subject,
		Message:   req.Message,
		Status:    models.ContactNew,
		IP:        ip,
		UserAgent: truncate(ctx.Request.UserAgent(), 512),
	}
	msg.Clean()
	if msg.Name == "" || msg.Message == "" {
		utils.Error(ctx, http.StatusBadRequest, 40071, "name and message are required")
		return
	}
	if err := c.messages.Create(ctx.Request.Context(), &msg); err != nil {
		storeError(ctx, err, "message")
		return
	}
	utils.ContactDailyIncrement(ip)

	subject := fmt.Sprintf("[%s] contact: %s", cfg.SiteName, fallback(msg.Subject, msg.Name))
	body := fmt.Sprintf("From: %s <%s>\nPhone: %s\nIP: %s\n\n%s", msg.Name, msg.Email, msg.Phone, msg.IP, msg.Message)
	utils.SendMailAsync(cfg.ContactNotifyEmails, subject, body)

	utils.Success(ctx, gin.H{"id": msg.ID, "message": "message received"})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (c *ContactController) filters(ctx *gin.Context) []repository.Scope {
	var scopes []repository.Scope
	if status := models.ContactStatus(ctx.Query("status")); status.Valid() {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", status) })
	}
	if from, err := time.Parse("2006-01-02", ctx.Query("from")); err == nil {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("created_at >= ?", from) })
	}
	if to, err := time.Parse("2006-01-02", ctx.Query("to")); err == nil {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("created_at < ?", to.AddDate(0, 0, 1)) })
	}
	return scopes
}

// List returns messages, newest first, filtered by status and date.
func (c *ContactController) List(ctx *gin.Context) {
	if !authorize(ctx, c.gate, policy.ActionViewAny, policy.KindContactMessage, nil) {
		return
	}
	q := listQuery(ctx, false)
	q.SearchColumns = []string{"name", "email", "subject", "message"}
	q.Order = "created_at DESC, id DESC"
	page, err := c.messages.List(ctx.Request.Context(), q, c.filters(ctx)...)
	if err != nil {
		storeError(ctx, err, "messages")
		return
	}
	var unread int64
	c.db.Model(&models.ContactMessage{}).Where("status = ?", models.ContactNew).Count(&unread)
	resp := paged(page)
	resp["unread"] = unread
	utils.Success(ctx, resp)
}

// Show returns one message with who processed it.
func (c *ContactController) Show(ctx *gin.Context) {
	if !authorize(ctx, c.gate, policy.ActionView, policy.KindContactMessage, nil) {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	msg, err := c.messages.Find(ctx.Request.Context(), id, false, "Processor")
	if err != nil {
		storeError(ctx, err, "message")
		return
	}
	utils.Success(ctx, gin.H{"message": msg})
}

// UpdateStatus moves a message through its workflow and stamps the processor.
func (c *ContactController) UpdateStatus(ctx *gin.Context) {
	if !authorize(ctx, c.gate, policy.ActionUpdate, policy.KindContactMessage, nil) {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Status models.ContactStatus `json:"status" binding:"required,contact_status"`
		Note   *string              `json:"note" binding:"omitempty,max=5000"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	msg, err := c.messages.Find(ctx.Request.Context(), id, false)
	if err != nil {
		storeError(ctx, err, "message")
		return
	}
	msg.MarkProcessed(req.Status, middleware.ActorFrom(ctx).ID, time.Now())
	if req.Note != nil {
		msg.Note = strings.TrimSpace(utils.SanitizeStrict(*req.Note))
	}
	if err := c.messages.Save(ctx.Request.Context(), msg); err != nil {
		storeError(ctx, err, "message")
		return
	}
	utils.Success(ctx, gin.H{"message": msg})
}

// Delete removes a message outright.
func (c *ContactController) Delete(ctx *gin.Context) {
	if !authorize(ctx, c.gate, policy.ActionDelete, policy.KindContactMessage, nil) {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := c.messages.Delete(ctx.Request.Context(), id); err != nil {
		storeError(ctx, err, "message")
		return
	}
	utils.Success(ctx, gin.H{"message": "message deleted", "id": id})
}

// Export downloads the filtered messages as a spreadsheet.
func (c *ContactController) Export(ctx *gin.Context) {
	if !authorize(ctx, c.gate, policy.ActionViewAny, policy.KindContactMessage, nil) {
		return
	}
	var msgs []models.ContactMessage
	err := c.db.WithContext(ctx.Request.Context()).Scopes(c.filters(ctx)...).
		Order("created_at DESC").Limit(contactExportLimit).Find(&msgs).Error
	if err != nil {
		storeError(ctx, err, "messages")
		return
	}
	rows := make([][]interface{}, 0, len(msgs))
	for _, m := range msgs {
		processed := ""
		if m.ProcessedAt != nil {
			processed = m.ProcessedAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, []interface{}{
			m.ID, m.CreatedAt.Format("2006-01-02 15:04"), m.Name, m.Email, m.Phone,
			m.Subject, m.Message, string(m.Status), processed, m.Note, m.IP,
		})
	}
	header := []string{"ID", "Received", "Name", "Email", "Phone", "Subject", "Message", "Status", "Processed", "Note", "IP"}
	writeXLSX(ctx, "contact-messages-"+time.Now().Format("20060102")+".xlsx", "Messages", header, rows)
}
