package controllers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/deptcms/config"
	"github.com/cppla/deptcms/utils"
)

// SiteController serves the config driven footer and notice bar.
type SiteController struct{}

func NewSiteController() *SiteController { return &SiteController{} }

// footerLinks turns "Name|URL" entries into link objects. Entries without a
// separator use the URL as the name.
func footerLinks(entries []string) []gin.H {
	links := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		name, url, ok := strings.Cut(e, "|")
		if !ok {
			url = name
		}
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if url == "" {
			continue
		}
		links = append(links, gin.H{"name": name, "url": url})
	}
	return links
}

// GetFooter returns the department contact block and footer links.
func (s *SiteController) GetFooter(ctx *gin.Context) {
	key := utils.CacheSitePrefix + "footer"
	if utils.ServeCached(ctx, key) {
		return
	}
	cfg := config.Get()
	utils.SuccessCached(ctx, key, gin.H{
		"name":    cfg.SiteName,
		"address": cfg.FooterAddress,
		"phone":   cfg.FooterPhone,
		"email":   cfg.FooterEmail,
		"links":   footerLinks(cfg.FooterLinks),
	}, 10*time.Minute)
}

// GetNotice returns the announcement bar content. html is sanitized.
func (s *SiteController) GetNotice(ctx *gin.Context) {
	key := utils.CacheSitePrefix + "notice"
	if utils.ServeCached(ctx, key) {
		return
	}
	cfg := config.Get()
	utils.SuccessCached(ctx, key, gin.H{
		"title": cfg.NoticeTitle,
		"html":  utils.Sanitize(cfg.NoticeHTML),
	}, 10*time.Minute)
}
