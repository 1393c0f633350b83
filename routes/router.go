package routes

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/deptcms/attachments"
	"github.com/cppla/deptcms/config"
	"github.com/cppla/deptcms/controllers"
	"github.com/cppla/deptcms/middleware"
	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
	"github.com/cppla/deptcms/repository"
	"github.com/cppla/deptcms/storage"
	"github.com/cppla/deptcms/utils"
)

// Deps are the shared services the router hands to controllers.
type Deps struct {
	DB       *gorm.DB
	Gate     *policy.Gate
	Disk     storage.Disk
	Resolver *policy.CachedResolver
}

// NewDeps builds the default services from the active configuration.
func NewDeps(db *gorm.DB) Deps {
	cfg := config.Get()
	return Deps{
		DB:       db,
		Gate:     policy.NewDefaultGate(),
		Disk:     storage.NewLocalDisk(cfg.PublicDiskRoot, cfg.PublicURLPrefix),
		Resolver: policy.NewCachedResolver(repository.NewActorResolver(db), time.Duration(cfg.ActorCacheTTLSeconds)*time.Second),
	}
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.SecurityHeaders())
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Every request carries an actor, guest when anonymous.
	r.Use(middleware.OptionalAuth(), middleware.CurrentActor(deps.Resolver))
	// Record PV after each request
	r.Use(middleware.PageViewRecorder(deps.DB))

	resolver := attachments.New(deps.Disk)
	resolver.GuessFallback = !cfg.DisableGuessFallback
	removeFile := attachments.RemoveFile(deps.Disk)

	authController := controllers.NewAuthController(deps.DB)
	postController := controllers.NewPostController(deps.DB, deps.Gate, removeFile)
	labController := controllers.NewLabController(deps.DB, deps.Gate, removeFile)
	userController := controllers.NewUserController(deps.DB, deps.Gate, deps.Resolver)
	attachmentController := controllers.NewAttachmentController(deps.DB, deps.Gate, deps.Disk, resolver)
	contactController := controllers.NewContactController(deps.DB, deps.Gate)
	statsController := controllers.NewStatsController(deps.DB)
	siteController := controllers.NewSiteController()

	staticDir := cfg.StaticDir
	page := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) { c.File(filepath.Join(staticDir, name)) }
	}

	r.Static("/static", staticDir)
	r.Static(cfg.PublicURLPrefix, cfg.PublicDiskRoot)
	r.GET("/", page("index.html"))
	r.GET("/login", page("login.html"))
	r.GET("/manage", middleware.RequireRole(policy.RoleTeacher), page("manage.html"))
	r.GET("/manage/*any", middleware.RequireRole(policy.RoleTeacher), page("manage.html"))
	r.GET("/attachments/:id", attachmentController.Show)
	r.GET("/attachments/:id/download", attachmentController.Download)
	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/login", middleware.RateLimit("login", 10), authController.Login)
	authGroup.GET("/captcha", authController.Captcha)
	authGroup.POST("/password/forgot", middleware.RateLimit("forgot", 5), authController.ForgotPassword)
	authGroup.POST("/password/reset", middleware.RateLimit("reset", 10), authController.ResetPassword)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)
	authGroup.POST("/password/change", middleware.AuthRequired(), authController.ChangePassword)

	// Public reads
	api.GET("/posts", postController.ListPublished)
	api.GET("/posts/:id", postController.GetPost)
	api.GET("/posts/:id/comments", postController.ListComments)
	api.GET("/categories", postController.ListCategories)
	api.GET("/labs", labController.List)
	api.GET("/labs/:id", labController.Show)
	api.GET("/attachments", attachmentController.List)
	api.GET("/site/footer", siteController.GetFooter)
	api.GET("/site/notice", siteController.GetNotice)
	api.POST("/contact", middleware.RateLimit("contact", 6), contactController.Submit)

	// Signed in users
	member := api.Group("")
	member.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	member.POST("/posts/:id/comments", postController.CreateComment)
	member.DELETE("/comments/:commentId", postController.DeleteComment)

	manage := api.Group("/manage")
	manage.Use(middleware.RequireRole(policy.RoleTeacher), middleware.RateLimitMiddleware())

	admin := api.Group("/admin")
	admin.Use(middleware.RequireRole(policy.RoleAdmin), middleware.RateLimitMiddleware())

	manage.GET("/stats", statsController.GetStats)
	admin.GET("/stats/pages", statsController.GetTopPages)

	manage.GET("/posts", postController.ManageList)
	manage.POST("/posts", postController.CreatePost)
	manage.POST("/posts/bulk", postController.Bulk)
	manage.GET("/posts/:id", postController.ManageShow)
	manage.PUT("/posts/:id", postController.UpdatePost)
	manage.DELETE("/posts/:id", postController.DeletePost)
	manage.POST("/posts/:id/restore", postController.RestorePost)
	manage.DELETE("/posts/:id/force", postController.ForceDeletePost)
	manage.POST("/posts/:id/publish", postController.Publish)
	manage.POST("/posts/:id/unpublish", postController.Unpublish)
	manage.POST("/posts/:id/schedule", postController.Schedule)
	manage.GET("/posts/:id/analytics", postController.Analytics)

	admin.POST("/categories", postController.SaveCategory)
	admin.PUT("/categories/:id", postController.SaveCategory)
	admin.DELETE("/categories/:id", postController.DeleteCategory)
	admin.GET("/comments", postController.ModerationList)

	manage.GET("/labs", labController.ManageList)
	manage.POST("/labs", labController.Create)
	manage.PUT("/labs/:id", labController.Update)
	manage.DELETE("/labs/:id", labController.Delete)
	manage.POST("/labs/:id/restore", labController.Restore)
	manage.DELETE("/labs/:id/force", labController.ForceDelete)
	manage.POST("/labs/:id/members", labController.AddMember)
	manage.DELETE("/labs/:id/members/:teacherId", labController.RemoveMember)
	manage.GET("/labs/:id/analytics", labController.Analytics)
	manage.GET("/labs/:id/posts", labController.Posts)
	manage.POST("/labs/:id/posts/:postId", labController.AttachPost)
	manage.DELETE("/labs/:id/posts/:postId", labController.DetachPost)

	manage.GET("/users", userController.List)
	manage.GET("/users/:id", userController.Show)
	manage.PUT("/users/:id", userController.Update)
	admin.POST("/users", userController.Create)
	admin.DELETE("/users/:id", userController.Delete)
	admin.POST("/users/:id/restore", userController.Restore)
	admin.DELETE("/users/:id/force", userController.ForceDelete)
	admin.PUT("/users/:id/role", userController.AssignRole)
	admin.PUT("/users/:id/teacher", userController.LinkTeacher)

	manage.POST("/attachments", attachmentController.Upload)
	manage.POST("/attachments/link", attachmentController.Link)
	manage.PUT("/attachments/:id", attachmentController.Update)
	manage.DELETE("/attachments/:id", attachmentController.Delete)
	manage.POST("/attachments/:id/restore", attachmentController.Restore)
	manage.DELETE("/attachments/:id/force", attachmentController.ForceDelete)

	admin.GET("/contacts", contactController.List)
	admin.GET("/contacts/export", contactController.Export)
	admin.GET("/contacts/:id", contactController.Show)
	admin.PUT("/contacts/:id/status", contactController.UpdateStatus)
	admin.DELETE("/contacts/:id", contactController.Delete)

	registerResources(api, manage, deps, removeFile)
	manage.GET("/publications/export", controllers.ExportPublications(deps.DB, deps.Gate))

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, "/static/") || strings.HasPrefix(path, cfg.PublicURLPrefix+"/") {
			ctx.JSON(http.StatusNotFound, gin.H{"message": "file not found"})
			return
		}
		// Other paths fall back to the SPA entry
		ctx.Status(http.StatusOK)
		ctx.File(filepath.Join(staticDir, "index.html"))
	})

	return r
}

// registerResources mounts the catalog style records served by the generic controller.
func registerResources(api, manage *gin.RouterGroup, deps Deps, removeFile func(models.Attachment)) {
	mount(api, manage, "staff", controllers.NewResourceController[models.Staff, *models.Staff](deps.DB, deps.Gate, removeFile,
		controllers.ResourceOptions[models.Staff]{
			Name:          "staff",
			SearchColumns: []string{"name", "position", "duties"},
			Order:         "sort_order ASC, id ASC",
			Attachable:    models.AttachableStaff,
		}))

	mount(api, manage, "teachers", controllers.NewResourceController[models.Teacher, *models.Teacher](deps.DB, deps.Gate, removeFile,
		controllers.ResourceOptions[models.Teacher]{
			Name:          "teacher",
			SearchColumns: []string{"name", "title", "bio"},
			Order:         "sort_order ASC, id ASC",
			Attachable:    models.AttachableTeacher,
			PurgeHooks:    repository.OwnedRowHooks(&models.Teacher{}),
			AfterWrite: func() {
				utils.InvalidateByPrefix(utils.CacheLabsPrefix)
				deps.Resolver.InvalidateAll()
			},
		}))

	mount(api, manage, "programs", controllers.NewResourceController[models.Program, *models.Program](deps.DB, deps.Gate, removeFile,
		controllers.ResourceOptions[models.Program]{
			Name:          "program",
			SearchColumns: []string{"name", "degree", "description"},
			Order:         "sort_order ASC, id ASC",
			Filters:       map[string]string{"degree": "degree"},
			Attachable:    models.AttachableProgram,
		}))

	mount(api, manage, "courses", controllers.NewResourceController[models.Course, *models.Course](deps.DB, deps.Gate, removeFile,
		controllers.ResourceOptions[models.Course]{
			Name:          "course",
			SearchColumns: []string{"code", "name", "description"},
			Order:         "code ASC, id ASC",
			Filters:       map[string]string{"program_id": "program_id", "semester": "semester"},
			Attachable:    models.AttachableCourse,
			Validate:      models.ValidateCourseProgram(deps.DB),
		}))

	mount(api, manage, "publications", controllers.NewResourceController[models.Publication, *models.Publication](deps.DB, deps.Gate, removeFile,
		controllers.ResourceOptions[models.Publication]{
			Name:          "publication",
			SearchColumns: []string{"title", "authors", "venue"},
			Order:         "year DESC, id DESC",
			Filters:       map[string]string{"year": "year", "teacher_id": "teacher_id", "lab_id": "lab_id", "kind": "kind"},
			Attachable:    models.AttachablePublication,
		}))

	mount(api, manage, "projects", controllers.NewResourceController[models.Project, *models.Project](deps.DB, deps.Gate, removeFile,
		controllers.ResourceOptions[models.Project]{
			Name:          "project",
			SearchColumns: []string{"title", "funder", "description"},
			Filters:       map[string]string{"teacher_id": "teacher_id", "lab_id": "lab_id"},
			Attachable:    models.AttachableProject,
		}))
}

func mount[T any, PT interface {
	*T
	models.Managed
}](api, manage *gin.RouterGroup, path string, rc *controllers.ResourceController[T, PT]) {
	api.GET("/"+path, rc.List)
	api.GET("/"+path+"/:id", rc.Show)
	manage.GET("/"+path, rc.ManageList)
	manage.POST("/"+path, rc.Create)
	manage.PUT("/"+path+"/:id", rc.Update)
	manage.DELETE("/"+path+"/:id", rc.Delete)
	manage.POST("/"+path+"/:id/restore", rc.Restore)
	manage.DELETE("/"+path+"/:id/force", rc.ForceDelete)
}
