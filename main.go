package main

import (
	"context"
	"time"

	"github.com/cppla/deptcms/attachments"
	"github.com/cppla/deptcms/config"
	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/repository"
	"github.com/cppla/deptcms/routes"
	"github.com/cppla/deptcms/utils"
	"github.com/cppla/deptcms/validation"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	if err := validation.Register(); err != nil {
		utils.Sugar.Fatalf("register validators: %v", err)
	}

	db := config.InitDatabase(models.All()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer utils.CloseRedis()

	if err := repository.EnsureAdmins(ctx, db, cfg.AdminUsernames, cfg.AdminInitialPassword); err != nil {
		utils.Sugar.Fatalf("bootstrap admins: %v", err)
	}

	deps := routes.NewDeps(db)
	r := routes.SetupRouter(deps)

	// Background purge of long trashed rows (best-effort)
	purger := &repository.Purger{
		DB:           db,
		Retention:    time.Duration(cfg.TrashRetentionDays) * 24 * time.Hour,
		Interval:     time.Duration(cfg.TrashPurgeIntervalMin) * time.Minute,
		OnAttachment: attachments.RemoveFile(deps.Disk),
	}
	purger.Start(ctx)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
