// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"

	userstore "github.com/guildhall-club/guildhall/internal/app/store/users"
	"github.com/guildhall-club/guildhall/internal/app/system/authutil"
	"github.com/guildhall-club/guildhall/internal/app/system/livequery"
	"github.com/guildhall-club/guildhall/internal/app/system/viewdata"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// hub and its cancel live at package level so BuildHandler can hand the
// hub to features and Shutdown can stop the watchers.
var (
	hub       *livequery.Hub
	hubCancel context.CancelFunc
)

// Startup runs one-time application initialization after DB connections
// and schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	viewdata.Init(appCfg.SiteName)

	if err := ensureBootstrapAdmin(ctx, appCfg, deps, logger); err != nil {
		return err
	}

	// The watchers outlive Startup's ctx; they stop in Shutdown.
	hub = livequery.NewHub(logger)
	var watchCtx context.Context
	watchCtx, hubCancel = context.WithCancel(context.Background())

	db := deps.GuildhallMongoDatabase
	go hub.Watch(watchCtx, db, livequery.TopicBlog,
		[]string{"blog_posts", "comments"}, appCfg.LivePollInterval)
	go hub.Watch(watchCtx, db, livequery.TopicCalendar,
		[]string{"events", "rsvps", "comments"}, appCfg.LivePollInterval)

	return nil
}

// ensureBootstrapAdmin creates (or promotes) the configured admin
// account so a fresh deployment has someone who can grant roles.
func ensureBootstrapAdmin(ctx context.Context, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if appCfg.AdminEmail == "" {
		return nil
	}

	users := userstore.New(deps.GuildhallMongoDatabase)

	existing, err := users.GetByEmail(ctx, appCfg.AdminEmail)
	switch {
	case err == nil:
		if existing.HasRole(models.RoleAdmin) {
			return nil
		}
		if err := users.EnsureRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return err
		}
		logger.Info("promoted existing account to admin",
			zap.String("email", appCfg.AdminEmail))
		return nil

	case errors.Is(err, userstore.ErrNotFound):
		hash, err := authutil.HashPassword(appCfg.AdminPassword)
		if err != nil {
			return err
		}
		u, err := users.CreateLocal(ctx, appCfg.AdminEmail, "Administrator", hash,
			[]string{models.RoleAdmin})
		if err != nil {
			if errors.Is(err, userstore.ErrDuplicateEmail) {
				// Raced another instance; the account exists now.
				return nil
			}
			return err
		}
		logger.Info("created bootstrap admin",
			zap.String("email", u.Email),
			zap.String("user_id", u.ID.Hex()))
		return nil

	default:
		return err
	}
}
