// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	adminusersfeature "github.com/guildhall-club/guildhall/internal/app/features/adminusers"
	authgooglefeature "github.com/guildhall-club/guildhall/internal/app/features/authgoogle"
	authmicrosoftfeature "github.com/guildhall-club/guildhall/internal/app/features/authmicrosoft"
	blogfeature "github.com/guildhall-club/guildhall/internal/app/features/blog"
	calendarfeature "github.com/guildhall-club/guildhall/internal/app/features/calendar"
	charactersfeature "github.com/guildhall-club/guildhall/internal/app/features/characters"
	commentsfeature "github.com/guildhall-club/guildhall/internal/app/features/comments"
	errorsfeature "github.com/guildhall-club/guildhall/internal/app/features/errors"
	healthfeature "github.com/guildhall-club/guildhall/internal/app/features/health"
	homefeature "github.com/guildhall-club/guildhall/internal/app/features/home"
	loginfeature "github.com/guildhall-club/guildhall/internal/app/features/login"
	logoutfeature "github.com/guildhall-club/guildhall/internal/app/features/logout"
	profilefeature "github.com/guildhall-club/guildhall/internal/app/features/profile"
	"github.com/guildhall-club/guildhall/internal/app/system/auth"
	"github.com/guildhall-club/guildhall/internal/app/system/oauthflow"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for the app.
//
// WAFFLE calls this after configuration, DB connections, schema setup,
// and Startup have completed. It creates the session manager, boots the
// template engine, and mounts every feature router.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	secure := coreCfg.Env == "prod"

	sessionMgr, err := auth.NewSessionManager(
		appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain,
		appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	states, err := oauthflow.NewStateCodec(appCfg.SessionKey, secure)
	if err != nil {
		logger.Error("oauth state codec init failed", zap.Error(err))
		return nil, err
	}

	// Boot the template engine once at startup. Dev mode reloads
	// templates on each request for faster iteration.
	eng := templates.New(coreCfg.Env == "dev")
	if err := eng.Boot(logger); err != nil {
		logger.Error("template engine boot failed", zap.Error(err))
		return nil, err
	}
	templates.UseEngine(eng, logger)

	db := deps.GuildhallMongoDatabase

	r := chi.NewRouter()

	// Global middleware: CSRF on every form post, then the session user
	// into context so auth.CurrentUser works everywhere.
	r.Use(csrf.Protect([]byte(appCfg.SessionKey),
		csrf.Secure(secure),
		csrf.Path("/"),
	))
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators.
	healthHandler := healthfeature.NewHandler(deps.GuildhallMongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Static assets with pre-compressed file support (gzip/brotli).
	r.Handle("/static/*", fileserver.Handler("/static", "public"))

	// Public pages.
	homeHandler := homefeature.NewHandler(db, logger)
	r.Mount("/", homefeature.Routes(homeHandler))

	// Authentication.
	googleEnabled := appCfg.GoogleClientID != ""
	microsoftEnabled := appCfg.MicrosoftClientID != ""

	loginHandler := loginfeature.NewHandler(db, sessionMgr, googleEnabled, microsoftEnabled, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler))

	if googleEnabled {
		googleHandler := authgooglefeature.NewHandler(db, sessionMgr, states,
			appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL, logger)
		r.Mount("/auth/google", authgooglefeature.Routes(googleHandler))
	}
	if microsoftEnabled {
		microsoftHandler := authmicrosoftfeature.NewHandler(db, sessionMgr, states,
			appCfg.MicrosoftClientID, appCfg.MicrosoftClientSecret, appCfg.BaseURL, logger)
		r.Mount("/auth/microsoft", authmicrosoftfeature.Routes(microsoftHandler))
	}

	// Blog and calendar, with their shared comment endpoints.
	blogHandler := blogfeature.NewHandler(db, hub, logger)
	r.Mount("/blog", blogfeature.Routes(blogHandler, sessionMgr))

	calendarHandler := calendarfeature.NewHandler(db, hub, logger)
	r.Mount("/calendar", calendarfeature.Routes(calendarHandler, sessionMgr))

	commentsHandler := commentsfeature.NewHandler(db, hub, logger)
	r.Mount("/comments", commentsfeature.Routes(commentsHandler, sessionMgr))

	// Member pages.
	profileHandler := profilefeature.NewHandler(db, logger)
	r.Route("/profile", func(r chi.Router) {
		r.Use(sessionMgr.RequireSignedIn)
		r.Mount("/", profilefeature.Routes(profileHandler))
	})

	charactersHandler := charactersfeature.NewHandler(db, logger)
	r.Mount("/characters", charactersfeature.Routes(charactersHandler, sessionMgr))

	// Admin.
	adminHandler := adminusersfeature.NewHandler(db, logger)
	r.Route("/admin/users", func(r chi.Router) {
		r.Use(sessionMgr.RequireRole(models.RoleAdmin))
		r.Mount("/", adminusersfeature.Routes(adminHandler))
	})

	// Error pages.
	errorsHandler := errorsfeature.NewHandler()
	r.Get("/forbidden", errorsHandler.Forbidden)
	r.NotFound(errorsHandler.NotFound)

	return r, nil
}
