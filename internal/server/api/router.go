package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"filedrop/internal/server/config"
	"filedrop/internal/server/metrics"
)

const contentSecurityPolicy = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; img-src 'self' data: https:"

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	if cfg.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "0",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            15552000,
		ContentSecurityPolicy: contentSecurityPolicy,
		ReferrerPolicy:        "no-referrer",
	}))
	e.Use(middleware.CORSWithConfig(corsConfig(cfg.AllowedOrigins)))
	e.Use(metrics.Middleware())
	e.Use(AuditContext())
	e.Use(RequestLogger())

	policy := handler.uploads.Policy()
	uploadLimiter := NewRateLimiter("upload", cfg.UploadRateLimit, cfg.RateLimitWindow,
		"too many uploads, try again later", handler.audit)
	apiLimiter := NewRateLimiter("api", cfg.APIRateLimit, cfg.RateLimitWindow,
		"too many requests, try again later", handler.audit)
	loginLimiter := NewRateLimiter("login", cfg.APIRateLimit, cfg.RateLimitWindow,
		"too many login attempts, try again later", handler.audit)

	// Public
	e.GET("/", handler.HandleRoot)
	e.GET("/health", handler.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	e.POST("/login", handler.HandleLogin, loginLimiter.Middleware(), middleware.BodyLimit("1M"))

	// Upload (rate-limited)
	e.POST("/upload", handler.HandleUpload, uploadLimiter.Middleware())

	// Files
	files := e.Group("/files", apiLimiter.Middleware())
	files.GET("", handler.HandleList, handler.RequireAdmin(policy.RequireAuthForListing))
	files.GET("/:filename", handler.HandleInfo)
	files.GET("/:filename/raw", handler.HandleDownload, handler.RequireAdmin(policy.RequireAuthForStaticServe))
	files.DELETE("/:filename", handler.HandleDelete, handler.RequireAdmin(policy.RequireAuthForListing))

	return e
}

// corsConfig allows credentials only for an explicit origin list; browsers
// refuse credentials with a wildcard origin.
func corsConfig(origins []string) middleware.CORSConfig {
	cfg := middleware.CORSConfig{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAuthorization},
		ExposeHeaders: []string{echo.HeaderXRequestID, echo.HeaderContentDisposition},
	}
	for _, origin := range origins {
		if origin == "*" {
			return cfg
		}
	}
	cfg.AllowCredentials = true
	return cfg
}
