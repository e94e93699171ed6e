package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	// Set custom error handler for consistent JSON responses
	e.HTTPErrorHandler = NotFoundJSON()

	e.Use(SetNoCacheHeaders)

	// Scrapes and health checks bypass the API key
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics.Handler()))
	}

	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)

	api := v1.Group("")
	if cfg.APIKey != "" {
		api.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	// Wallet sessions
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:id", h.GetSession)
	api.POST("/sessions/:id/await", h.AwaitSession)
	api.DELETE("/sessions/:id", h.TerminateSession)
	api.POST("/wallet/events", h.WalletEvent)

	// Pools
	api.GET("/pools/:id/quote", h.PoolQuote)

	// Deposits; creation is rate limited per client IP
	limit := cfg.InvestRate
	if limit <= 0 {
		limit = 1
	}
	invest := api.Group("/investments")
	invest.POST("", h.CreateInvestment, middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(limit),
		Burst:     3,
		ExpiresIn: 2 * time.Minute,
	})))
	invest.GET("/:id", h.GetInvestment)
	invest.POST("/:id/cancel", h.CancelInvestment)

	users := api.Group("/users/:user_id")
	users.GET("/investments", h.UserInvestments)
	users.GET("/events", h.RecentEvents)
	users.GET("/events/stream", h.StreamEvents)

	// Operator switches (pool pauses)
	flagGroup := api.Group("/flags", h.flagsRequired)
	flagGroup.GET("", h.FlagsList)
	flagGroup.POST("", h.FlagsUpsert)
	flagGroup.GET("/:key", h.FlagsGet)
	flagGroup.PUT("/:key", h.FlagsUpdate)
	flagGroup.DELETE("/:key", h.FlagsDelete)

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
