package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/deposit"
	"github.com/gbsoe/FiLotV2-sub001/internal/flags"
	"github.com/gbsoe/FiLotV2-sub001/internal/investment"
	"github.com/gbsoe/FiLotV2-sub001/internal/metrics"
	"github.com/gbsoe/FiLotV2-sub001/internal/orca"
	"github.com/gbsoe/FiLotV2-sub001/internal/session"
	"github.com/gbsoe/FiLotV2-sub001/internal/storage"
)

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Sessions       *session.Manager
	Executor       *investment.Executor
	Pools          *orca.Gateway
	Builder        *deposit.Builder
	Flags          *flags.Store                                // optional
	Cache          storage.AttemptCache                        // optional, enables the live feed
	Metrics        *metrics.Metrics                            // optional
	Checks         func(ctx context.Context) map[string]error // optional
	PairingTimeout time.Duration
	DevMode        bool // include internal error text in responses
	Logger         *logrus.Logger

	validate *validator.Validate
}

func (h *Handlers) validator() *validator.Validate {
	if h.validate == nil {
		h.validate = validator.New()
	}
	return h.validate
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// fail renders a domain error with its user message. Details of typed
// errors are always returned; internal error text only in dev mode.
func (h *Handlers) fail(c echo.Context, err error) error {
	code, kind := StatusFor(err)
	resp := ErrorResponse{Code: code, Kind: string(kind)}

	switch {
	case kind != "":
		resp.Error = apperrors.UserMessage(kind)
		if e, ok := apperrors.As(err); ok && len(e.Details) > 0 {
			resp.Details = e.Details
		}
	case code == http.StatusNotFound:
		resp.Error = err.Error()
	default:
		resp.Error = "internal server error"
		h.Logger.WithError(err).WithField("path", c.Path()).Error("Request failed")
	}
	if h.DevMode && resp.Details == nil {
		resp.Details = map[string]any{"err": err.Error()}
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health pings the configured backends.
func (h *Handlers) Health(c echo.Context) error {
	if h.Checks == nil {
		return c.JSON(http.StatusOK, HealthResponse{OK: true})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{OK: true, Checks: map[string]string{}}
	for name, err := range h.Checks(ctx) {
		if err != nil {
			resp.OK = false
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	if !resp.OK {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
