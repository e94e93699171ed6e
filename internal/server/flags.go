package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/flags"
)

// flagsRequired short-circuits the flag routes when no Redis is configured.
func (h *Handlers) flagsRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.Flags == nil {
			return h.err(c, http.StatusServiceUnavailable, "flags are not configured", nil)
		}
		return next(c)
	}
}

func (h *Handlers) flagKey(c echo.Context) (string, bool) {
	key := c.Param("key")
	return key, flags.ValidateKey(key) == nil
}

func (h *Handlers) setFlag(c echo.Context, key string, value bool) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Upsert(ctx, key, value)
	if err != nil {
		h.Logger.WithError(err).WithField("key", key).Error("flag write failed")
		return h.err(c, http.StatusInternalServerError, "failed to store flag", nil)
	}
	h.Logger.WithFields(logrus.Fields{"key": out.Key, "value": out.Value}).Info("Flag updated")
	return c.JSON(http.StatusOK, out)
}

// FlagsUpsert sets a switch named in the body, e.g. pool.<id>.paused.
func (h *Handlers) FlagsUpsert(c echo.Context) error {
	var req FlagUpsertRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if flags.ValidateKey(req.Key) != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}
	return h.setFlag(c, req.Key, req.Value)
}

// FlagsUpdate sets the switch named in the path.
func (h *Handlers) FlagsUpdate(c echo.Context) error {
	key, ok := h.flagKey(c)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}
	var req FlagUpdateRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	return h.setFlag(c, key, req.Value)
}

func (h *Handlers) FlagsGet(c echo.Context) error {
	key, ok := h.flagKey(c)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Get(ctx, key)
	switch {
	case errors.Is(err, flags.ErrNotFound):
		return h.err(c, http.StatusNotFound, "flag not found", nil)
	case err != nil:
		return h.err(c, http.StatusInternalServerError, "failed to get flag", nil)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handlers) FlagsList(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Flags.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list flags", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) FlagsDelete(c echo.Context) error {
	key, ok := h.flagKey(c)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Flags.Delete(ctx, key); err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to delete flag", nil)
	}
	return c.NoContent(http.StatusNoContent)
}
