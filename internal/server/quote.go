package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/gbsoe/FiLotV2-sub001/internal/deposit"
)

// PoolQuote prices a deposit of `amount` token A (UI units) against live
// reserves. Nothing is built or stored.
func (h *Handlers) PoolQuote(c echo.Context) error {
	amountStr := strings.TrimSpace(c.QueryParam("amount"))
	if amountStr == "" {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": "required"})
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil || !amount.IsPositive() {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": "must be a positive number"})
	}

	var slippageBps *uint16
	if v := strings.TrimSpace(c.QueryParam("slippage_bps")); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid slippage_bps", map[string]any{"slippage_bps": "must be uint16"})
		}
		tmp := uint16(n)
		slippageBps = &tmp
	}

	pool, err := h.Pools.Lookup(c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	amountA, err := deposit.FromUI(amount, pool.TokenADecimals)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	snap, err := h.Pools.Snapshot(ctx, pool)
	if err != nil {
		return h.fail(c, err)
	}
	q, err := h.Builder.Quote(snap, amountA, slippageBps, nil)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, PoolQuoteResponse{
		PoolID:           pool.ID,
		TokenAAmount:     q.TokenAAmount,
		TokenBAmount:     q.TokenBAmount,
		ExpectedLPTokens: q.ExpectedLPTokens,
		MinLPTokens:      q.MinLPTokens,
		SlippageBps:      q.SlippageBps,
		FeeBps:           q.FeeBps,
		ReserveA:         snap.ReserveA,
		ReserveB:         snap.ReserveB,
		Summary:          deposit.Summarize(pool, q),
	})
}
