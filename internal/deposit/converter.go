package deposit

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/orca"
)

// AmountConverter turns a requested amount into token A base units.
type AmountConverter interface {
	ToTokenA(ctx context.Context, pool *orca.LegacyPool, amount decimal.Decimal) (uint64, error)
}

// PriceSource quotes an exact-in conversion between two mints.
type PriceSource interface {
	ConvertExactIn(ctx context.Context, inputMint, outputMint string, amount uint64) (uint64, error)
}

// TokenAConverter treats the amount as already denominated in token A.
type TokenAConverter struct{}

func (TokenAConverter) ToTokenA(_ context.Context, pool *orca.LegacyPool, amount decimal.Decimal) (uint64, error) {
	raw, err := FromUI(amount, pool.TokenADecimals)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindInvalidRequest, err, "invalid amount")
	}
	return raw, nil
}

// ReferenceConverter prices amounts given in a reference currency (for
// example USDC) into token A.
type ReferenceConverter struct {
	Source   PriceSource
	Mint     string
	Decimals uint8
}

func (c ReferenceConverter) ToTokenA(ctx context.Context, pool *orca.LegacyPool, amount decimal.Decimal) (uint64, error) {
	if c.Mint == "" || c.Mint == pool.TokenMintA.String() {
		return TokenAConverter{}.ToTokenA(ctx, pool, amount)
	}
	raw, err := FromUI(amount, c.Decimals)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindInvalidRequest, err, "invalid amount")
	}
	if raw == 0 {
		return 0, nil
	}
	out, err := c.Source.ConvertExactIn(ctx, c.Mint, pool.TokenMintA.String(), raw)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindRPC, err, "price conversion failed")
	}
	return out, nil
}
