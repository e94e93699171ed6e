package orca

import (
	"fmt"
	"math/big"
)

const bpsDenominator = 10000

// DepositSplit returns the token B amount that matches amountA at the pool's
// current price ratio: floor(amountA * reserveB / reserveA).
func DepositSplit(amountA, reserveA, reserveB uint64) (uint64, error) {
	if reserveA == 0 || reserveB == 0 {
		return 0, fmt.Errorf("invalid reserves: both must be > 0")
	}

	// Use big.Int to prevent overflow
	out := new(big.Int).Mul(new(big.Int).SetUint64(amountA), new(big.Int).SetUint64(reserveB))
	out.Div(out, new(big.Int).SetUint64(reserveA))

	if !out.IsUint64() {
		return 0, fmt.Errorf("token B amount overflow")
	}
	return out.Uint64(), nil
}

// ExpectedLPTokens computes the pool tokens minted for a proportional deposit.
// The constant-product pool mints the smaller of the two per-side shares of
// the current supply; an empty pool mints sqrt(amountA * amountB).
func ExpectedLPTokens(amountA, amountB, reserveA, reserveB, supply uint64) (uint64, error) {
	if supply == 0 {
		v := new(big.Int).Mul(new(big.Int).SetUint64(amountA), new(big.Int).SetUint64(amountB))
		v.Sqrt(v)
		return v.Uint64(), nil
	}
	if reserveA == 0 || reserveB == 0 {
		return 0, fmt.Errorf("invalid reserves: both must be > 0")
	}

	s := new(big.Int).SetUint64(supply)

	shareA := new(big.Int).Mul(new(big.Int).SetUint64(amountA), s)
	shareA.Div(shareA, new(big.Int).SetUint64(reserveA))

	shareB := new(big.Int).Mul(new(big.Int).SetUint64(amountB), s)
	shareB.Div(shareB, new(big.Int).SetUint64(reserveB))

	out := shareA
	if shareB.Cmp(shareA) < 0 {
		out = shareB
	}
	if !out.IsUint64() {
		return 0, fmt.Errorf("LP amount overflow")
	}
	return out.Uint64(), nil
}

// ApplySlippage calculates minimum output with slippage tolerance
// slippageBps: basis points (e.g., 100 = 1%, 50 = 0.5%)
func ApplySlippage(amountOut uint64, slippageBps uint16) uint64 {
	if slippageBps >= bpsDenominator {
		return 0 // 100% slippage = no output
	}

	// minOut = floor(amountOut * (10000 - slippageBps) / 10000)
	result := new(big.Int).Mul(
		new(big.Int).SetUint64(amountOut),
		new(big.Int).SetUint64(bpsDenominator-uint64(slippageBps)),
	)
	result.Div(result, big.NewInt(bpsDenominator))

	return result.Uint64()
}

// CalculateFeeBps converts fee numerator/denominator to basis points
func CalculateFeeBps(feeNumerator, feeDenominator uint64) uint16 {
	if feeDenominator == 0 {
		return 0
	}
	return uint16((feeNumerator * bpsDenominator) / feeDenominator)
}
