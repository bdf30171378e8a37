package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Fixed-point precisions used by the trading contracts and the subgraph.
const (
	CollateralDecimals = 6  // USDC
	PriceDecimals      = 18 // all prices
	PercentDecimals    = 2  // leverage, slippage, close percentage
)

var (
	ErrInvalidCollateral = errors.New("collateral must be positive")
	ErrInvalidLeverage   = errors.New("leverage must be positive")
	ErrInvalidPrice      = errors.New("price must be positive")
)

// TradeParams 开仓参数
type TradeParams struct {
	// Collateral USDC 保证金
	Collateral decimal.Decimal
	// Leverage 杠杆倍数
	Leverage decimal.Decimal
	// PairIndex 交易对 ID（subgraph 中的 pair.id）
	PairIndex uint16
	Direction Direction
	OrderType OrderType
	// TakeProfit / StopLoss 可选，零值表示不设置
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

// Validate checks what the contract call cannot encode.
func (p TradeParams) Validate() error {
	if !p.Collateral.IsPositive() {
		return ErrInvalidCollateral
	}
	if !p.Leverage.IsPositive() {
		return ErrInvalidLeverage
	}
	if p.Direction != DirectionLong && p.Direction != DirectionShort {
		return fmt.Errorf("unknown direction %q", string(p.Direction))
	}
	if _, err := p.OrderType.Code(); err != nil {
		return err
	}
	return nil
}

// ToFixed scales a decimal into the integer representation with the given decimals.
// Digits past the precision are truncated.
func ToFixed(d decimal.Decimal, decimals int32) *big.Int {
	return d.Shift(decimals).Truncate(0).BigInt()
}

// FromFixed is the inverse of ToFixed.
func FromFixed(i *big.Int, decimals int32) decimal.Decimal {
	if i == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(i, -decimals)
}
