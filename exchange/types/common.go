package types

import (
	"fmt"
	"strings"
)

// Direction 持仓方向
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// IsBuy reports whether the direction maps to the contract's buy flag.
func (d Direction) IsBuy() bool {
	return d == DirectionLong
}

// DirectionFromBuy converts the contract's buy flag back into a Direction.
func DirectionFromBuy(buy bool) Direction {
	if buy {
		return DirectionLong
	}
	return DirectionShort
}

// ParseDirection accepts LONG/SHORT (any case) as well as BUY/SELL.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return DirectionLong, nil
	case "SHORT", "SELL":
		return DirectionShort, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// OrderType 开仓订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// Code returns the uint8 value the trading contract expects for the order type.
func (t OrderType) Code() (uint8, error) {
	switch t {
	case OrderTypeMarket:
		return 0, nil
	case OrderTypeLimit:
		return 1, nil
	case OrderTypeStop:
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported order type %q", string(t))
	}
}

// ParseOrderType accepts MARKET, LIMIT or STOP (any case).
func ParseOrderType(s string) (OrderType, error) {
	t := OrderType(strings.ToUpper(strings.TrimSpace(s)))
	if _, err := t.Code(); err != nil {
		return "", err
	}
	return t, nil
}

// Chain 区块链网络
type Chain int64

const (
	ChainArbitrum        Chain = 42161
	ChainArbitrumSepolia Chain = 421614
)

func (c Chain) String() string {
	switch c {
	case ChainArbitrum:
		return "arbitrum"
	case ChainArbitrumSepolia:
		return "arbitrum-sepolia"
	default:
		return fmt.Sprintf("chain-%d", int64(c))
	}
}
