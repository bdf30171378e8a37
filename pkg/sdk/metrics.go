package sdk

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/betbot/perpdemo/exchange/types"
	"github.com/betbot/perpdemo/pkg/sdk/api"
)

// liquidationThreshold is the share of collateral lost at which a position is liquidated.
var liquidationThreshold = decimal.NewFromFloat(0.9)

var hundred = decimal.NewFromInt(100)

// TradeMetrics 持仓在当前价格下的估值
type TradeMetrics struct {
	Pair             api.Pair
	Index            uint8
	Direction        types.Direction
	Collateral       decimal.Decimal
	Leverage         decimal.Decimal
	OpenPrice        decimal.Decimal
	CurrentPrice     decimal.Decimal
	PositionSize     decimal.Decimal // 以基础资产计
	PnL              decimal.Decimal // USDC
	PnLPercent       decimal.Decimal // 相对保证金
	Funding          decimal.Decimal
	Rollover         decimal.Decimal
	NetValue         decimal.Decimal
	LiquidationPrice decimal.Decimal // 估算值
	TakeProfit       decimal.Decimal
	StopLoss         decimal.Decimal
	IsMarketOpen     bool
}

// ComputeTradeMetrics values trade at price.Mid.
func ComputeTradeMetrics(trade api.Trade, price api.Price) TradeMetrics {
	m := TradeMetrics{
		Pair:         trade.Pair,
		Index:        trade.Index,
		Direction:    trade.Direction,
		Collateral:   trade.Collateral,
		Leverage:     trade.Leverage,
		OpenPrice:    trade.OpenPrice,
		CurrentPrice: price.Mid,
		Funding:      trade.Funding,
		Rollover:     trade.Rollover,
		TakeProfit:   trade.TakeProfit,
		StopLoss:     trade.StopLoss,
		IsMarketOpen: price.IsMarketOpen,
	}

	if trade.OpenPrice.IsPositive() {
		m.PositionSize = trade.Collateral.Mul(trade.Leverage).Div(trade.OpenPrice)
	}

	move := price.Mid.Sub(trade.OpenPrice)
	if !trade.Direction.IsBuy() {
		move = move.Neg()
	}
	m.PnL = move.Mul(m.PositionSize)

	if trade.Collateral.IsPositive() {
		m.PnLPercent = m.PnL.Div(trade.Collateral).Mul(hundred)
	}
	m.NetValue = trade.Collateral.Add(m.PnL).Sub(trade.Funding).Sub(trade.Rollover)

	if trade.Leverage.IsPositive() {
		offset := liquidationThreshold.Div(trade.Leverage)
		if trade.Direction.IsBuy() {
			m.LiquidationPrice = trade.OpenPrice.Mul(decimal.NewFromInt(1).Sub(offset))
		} else {
			m.LiquidationPrice = trade.OpenPrice.Mul(decimal.NewFromInt(1).Add(offset))
		}
	}
	return m
}

// Fields 按固定顺序返回可打印的字段
func (m TradeMetrics) Fields() []api.Field {
	return []api.Field{
		{Key: "pair", Value: m.Pair.String()},
		{Key: "index", Value: strconv.Itoa(int(m.Index))},
		{Key: "direction", Value: string(m.Direction)},
		{Key: "collateral", Value: m.Collateral.String()},
		{Key: "leverage", Value: m.Leverage.String()},
		{Key: "open_price", Value: m.OpenPrice.String()},
		{Key: "current_price", Value: m.CurrentPrice.String()},
		{Key: "position_size", Value: m.PositionSize.Round(8).String()},
		{Key: "pnl", Value: m.PnL.Round(6).String()},
		{Key: "pnl_percent", Value: m.PnLPercent.Round(4).String()},
		{Key: "funding", Value: m.Funding.String()},
		{Key: "rollover", Value: m.Rollover.String()},
		{Key: "net_value", Value: m.NetValue.Round(6).String()},
		{Key: "liquidation_price", Value: m.LiquidationPrice.Round(6).String()},
		{Key: "take_profit", Value: m.TakeProfit.String()},
		{Key: "stop_loss", Value: m.StopLoss.String()},
		{Key: "market_open", Value: strconv.FormatBool(m.IsMarketOpen)},
	}
}
