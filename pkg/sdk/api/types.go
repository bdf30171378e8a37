package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/perpdemo/exchange/types"
)

// Field is one printable key/value entry.
type Field struct {
	Key   string
	Value string
}

// Pair 交易对
type Pair struct {
	ID   uint16
	From string
	To   string
}

// Symbol 价格接口使用的资产代码，如 BTCUSD
func (p Pair) Symbol() string {
	return strings.ToUpper(p.From + p.To)
}

func (p Pair) String() string {
	return fmt.Sprintf("#%d %s/%s", p.ID, p.From, p.To)
}

// PairGroup 交易对分组（crypto / forex / commodities ...）
type PairGroup struct {
	ID          string
	Name        string
	MinLeverage decimal.Decimal
	MaxLeverage decimal.Decimal
}

// PairDetails 交易对详情
type PairDetails struct {
	Pair
	Feed                 string
	Group                PairGroup
	MaxLeverage          decimal.Decimal
	OvernightMaxLeverage decimal.Decimal
	MakerFeeP            decimal.Decimal // %
	TakerFeeP            decimal.Decimal // %
	LongOI               decimal.Decimal
	ShortOI              decimal.Decimal
	MaxOI                decimal.Decimal
	CurFundingLong       string
	CurFundingShort      string
	CurRollover          string
	TotalOpenTrades      int64
	TotalOpenLimitOrders int64
	LastTradePrice       decimal.Decimal
}

// Fields 按固定顺序返回可打印的字段
func (d PairDetails) Fields() []Field {
	return []Field{
		{"id", strconv.Itoa(int(d.ID))},
		{"from", d.From},
		{"to", d.To},
		{"feed", d.Feed},
		{"group", d.Group.Name},
		{"group_min_leverage", d.Group.MinLeverage.String()},
		{"group_max_leverage", d.Group.MaxLeverage.String()},
		{"max_leverage", d.MaxLeverage.String()},
		{"overnight_max_leverage", d.OvernightMaxLeverage.String()},
		{"maker_fee_pct", d.MakerFeeP.String()},
		{"taker_fee_pct", d.TakerFeeP.String()},
		{"long_oi", d.LongOI.String()},
		{"short_oi", d.ShortOI.String()},
		{"max_oi", d.MaxOI.String()},
		{"cur_funding_long", d.CurFundingLong},
		{"cur_funding_short", d.CurFundingShort},
		{"cur_rollover", d.CurRollover},
		{"total_open_trades", strconv.FormatInt(d.TotalOpenTrades, 10)},
		{"total_open_limit_orders", strconv.FormatInt(d.TotalOpenLimitOrders, 10)},
		{"last_trade_price", d.LastTradePrice.String()},
	}
}

// Order 挂单（限价 / 止损单）
type Order struct {
	ID          string
	Trader      string
	Pair        Pair
	Index       uint8
	Collateral  decimal.Decimal
	Leverage    decimal.Decimal
	Direction   types.Direction
	OpenPrice   decimal.Decimal
	TakeProfit  decimal.Decimal
	StopLoss    decimal.Decimal
	LimitType   types.OrderType
	InitiatedAt time.Time
}

func (o Order) String() string {
	return fmt.Sprintf("%s %s %s pair=%s index=%d collateral=%s leverage=%sx price=%s tp=%s sl=%s",
		o.ID, o.LimitType, o.Direction, o.Pair, o.Index,
		o.Collateral, o.Leverage, o.OpenPrice, o.TakeProfit, o.StopLoss)
}

// Trade 持仓
type Trade struct {
	ID         string
	Trader     string
	Pair       Pair
	Index      uint8
	Collateral decimal.Decimal
	Leverage   decimal.Decimal
	Direction  types.Direction
	OpenPrice  decimal.Decimal
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
	Notional   decimal.Decimal
	Funding    decimal.Decimal
	Rollover   decimal.Decimal
	OpenedAt   time.Time
}

func (t Trade) String() string {
	return fmt.Sprintf("%s %s pair=%s index=%d collateral=%s leverage=%sx open=%s tp=%s sl=%s",
		t.ID, t.Direction, t.Pair, t.Index,
		t.Collateral, t.Leverage, t.OpenPrice, t.TakeProfit, t.StopLoss)
}

// Price 价格快照
type Price struct {
	Mid          decimal.Decimal
	Bid          decimal.Decimal
	Ask          decimal.Decimal
	IsMarketOpen bool
	Timestamp    time.Time
}

// ---- subgraph wire types: BigInt 字段以字符串传输，且为定点数 ----

type pairRef struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

func (r pairRef) toPair() (Pair, error) {
	id, err := strconv.ParseUint(r.ID, 10, 16)
	if err != nil {
		return Pair{}, fmt.Errorf("invalid pair id %q: %w", r.ID, err)
	}
	return Pair{ID: uint16(id), From: r.From, To: r.To}, nil
}

type pairGroupWire struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MinLeverage string `json:"minLeverage"`
	MaxLeverage string `json:"maxLeverage"`
}

type pairWire struct {
	pairRef
	Feed                 string         `json:"feed"`
	Group                *pairGroupWire `json:"group"`
	MaxLeverage          string         `json:"maxLeverage"`
	OvernightMaxLeverage string         `json:"overnightMaxLeverage"`
	MakerFeeP            string         `json:"makerFeeP"`
	TakerFeeP            string         `json:"takerFeeP"`
	LongOI               string         `json:"longOI"`
	ShortOI              string         `json:"shortOI"`
	MaxOI                string         `json:"maxOI"`
	CurFundingLong       string         `json:"curFundingLong"`
	CurFundingShort      string         `json:"curFundingShort"`
	CurRollover          string         `json:"curRollover"`
	TotalOpenTrades      string         `json:"totalOpenTrades"`
	TotalOpenLimitOrders string         `json:"totalOpenLimitOrders"`
	LastTradePrice       string         `json:"lastTradePrice"`
}

// fee percentages carry 6 decimals, open interest 18
const (
	feeDecimals = 6
	oiDecimals  = 18
)

func (w pairWire) toDetails() (*PairDetails, error) {
	pair, err := w.toPair()
	if err != nil {
		return nil, err
	}
	p := fixedParser{}
	d := &PairDetails{
		Pair:                 pair,
		Feed:                 w.Feed,
		MaxLeverage:          p.parse("maxLeverage", w.MaxLeverage, types.PercentDecimals),
		OvernightMaxLeverage: p.parse("overnightMaxLeverage", w.OvernightMaxLeverage, types.PercentDecimals),
		MakerFeeP:            p.parse("makerFeeP", w.MakerFeeP, feeDecimals),
		TakerFeeP:            p.parse("takerFeeP", w.TakerFeeP, feeDecimals),
		LongOI:               p.parse("longOI", w.LongOI, oiDecimals),
		ShortOI:              p.parse("shortOI", w.ShortOI, oiDecimals),
		MaxOI:                p.parse("maxOI", w.MaxOI, oiDecimals),
		CurFundingLong:       w.CurFundingLong,
		CurFundingShort:      w.CurFundingShort,
		CurRollover:          w.CurRollover,
		TotalOpenTrades:      p.parse("totalOpenTrades", w.TotalOpenTrades, 0).IntPart(),
		TotalOpenLimitOrders: p.parse("totalOpenLimitOrders", w.TotalOpenLimitOrders, 0).IntPart(),
		LastTradePrice:       p.parse("lastTradePrice", w.LastTradePrice, types.PriceDecimals),
	}
	if w.Group != nil {
		d.Group = PairGroup{
			ID:          w.Group.ID,
			Name:        w.Group.Name,
			MinLeverage: p.parse("group.minLeverage", w.Group.MinLeverage, types.PercentDecimals),
			MaxLeverage: p.parse("group.maxLeverage", w.Group.MaxLeverage, types.PercentDecimals),
		}
	}
	if p.err != nil {
		return nil, fmt.Errorf("pair %d: %w", pair.ID, p.err)
	}
	return d, nil
}

type orderWire struct {
	ID              string  `json:"id"`
	Trader          string  `json:"trader"`
	Pair            pairRef `json:"pair"`
	Index           string  `json:"index"`
	Collateral      string  `json:"collateral"`
	Leverage        string  `json:"leverage"`
	IsBuy           bool    `json:"isBuy"`
	OpenPrice       string  `json:"openPrice"`
	TakeProfitPrice string  `json:"takeProfitPrice"`
	StopLossPrice   string  `json:"stopLossPrice"`
	LimitType       string  `json:"limitType"`
	InitiatedAt     string  `json:"initiatedAt"`
}

func (w orderWire) toOrder() (Order, error) {
	pair, err := w.Pair.toPair()
	if err != nil {
		return Order{}, err
	}
	index, err := parseIndex(w.Index)
	if err != nil {
		return Order{}, fmt.Errorf("order %s: %w", w.ID, err)
	}
	limitType, err := parseLimitType(w.LimitType)
	if err != nil {
		return Order{}, fmt.Errorf("order %s: %w", w.ID, err)
	}
	p := fixedParser{}
	o := Order{
		ID:          w.ID,
		Trader:      w.Trader,
		Pair:        pair,
		Index:       index,
		Collateral:  p.parse("collateral", w.Collateral, types.CollateralDecimals),
		Leverage:    p.parse("leverage", w.Leverage, types.PercentDecimals),
		Direction:   types.DirectionFromBuy(w.IsBuy),
		OpenPrice:   p.parse("openPrice", w.OpenPrice, types.PriceDecimals),
		TakeProfit:  p.parse("takeProfitPrice", w.TakeProfitPrice, types.PriceDecimals),
		StopLoss:    p.parse("stopLossPrice", w.StopLossPrice, types.PriceDecimals),
		LimitType:   limitType,
		InitiatedAt: p.unix("initiatedAt", w.InitiatedAt),
	}
	if p.err != nil {
		return Order{}, fmt.Errorf("order %s: %w", w.ID, p.err)
	}
	return o, nil
}

type tradeWire struct {
	ID              string  `json:"id"`
	Trader          string  `json:"trader"`
	Pair            pairRef `json:"pair"`
	Index           string  `json:"index"`
	Collateral      string  `json:"collateral"`
	Leverage        string  `json:"leverage"`
	IsBuy           bool    `json:"isBuy"`
	OpenPrice       string  `json:"openPrice"`
	TakeProfitPrice string  `json:"takeProfitPrice"`
	StopLossPrice   string  `json:"stopLossPrice"`
	Notional        string  `json:"notional"`
	Funding         string  `json:"funding"`
	Rollover        string  `json:"rollover"`
	Timestamp       string  `json:"timestamp"`
}

func (w tradeWire) toTrade() (Trade, error) {
	pair, err := w.Pair.toPair()
	if err != nil {
		return Trade{}, err
	}
	index, err := parseIndex(w.Index)
	if err != nil {
		return Trade{}, fmt.Errorf("trade %s: %w", w.ID, err)
	}
	p := fixedParser{}
	t := Trade{
		ID:         w.ID,
		Trader:     w.Trader,
		Pair:       pair,
		Index:      index,
		Collateral: p.parse("collateral", w.Collateral, types.CollateralDecimals),
		Leverage:   p.parse("leverage", w.Leverage, types.PercentDecimals),
		Direction:  types.DirectionFromBuy(w.IsBuy),
		OpenPrice:  p.parse("openPrice", w.OpenPrice, types.PriceDecimals),
		TakeProfit: p.parse("takeProfitPrice", w.TakeProfitPrice, types.PriceDecimals),
		StopLoss:   p.parse("stopLossPrice", w.StopLossPrice, types.PriceDecimals),
		Notional:   p.parse("notional", w.Notional, types.CollateralDecimals),
		Funding:    p.parse("funding", w.Funding, types.CollateralDecimals),
		Rollover:   p.parse("rollover", w.Rollover, types.CollateralDecimals),
		OpenedAt:   p.unix("timestamp", w.Timestamp),
	}
	if p.err != nil {
		return Trade{}, fmt.Errorf("trade %s: %w", w.ID, p.err)
	}
	return t, nil
}

// fixedParser collects the first parse error so wire conversions stay linear.
type fixedParser struct {
	err error
}

func (p *fixedParser) parse(field, raw string, decimals int32) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("invalid %s %q: %w", field, raw, err)
		}
		return decimal.Zero
	}
	return d.Shift(-decimals)
}

func (p *fixedParser) unix(field, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("invalid %s %q: %w", field, raw, err)
		}
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func parseIndex(raw string) (uint8, error) {
	i, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", raw, err)
	}
	return uint8(i), nil
}

// parseLimitType accepts both the enum name and its numeric code.
func parseLimitType(raw string) (types.OrderType, error) {
	switch strings.TrimSpace(raw) {
	case "0":
		return types.OrderTypeMarket, nil
	case "1":
		return types.OrderTypeLimit, nil
	case "2":
		return types.OrderTypeStop, nil
	}
	return types.ParseOrderType(raw)
}
