// Package demo walks a perp exchange account through one full order lifecycle:
// pair discovery, a cancelled limit order, a market order with TP/SL, a
// monitoring loop and the final close.
package demo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdemo/exchange/types"
	"github.com/betbot/perpdemo/internal/ports"
	"github.com/betbot/perpdemo/pkg/persistence"
	"github.com/betbot/perpdemo/pkg/sdk/api"
)

// ErrNoPairs is returned when the exchange lists no tradable pairs.
var ErrNoPairs = errors.New("no tradable pairs available")

// SDK is everything the runner needs from the exchange client.
type SDK interface {
	ports.PairReader
	ports.PriceGetter
	ports.SlippageSetter
	ports.OrderPlacer
	ports.OrderCanceler
	ports.PositionManager
	ports.AccountReader
	ports.MetricsReader
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Picker returns an index in [0, n).
type Picker func(n int) int

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func txHash(receipt *ethtypes.Receipt) string {
	if receipt == nil {
		return "<none>"
	}
	return receipt.TxHash.Hex()
}

// OrderSpec 演示订单参数
type OrderSpec struct {
	Collateral      decimal.Decimal
	Leverage        decimal.Decimal
	Direction       types.Direction
	OrderType       types.OrderType
	PriceMultiplier decimal.Decimal // 下单价 = 参考价 × multiplier
}

func (s OrderSpec) params(pairID uint16) types.TradeParams {
	return types.TradeParams{
		Collateral: s.Collateral,
		Leverage:   s.Leverage,
		PairIndex:  pairID,
		Direction:  s.Direction,
		OrderType:  s.OrderType,
	}
}

// Options 演示流程参数
type Options struct {
	LimitOrder           OrderSpec
	MarketOrder          OrderSpec
	SlippagePercent      float64
	TakeProfitMultiplier decimal.Decimal
	StopLossMultiplier   decimal.Decimal
	SettleDelay          time.Duration
	MonitorIterations    int
	MonitorInterval      time.Duration
}

// DefaultOptions 默认参数：20 USDC × 50 空头限价单（价格上浮 10%），100 USDC × 10 多头市价单
func DefaultOptions() Options {
	return Options{
		LimitOrder: OrderSpec{
			Collateral:      decimal.NewFromInt(20),
			Leverage:        decimal.NewFromInt(50),
			Direction:       types.DirectionShort,
			OrderType:       types.OrderTypeLimit,
			PriceMultiplier: decimal.RequireFromString("1.1"),
		},
		MarketOrder: OrderSpec{
			Collateral:      decimal.NewFromInt(100),
			Leverage:        decimal.NewFromInt(10),
			Direction:       types.DirectionLong,
			OrderType:       types.OrderTypeMarket,
			PriceMultiplier: decimal.NewFromInt(1),
		},
		SlippagePercent:      1,
		TakeProfitMultiplier: decimal.RequireFromString("1.05"),
		StopLossMultiplier:   decimal.RequireFromString("0.95"),
		SettleDelay:          10 * time.Second,
		MonitorIterations:    10,
		MonitorInterval:      60 * time.Second,
	}
}

// Runner 演示流程
type Runner struct {
	sdk     SDK
	opts    Options
	printer *Printer
	sleep   Sleeper
	pick    Picker
	log     *logrus.Entry
	runID   string

	journal persistence.Service
	seq     int
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

func WithSleeper(s Sleeper) RunnerOption {
	return func(r *Runner) { r.sleep = s }
}

func WithPicker(p Picker) RunnerOption {
	return func(r *Runner) { r.pick = p }
}

func WithLogger(entry *logrus.Entry) RunnerOption {
	return func(r *Runner) { r.log = entry }
}

// NewRunner 创建演示流程
func NewRunner(s SDK, opts Options, printer *Printer, extra ...RunnerOption) *Runner {
	r := &Runner{
		sdk:     s,
		opts:    opts,
		printer: printer,
		sleep:   sleepContext,
		pick:    rand.Intn,
		log:     logrus.WithField("component", "demo"),
		runID:   uuid.NewString(),
	}
	for _, o := range extra {
		o(r)
	}
	r.log = r.log.WithField("run_id", r.runID)
	return r
}

// RunID identifies this run in the logs.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes the whole demo once. Failures inside the order and trade phases
// are logged and do not stop the run; only pair discovery errors are returned.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("trade demo started")

	pairs, err := r.listPairs(ctx)
	if err != nil {
		return err
	}

	if err := r.limitOrderPhase(ctx, pairs); err != nil {
		r.log.WithError(err).Error("order failed")
	}

	if err := r.marketOrderPhase(ctx, pairs); err != nil {
		r.log.WithError(err).Error("trade failed")
	}

	r.log.Info("trade demo finished")
	return nil
}

func (r *Runner) listPairs(ctx context.Context) ([]api.Pair, error) {
	pairs, err := r.sdk.GetPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}

	r.printer.Title("Pair Information:")
	for _, pair := range pairs {
		details, err := r.sdk.GetPairDetails(ctx, pair.ID)
		if err != nil {
			return nil, fmt.Errorf("pair %d details: %w", pair.ID, err)
		}
		r.printer.Fields("Pair Details:", details.Fields())
	}
	r.log.WithField("pairs", len(pairs)).Info("pairs listed")
	return pairs, nil
}

func (r *Runner) pickPair(pairs []api.Pair) api.Pair {
	return pairs[r.pick(len(pairs))]
}

// referencePrice sets slippage and returns the pair's current mid price.
func (r *Runner) referencePrice(ctx context.Context, pair api.Pair) (decimal.Decimal, error) {
	r.sdk.SetSlippagePercentage(r.opts.SlippagePercent)
	r.printer.Info("Slippage percentage set to: %v%%", r.sdk.GetSlippagePercentage())

	price, err := r.sdk.GetPrice(ctx, pair.From, pair.To)
	if err != nil {
		return decimal.Zero, err
	}
	r.printer.Info("Latest price for %s to %s: %s %s", pair.From, pair.To, price.Mid, pair.To)
	return price.Mid, nil
}

func (r *Runner) limitOrderPhase(ctx context.Context, pairs []api.Pair) error {
	spec := r.opts.LimitOrder
	pair := r.pickPair(pairs)
	r.printer.Info("Random asset for %s order: %s", spec.OrderType, pair)

	price, err := r.referencePrice(ctx, pair)
	if err != nil {
		return err
	}

	receipt, err := r.sdk.PerformTrade(ctx, spec.params(pair.ID), price.Mul(spec.PriceMultiplier))
	if err != nil {
		return err
	}
	r.printer.Success("Order successful! Transaction hash: %s", txHash(receipt))
	r.record(StepOpenLimit, pair.ID, 0, receipt)

	if err := r.sleep(ctx, r.opts.SettleDelay); err != nil {
		return err
	}

	trader, err := r.sdk.TraderAddress()
	if err != nil {
		return err
	}
	orders, err := r.sdk.GetOrders(ctx, trader)
	if err != nil {
		return err
	}

	for i, order := range orders {
		r.printer.Info("Order %d: %s", i+1, order)
		r.printer.Info("Cancelling limit order pair_id=%d index=%d", order.Pair.ID, order.Index)
		receipt, err := r.sdk.CancelLimitOrder(ctx, order.Pair.ID, order.Index)
		if err != nil {
			return err
		}
		r.printer.Success("Limit order cancelled! Transaction hash: %s", txHash(receipt))
		r.record(StepCancelLimit, order.Pair.ID, order.Index, receipt)
	}

	if len(orders) == 0 {
		r.printer.Warn("No open order found. Maybe the order failed? Enough USDC and ETH in the account?")
		return nil
	}
	r.printer.Info("Opened order: %s", orders[len(orders)-1])
	return nil
}

func (r *Runner) marketOrderPhase(ctx context.Context, pairs []api.Pair) error {
	spec := r.opts.MarketOrder
	pair := r.pickPair(pairs)
	r.printer.Info("Random asset for %s trade: %s", spec.OrderType, pair)

	price, err := r.referencePrice(ctx, pair)
	if err != nil {
		return err
	}

	receipt, err := r.sdk.PerformTrade(ctx, spec.params(pair.ID), price.Mul(spec.PriceMultiplier))
	if err != nil {
		return err
	}
	r.printer.Success("Trade successful! Transaction hash: %s", txHash(receipt))
	r.record(StepOpenMarket, pair.ID, 0, receipt)

	if err := r.sleep(ctx, r.opts.SettleDelay); err != nil {
		return err
	}

	trader, err := r.sdk.TraderAddress()
	if err != nil {
		return err
	}
	trades, err := r.sdk.GetOpenTrades(ctx, trader)
	if err != nil {
		return err
	}
	for i, trade := range trades {
		r.printer.Info("Open Trade %d/%d: %s", i+1, len(trades), trade)
	}
	if len(trades) == 0 {
		r.printer.Warn("No open trades found. Maybe the trade failed? Enough USDC and ETH in the account?")
		return nil
	}

	selected := trades[len(trades)-1]
	r.printer.Info("The opened trade is: %s", selected)
	log := r.log.WithFields(logrus.Fields{"pair": selected.Pair.ID, "index": selected.Index})

	tp := price.Mul(r.opts.TakeProfitMultiplier)
	receipt, err = r.sdk.UpdateTP(ctx, selected.Pair.ID, selected.Index, tp)
	if err != nil {
		return err
	}
	r.printer.Success("Trade take profit set to %s", tp)
	r.record(StepUpdateTP, selected.Pair.ID, selected.Index, receipt)
	log.WithField("tp", tp.String()).Info("take profit updated")
	if err := r.sleep(ctx, r.opts.SettleDelay); err != nil {
		return err
	}

	sl := price.Mul(r.opts.StopLossMultiplier)
	receipt, err = r.sdk.UpdateSL(ctx, selected.Pair.ID, selected.Index, sl)
	if err != nil {
		return err
	}
	r.printer.Success("Trade stop loss set to %s", sl)
	r.record(StepUpdateSL, selected.Pair.ID, selected.Index, receipt)
	log.WithField("sl", sl.String()).Info("stop loss updated")
	if err := r.sleep(ctx, r.opts.SettleDelay); err != nil {
		return err
	}

	if err := r.monitor(ctx, selected); err != nil {
		return err
	}

	r.printer.Info("Closing trade...")
	receipt, err = r.sdk.CloseTrade(ctx, selected.Pair.ID, selected.Index)
	if err != nil {
		return err
	}
	r.printer.Success("Closed trade! Transaction hash: %s", txHash(receipt))
	r.record(StepClose, selected.Pair.ID, selected.Index, receipt)
	log.Info("trade closed")
	return nil
}

// monitor prints the selected trade's metrics once per iteration. A failed
// iteration is logged and the loop moves on after the usual interval.
func (r *Runner) monitor(ctx context.Context, trade api.Trade) error {
	n := r.opts.MonitorIterations
	if n <= 0 {
		return nil
	}
	r.printer.Info("Monitoring trade metrics for %d iterations...", n)

	for i := 1; i <= n; i++ {
		metrics, err := r.sdk.GetOpenTradeMetrics(ctx, trade.Pair.ID, trade.Index)
		if err != nil {
			r.log.WithError(err).WithField("iteration", i).Error("failed to get trade metrics")
		} else {
			r.printer.Fields(fmt.Sprintf("Iteration %d/%d - Trade Metrics:", i, n), metrics.Fields())
		}

		if i < n {
			r.printer.Info("Waiting %s before next iteration...", r.opts.MonitorInterval)
			if err := r.sleep(ctx, r.opts.MonitorInterval); err != nil {
				return err
			}
		}
	}
	return nil
}
