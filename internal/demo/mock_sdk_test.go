package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/betbot/perpdemo/exchange/types"
	"github.com/betbot/perpdemo/pkg/sdk"
	"github.com/betbot/perpdemo/pkg/sdk/api"
)

// mockSDK is a scripted exchange client with call tracking and one-shot error injection.
type mockSDK struct {
	Pairs  []api.Pair
	Orders []api.Order
	Trades []api.Trade
	Price  decimal.Decimal

	// ErrorOnNext fails the next call of the named method, then clears itself.
	ErrorOnNext map[string]error
	// ErrorAlways fails every call of the named method.
	ErrorAlways map[string]error

	Calls         map[string]int
	Events        []string
	DetailsOrder  []uint16
	Placed        []types.TradeParams
	TradePrices   []decimal.Decimal
	Cancelled     []string
	TPs, SLs      []decimal.Decimal
	Closed        []string
	MetricsCalled []string

	slippage float64
	txCount  int
}

func newMockSDK() *mockSDK {
	return &mockSDK{
		Pairs: []api.Pair{
			{ID: 0, From: "BTC", To: "USD"},
			{ID: 1, From: "ETH", To: "USD"},
			{ID: 2, From: "EUR", To: "USD"},
		},
		Price:       decimal.NewFromInt(2000),
		ErrorOnNext: make(map[string]error),
		ErrorAlways: make(map[string]error),
		Calls:       make(map[string]int),
		slippage:    2,
	}
}

func (m *mockSDK) call(method string) error {
	m.Calls[method]++
	m.Events = append(m.Events, method)
	if err, ok := m.ErrorOnNext[method]; ok {
		delete(m.ErrorOnNext, method)
		return err
	}
	if err, ok := m.ErrorAlways[method]; ok {
		return err
	}
	return nil
}

func (m *mockSDK) receipt() *ethtypes.Receipt {
	m.txCount++
	return &ethtypes.Receipt{
		Status: ethtypes.ReceiptStatusSuccessful,
		TxHash: common.BigToHash(decimal.NewFromInt(int64(m.txCount)).BigInt()),
	}
}

func (m *mockSDK) GetPairs(ctx context.Context) ([]api.Pair, error) {
	if err := m.call("GetPairs"); err != nil {
		return nil, err
	}
	return m.Pairs, nil
}

func (m *mockSDK) GetPairDetails(ctx context.Context, pairID uint16) (*api.PairDetails, error) {
	if err := m.call("GetPairDetails"); err != nil {
		return nil, err
	}
	m.DetailsOrder = append(m.DetailsOrder, pairID)
	for _, p := range m.Pairs {
		if p.ID == pairID {
			return &api.PairDetails{Pair: p, Feed: fmt.Sprintf("feed-%d", p.ID)}, nil
		}
	}
	return nil, api.ErrPairNotFound
}

func (m *mockSDK) GetPrice(ctx context.Context, from, to string) (*api.Price, error) {
	if err := m.call("GetPrice"); err != nil {
		return nil, err
	}
	return &api.Price{Mid: m.Price, Bid: m.Price, Ask: m.Price, IsMarketOpen: true}, nil
}

func (m *mockSDK) SetSlippagePercentage(pct float64) {
	m.Calls["SetSlippagePercentage"]++
	m.slippage = pct
}

func (m *mockSDK) GetSlippagePercentage() float64 {
	return m.slippage
}

func (m *mockSDK) PerformTrade(ctx context.Context, params types.TradeParams, atPrice decimal.Decimal) (*ethtypes.Receipt, error) {
	if err := m.call("PerformTrade"); err != nil {
		return nil, err
	}
	m.Placed = append(m.Placed, params)
	m.TradePrices = append(m.TradePrices, atPrice)
	return m.receipt(), nil
}

func (m *mockSDK) CancelLimitOrder(ctx context.Context, pairID uint16, index uint8) (*ethtypes.Receipt, error) {
	if err := m.call("CancelLimitOrder"); err != nil {
		return nil, err
	}
	m.Cancelled = append(m.Cancelled, fmt.Sprintf("%d/%d", pairID, index))
	return m.receipt(), nil
}

func (m *mockSDK) UpdateTP(ctx context.Context, pairID uint16, index uint8, price decimal.Decimal) (*ethtypes.Receipt, error) {
	if err := m.call("UpdateTP"); err != nil {
		return nil, err
	}
	m.TPs = append(m.TPs, price)
	return m.receipt(), nil
}

func (m *mockSDK) UpdateSL(ctx context.Context, pairID uint16, index uint8, price decimal.Decimal) (*ethtypes.Receipt, error) {
	if err := m.call("UpdateSL"); err != nil {
		return nil, err
	}
	m.SLs = append(m.SLs, price)
	return m.receipt(), nil
}

func (m *mockSDK) CloseTrade(ctx context.Context, pairID uint16, index uint8) (*ethtypes.Receipt, error) {
	if err := m.call("CloseTrade"); err != nil {
		return nil, err
	}
	m.Closed = append(m.Closed, fmt.Sprintf("%d/%d", pairID, index))
	return m.receipt(), nil
}

func (m *mockSDK) TraderAddress() (string, error) {
	if err := m.call("TraderAddress"); err != nil {
		return "", err
	}
	return "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", nil
}

func (m *mockSDK) GetOrders(ctx context.Context, trader string) ([]api.Order, error) {
	if err := m.call("GetOrders"); err != nil {
		return nil, err
	}
	return m.Orders, nil
}

func (m *mockSDK) GetOpenTrades(ctx context.Context, trader string) ([]api.Trade, error) {
	if err := m.call("GetOpenTrades"); err != nil {
		return nil, err
	}
	return m.Trades, nil
}

func (m *mockSDK) GetOpenTradeMetrics(ctx context.Context, pairID uint16, index uint8) (*sdk.TradeMetrics, error) {
	if err := m.call("GetOpenTradeMetrics"); err != nil {
		return nil, err
	}
	m.MetricsCalled = append(m.MetricsCalled, fmt.Sprintf("%d/%d", pairID, index))
	return &sdk.TradeMetrics{
		Pair:         api.Pair{ID: pairID},
		Index:        index,
		CurrentPrice: m.Price,
	}, nil
}

// recordingSleeper captures requested delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}
