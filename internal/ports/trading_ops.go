package ports

import (
	"context"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/betbot/perpdemo/exchange/types"
	"github.com/betbot/perpdemo/pkg/sdk"
	"github.com/betbot/perpdemo/pkg/sdk/api"
)

// Small capability interfaces over the exchange SDK, so callers depend only on what they use.

type PairReader interface {
	GetPairs(ctx context.Context) ([]api.Pair, error)
	GetPairDetails(ctx context.Context, pairID uint16) (*api.PairDetails, error)
}

type PriceGetter interface {
	GetPrice(ctx context.Context, from, to string) (*api.Price, error)
}

type SlippageSetter interface {
	SetSlippagePercentage(pct float64)
	GetSlippagePercentage() float64
}

type OrderPlacer interface {
	PerformTrade(ctx context.Context, params types.TradeParams, atPrice decimal.Decimal) (*ethtypes.Receipt, error)
}

type OrderCanceler interface {
	CancelLimitOrder(ctx context.Context, pairID uint16, index uint8) (*ethtypes.Receipt, error)
}

// PositionManager adjusts or closes an open trade identified by pair and index.
type PositionManager interface {
	UpdateTP(ctx context.Context, pairID uint16, index uint8, price decimal.Decimal) (*ethtypes.Receipt, error)
	UpdateSL(ctx context.Context, pairID uint16, index uint8, price decimal.Decimal) (*ethtypes.Receipt, error)
	CloseTrade(ctx context.Context, pairID uint16, index uint8) (*ethtypes.Receipt, error)
}

type AccountReader interface {
	TraderAddress() (string, error)
	GetOrders(ctx context.Context, trader string) ([]api.Order, error)
	GetOpenTrades(ctx context.Context, trader string) ([]api.Trade, error)
}

type MetricsReader interface {
	GetOpenTradeMetrics(ctx context.Context, pairID uint16, index uint8) (*sdk.TradeMetrics, error)
}
