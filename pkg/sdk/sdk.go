// Package sdk bundles the exchange's subgraph, price feed and trading contract
// behind a single client.
package sdk

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdemo/exchange/client"
	"github.com/betbot/perpdemo/exchange/signing"
	"github.com/betbot/perpdemo/exchange/types"
	"github.com/betbot/perpdemo/pkg/ratelimit"
	"github.com/betbot/perpdemo/pkg/sdk/api"
)

var (
	// ErrReadOnly is returned for writes and address lookups without a signing key.
	ErrReadOnly = client.ErrReadOnly
	// ErrTradeNotFound is returned when the caller has no open trade at pair/index.
	ErrTradeNotFound = errors.New("open trade not found")
)

var sdkLog = logrus.WithField("component", "sdk")

// Config SDK 配置
type Config struct {
	RPCURL      string
	ChainID     types.Chain
	SubgraphURL string
	PriceURL    string
	// Contracts 为空时按 ChainID 取默认地址
	Contracts *client.ContractConfig

	PrivateKey     string
	Mnemonic       string
	DerivationPath string

	SubgraphRatePerSecond float64
	ReceiptPollInterval   time.Duration
}

// SDK 交易所客户端
type SDK struct {
	Subgraph *api.SubgraphClient
	Price    *api.PriceClient
	Trading  *client.TradingClient
}

// New dials the RPC endpoint and wires the subgraph, price and trading clients.
// Without PrivateKey or Mnemonic the SDK is read-only.
func New(ctx context.Context, cfg Config) (*SDK, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	key, err := resolveKey(cfg)
	if err != nil {
		return nil, err
	}

	contracts := cfg.Contracts
	if contracts == nil {
		contracts, err = client.GetContractConfig(cfg.ChainID)
		if err != nil {
			return nil, err
		}
	}

	var opts []client.Option
	if cfg.ReceiptPollInterval > 0 {
		opts = append(opts, client.WithReceiptPollInterval(cfg.ReceiptPollInterval))
	}
	trading, err := client.Dial(ctx, cfg.RPCURL, cfg.ChainID, *contracts, key, opts...)
	if err != nil {
		return nil, err
	}

	rate := cfg.SubgraphRatePerSecond
	if rate <= 0 {
		rate = api.DefaultSubgraphRatePerSecond
	}
	limiter := ratelimit.NewTokenBucket(int(max(rate, 1)), rate)

	s := NewWithClients(
		api.NewSubgraphClient(cfg.SubgraphURL, limiter),
		api.NewPriceClient(cfg.PriceURL),
		trading,
	)

	fields := logrus.Fields{"chain": cfg.ChainID.String()}
	if addr, err := s.TraderAddress(); err == nil {
		fields["trader"] = addr
		sdkLog.WithFields(fields).Info("sdk ready")
	} else {
		sdkLog.WithFields(fields).Warn("no signing key configured, sdk is read-only")
	}
	return s, nil
}

// NewWithClients assembles an SDK from already constructed clients.
func NewWithClients(subgraph *api.SubgraphClient, price *api.PriceClient, trading *client.TradingClient) *SDK {
	return &SDK{Subgraph: subgraph, Price: price, Trading: trading}
}

func resolveKey(cfg Config) (*ecdsa.PrivateKey, error) {
	switch {
	case strings.TrimSpace(cfg.PrivateKey) != "":
		return signing.PrivateKeyFromHex(cfg.PrivateKey)
	case strings.TrimSpace(cfg.Mnemonic) != "":
		return signing.DeriveFromMnemonic(cfg.Mnemonic, cfg.DerivationPath)
	default:
		return nil, nil
	}
}

// Close 释放 RPC 连接
func (s *SDK) Close() {
	if s.Trading != nil {
		s.Trading.Close()
	}
}

// TraderAddress 返回签名账户地址（checksum 格式）
func (s *SDK) TraderAddress() (string, error) {
	addr, err := s.Trading.Address()
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

func (s *SDK) GetPairs(ctx context.Context) ([]api.Pair, error) {
	return s.Subgraph.GetPairs(ctx)
}

func (s *SDK) GetPairDetails(ctx context.Context, pairID uint16) (*api.PairDetails, error) {
	return s.Subgraph.GetPairDetails(ctx, pairID)
}

func (s *SDK) GetPrice(ctx context.Context, from, to string) (*api.Price, error) {
	return s.Price.GetPrice(ctx, from, to)
}

func (s *SDK) GetOrders(ctx context.Context, trader string) ([]api.Order, error) {
	return s.Subgraph.GetOrders(ctx, trader)
}

func (s *SDK) GetOpenTrades(ctx context.Context, trader string) ([]api.Trade, error) {
	return s.Subgraph.GetOpenTrades(ctx, trader)
}

func (s *SDK) SetSlippagePercentage(pct float64) {
	s.Trading.SetSlippagePercentage(pct)
}

func (s *SDK) GetSlippagePercentage() float64 {
	return s.Trading.GetSlippagePercentage()
}

func (s *SDK) PerformTrade(ctx context.Context, params types.TradeParams, atPrice decimal.Decimal) (*ethtypes.Receipt, error) {
	return s.Trading.PerformTrade(ctx, params, atPrice)
}

func (s *SDK) CancelLimitOrder(ctx context.Context, pairID uint16, index uint8) (*ethtypes.Receipt, error) {
	return s.Trading.CancelLimitOrder(ctx, pairID, index)
}

func (s *SDK) UpdateTP(ctx context.Context, pairID uint16, index uint8, price decimal.Decimal) (*ethtypes.Receipt, error) {
	return s.Trading.UpdateTP(ctx, pairID, index, price)
}

func (s *SDK) UpdateSL(ctx context.Context, pairID uint16, index uint8, price decimal.Decimal) (*ethtypes.Receipt, error) {
	return s.Trading.UpdateSL(ctx, pairID, index, price)
}

// CloseTrade 全部平仓
func (s *SDK) CloseTrade(ctx context.Context, pairID uint16, index uint8) (*ethtypes.Receipt, error) {
	return s.Trading.CloseTrade(ctx, pairID, index, client.FullClosePercentage)
}

// GetOpenTradeMetrics 查询调用者在 pair/index 上的持仓并按最新价格估值
func (s *SDK) GetOpenTradeMetrics(ctx context.Context, pairID uint16, index uint8) (*TradeMetrics, error) {
	trader, err := s.TraderAddress()
	if err != nil {
		return nil, err
	}

	trades, err := s.Subgraph.GetOpenTrades(ctx, trader)
	if err != nil {
		return nil, err
	}

	var trade *api.Trade
	for i := range trades {
		if trades[i].Pair.ID == pairID && trades[i].Index == index {
			trade = &trades[i]
			break
		}
	}
	if trade == nil {
		return nil, fmt.Errorf("%w: pair %d index %d", ErrTradeNotFound, pairID, index)
	}

	price, err := s.Price.GetPrice(ctx, trade.Pair.From, trade.Pair.To)
	if err != nil {
		return nil, err
	}

	m := ComputeTradeMetrics(*trade, *price)
	return &m, nil
}
