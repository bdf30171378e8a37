package client

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdemo/exchange/types"
)

var (
	// ErrReadOnly is returned by every write when the client has no signing key.
	ErrReadOnly = errors.New("trading client is read-only: no signing key configured")
	// ErrTxReverted is returned when a mined transaction has a failed status.
	ErrTxReverted = errors.New("transaction reverted")
)

const (
	// DefaultSlippagePercentage 默认滑点（%）
	DefaultSlippagePercentage = 2
	// FullClosePercentage 全部平仓
	FullClosePercentage = 100

	defaultReceiptPollInterval = 2 * time.Second
)

// Backend is the subset of ethclient.Client the trading client needs.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// tradeTuple mirrors the contract's Trade struct; field names follow the ABI components.
type tradeTuple struct {
	Collateral *big.Int
	OpenPrice  *big.Int
	Tp         *big.Int
	Sl         *big.Int
	Trader     common.Address
	Leverage   uint32
	PairIndex  uint16
	Index      uint8
	Buy        bool
}

// TradingClient 链上交易客户端
type TradingClient struct {
	backend        Backend
	closeFn        func()
	chainID        *big.Int
	trading        common.Address
	tradingStorage common.Address
	usdc           common.Address
	privateKey     *ecdsa.PrivateKey
	tradingABI     abi.ABI
	erc20ABI       abi.ABI
	pollInterval   time.Duration
	log            *logrus.Entry

	mu       sync.RWMutex
	slippage decimal.Decimal
}

// Option customises a TradingClient.
type Option func(*TradingClient)

// WithReceiptPollInterval sets how often a pending transaction's receipt is polled.
func WithReceiptPollInterval(d time.Duration) Option {
	return func(c *TradingClient) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// Dial 连接 RPC 节点并创建交易客户端；privateKey 为 nil 时为只读模式
func Dial(
	ctx context.Context,
	rpcURL string,
	chainID types.Chain,
	contracts ContractConfig,
	privateKey *ecdsa.PrivateKey,
	opts ...Option,
) (*TradingClient, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	c, err := NewTradingClient(ec, chainID, contracts, privateKey, opts...)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closeFn = ec.Close
	return c, nil
}

// NewTradingClient 使用已有的 backend 创建交易客户端
func NewTradingClient(
	backend Backend,
	chainID types.Chain,
	contracts ContractConfig,
	privateKey *ecdsa.PrivateKey,
	opts ...Option,
) (*TradingClient, error) {
	if err := contracts.Validate(); err != nil {
		return nil, err
	}

	tradingABI, err := abi.JSON(strings.NewReader(TradingABI))
	if err != nil {
		return nil, fmt.Errorf("parse trading abi: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	c := &TradingClient{
		backend:        backend,
		chainID:        big.NewInt(int64(chainID)),
		trading:        common.HexToAddress(contracts.Trading),
		tradingStorage: common.HexToAddress(contracts.TradingStorage),
		usdc:           common.HexToAddress(contracts.USDC),
		privateKey:     privateKey,
		tradingABI:     tradingABI,
		erc20ABI:       erc20ABI,
		pollInterval:   defaultReceiptPollInterval,
		log:            logrus.WithField("component", "trading"),
		slippage:       decimal.NewFromInt(DefaultSlippagePercentage),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close 关闭底层 RPC 连接
func (c *TradingClient) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// ReadOnly reports whether the client lacks a signing key.
func (c *TradingClient) ReadOnly() bool {
	return c.privateKey == nil
}

// Address 返回签名账户地址
func (c *TradingClient) Address() (common.Address, error) {
	if c.privateKey == nil {
		return common.Address{}, ErrReadOnly
	}
	return crypto.PubkeyToAddress(c.privateKey.PublicKey), nil
}

// SetSlippagePercentage sets the slippage (in percent) sent with subsequent orders.
func (c *TradingClient) SetSlippagePercentage(pct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slippage = decimal.NewFromFloat(pct)
}

// GetSlippagePercentage returns the slippage in percent.
func (c *TradingClient) GetSlippagePercentage() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slippage.InexactFloat64()
}

// PerformTrade 开仓（市价/限价/止损单），atPrice 为下单价格
func (c *TradingClient) PerformTrade(ctx context.Context, params types.TradeParams, atPrice decimal.Decimal) (*ethtypes.Receipt, error) {
	trader, err := c.Address()
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trade params: %w", err)
	}
	if !atPrice.IsPositive() {
		return nil, types.ErrInvalidPrice
	}
	orderType, err := params.OrderType.Code()
	if err != nil {
		return nil, err
	}

	collateral := types.ToFixed(params.Collateral, types.CollateralDecimals)
	if err := c.ensureAllowance(ctx, trader, collateral); err != nil {
		return nil, err
	}

	trade := tradeTuple{
		Collateral: collateral,
		OpenPrice:  types.ToFixed(atPrice, types.PriceDecimals),
		Tp:         types.ToFixed(params.TakeProfit, types.PriceDecimals),
		Sl:         types.ToFixed(params.StopLoss, types.PriceDecimals),
		Trader:     trader,
		Leverage:   uint32(types.ToFixed(params.Leverage, types.PercentDecimals).Uint64()),
		PairIndex:  params.PairIndex,
		Index:      0,
		Buy:        params.Direction.IsBuy(),
	}

	c.mu.RLock()
	slippage := types.ToFixed(c.slippage, types.PercentDecimals)
	c.mu.RUnlock()

	data, err := c.tradingABI.Pack("openTrade", trade, orderType, slippage)
	if err != nil {
		return nil, fmt.Errorf("pack openTrade: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"pair":       params.PairIndex,
		"direction":  params.Direction,
		"order_type": params.OrderType,
		"collateral": params.Collateral.String(),
		"leverage":   params.Leverage.String(),
		"price":      atPrice.String(),
	}).Info("submitting openTrade")
	return c.transact(ctx, c.trading, data)
}

// CancelLimitOrder 撤销挂单
func (c *TradingClient) CancelLimitOrder(ctx context.Context, pairIndex uint16, index uint8) (*ethtypes.Receipt, error) {
	if c.ReadOnly() {
		return nil, ErrReadOnly
	}
	data, err := c.tradingABI.Pack("cancelOpenLimitOrder", pairIndex, index)
	if err != nil {
		return nil, fmt.Errorf("pack cancelOpenLimitOrder: %w", err)
	}
	c.log.WithFields(logrus.Fields{"pair": pairIndex, "index": index}).Info("submitting cancelOpenLimitOrder")
	return c.transact(ctx, c.trading, data)
}

// UpdateTP 修改止盈价
func (c *TradingClient) UpdateTP(ctx context.Context, pairIndex uint16, index uint8, price decimal.Decimal) (*ethtypes.Receipt, error) {
	return c.updateLevel(ctx, "updateTp", pairIndex, index, price)
}

// UpdateSL 修改止损价
func (c *TradingClient) UpdateSL(ctx context.Context, pairIndex uint16, index uint8, price decimal.Decimal) (*ethtypes.Receipt, error) {
	return c.updateLevel(ctx, "updateSl", pairIndex, index, price)
}

func (c *TradingClient) updateLevel(ctx context.Context, method string, pairIndex uint16, index uint8, price decimal.Decimal) (*ethtypes.Receipt, error) {
	if c.ReadOnly() {
		return nil, ErrReadOnly
	}
	if price.IsNegative() {
		return nil, types.ErrInvalidPrice
	}
	data, err := c.tradingABI.Pack(method, pairIndex, index, types.ToFixed(price, types.PriceDecimals))
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	c.log.WithFields(logrus.Fields{"pair": pairIndex, "index": index, "price": price.String()}).Infof("submitting %s", method)
	return c.transact(ctx, c.trading, data)
}

// CloseTrade 市价平仓，percent 为平仓比例（1-100）
func (c *TradingClient) CloseTrade(ctx context.Context, pairIndex uint16, index uint8, percent float64) (*ethtypes.Receipt, error) {
	if c.ReadOnly() {
		return nil, ErrReadOnly
	}
	if percent <= 0 || percent > FullClosePercentage {
		return nil, fmt.Errorf("close percentage must be in (0, 100], got %v", percent)
	}
	closePct := uint16(types.ToFixed(decimal.NewFromFloat(percent), types.PercentDecimals).Uint64())
	data, err := c.tradingABI.Pack("closeTradeMarket", pairIndex, index, closePct)
	if err != nil {
		return nil, fmt.Errorf("pack closeTradeMarket: %w", err)
	}
	c.log.WithFields(logrus.Fields{"pair": pairIndex, "index": index, "percent": percent}).Info("submitting closeTradeMarket")
	return c.transact(ctx, c.trading, data)
}

// Allowance 查询 owner 授权给保证金托管合约的 USDC 额度（6 位精度整数）
func (c *TradingClient) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("allowance", owner, c.tradingStorage)
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.usdc, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call allowance: %w", err)
	}
	values, err := c.erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("unpack allowance: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected allowance output length %d", len(values))
	}
	allowance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance output type %T", values[0])
	}
	return allowance, nil
}

// ensureAllowance approves the storage contract for amount when the current allowance is short.
func (c *TradingClient) ensureAllowance(ctx context.Context, owner common.Address, amount *big.Int) error {
	allowance, err := c.Allowance(ctx, owner)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	c.log.WithFields(logrus.Fields{
		"allowance": allowance.String(),
		"required":  amount.String(),
	}).Info("usdc allowance too low, approving")

	data, err := c.erc20ABI.Pack("approve", c.tradingStorage, amount)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}
	if _, err := c.transact(ctx, c.usdc, data); err != nil {
		return fmt.Errorf("approve usdc: %w", err)
	}
	return nil
}

// transact signs and sends a call to `to`, then waits for it to be mined.
func (c *TradingClient) transact(ctx context.Context, to common.Address, data []byte) (*ethtypes.Receipt, error) {
	from := crypto.PubkeyToAddress(c.privateKey.PublicKey)

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Data:  data,
		Value: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	c.log.WithField("tx", signedTx.Hash().Hex()).Debug("transaction sent, waiting for receipt")

	return c.waitMined(ctx, signedTx.Hash())
}

func (c *TradingClient) waitMined(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == ethtypes.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: %s", ErrTxReverted, txHash.Hex())
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("get receipt %s: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
