package client

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/perpdemo/exchange/signing"
	"github.com/betbot/perpdemo/exchange/types"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// fakeBackend records sent transactions and serves canned chain responses.
type fakeBackend struct {
	Calls       map[string]int
	ErrorOnNext map[string]error

	Allowance      *big.Int
	ReceiptStatus  uint64
	PendingPolls   int
	Sent           []*ethtypes.Transaction
	LastCallTarget common.Address
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		Calls:         make(map[string]int),
		ErrorOnNext:   make(map[string]error),
		Allowance:     big.NewInt(0),
		ReceiptStatus: ethtypes.ReceiptStatusSuccessful,
	}
}

func (f *fakeBackend) checkError(method string) error {
	f.Calls[method]++
	if err, ok := f.ErrorOnNext[method]; ok {
		delete(f.ErrorOnNext, method)
		return err
	}
	return nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := f.checkError("PendingNonceAt"); err != nil {
		return 0, err
	}
	return uint64(len(f.Sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := f.checkError("SuggestGasPrice"); err != nil {
		return nil, err
	}
	return big.NewInt(100_000_000), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := f.checkError("EstimateGas"); err != nil {
		return 0, err
	}
	return 500_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	if err := f.checkError("SendTransaction"); err != nil {
		return err
	}
	f.Sent = append(f.Sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if err := f.checkError("TransactionReceipt"); err != nil {
		return nil, err
	}
	if f.PendingPolls > 0 {
		f.PendingPolls--
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{Status: f.ReceiptStatus, TxHash: txHash}, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := f.checkError("CallContract"); err != nil {
		return nil, err
	}
	if msg.To != nil {
		f.LastCallTarget = *msg.To
	}
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, err
	}
	return parsed.Methods["allowance"].Outputs.Pack(f.Allowance)
}

func newTestClient(t *testing.T, backend Backend, withKey bool) *TradingClient {
	t.Helper()
	contracts, err := GetContractConfig(types.ChainArbitrumSepolia)
	require.NoError(t, err)

	var opts []Option
	opts = append(opts, WithReceiptPollInterval(time.Millisecond))
	if !withKey {
		c, err := NewTradingClient(backend, types.ChainArbitrumSepolia, *contracts, nil, opts...)
		require.NoError(t, err)
		return c
	}
	key, err := signing.PrivateKeyFromHex(testKeyHex)
	require.NoError(t, err)
	c, err := NewTradingClient(backend, types.ChainArbitrumSepolia, *contracts, key, opts...)
	require.NoError(t, err)
	return c
}

// decodeCall returns the method name and arguments encoded in a transaction.
func decodeCall(t *testing.T, abiJSON string, data []byte) (string, []interface{}) {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 4)
	method, err := parsed.MethodById(data[:4])
	require.NoError(t, err)
	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return method.Name, args
}

func limitShortParams() types.TradeParams {
	return types.TradeParams{
		Collateral: decimal.NewFromInt(20),
		Leverage:   decimal.NewFromInt(50),
		PairIndex:  3,
		Direction:  types.DirectionShort,
		OrderType:  types.OrderTypeLimit,
	}
}

func TestPerformTradeApprovesThenOpens(t *testing.T) {
	backend := newFakeBackend()
	c := newTestClient(t, backend, true)
	c.SetSlippagePercentage(1)

	price := decimal.RequireFromString("65000.5")
	receipt, err := c.PerformTrade(context.Background(), limitShortParams(), price)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	require.Len(t, backend.Sent, 2, "approve followed by openTrade")
	assert.Equal(t, common.HexToAddress(ArbitrumSepoliaContracts.USDC), backend.LastCallTarget)

	approveTx := backend.Sent[0]
	assert.Equal(t, common.HexToAddress(ArbitrumSepoliaContracts.USDC), *approveTx.To())
	name, args := decodeCall(t, ERC20ABI, approveTx.Data())
	assert.Equal(t, "approve", name)
	assert.Equal(t, common.HexToAddress(ArbitrumSepoliaContracts.TradingStorage), args[0].(common.Address))
	assert.Equal(t, "20000000", args[1].(*big.Int).String())

	openTx := backend.Sent[1]
	assert.Equal(t, common.HexToAddress(ArbitrumSepoliaContracts.Trading), *openTx.To())
	assert.Equal(t, uint64(1), openTx.Nonce())

	name, args = decodeCall(t, TradingABI, openTx.Data())
	require.Equal(t, "openTrade", name)
	require.Len(t, args, 3)

	trade := *abi.ConvertType(args[0], new(tradeTuple)).(*tradeTuple)
	assert.Equal(t, "20000000", trade.Collateral.String())
	assert.Equal(t, "65000500000000000000000", trade.OpenPrice.String())
	assert.Equal(t, int64(0), trade.Tp.Int64())
	assert.Equal(t, int64(0), trade.Sl.Int64())
	assert.Equal(t, uint32(5000), trade.Leverage)
	assert.Equal(t, uint16(3), trade.PairIndex)
	assert.Equal(t, uint8(0), trade.Index)
	assert.False(t, trade.Buy)

	addr, err := c.Address()
	require.NoError(t, err)
	assert.Equal(t, addr, trade.Trader)

	assert.Equal(t, uint8(1), args[1].(uint8), "LIMIT order code")
	assert.Equal(t, "100", args[2].(*big.Int).String(), "1% slippage")

	signer := ethtypes.NewEIP155Signer(big.NewInt(int64(types.ChainArbitrumSepolia)))
	from, err := ethtypes.Sender(signer, openTx)
	require.NoError(t, err)
	assert.Equal(t, addr, from)
}

func TestPerformTradeSkipsApproveWithAllowance(t *testing.T) {
	backend := newFakeBackend()
	backend.Allowance = big.NewInt(1_000_000_000)
	c := newTestClient(t, backend, true)

	params := types.TradeParams{
		Collateral: decimal.NewFromInt(100),
		Leverage:   decimal.NewFromInt(10),
		PairIndex:  0,
		Direction:  types.DirectionLong,
		OrderType:  types.OrderTypeMarket,
	}
	_, err := c.PerformTrade(context.Background(), params, decimal.NewFromInt(3000))
	require.NoError(t, err)

	require.Len(t, backend.Sent, 1)
	name, args := decodeCall(t, TradingABI, backend.Sent[0].Data())
	require.Equal(t, "openTrade", name)
	trade := *abi.ConvertType(args[0], new(tradeTuple)).(*tradeTuple)
	assert.True(t, trade.Buy)
	assert.Equal(t, uint32(1000), trade.Leverage)
	assert.Equal(t, uint8(0), args[1].(uint8), "MARKET order code")
	assert.Equal(t, "200", args[2].(*big.Int).String(), "default 2% slippage")
}

func TestPerformTradeRejectsInvalidInput(t *testing.T) {
	backend := newFakeBackend()
	c := newTestClient(t, backend, true)

	params := limitShortParams()
	params.Collateral = decimal.Zero
	_, err := c.PerformTrade(context.Background(), params, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, types.ErrInvalidCollateral)

	_, err = c.PerformTrade(context.Background(), limitShortParams(), decimal.Zero)
	assert.ErrorIs(t, err, types.ErrInvalidPrice)

	assert.Empty(t, backend.Sent)
	assert.Zero(t, backend.Calls["CallContract"])
}

func TestWritesRequireKey(t *testing.T) {
	backend := newFakeBackend()
	c := newTestClient(t, backend, false)
	ctx := context.Background()

	assert.True(t, c.ReadOnly())

	_, err := c.Address()
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = c.PerformTrade(ctx, limitShortParams(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = c.CancelLimitOrder(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = c.UpdateTP(ctx, 1, 0, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = c.UpdateSL(ctx, 1, 0, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = c.CloseTrade(ctx, 1, 0, 100)
	assert.ErrorIs(t, err, ErrReadOnly)

	assert.Empty(t, backend.Sent)
}

func TestPositionCalls(t *testing.T) {
	tests := []struct {
		name   string
		call   func(c *TradingClient) error
		method string
		check  func(t *testing.T, args []interface{})
	}{
		{
			name: "cancel limit order",
			call: func(c *TradingClient) error {
				_, err := c.CancelLimitOrder(context.Background(), 7, 2)
				return err
			},
			method: "cancelOpenLimitOrder",
			check: func(t *testing.T, args []interface{}) {
				assert.Equal(t, uint16(7), args[0].(uint16))
				assert.Equal(t, uint8(2), args[1].(uint8))
			},
		},
		{
			name: "update tp",
			call: func(c *TradingClient) error {
				_, err := c.UpdateTP(context.Background(), 5, 1, decimal.RequireFromString("105.25"))
				return err
			},
			method: "updateTp",
			check: func(t *testing.T, args []interface{}) {
				assert.Equal(t, uint16(5), args[0].(uint16))
				assert.Equal(t, uint8(1), args[1].(uint8))
				assert.Equal(t, "105250000000000000000", args[2].(*big.Int).String())
			},
		},
		{
			name: "update sl",
			call: func(c *TradingClient) error {
				_, err := c.UpdateSL(context.Background(), 5, 1, decimal.RequireFromString("95"))
				return err
			},
			method: "updateSl",
			check: func(t *testing.T, args []interface{}) {
				assert.Equal(t, "95000000000000000000", args[2].(*big.Int).String())
			},
		},
		{
			name: "close full",
			call: func(c *TradingClient) error {
				_, err := c.CloseTrade(context.Background(), 4, 0, FullClosePercentage)
				return err
			},
			method: "closeTradeMarket",
			check: func(t *testing.T, args []interface{}) {
				assert.Equal(t, uint16(4), args[0].(uint16))
				assert.Equal(t, uint16(10000), args[2].(uint16))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			c := newTestClient(t, backend, true)

			require.NoError(t, tt.call(c))
			require.Len(t, backend.Sent, 1)
			assert.Equal(t, common.HexToAddress(ArbitrumSepoliaContracts.Trading), *backend.Sent[0].To())

			name, args := decodeCall(t, TradingABI, backend.Sent[0].Data())
			assert.Equal(t, tt.method, name)
			tt.check(t, args)
		})
	}
}

func TestCloseTradeRejectsPercentOutOfRange(t *testing.T) {
	c := newTestClient(t, newFakeBackend(), true)

	_, err := c.CloseTrade(context.Background(), 1, 0, 0)
	assert.Error(t, err)
	_, err = c.CloseTrade(context.Background(), 1, 0, 150)
	assert.Error(t, err)
}

func TestWaitMined(t *testing.T) {
	t.Run("polls until receipt appears", func(t *testing.T) {
		backend := newFakeBackend()
		backend.PendingPolls = 3
		c := newTestClient(t, backend, true)

		_, err := c.CancelLimitOrder(context.Background(), 1, 0)
		require.NoError(t, err)
		assert.Equal(t, 4, backend.Calls["TransactionReceipt"])
	})

	t.Run("reverted receipt is an error", func(t *testing.T) {
		backend := newFakeBackend()
		backend.ReceiptStatus = ethtypes.ReceiptStatusFailed
		c := newTestClient(t, backend, true)

		receipt, err := c.CancelLimitOrder(context.Background(), 1, 0)
		assert.ErrorIs(t, err, ErrTxReverted)
		assert.NotNil(t, receipt)
	})

	t.Run("receipt lookup error", func(t *testing.T) {
		backend := newFakeBackend()
		backend.ErrorOnNext["TransactionReceipt"] = errors.New("rpc down")
		c := newTestClient(t, backend, true)

		_, err := c.CancelLimitOrder(context.Background(), 1, 0)
		assert.ErrorContains(t, err, "rpc down")
	})

	t.Run("context cancelled while pending", func(t *testing.T) {
		backend := newFakeBackend()
		backend.PendingPolls = 1 << 30
		c := newTestClient(t, backend, true)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := c.CancelLimitOrder(ctx, 1, 0)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSendErrorsAreWrapped(t *testing.T) {
	backend := newFakeBackend()
	backend.ErrorOnNext["EstimateGas"] = errors.New("execution reverted")
	c := newTestClient(t, backend, true)

	_, err := c.UpdateTP(context.Background(), 1, 0, decimal.NewFromInt(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "estimate gas")
	assert.Empty(t, backend.Sent)
}

func TestSlippagePercentage(t *testing.T) {
	c := newTestClient(t, newFakeBackend(), false)
	assert.Equal(t, float64(DefaultSlippagePercentage), c.GetSlippagePercentage())

	c.SetSlippagePercentage(1)
	assert.Equal(t, 1.0, c.GetSlippagePercentage())
}
