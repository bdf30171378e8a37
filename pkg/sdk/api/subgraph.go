package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdemo/pkg/ratelimit"
	sdkhttp "github.com/betbot/perpdemo/pkg/sdk/http"
)

const (
	TestnetSubgraphURL = "https://api.subgraph.ormilabs.com/api/public/67a599d5-c8d2-4cc4-9c4d-2975a97bc5d8/subgraphs/ost-sep-final/live/gn"
	MainnetSubgraphURL = "https://api.subgraph.ormilabs.com/api/public/67a599d5-c8d2-4cc4-9c4d-2975a97bc5d8/subgraphs/ost-prod/live/gn"

	// Maximum results per GraphQL query
	SubgraphBatchSize = 1000

	// DefaultSubgraphRatePerSecond 默认每秒查询数上限
	DefaultSubgraphRatePerSecond = 10
)

// ErrPairNotFound is returned when the subgraph has no pair with the requested id.
var ErrPairNotFound = errors.New("pair not found")

var subgraphLog = logrus.WithField("component", "subgraph")

const pairFields = `
	id
	from
	to
	feed
	maxLeverage
	overnightMaxLeverage
	makerFeeP
	takerFeeP
	longOI
	shortOI
	maxOI
	curFundingLong
	curFundingShort
	curRollover
	totalOpenTrades
	totalOpenLimitOrders
	lastTradePrice
	group { id name minLeverage maxLeverage }
`

// SubgraphClient queries the exchange subgraph (pairs, pending orders, open trades)
type SubgraphClient struct {
	http    *sdkhttp.Client
	url     string
	limiter ratelimit.RateLimiter
}

// NewSubgraphClient 创建 subgraph 客户端；limiter 为 nil 时使用默认令牌桶
func NewSubgraphClient(url string, limiter ratelimit.RateLimiter) *SubgraphClient {
	if limiter == nil {
		limiter = ratelimit.NewTokenBucket(DefaultSubgraphRatePerSecond, DefaultSubgraphRatePerSecond)
	}
	return &SubgraphClient{
		http:    sdkhttp.NewClient(""),
		url:     url,
		limiter: limiter,
	}
}

// WithHTTPClient replaces the transport (tests use it to disable retries).
func (c *SubgraphClient) WithHTTPClient(h *sdkhttp.Client) *SubgraphClient {
	c.http = h
	return c
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// exec sends one GraphQL query and decodes its data object into out.
func (c *SubgraphClient) exec(ctx context.Context, query string, vars map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("subgraph rate limit: %w", err)
	}

	var resp graphQLResponse
	if err := c.http.PostJSON(ctx, c.url, graphQLRequest{Query: query, Variables: vars}, &resp); err != nil {
		return fmt.Errorf("subgraph request: %w", err)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("subgraph error: %s", resp.Errors[0].Message)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return fmt.Errorf("subgraph returned no data")
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode subgraph data: %w", err)
	}
	return nil
}

// GetPairs 获取全部交易对（按 id 排序）
func (c *SubgraphClient) GetPairs(ctx context.Context) ([]Pair, error) {
	query := fmt.Sprintf(`query getPairs {
		pairs(first: %d, orderBy: id, orderDirection: asc) { id from to }
	}`, SubgraphBatchSize)

	var data struct {
		Pairs []pairRef `json:"pairs"`
	}
	if err := c.exec(ctx, query, nil, &data); err != nil {
		return nil, err
	}

	pairs := make([]Pair, 0, len(data.Pairs))
	for _, raw := range data.Pairs {
		p, err := raw.toPair()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	subgraphLog.WithField("count", len(pairs)).Debug("fetched pairs")
	return pairs, nil
}

// GetPairDetails 获取单个交易对详情
func (c *SubgraphClient) GetPairDetails(ctx context.Context, pairID uint16) (*PairDetails, error) {
	query := `query getPairDetails($pairId: ID!) {
		pair(id: $pairId) {` + pairFields + `}
	}`

	var data struct {
		Pair *pairWire `json:"pair"`
	}
	vars := map[string]any{"pairId": strconv.Itoa(int(pairID))}
	if err := c.exec(ctx, query, vars, &data); err != nil {
		return nil, err
	}
	if data.Pair == nil {
		return nil, fmt.Errorf("%w: %d", ErrPairNotFound, pairID)
	}
	return data.Pair.toDetails()
}

// GetOrders 获取 trader 的活跃挂单
func (c *SubgraphClient) GetOrders(ctx context.Context, trader string) ([]Order, error) {
	query := fmt.Sprintf(`query getOrders($trader: Bytes!) {
		limits(first: %d, where: {trader: $trader, isActive: true}, orderBy: initiatedAt, orderDirection: asc) {
			id
			trader
			index
			collateral
			leverage
			isBuy
			openPrice
			takeProfitPrice
			stopLossPrice
			limitType
			initiatedAt
			pair { id from to }
		}
	}`, SubgraphBatchSize)

	var data struct {
		Limits []orderWire `json:"limits"`
	}
	vars := map[string]any{"trader": strings.ToLower(trader)}
	if err := c.exec(ctx, query, vars, &data); err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(data.Limits))
	for _, raw := range data.Limits {
		o, err := raw.toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// GetOpenTrades 获取 trader 的持仓
func (c *SubgraphClient) GetOpenTrades(ctx context.Context, trader string) ([]Trade, error) {
	query := fmt.Sprintf(`query getOpenTrades($trader: Bytes!) {
		trades(first: %d, where: {trader: $trader, isOpen: true}, orderBy: timestamp, orderDirection: asc) {
			id
			trader
			index
			collateral
			leverage
			isBuy
			openPrice
			takeProfitPrice
			stopLossPrice
			notional
			funding
			rollover
			timestamp
			pair { id from to }
		}
	}`, SubgraphBatchSize)

	var data struct {
		Trades []tradeWire `json:"trades"`
	}
	vars := map[string]any{"trader": strings.ToLower(trader)}
	if err := c.exec(ctx, query, vars, &data); err != nil {
		return nil, err
	}

	trades := make([]Trade, 0, len(data.Trades))
	for _, raw := range data.Trades {
		t, err := raw.toTrade()
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}
