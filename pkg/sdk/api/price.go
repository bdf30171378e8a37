package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	sdkhttp "github.com/betbot/perpdemo/pkg/sdk/http"
)

const DefaultPriceURL = "https://metadata-backend.ostium.io/PricePublish/latest-price"

// ErrNoPrice is returned when the feed has no mid price for the asset.
var ErrNoPrice = errors.New("price feed returned no price")

// PriceClient 价格源客户端
type PriceClient struct {
	http *sdkhttp.Client
	url  string
}

func NewPriceClient(url string) *PriceClient {
	if url == "" {
		url = DefaultPriceURL
	}
	return &PriceClient{http: sdkhttp.NewClient(""), url: url}
}

// WithHTTPClient replaces the transport.
func (c *PriceClient) WithHTTPClient(h *sdkhttp.Client) *PriceClient {
	c.http = h
	return c
}

type priceWire struct {
	Mid              decimal.NullDecimal `json:"mid"`
	Bid              decimal.NullDecimal `json:"bid"`
	Ask              decimal.NullDecimal `json:"ask"`
	IsMarketOpen     bool                `json:"isMarketOpen"`
	TimestampSeconds int64               `json:"timestampSeconds"`
}

// GetPrice 获取 from/to 资产的最新价格
func (c *PriceClient) GetPrice(ctx context.Context, from, to string) (*Price, error) {
	asset := Pair{From: from, To: to}.Symbol()

	var raw priceWire
	if err := c.http.Get(ctx, c.url, map[string]any{"asset": asset}, &raw); err != nil {
		return nil, fmt.Errorf("get price %s: %w", asset, err)
	}
	if !raw.Mid.Valid || !raw.Mid.Decimal.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}

	p := &Price{
		Mid:          raw.Mid.Decimal,
		Bid:          raw.Bid.Decimal,
		Ask:          raw.Ask.Decimal,
		IsMarketOpen: raw.IsMarketOpen,
	}
	if raw.TimestampSeconds > 0 {
		p.Timestamp = time.Unix(raw.TimestampSeconds, 0).UTC()
	}
	return p, nil
}
