package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetryCount = 3
	userAgent         = "perpdemo/1.0"
)

type Client struct {
	client *resty.Client
}

// NewClient 创建 HTTP 客户端；host 可以为空（此时 endpoint 需为完整 URL）
func NewClient(host string) *Client {
	host = strings.TrimSuffix(host, "/")

	// resty 会自动读取 HTTP_PROXY / HTTPS_PROXY
	client := resty.New().
		SetTimeout(DefaultTimeout).
		SetRetryCount(DefaultRetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		}).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流时优先使用 Retry-After 头
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
						return time.Duration(seconds) * time.Second, nil
					}
				}
				return 5 * time.Second, nil
			}
			return 0, nil
		})
	if host != "" {
		client.SetBaseURL(host)
	}

	return &Client{client: client}
}

// SetRetry overrides the retry policy (count 0 disables retries).
func (c *Client) SetRetry(count int, wait, maxWait time.Duration) *Client {
	c.client.SetRetryCount(count).SetRetryWaitTime(wait).SetRetryMaxWaitTime(maxWait)
	return c
}

type RequestOptions struct {
	Headers map[string]string
	Data    any
	Params  map[string]any
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", userAgent)
	return r
}

// DoRequest 发送请求；out 非 nil 时按 JSON 解码 2xx 响应
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, opt *RequestOptions, out any) (*resty.Response, error) {
	rc := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if opt.Params != nil {
			rc.SetQueryParamsFromValues(toValues(opt.Params))
		}
		if opt.Data != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Data)
		}
	}
	if out != nil {
		rc.SetResult(out)
	}

	switch strings.ToUpper(method) {
	case http.MethodGet:
		return rc.Get(endpoint)
	case http.MethodPost:
		return rc.Post(endpoint)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

// Get 便捷方法：GET 并检查状态码
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]any, out any) error {
	resp, err := c.DoRequest(ctx, http.MethodGet, endpoint, &RequestOptions{Params: params}, out)
	_, err = ParseHTTPError(resp, err)
	return err
}

// PostJSON 便捷方法：POST JSON 并检查状态码
func (c *Client) PostJSON(ctx context.Context, endpoint string, body any, out any) error {
	resp, err := c.DoRequest(ctx, http.MethodPost, endpoint, &RequestOptions{Data: body}, out)
	_, err = ParseHTTPError(resp, err)
	return err
}

func toValues(m map[string]any) map[string][]string {
	v := make(map[string][]string, len(m))
	for k, val := range m {
		switch t := val.(type) {
		case []string:
			v[k] = t
		default:
			v[k] = []string{fmt.Sprint(val)}
		}
	}
	return v
}

// ParseHTTPError maps a transport error or non-2xx response into an error,
// returning the decoded error body alongside it.
func ParseHTTPError(resp *resty.Response, err error) (any, error) {
	if err != nil {
		return map[string]any{"error": err.Error()}, errors.Wrap(err, "http request failed")
	}
	if resp == nil {
		return nil, errors.New("http request failed: empty response")
	}
	if resp.IsSuccess() {
		return resp, nil
	}
	var body any
	b := resp.Body()
	_ = json.Unmarshal(b, &body)
	if body == nil {
		body = string(b)
	}
	return map[string]any{
		"status":      resp.StatusCode(),
		"status_text": resp.Status(),
		"error":       body,
	}, errors.Errorf("http non-2xx (%d): %v", resp.StatusCode(), body)
}
