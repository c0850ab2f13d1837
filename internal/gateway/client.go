package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"creditengine/internal/config"

	"golang.org/x/sync/errgroup"
)

const PaymentStatusCaptured = "captured"

var ErrGatewayUnavailable = errors.New("支付网关不可用")

// Notes 下单时写入的元数据，网关在为空时返回 []
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("[]")) || bytes.Equal(data, []byte("null")) {
		*n = Notes{}
		return nil
	}
	raw := map[string]interface{}{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	*n = out
	return nil
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Receipt  string `json:"receipt"`
	Notes    Notes  `json:"notes"`
}

type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
}

// Client 支付网关 REST 客户端，basic auth 鉴权
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

func NewClient(cfg *config.GatewayConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Secret 回调签名使用的密钥
func (c *Client) Secret() string {
	return c.keySecret
}

func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.get(ctx, "/orders/"+orderID, &order); err != nil {
		return nil, fmt.Errorf("查询网关订单失败: %w", err)
	}
	return &order, nil
}

func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var payment Payment
	if err := c.get(ctx, "/payments/"+paymentID, &payment); err != nil {
		return nil, fmt.Errorf("查询网关支付失败: %w", err)
	}
	return &payment, nil
}

// FetchOrderAndPayment 并发查询订单和支付单，任一失败即返回
func (c *Client) FetchOrderAndPayment(ctx context.Context, orderID, paymentID string) (*Order, *Payment, error) {
	var (
		order   *Order
		payment *Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		order, err = c.FetchOrder(gctx, orderID)
		return err
	})
	g.Go(func() error {
		var err error
		payment, err = c.FetchPayment(gctx, paymentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return order, payment, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status=%d body=%s", ErrGatewayUnavailable, resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
