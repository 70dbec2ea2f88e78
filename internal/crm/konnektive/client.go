package konnektive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meridianrx/fillengine/pkg/circuitbreaker"
)

// pageSize is the CRM's fixed result page size.
const pageSize = 200

// Config holds Konnektive API configuration.
type Config struct {
	BaseURL        string
	LoginID        string
	Password       string
	RequestTimeout time.Duration
}

// DefaultConfig returns defaults for the Konnektive API.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.konnektive.com",
		RequestTimeout: 60 * time.Second,
	}
}

// Client talks to the Konnektive CRM. All query endpoints share the same
// POST-with-query-string protocol and paginate at 200 results per page.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a Konnektive client. The breaker may be nil.
func NewClient(cfg Config, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		breaker: breaker,
		logger:  logger,
	}
}

// apiResponse is Konnektive's response wrapper.
type apiResponse struct {
	Result  string          `json:"result"`
	Message json.RawMessage `json:"message"`
}

// queryPage is the paginated payload inside a query response.
type queryPage struct {
	Page         int             `json:"page"`
	TotalResults int             `json:"totalResults"`
	Data         json.RawMessage `json:"data"`
}

// QueryOrder fetches a single order by id. Returns nil when the CRM has no
// such order.
func (c *Client) QueryOrder(ctx context.Context, orderID string) (*Order, error) {
	params := url.Values{}
	params.Set("orderId", orderID)

	var orders []Order
	if err := c.queryAll(ctx, "order/query", params, func(data json.RawMessage) error {
		var page []Order
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		orders = append(orders, page...)
		return nil
	}); err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// QueryTransactions fetches transactions in a date range. The batch driver
// uses this to find today's billable activity.
func (c *Client) QueryTransactions(ctx context.Context, start, end time.Time) ([]Transaction, error) {
	params := url.Values{}
	params.Set("startDate", start.Format("01/02/2006"))
	params.Set("endDate", end.Format("01/02/2006"))
	params.Set("txnType", "SALE")
	params.Set("responseType", "SUCCESS")

	var txns []Transaction
	if err := c.queryAll(ctx, "transactions/query", params, func(data json.RawMessage) error {
		var page []Transaction
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		txns = append(txns, page...)
		return nil
	}); err != nil {
		return nil, err
	}
	return txns, nil
}

// QueryPurchases fetches a customer's purchases.
func (c *Client) QueryPurchases(ctx context.Context, customerID string) ([]Purchase, error) {
	params := url.Values{}
	params.Set("customerId", customerID)

	var purchases []Purchase
	if err := c.queryAll(ctx, "purchase/query", params, func(data json.RawMessage) error {
		var page []Purchase
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		purchases = append(purchases, page...)
		return nil
	}); err != nil {
		return nil, err
	}
	return purchases, nil
}

// RefundOrder issues a full refund for an order.
func (c *Client) RefundOrder(ctx context.Context, orderID string, amount string) error {
	params := url.Values{}
	params.Set("orderId", orderID)
	params.Set("refundAmount", amount)
	params.Set("fullRefund", "1")
	_, err := c.post(ctx, "order/refund", params)
	return err
}

// CancelOrder cancels an order.
func (c *Client) CancelOrder(ctx context.Context, orderID string, reason string) error {
	params := url.Values{}
	params.Set("orderId", orderID)
	params.Set("cancelReason", reason)
	_, err := c.post(ctx, "order/cancel", params)
	return err
}

// UpdateCustomer updates customer contact fields.
func (c *Client) UpdateCustomer(ctx context.Context, customerID string, fields map[string]string) error {
	params := url.Values{}
	params.Set("customerId", customerID)
	for k, v := range fields {
		params.Set(k, v)
	}
	_, err := c.post(ctx, "customer/update", params)
	return err
}

// queryAll walks every page of a query endpoint, invoking collect per page.
// Pagination continues until page*200 >= totalResults.
func (c *Client) queryAll(ctx context.Context, endpoint string, params url.Values, collect func(json.RawMessage) error) error {
	for page := 1; ; page++ {
		params.Set("resultsPerPage", strconv.Itoa(pageSize))
		params.Set("page", strconv.Itoa(page))

		raw, err := c.post(ctx, endpoint, params)
		if err != nil {
			return err
		}

		var qp queryPage
		if err := json.Unmarshal(raw, &qp); err != nil {
			return fmt.Errorf("konnektive %s: decode page: %w", endpoint, err)
		}

		if len(qp.Data) > 0 && string(qp.Data) != "null" {
			if err := collect(qp.Data); err != nil {
				return fmt.Errorf("konnektive %s: %w", endpoint, err)
			}
		}

		if page*pageSize >= qp.TotalResults {
			return nil
		}
	}
}

// post performs one Konnektive API call. Credentials and parameters travel in
// the query string of a POST, per the CRM's protocol.
func (c *Client) post(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	params.Set("loginId", c.cfg.LoginID)
	params.Set("password", c.cfg.Password)

	uri := fmt.Sprintf("%s/%s/?%s", strings.TrimRight(c.cfg.BaseURL, "/"), endpoint, params.Encode())

	call := func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		res, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("konnektive %s: %w", endpoint, err)
		}
		defer res.Body.Close()

		var resp apiResponse
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			return nil, fmt.Errorf("konnektive %s: decode: %w", endpoint, err)
		}

		if resp.Result != "SUCCESS" {
			return nil, fmt.Errorf("konnektive %s: result %s: %s", endpoint, resp.Result, string(resp.Message))
		}
		return resp.Message, nil
	}

	var out interface{}
	var err error
	if c.breaker != nil {
		out, err = c.breaker.Execute(ctx, call)
	} else {
		out, err = call()
	}
	if err != nil {
		return nil, err
	}
	return out.(json.RawMessage), nil
}
