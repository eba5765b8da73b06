package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"packchicken-service/config"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIError is returned for a non-retryable status, or for a retryable one
// once the attempts are used up.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify api error %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

type Client struct {
	logger      *zap.Logger
	baseURL     string
	token       string
	maxRetries  int
	backoffBase time.Duration
	http        *http.Client
}

func NewClient(cfg *config.ShopifyConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil || cfg.Domain == "" || cfg.Token == "" {
		return nil, fmt.Errorf("%w: shopify domain and token are required", config.ErrMissingConfig)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Client{
		logger:      logger,
		baseURL:     fmt.Sprintf("%s/admin/api/%s", strings.TrimRight(cfg.Domain, "/"), cfg.APIVersion),
		token:       cfg.Token,
		maxRetries:  maxRetries,
		backoffBase: cfg.BackoffBase,
		http:        &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var env orderEnvelope
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID)+".json", nil, nil, &env); err != nil {
		return nil, err
	}
	return &env.Order, nil
}

// ListUnfulfilledOrders returns paid, unfulfilled orders, newest first.
func (c *Client) ListUnfulfilledOrders(ctx context.Context, limit int, updatedAtMin string) ([]Order, error) {
	limit = max(1, min(limit, 250))
	params := url.Values{
		"status":             {"any"},
		"financial_status":   {"paid"},
		"fulfillment_status": {"unfulfilled"},
		"limit":              {strconv.Itoa(limit)},
		"order":              {"created_at desc"},
	}
	if updatedAtMin != "" {
		params.Set("updated_at_min", updatedAtMin)
	}

	var env ordersEnvelope
	if err := c.do(ctx, http.MethodGet, "/orders.json", params, nil, &env); err != nil {
		return nil, err
	}
	return env.Orders, nil
}

func (c *Client) FulfillmentOrders(ctx context.Context, orderID string) ([]FulfillmentOrder, error) {
	var env fulfillmentOrdersEnvelope
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID)+"/fulfillment_orders.json", nil, nil, &env); err != nil {
		return nil, err
	}
	return env.FulfillmentOrders, nil
}

func (c *Client) CreateFulfillment(ctx context.Context, req FulfillmentRequest) (*Fulfillment, error) {
	var body createFulfillmentBody
	body.Fulfillment.NotifyCustomer = req.NotifyCustomer
	body.Fulfillment.LocationID = req.LocationID
	body.Fulfillment.TrackingInfo = trackingInfo{
		Number:  req.TrackingNumber,
		URL:     req.TrackingURL,
		Company: req.Company,
	}
	if body.Fulfillment.TrackingInfo.Company == "" {
		body.Fulfillment.TrackingInfo.Company = "Bring"
	}
	body.Fulfillment.LineItemsByFulfillmentOrder = []lineItemsByFulfillmentOrder{{
		FulfillmentOrderID: req.FulfillmentOrderID,
		FulfillmentOrderLineItems: []fulfillmentOrderLine{
			{ID: req.LineItemID, Quantity: req.Quantity},
		},
	}}

	var env fulfillmentEnvelope
	if err := c.do(ctx, http.MethodPost, "/fulfillments.json", nil, body, &env); err != nil {
		return nil, err
	}
	return &env.Fulfillment, nil
}

// do sends one logical request. 429/5xx and transport errors are retried
// with exponential backoff; a Retry-After header overrides the delay.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode shopify request: %w", err)
		}
	}

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("X-Shopify-Access-Token", c.token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "PackChicken/1.0 (+storefront)")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil || attempt >= c.maxRetries {
				return fmt.Errorf("shopify %s %s: %w", method, path, err)
			}
			delay := c.backoff(attempt)
			c.logger.Warn("Shopify request failed, retrying",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("read shopify response: %w", readErr)
		}

		if retryableStatus[resp.StatusCode] && attempt < c.maxRetries {
			delay := c.backoff(attempt)
			if ra, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
				delay = ra
			}
			c.logger.Warn("Shopify responded with retryable status",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		if out == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode shopify response from %s: %w", path, err)
		}
		return nil
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.backoffBase * time.Duration(1<<(attempt-1))
}

func retryAfter(v string) (time.Duration, bool) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsNotFound reports whether err is a 404 from the storefront.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
