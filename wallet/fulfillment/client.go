// Package fulfillment talks to the external order API and gates purchase
// debits on its answer.
package fulfillment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/metrics"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the request body.
	SignatureHeader = "x-liog-sign"

	pathOrderCreate = "/order-create"
	pathOrderStatus = "/order-status"

	maxResponseBytes = 1 << 20
)

// ClientConfig configures Client.
type ClientConfig struct {
	Endpoint   string
	MemberCode string
	Secret     string
	Timeout    time.Duration

	// Breaker trips after this many consecutive transport or 5xx failures.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration
}

// OrderRequest is the body of an order creation call.
type OrderRequest struct {
	MemberCode  string      `json:"member_code"`
	ProductID   json.Number `json:"product_id"`
	VariationID json.Number `json:"variation_id"`
	UserID      string      `json:"user_id"`
	ServerID    *string     `json:"server_id"`
	Quantity    int         `json:"quantity"`
	PartnerRef  string      `json:"partner_ref"`
}

type statusRequest struct {
	MemberCode string `json:"member_code"`
	OrderID    string `json:"order_id,omitempty"`
	PartnerRef string `json:"partner_ref,omitempty"`
}

// Order is the API's view of an order.
type Order struct {
	OrderID     string
	StatusLabel string
	Message     string
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Data    struct {
		OrderID     flexString `json:"order_id"`
		StatusLabel string     `json:"status_label"`
	} `json:"data"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Client calls the fulfillment API. Order creation is never retried since
// the API does not deduplicate it.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{cfg: cfg, http: httpClient}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fulfillment",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// explicit rejections by the API do not count against its health
		IsSuccessful: func(err error) bool {
			var up *domain.UpstreamError
			if errors.As(err, &up) {
				return !up.Temporary()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "fulfillment", "breaker.state",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return c
}

// Retryable reports whether req may be replayed after a transport error.
// Only status lookups qualify.
func Retryable(req *http.Request) bool {
	return req != nil && req.URL != nil && strings.HasSuffix(req.URL.Path, pathOrderStatus)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// CreateOrder places an order. Any answer other than ok with an order id is
// returned as *domain.UpstreamError.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	req.MemberCode = c.cfg.MemberCode
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	order, err := c.call(ctx, pathOrderCreate, req)
	if err != nil {
		return Order{}, err
	}
	if order.OrderID == "" {
		return Order{}, &domain.UpstreamError{Op: "order-create", Message: "response without order id"}
	}
	return order, nil
}

// OrderStatus looks up an order by its id.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return Order{}, &domain.ValidationError{Field: "order_id", Reason: "required"}
	}
	return c.call(ctx, pathOrderStatus, statusRequest{MemberCode: c.cfg.MemberCode, OrderID: orderID})
}

func (c *Client) call(ctx context.Context, path string, payload any) (Order, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Order{}, fmt.Errorf("fulfillment encode %s: %w", path, err)
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, path, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Order{}, &domain.UpstreamError{Op: strings.TrimPrefix(path, "/"), Err: err}
		}
		return Order{}, err
	}
	return res.(Order), nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (Order, error) {
	op := strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return Order{}, fmt.Errorf("fulfillment request %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(c.cfg.Secret, body))

	start := time.Now()
	resp, err := c.http.Do(req)
	took := logger.Took(start)
	metrics.RecordFulfillmentRequest(path, took)
	if err != nil {
		logger.Warn(ctx, "fulfillment", "fulfillment.request",
			slog.String("status", "fail"),
			slog.String("op", op),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return Order{}, &domain.UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Order{}, &domain.UpstreamError{Op: op, Err: err}
	}

	var out apiResponse
	decodeErr := json.Unmarshal(raw, &out)
	logger.Info(ctx, "fulfillment", "fulfillment.request",
		slog.String("status", statusOf(resp.StatusCode, decodeErr, out.OK)),
		slog.String("op", op),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", took),
	)
	switch {
	case resp.StatusCode >= 500:
		return Order{}, &domain.UpstreamError{Op: op, Status: resp.StatusCode, Message: snippet(out.Message, raw)}
	case decodeErr != nil:
		return Order{}, &domain.UpstreamError{Op: op, Status: resp.StatusCode, Message: "invalid response body"}
	case resp.StatusCode >= 400 || !out.OK:
		return Order{}, &domain.UpstreamError{Op: op, Message: snippet(out.Message, raw)}
	}
	return Order{
		OrderID:     string(out.Data.OrderID),
		StatusLabel: out.Data.StatusLabel,
		Message:     out.Message,
	}, nil
}

func statusOf(code int, decodeErr error, ok bool) string {
	if code >= 400 || decodeErr != nil || !ok {
		return "fail"
	}
	return "ok"
}

func snippet(message string, raw []byte) string {
	if message != "" {
		return logger.SanitizeLimit(message, 200)
	}
	if len(raw) == 0 {
		return "empty response"
	}
	return logger.SanitizeLimit(string(raw), 200)
}

// parseNumber validates an external catalog id.
func parseNumber(field, raw string) (json.Number, error) {
	raw = strings.TrimSpace(raw)
	if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
		return "", &domain.ValidationError{Field: field, Reason: fmt.Sprintf("not numeric: %q", raw)}
	}
	return json.Number(raw), nil
}
