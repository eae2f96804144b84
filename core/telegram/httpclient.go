package telegram

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/walletbot/core/telegram/netutil"
)

// HTTPClientOptions tunes NewHTTPClient. A zero Timeout takes the Telegram default.
type HTTPClientOptions struct {
	Timeout         time.Duration
	ResponseTimeout time.Duration
	Retries         int
	Backoff         time.Duration
	// RetryIf limits retries to requests it accepts; nil retries every request.
	RetryIf func(*http.Request) bool
}

var errNoReplay = errors.New("telegram http: request body cannot be replayed")

var telegramHTTP = HTTPClientOptions{
	Timeout:         30 * time.Second,
	ResponseTimeout: 5 * time.Second,
	Retries:         3,
	Backoff:         2 * time.Second,
}

// BuildHTTPClient returns an HTTP client tuned for Telegram API calls.
func BuildHTTPClient() *http.Client {
	return NewHTTPClient(telegramHTTP)
}

// NewHTTPClient builds a pooled client that retries transient network errors
// with linear backoff.
func NewHTTPClient(opts HTTPClientOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = telegramHTTP.Timeout
	}
	if opts.ResponseTimeout <= 0 || opts.ResponseTimeout > opts.Timeout {
		opts.ResponseTimeout = opts.Timeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: opts.ResponseTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &retryTransport{
			base:    transport,
			retries: opts.Retries,
			backoff: opts.Backoff,
			retryIf: opts.RetryIf,
		},
	}
}

type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
	retryIf func(*http.Request) bool
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	retries := t.retries
	if t.retryIf != nil && !t.retryIf(req) {
		retries = 0
	}

	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= retries && netutil.ShouldRetry(err); attempt++ {
		next, cerr := rewind(req)
		if cerr != nil {
			return nil, err
		}
		if d := t.backoff * time.Duration(attempt); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-req.Context().Done():
				timer.Stop()
				return nil, req.Context().Err()
			case <-timer.C:
			}
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}

// rewind clones req with a fresh body. Requests whose body cannot be
// replayed are not retried.
func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, nil
	}
	if req.GetBody == nil {
		return nil, errNoReplay
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next.Body = body
	return next, nil
}
