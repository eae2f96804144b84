// Package metrics exposes Prometheus counters for the wallet engine.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/walletbot/core/logger"
)

var (
	LedgerMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbot_ledger_mutations_total",
			Help: "Total number of ledger mutations by operation, currency and outcome",
		},
		[]string{"op", "currency", "outcome"},
	)

	DepositsProposedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbot_deposits_proposed_total",
			Help: "Total number of deposit requests sent to moderation",
		},
		[]string{"currency"},
	)

	ModerationDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbot_moderation_decisions_total",
			Help: "Total number of moderation decisions by decision and outcome",
		},
		[]string{"decision", "outcome"},
	)

	OutboundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbot_outbound_messages_total",
			Help: "Total number of outbound Telegram calls by action and result",
		},
		[]string{"action", "result"},
	)

	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbot_purchases_total",
			Help: "Total number of purchases by currency and outcome",
		},
		[]string{"currency", "outcome"},
	)

	FulfillmentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletbot_fulfillment_request_duration_seconds",
			Help:    "Fulfillment API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletbot_sessions_active",
			Help: "Current number of in-memory conversation sessions",
		},
	)

	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbot_updates_total",
			Help: "Total number of Telegram updates handled by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	UpdatesRateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletbot_updates_rate_limited_total",
			Help: "Total number of Telegram updates dropped by the per-user rate limit",
		},
		[]string{"kind"},
	)

	UpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletbot_update_duration_seconds",
			Help:    "Telegram update handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	SessionsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletbot_sessions_expired_total",
			Help: "Total number of sessions discarded after inactivity",
		},
	)
)

// Outcome maps err to a metric label.
func Outcome(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

func RecordLedgerMutation(op, currency string, err error) {
	LedgerMutationsTotal.WithLabelValues(op, currency, Outcome(err)).Inc()
}

func RecordDepositProposed(currency string) {
	DepositsProposedTotal.WithLabelValues(currency).Inc()
}

func RecordModeration(decision string, err error) {
	ModerationDecisionsTotal.WithLabelValues(decision, Outcome(err)).Inc()
}

func RecordPurchase(currency string, err error) {
	PurchasesTotal.WithLabelValues(currency, Outcome(err)).Inc()
}

func RecordFulfillmentRequest(path string, took time.Duration) {
	FulfillmentDuration.WithLabelValues(path).Observe(took.Seconds())
}

func RecordSessionExpired(n int) {
	if n > 0 {
		SessionsExpiredTotal.Add(float64(n))
	}
}

// RecordUpdate counts one handled update of kind.
func RecordUpdate(kind string, err error, took time.Duration) {
	UpdatesTotal.WithLabelValues(kind, Outcome(err)).Inc()
	UpdateDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// RecordOutbound counts one finished outbound call; result is "ok" or a failure class.
func RecordOutbound(action, result string) {
	OutboundTotal.WithLabelValues(action, result).Inc()
}

func RecordRateLimited(kind string) {
	UpdatesRateLimitedTotal.WithLabelValues(kind).Inc()
}

func SetSessionsActive(n int) {
	SessionsActive.Set(float64(n))
}

// Serve exposes /metrics on listen until ctx is done. An empty listen
// address disables the endpoint.
func Serve(ctx context.Context, listen string) error {
	if listen == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "metrics", "metrics.listen", slog.String("listen", listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error(ctx, "metrics", "metrics.listen", slog.String("status", "fail"), slog.String("err", err.Error()))
		return err
	}
}
