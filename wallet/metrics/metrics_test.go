package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordLedgerMutation(t *testing.T) {
	LedgerMutationsTotal.Reset()

	RecordLedgerMutation("credit", "cup", nil)
	RecordLedgerMutation("credit", "cup", nil)
	RecordLedgerMutation("debit", "cup", errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(LedgerMutationsTotal.WithLabelValues("credit", "cup", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(LedgerMutationsTotal.WithLabelValues("debit", "cup", "fail")))
}

func TestRecordModeration(t *testing.T) {
	ModerationDecisionsTotal.Reset()

	RecordModeration("approve", nil)
	RecordModeration("reject", errors.New("conflict"))

	assert.Equal(t, float64(1), testutil.ToFloat64(ModerationDecisionsTotal.WithLabelValues("approve", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ModerationDecisionsTotal.WithLabelValues("reject", "fail")))
}

func TestRecordPurchase(t *testing.T) {
	PurchasesTotal.Reset()

	RecordPurchase("saldo", nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(PurchasesTotal.WithLabelValues("saldo", "ok")))
	assert.Equal(t, float64(0), testutil.ToFloat64(PurchasesTotal.WithLabelValues("saldo", "fail")))
}

func TestSessionGauges(t *testing.T) {
	SetSessionsActive(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(SessionsActive))

	before := testutil.ToFloat64(SessionsExpiredTotal)
	RecordSessionExpired(0)
	RecordSessionExpired(2)
	assert.Equal(t, before+2, testutil.ToFloat64(SessionsExpiredTotal))
}

func TestRecordUpdate(t *testing.T) {
	UpdatesTotal.Reset()
	UpdatesRateLimitedTotal.Reset()

	RecordUpdate("callback", nil, 20*time.Millisecond)
	RecordUpdate("message", errors.New("db down"), time.Second)
	RecordRateLimited("message")

	assert.Equal(t, float64(1), testutil.ToFloat64(UpdatesTotal.WithLabelValues("callback", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(UpdatesTotal.WithLabelValues("message", "fail")))
	assert.Equal(t, float64(1), testutil.ToFloat64(UpdatesRateLimitedTotal.WithLabelValues("message")))
	assert.Equal(t, 2, testutil.CollectAndCount(UpdateDuration))
}

func TestRecordOutbound(t *testing.T) {
	OutboundTotal.Reset()

	RecordOutbound("notify", "ok")
	RecordOutbound("notify", "blocked")
	RecordOutbound("notify", "ok")

	assert.Equal(t, float64(2), testutil.ToFloat64(OutboundTotal.WithLabelValues("notify", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(OutboundTotal.WithLabelValues("notify", "blocked")))
}
