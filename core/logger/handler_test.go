package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, format logFormat) (*slog.Logger, func() string) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	flush := func() string {
		require.NoError(t, aw.Flush())
		require.NoError(t, aw.Close())
		return strings.TrimSpace(buf.String())
	}
	return slog.New(handler), flush
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, flush := newTestLogger(t, formatKV)
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, log.With("component", "ledger"), slog.LevelInfo, "ledger.credit",
		slog.String("status", "ok"),
		slog.String("currency", "cup"),
		slog.String("amount", "1500"),
	)

	tokens := strings.Split(flush(), " ")
	require.GreaterOrEqual(t, len(tokens), 6)
	expected := []string{"ts=", "level=INFO", "component=ledger", "event=ledger.credit", "status=ok", "rid=rid-123"}
	for i, prefix := range expected {
		assert.Truef(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, expected prefix %s", i, tokens[i], prefix)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	log, flush := newTestLogger(t, formatJSON)
	ctx := WithRID(context.Background(), "rid-json")
	ctx = WithUpdateMeta(ctx, 11, 22, 33)

	LogEvent(ctx, log.With("component", "fulfillment"), slog.LevelError, "fulfillment.order",
		slog.String("status", "fail"),
		slog.String("err", "upstream: sin stock"),
		slog.String("err_code", "upstream"),
	)

	line := flush()
	require.True(t, strings.HasPrefix(line, "{"), line)
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"fulfillment"`, `"event":"fulfillment.order"`, `"status":"fail"`, `"rid":"rid-json"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		require.Truef(t, idx > pos, "prefix %s not found in order within %s", pref, line)
		pos = idx
	}
	assert.Contains(t, line, `"user_id":22`)
}

func TestStructuredHandlerNormalisesDurationsAndPrunesEmpty(t *testing.T) {
	log, flush := newTestLogger(t, formatKV)

	log.Info("",
		slog.String("component", "conversation"),
		slog.String("event", "conversation.input"),
		slog.Duration("duration", 1200*time.Microsecond),
		slog.Duration("confirm", 30*time.Millisecond),
		slog.String("partner_ref", ""),
		slog.Any("err", errors.New("boom")),
	)

	line := flush()
	assert.Contains(t, line, "duration_ms=1")
	assert.Contains(t, line, "confirm_ms=30")
	assert.Contains(t, line, "err=boom")
	assert.NotContains(t, line, "partner_ref")
}

func TestStructuredHandlerDefaultsEventAndComponent(t *testing.T) {
	log, flush := newTestLogger(t, formatKV)

	log.Warn("session.expired")

	line := flush()
	assert.Contains(t, line, "component=app")
	assert.Contains(t, line, "event=session.expired")
	assert.Contains(t, line, "level=WARN")
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	log, flush := newTestLogger(t, formatKV)
	rawRID := "123:456:789"

	LogEvent(WithRID(context.Background(), rawRID), log, slog.LevelInfo, "rid.test",
		slog.String("status", "ok"),
	)

	line := flush()
	assert.Contains(t, line, "rid="+CompactRID(rawRID))
	assert.NotContains(t, line, "rid_full=")
}

func TestStructuredHandlerCompactRIDJSON(t *testing.T) {
	log, flush := newTestLogger(t, formatJSON)
	rawRID := "12:34:56"

	LogEvent(WithRID(context.Background(), rawRID), log, slog.LevelInfo, "rid.test",
		slog.String("status", "ok"),
	)

	line := flush()
	assert.Contains(t, line, `"rid":"`+CompactRID(rawRID)+`"`)
	assert.Contains(t, line, `"rid_full":"`+rawRID+`"`)
	assert.Contains(t, line, `"ts_unix_nano"`)
}

func TestStructuredHandlerRedactsSecrets(t *testing.T) {
	log, flush := newTestLogger(t, formatKV)

	log.Info("fulfillment.request",
		slog.String("api_key", "k-123"),
		slog.String("webhook_secret", "s3cr3t"),
		slog.String("partner_ref", "ref-1"),
		slog.Any("err", errors.New(`Post "https://api.telegram.org/bot123:AAbb-cc/sendMessage": timeout`)),
	)

	line := flush()
	assert.NotContains(t, line, "k-123")
	assert.NotContains(t, line, "s3cr3t")
	assert.NotContains(t, line, "123:AAbb-cc")
	assert.Contains(t, line, "api_key=<redacted>")
	assert.Contains(t, line, "partner_ref=ref-1")
}

func TestStructuredHandlerFormatsMoney(t *testing.T) {
	log, flush := newTestLogger(t, formatJSON)

	log.Info("ledger.debit",
		slog.Any("amount", decimal.RequireFromString("1500")),
		slog.Float64("balance", 12.5),
		slog.Any("rate", decimal.RequireFromString("0.125")),
	)

	line := flush()
	assert.Contains(t, line, `"amount":"1500.00"`)
	assert.Contains(t, line, `"balance":"12.50"`)
	assert.Contains(t, line, `"rate":"0.125"`)
}

func TestStructuredHandlerGroupsAndOutcome(t *testing.T) {
	log, flush := newTestLogger(t, formatKV)

	log.WithGroup("order").Info("fulfillment.order",
		slog.String("id", "o-1"),
		slog.Group("upstream", slog.Int("http_code", 502)),
	)

	line := flush()
	assert.Contains(t, line, "order.id=o-1")
	assert.Contains(t, line, "order.upstream.http_code=502")
}

func TestStructuredHandlerDropsUnknownOutcome(t *testing.T) {
	log, flush := newTestLogger(t, formatKV)

	log.Info("x", slog.String("outcome", "maybe"), slog.String("status", " OK "))

	line := flush()
	assert.NotContains(t, line, "outcome=")
	assert.Contains(t, line, "status=ok")
}

func TestStructuredHandlerStacksOnError(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	log := slog.New(newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		writer: aw,
		format: formatKV,
		stacks: true,
	}))

	log.Info("quiet")
	log.Error("loud")
	require.NoError(t, aw.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "stack=")
	assert.Contains(t, lines[1], "stack=")
	assert.Contains(t, lines[1], "handler_test.go")
}

func TestLeveledWriterRoutesByLevel(t *testing.T) {
	all, errs := &bytes.Buffer{}, &bytes.Buffer{}
	aw := newLeveledWriter([]sinkSpec{
		{w: all, min: slog.LevelDebug},
		{w: errs, min: slog.LevelWarn},
	}, 0)

	require.NoError(t, aw.Write(slog.LevelInfo, []byte("info\n")))
	require.NoError(t, aw.Write(slog.LevelError, []byte("error\n")))
	require.NoError(t, aw.Close())

	assert.Equal(t, "info\nerror\n", all.String())
	assert.Equal(t, "error\n", errs.String())
	assert.ErrorIs(t, aw.Write(slog.LevelInfo, []byte("late")), errWriterClosed)
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	got := []bool{s.Allow(), s.Allow(), s.Allow(), s.Allow()}
	assert.Equal(t, []bool{true, false, false, true}, got)

	s.Set(0, 0)
	assert.True(t, s.Allow())

	s.Set(5, 2)
	assert.True(t, s.Allow())
	assert.True(t, s.Allow())
}

func TestParseDebugSample(t *testing.T) {
	cases := map[string][2]int{
		"":      {1, 50},
		"off":   {0, 0},
		"1/10":  {1, 10},
		"20":    {1, 20},
		"bogus": {1, 50},
	}
	for spec, want := range cases {
		num, den := parseDebugSample(spec)
		assert.Equal(t, want, [2]int{num, den}, spec)
	}
}

func TestContextMetaIsCopiedOnWrite(t *testing.T) {
	parent := WithUpdateMeta(WithRID(context.Background(), "1:2:3"), 1, 3, 2)
	child := WithHandler(parent, "buy")

	assert.Equal(t, "buy", HandlerFrom(child))
	assert.Empty(t, HandlerFrom(parent))
	assert.Equal(t, "1:2:3", RIDFrom(child))
	assert.Equal(t, int64(3), UserIDFrom(child))
	assert.Equal(t, int64(2), ChatIDFrom(child))
	assert.Equal(t, 1, UpdateIDFrom(child))
	assert.Zero(t, UserIDFrom(nil))
}

func TestCompactRID(t *testing.T) {
	assert.Equal(t, "a.b.c", CompactRID("10:11:12"))
	assert.Equal(t, "1.-1.z", CompactRID("1:-1:35"))
	assert.Equal(t, "not-a-rid", CompactRID("not-a-rid"))
	assert.Equal(t, "1:x:2", CompactRID("1:x:2"))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "ok", Status(nil))
	assert.Equal(t, "fail", Status(errors.New("x")))
	assert.Equal(t, "cancelled", Status(context.Canceled))
}

func TestHelpersNoopWithoutLogger(t *testing.T) {
	prev := L
	L = nil
	t.Cleanup(func() { L = prev })

	assert.NotPanics(t, func() {
		Info(context.Background(), "ledger", "ledger.credit", slog.String("status", "ok"))
		Error(context.Background(), "", "x")
	})
	assert.Nil(t, Component("ledger"))
}

func TestSanitizeLimit(t *testing.T) {
	assert.Equal(t, "abc", SanitizeLimit("a\x00b\u200bc", 10))
	assert.Equal(t, "ñañ", SanitizeLimit("ñañaña", 3))
	assert.Equal(t, "", SanitizeLimit("x", 0))
}
