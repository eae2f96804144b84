package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"

	stackDepth = 6
)

var botTokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// RedactToken masks Telegram bot tokens embedded in URLs or error strings.
func RedactToken(s string) string {
	if !strings.Contains(s, "bot") {
		return s
	}
	return botTokenRe.ReplaceAllString(s, "bot"+redacted)
}

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
	stacks   bool
}

type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

// Enabled reports whether the handler allows processing the provided level.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle flattens r into a record and hands the encoded line to the writer.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return fmt.Errorf("logger: writer not initialized")
	}

	rec := make(record, 16)
	ts := r.Time.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	rec["level"] = normalizeLevel(r.Level.String())
	if h.cfg.format == formatJSON {
		rec["ts_unix_nano"] = ts.UnixNano()
	}

	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		rec.collect(prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.collect(prefix, a)
		return true
	})

	rec.fromContext(ctx)
	rec.compactRID(h.cfg.format == formatJSON)
	rec.setDefault("event", firstNonEmpty(r.Message, "unknown"))
	rec.setDefault("component", "app")
	if h.cfg.stacks && r.Level >= slog.LevelError {
		rec.setDefault("stack", callerStack(stackDepth))
	}
	rec.normalizeEnums()
	rec.prune()

	var line []byte
	if h.cfg.format == formatJSON {
		var err error
		if line, err = encodeJSON(rec, h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		line = encodeKV(rec, h.cfg.keyOrder)
	}
	return h.cfg.writer.Write(r.Level, append(line, '\n'))
}

// WithAttrs returns a shallow copy of the handler enriched with attrs.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a shallow copy of the handler with an additional group prefix.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// record is the flattened key/value set of one log line.
type record map[string]any

func (rec record) collect(prefix string, attr slog.Attr) {
	key := attr.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if attr.Value.Kind() == slog.KindGroup {
		for _, child := range attr.Value.Group() {
			rec.collect(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := normalizeAttr(key, attr.Value.Resolve()); ok {
		rec[k] = v
	}
}

func (rec record) str(key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// setDefault stores v under key unless a non-empty value is already present.
func (rec record) setDefault(key string, v any) {
	if s, ok := v.(string); ok && s == "" {
		return
	}
	if cur := rec.str(key); cur != "" && cur != "0" {
		return
	}
	rec[key] = v
}

func (rec record) fromContext(ctx context.Context) {
	m := metaFrom(ctx)
	rec.setDefault("rid", m.rid)
	rec.setDefault("handler", m.handler)
	if m.userID != 0 {
		rec.setDefault("user_id", m.userID)
	}
	if m.chatID != 0 {
		rec.setDefault("chat_id", m.chatID)
	}
	if m.updateID != 0 {
		rec.setDefault("update_id", m.updateID)
	}
}

func (rec record) compactRID(keepFull bool) {
	rid := rec.str("rid")
	compact := CompactRID(rid)
	if compact == "" || compact == rid {
		return
	}
	if keepFull {
		rec.setDefault("rid_full", rid)
	}
	rec["rid"] = compact
}

func (rec record) normalizeEnums() {
	rec["level"] = normalizeLevel(rec.str("level"))
	if s := normalizeEnum(rec.str("status")); s != "" {
		rec["status"] = s
	}
	if o := normalizeEnum(rec.str("outcome")); o != "" {
		if _, ok := outcomeValues[o]; ok {
			rec["outcome"] = o
		} else {
			delete(rec, "outcome")
		}
	}
}

func (rec record) prune() {
	for k, v := range rec {
		switch val := v.(type) {
		case nil:
			delete(rec, k)
		case string:
			if val == "" {
				delete(rec, k)
			}
		}
	}
}

func normalizeAttr(key string, val slog.Value) (string, any, bool) {
	if isSecretKey(key) {
		if val.Kind() == slog.KindString && val.String() == "" {
			return key, "", true
		}
		return key, redacted, true
	}
	switch val.Kind() {
	case slog.KindString:
		return key, RedactToken(strings.TrimSpace(val.String())), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, val.Uint64(), true
	case slog.KindFloat64:
		if isMoneyKey(key) {
			return key, decimal.NewFromFloat(val.Float64()).StringFixed(2), true
		}
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := val.Any().(type) {
	case nil:
		return key, nil, false
	case decimal.Decimal:
		if isMoneyKey(key) {
			return key, x.StringFixed(2), true
		}
		return key, x.String(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case error:
		return key, RedactToken(x.Error()), true
	case string:
		return key, RedactToken(strings.TrimSpace(x)), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationKey renames duration attrs so every duration is reported as *_ms.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

func callerStack(depth int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]string, 0, depth)
	for len(out) < depth {
		f, more := frames.Next()
		if !skipFrame(f) {
			out = append(out, fmt.Sprintf("%s:%d", path.Base(f.File), f.Line))
		}
		if !more {
			break
		}
	}
	return strings.Join(out, " < ")
}

func skipFrame(f runtime.Frame) bool {
	fn := f.Function
	switch {
	case fn == "", strings.HasPrefix(fn, "runtime."), strings.HasPrefix(fn, "log/slog."):
		return true
	case strings.Contains(fn, "/core/logger."):
		return !strings.HasSuffix(f.File, "_test.go")
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
