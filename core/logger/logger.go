package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/walletbot/core/buildinfo"
	coreconfig "github.com/m3rciful/walletbot/core/config"
)

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	shutdowned bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger; nil until InitLogger runs, in which case helpers no-op.
	L *slog.Logger
)

// InitLogger configures the global structured logger. Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		levelVar.Set(selectLevel(lc))
		debugSampler.Set(parseDebugSample(lc.DebugSample))
		traceOverride = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))

		outputs, closers, err := openOutputs(lc)
		if err != nil {
			initErr = err
			return
		}
		logClosers = closers
		logWriter = newLeveledWriter(outputs, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   selectFormat(lc),
			keyOrder: selectKeyOrder(lc.KeysOrder),
			stacks:   isTruthy(lc.Stacks),
		}))
		slog.SetDefault(L)

		build := buildinfo.Get()
		Info(context.Background(), "app", "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", build.Version),
			slog.String("build_commit", build.Commit),
			slog.String("build_time", build.Date),
			slog.Bool("build_dirty", build.Dirty),
			slog.String("cfg_profile", selectProfile(lc)),
			slog.String("log_level", levelVar.Level().String()),
		)
	})
	return initErr
}

// Shutdown flushes buffered log output and closes opened sinks.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdowned {
		return nil
	}
	shutdowned = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Flush(), logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func isDevProfile(lc coreconfig.LoggingConfig) bool {
	p := strings.ToLower(strings.TrimSpace(lc.Profile))
	return p == "debug" || p == "dev"
}

func selectFormat(lc coreconfig.LoggingConfig) logFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	if isDevProfile(lc) {
		return formatKV
	}
	return formatJSON
}

func selectKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	var order []string
	if raw != "" && raw != "default" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				order = append(order, p)
			}
		}
	}
	if len(order) == 0 {
		return append([]string(nil), defaultKeyOrder...)
	}
	return order
}

func selectLevel(lc coreconfig.LoggingConfig) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "":
		if isDevProfile(lc) {
			return slog.LevelDebug
		}
	}
	return slog.LevelInfo
}

// openOutputs always writes to stdout. With a log dir set, BotFile receives
// every record and ErrorsFile only WARN and above.
func openOutputs(lc coreconfig.LoggingConfig) ([]sinkSpec, []io.Closer, error) {
	outputs := []sinkSpec{{w: os.Stdout, min: slog.LevelDebug}}
	dir := strings.TrimSpace(lc.Dir)
	if dir == "" {
		return outputs, nil, nil
	}
	files := []struct {
		name string
		min  slog.Level
	}{
		{strings.TrimSpace(lc.BotFile), slog.LevelDebug},
		{strings.TrimSpace(lc.ErrorsFile), slog.LevelWarn},
	}
	var closers []io.Closer
	for _, f := range files {
		if f.name == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, closeAll(closers), fmt.Errorf("logger: create dir %s: %w", dir, err)
		}
		path := filepath.Join(dir, f.name)
		fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, closeAll(closers), fmt.Errorf("logger: open %s: %w", path, err)
		}
		outputs = append(outputs, sinkSpec{w: fh, min: f.min})
		closers = append(closers, fh)
	}
	return outputs, closers, nil
}

func closeAll(closers []io.Closer) []io.Closer {
	for _, c := range closers {
		_ = c.Close()
	}
	return nil
}

func selectProfile(lc coreconfig.LoggingConfig) string {
	if profile := strings.TrimSpace(lc.Profile); profile != "" {
		return strings.ToLower(profile)
	}
	return "prod"
}

// LogEvent logs event through logg, falling back to the context logger and then L.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component constructs a logger scoped to the provided component attribute.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs event under component, preferring a logger carried by ctx.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := FromContext(ctx)
	if logg == nil {
		return
	}
	if component = strings.TrimSpace(component); component != "" {
		logg = logg.With("component", component)
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// parseDebugSample defaults to 1/50; "off" or "0" lets every debug event through.
func parseDebugSample(spec string) (int, int) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "":
		return 1, 50
	case "off", "0", "all":
		return 0, 0
	}
	if num, den := parseRatioSpec(spec); den > 0 {
		return num, den
	}
	return 1, 50
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether debug-level details should be logged for high-volume events.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}

// TraceEnabled indicates whether trace override is forcing full debug output.
func TraceEnabled() bool {
	return traceOverride
}
