package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
)

const redacted = "<redacted>"

var levelNames = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// outcomeValues is closed; unknown outcomes are dropped from the record.
var outcomeValues = map[string]struct{}{
	"ok":           {},
	"fail":         {},
	"cancelled":    {},
	"rate_limited": {},
}

// secretKeys never reach a sink in clear text. A key matches when it equals
// an entry or ends with "_"+entry.
var secretKeys = []string{
	"token",
	"secret",
	"password",
	"signature",
	"api_key",
	"dsn",
}

// moneyKeys hold decimal amounts rendered with two fractional digits.
var moneyKeys = map[string]struct{}{
	"amount":  {},
	"balance": {},
	"price":   {},
	"cost":    {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeEnum(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func isSecretKey(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if key == s || strings.HasSuffix(key, "_"+s) {
			return true
		}
	}
	return false
}

func isMoneyKey(key string) bool {
	_, ok := moneyKeys[key]
	return ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"op",
	"cb_key",
	"outcome",
	"duration_ms",
	"kind",
	"currency",
	"amount",
	"balance",
	"product_id",
	"tx_id",
	"order_id",
	"partner_ref",
	"step",
	"next_step",
	"action",
	"payload",
	"username",
	"count",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"pending_count",
	"reason",
	"stack",
}
