package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/session"
)

const baseYAML = `
telegram:
  token: "123:abc"
  admin_id: 42
fulfillment:
  endpoint: "https://api.example.com/api"
  member_code: "M-1"
  secret: "s3cret"
`

func load(t *testing.T, body string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return Load(path)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t, baseYAML+`
storage: memory
`)
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, int64(42), cfg.ModeratorID)
	assert.Equal(t, SessionMemory, cfg.Session.Backend)
	assert.Equal(t, session.DefaultTTL, cfg.Session.SessionTTL())
	assert.Equal(t, time.Minute, cfg.Session.SweepInterval)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())

	limits, err := cfg.DepositLimits()
	require.NoError(t, err)
	assert.Empty(t, limits)
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := load(t, `
telegram:
  token: "123:abc"
  admin_id: 42
moderator_id: 7
database:
  host: db
  name: wallet
session:
  backend: redis
  ttl: 0s
  redis_addr: "localhost:6379"
metrics:
  listen: ":9090"
limits:
  USDT: {min: 5, max: 500.5}
  cup: {min: 1000, max: 10000}
payment_instructions:
  cup: "  Tarjeta 9204 0000 0000 0000  "
fulfillment:
  endpoint: "https://api.example.com/api"
  member_code: "M-1"
  secret: "s3cret"
  timeout: 20s
  ref_prefix: CROMWELL
`)
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, int64(7), cfg.ModeratorID)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, time.Duration(0), cfg.Session.SessionTTL())

	limits, err := cfg.DepositLimits()
	require.NoError(t, err)
	assert.True(t, limits[domain.USDT].Max.Equal(decimal.RequireFromString("500.5")))
	assert.True(t, limits[domain.CUP].Min.Equal(decimal.NewFromInt(1000)))

	pay, err := cfg.Payment()
	require.NoError(t, err)
	assert.Equal(t, "Tarjeta 9204 0000 0000 0000", pay[domain.CUP])

	cc := cfg.Fulfillment.ClientConfig()
	assert.Equal(t, 20*time.Second, cc.Timeout)
	assert.Equal(t, "M-1", cc.MemberCode)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FULFILLMENT_SECRET", "from-env")
	t.Setenv("WALLET_STORAGE", "memory")
	cfg, err := load(t, baseYAML)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Fulfillment.Secret)
	assert.Equal(t, StorageMemory, cfg.Storage)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown storage":        baseYAML + "storage: sqlite\n",
		"postgres without host":  baseYAML,
		"redis without address":  baseYAML + "storage: memory\nsession: {backend: redis}\n",
		"unknown currency limit": baseYAML + "storage: memory\nlimits:\n  eur: {min: 1, max: 2}\n",
		"inverted limit":         baseYAML + "storage: memory\nlimits:\n  cup: {min: 5, max: 1}\n",
		"bad payment currency":   baseYAML + "storage: memory\npayment_instructions: {btc: x}\n",
		"negative ttl":           baseYAML + "storage: memory\nsession: {ttl: -1m}\n",
		"missing moderator": `
storage: memory
telegram: {token: "t"}
fulfillment: {endpoint: "https://x.example", member_code: m, secret: s}
`,
		"missing fulfillment": `
storage: memory
telegram: {token: "t", admin_id: 1}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, body)
			assert.Error(t, err)
		})
	}
}
