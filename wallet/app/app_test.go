package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/walletbot/core/bootstrap"
	coreconfig "github.com/m3rciful/walletbot/core/config"
	coretelegram "github.com/m3rciful/walletbot/core/telegram"
	"github.com/m3rciful/walletbot/wallet/config"
	"github.com/m3rciful/walletbot/wallet/session"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Config: coreconfig.Config{
			Telegram:  coreconfig.TelegramConfig{Token: "1:abc", AdminID: 7},
			RateLimit: coreconfig.RateLimitConfig{IntervalMS: 500, Burst: 1},
		},
		Storage:     config.StorageMemory,
		ModeratorID: 7,
		Fulfillment: config.FulfillmentConfig{
			Endpoint:   "https://topup.example.com/api",
			MemberCode: "M1",
			Secret:     "s",
		},
		Session: config.SessionConfig{Backend: config.SessionMemory, SweepInterval: time.Minute},
	}
}

func TestNewMemoryWiring(t *testing.T) {
	a, err := New(memoryConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, a.Engine)
	require.NotNil(t, a.memSessions)
	assert.Nil(t, a.redis)
	assert.Empty(t, a.Seeders)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts.Routes)
	assert.Len(t, opts.Registry.Commands(), 5)

	names := make([]string, 0, len(opts.Middlewares))
	for _, m := range opts.Middlewares {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"recover", "rate_limit", "logger", "observe"}, names)

	require.NoError(t, opts.OnStart(context.Background(), coretelegram.Runtime{}))
	require.NoError(t, opts.OnStop(context.Background(), coretelegram.Runtime{}))
}

func TestNewRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Session.Backend = config.SessionRedis
	cfg.Session.RedisAddr = mr.Addr()

	a, err := New(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, a.redis)
	assert.Nil(t, a.memSessions)

	ctx := context.Background()
	require.NoError(t, a.Sessions.Put(ctx, session.Session{UserID: 3, Step: session.StepWaitingAmount}))
	assert.True(t, a.Sessions.InProgress(ctx, 3))
	require.NoError(t, a.close())
}

func TestNewRejectsMisconfiguration(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	cfg := memoryConfig()
	cfg.Storage = config.StoragePostgres
	_, err = New(cfg, nil)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.Session.Backend = "etcd"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestCatalogSeederWired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
products:
  - id: ff_100
    name: "100 Diamantes"
    price_cup: 250
    external_product_id: "10"
    external_variation_id: "100"
`), 0o600))
	cfg := memoryConfig()
	cfg.CatalogPath = path

	a, err := New(cfg, nil)
	require.NoError(t, err)
	require.Len(t, a.Seeders, 1)
	require.NoError(t, bootstrap.Seed(context.Background(), a.Seeders...))
}

func TestBootstrapRejectsForeignConfig(t *testing.T) {
	_, err := Bootstrap(foreign{})
	assert.Error(t, err)
}

type foreign struct{}

func (foreign) CoreConfig() *coreconfig.Config { return &coreconfig.Config{} }
