// Package app wires the wallet bot from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/walletbot/core/bootstrap"
	corecmd "github.com/m3rciful/walletbot/core/cmd"
	coredatabase "github.com/m3rciful/walletbot/core/database"
	"github.com/m3rciful/walletbot/core/logger"
	coretelegram "github.com/m3rciful/walletbot/core/telegram"
	tgsender "github.com/m3rciful/walletbot/core/telegram/sender"
	"github.com/m3rciful/walletbot/migrations"
	"github.com/m3rciful/walletbot/wallet/bot"
	"github.com/m3rciful/walletbot/wallet/catalog"
	"github.com/m3rciful/walletbot/wallet/config"
	"github.com/m3rciful/walletbot/wallet/conversation"
	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/fulfillment"
	"github.com/m3rciful/walletbot/wallet/ledger"
	"github.com/m3rciful/walletbot/wallet/metrics"
	"github.com/m3rciful/walletbot/wallet/moderation"
	"github.com/m3rciful/walletbot/wallet/session"
	"github.com/m3rciful/walletbot/wallet/storage/memory"
	"github.com/m3rciful/walletbot/wallet/storage/postgres"
)

// App holds the assembled bot.
type App struct {
	cfg *config.Config
	db  *sqlx.DB

	redis       redis.UniversalClient
	memSessions *session.MemoryStore

	Sessions *session.Manager
	Engine   *conversation.Engine
	Notifier *bot.Notifier
	Adapter  *bot.Adapter
	Seeders  []bootstrap.Seeder

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type repos struct {
	users    domain.UserRepository
	txs      domain.TransactionRepository
	products domain.ProductRepository
	balances ledger.Store
}

// Bootstrap is the corecmd.Options.Bootstrap hook: it initialises logging
// and storage, seeds the catalog and assembles the App.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	var dbCfg *coredatabase.Config
	if cfg.Storage == config.StoragePostgres {
		dbCfg = &cfg.Database
	}
	res, err := bootstrap.Run(bootstrap.Options{
		Config:     cfg.CoreConfig(),
		Database:   dbCfg,
		Migrations: migrations.FS,
	})
	if err != nil {
		return nil, err
	}

	a, err := New(cfg, res.DB)
	if err != nil {
		if res.DB != nil {
			_ = res.DB.Close()
		}
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := bootstrap.Seed(ctx, a.Seeders...); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// New assembles the App over db, which may be nil for memory storage.
func New(cfg *config.Config, db *sqlx.DB) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{cfg: cfg, db: db}

	r, err := a.repositories()
	if err != nil {
		return nil, err
	}
	store, err := a.sessionStore()
	if err != nil {
		return nil, err
	}
	limits, err := cfg.DepositLimits()
	if err != nil {
		return nil, err
	}
	payment, err := cfg.Payment()
	if err != nil {
		return nil, err
	}

	l := ledger.New(r.balances)
	a.Notifier = bot.NewNotifier()
	a.Sessions = session.NewManager(store)

	client := fulfillment.NewClient(cfg.Fulfillment.ClientConfig(), coretelegram.NewHTTPClient(coretelegram.HTTPClientOptions{
		Timeout: cfg.Fulfillment.Timeout,
		Retries: 2,
		Backoff: 500 * time.Millisecond,
		RetryIf: fulfillment.Retryable,
	}))
	a.Engine, err = conversation.NewEngine(conversation.Deps{
		Sessions:     a.Sessions,
		Ledger:       l,
		Users:        r.users,
		Products:     r.products,
		Transactions: r.txs,
		Moderation: moderation.New(moderation.Deps{
			ModeratorID:  cfg.ModeratorID,
			Ledger:       l,
			Transactions: r.txs,
			Users:        r.users,
			Notifier:     a.Notifier,
		}),
		Purchaser: fulfillment.NewDispatcher(l, r.txs, client, cfg.Fulfillment.RefPrefix),
		Orders:    client,
		Notifier:  a.Notifier,
		Limits:    limits,
		Payment:   payment,
	})
	if err != nil {
		return nil, err
	}
	a.Adapter = bot.New(a.Engine, a.Sessions)
	if cfg.CatalogPath != "" {
		a.Seeders = append(a.Seeders, catalog.Seeder{Path: cfg.CatalogPath, Products: r.products})
	}
	return a, nil
}

func (a *App) repositories() (repos, error) {
	switch a.cfg.Storage {
	case config.StorageMemory:
		return repos{
			users:    memory.NewUsers(),
			txs:      memory.NewTransactions(),
			products: memory.NewProducts(),
			balances: ledger.NewMemoryStore(),
		}, nil
	case config.StoragePostgres:
		if a.db == nil {
			return repos{}, errors.New("app: postgres storage needs a database")
		}
		return repos{
			users:    postgres.NewUsers(a.db),
			txs:      postgres.NewTransactions(a.db),
			products: postgres.NewProducts(a.db),
			balances: postgres.NewBalances(a.db),
		}, nil
	}
	return repos{}, fmt.Errorf("app: unknown storage %q", a.cfg.Storage)
}

func (a *App) sessionStore() (session.Store, error) {
	sc := a.cfg.Session
	switch sc.Backend {
	case config.SessionRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			_ = a.redis.Close()
			return nil, fmt.Errorf("app: redis ping: %w", err)
		}
		return session.NewRedisStore(a.redis, sc.SessionTTL(), sc.RedisPrefix), nil
	case config.SessionMemory, "":
		a.memSessions = session.NewMemoryStore(sc.SessionTTL())
		return a.memSessions, nil
	}
	return nil, fmt.Errorf("app: unknown session backend %q", sc.Backend)
}

// TelegramRunOptions implements corecmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	if err := a.Adapter.Register(reg); err != nil {
		return coretelegram.RunOptions{}, err
	}
	core := a.cfg.CoreConfig()
	return coretelegram.RunOptions{
		Config:   core,
		Registry: reg,
		Middlewares: coretelegram.DefaultMiddlewares(core, coretelegram.MiddlewareHooks{
			OnLimited: bot.Throttled,
			Limited:   metrics.RecordRateLimited,
			Observe:   metrics.RecordUpdate,
		}),
		Routes:            a.Adapter.Routes(reg, a.cfg.ModeratorID),
		DispatcherOptions: tgsender.Options{MaxRetries: 2, Observe: metrics.RecordOutbound},
		AdminChatID:       a.cfg.ModeratorID,
		OnStart:           a.start,
		OnStop:            a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt coretelegram.Runtime) error {
	if rt.Bot != nil {
		a.Notifier.Attach(rt.Bot)
	}
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	if a.memSessions != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.memSessions.Run(bg, a.cfg.Session.SweepInterval)
		}()
	}
	if listen := a.cfg.Metrics.Listen; listen != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := metrics.Serve(bg, listen); err != nil {
				logger.Error(bg, "metrics", "metrics.serve",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
			}
		}()
	}
	logger.Info(ctx, "app", "wallet.ready",
		slog.String("storage", a.cfg.Storage),
		slog.String("session", a.cfg.Session.Backend),
		slog.Int64("moderator_id", a.cfg.ModeratorID),
	)
	return nil
}

func (a *App) stop(context.Context, coretelegram.Runtime) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	return a.close()
}

func (a *App) close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
