package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/walletbot/core/config"
	coretelegram "github.com/m3rciful/walletbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct {
	opts coretelegram.RunOptions
	err  error
}

func (a app) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, a.err }

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var order []string
	var loadedFrom string
	shutdown := 0

	err := Run(Options{
		ConfigEnvVar:      "WALLETBOT_TEST_CONFIG",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loadedFrom = path
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(ConfigCarrier) (TelegramApp, error) {
			return app{opts: coretelegram.RunOptions{
				OnStart: func(context.Context, coretelegram.Runtime) error { order = append(order, "start"); return nil },
				OnStop:  func(context.Context, coretelegram.Runtime) error { order = append(order, "stop"); return nil },
			}}, nil
		},
		ShutdownLogger: func() error { shutdown++; return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "config.yaml", loadedFrom)
	assert.Equal(t, []string{"start", "stop"}, order)
	assert.Equal(t, 1, shutdown)
}

func TestRunConfigPathFromEnv(t *testing.T) {
	t.Setenv("WALLETBOT_TEST_CONFIG", "/etc/walletbot.yaml")
	var loadedFrom string
	boom := errors.New("boom")

	err := Run(Options{
		ConfigEnvVar: "WALLETBOT_TEST_CONFIG",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loadedFrom = path
			return nil, boom
		},
		Bootstrap: func(ConfigCarrier) (TelegramApp, error) { return nil, nil },
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, "/etc/walletbot.yaml", loadedFrom)
}

func TestRunRequiresHooksAndConfig(t *testing.T) {
	assert.Error(t, Run(Options{}))
	assert.Error(t, Run(Options{LoadConfig: func(string) (ConfigCarrier, error) { return nil, nil }}))

	t.Setenv("CONFIG_PATH", "")
	err := Run(Options{
		LoadConfig: func(string) (ConfigCarrier, error) { return carrier{}, nil },
		Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return nil, nil },
	})
	assert.Error(t, err)
}

func TestRunBootstrapFailure(t *testing.T) {
	err := Run(Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap:         func(ConfigCarrier) (TelegramApp, error) { return nil, errors.New("db down") },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestRunRejectsNilApp(t *testing.T) {
	err := Run(Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap:         func(ConfigCarrier) (TelegramApp, error) { return nil, nil },
		ShutdownLogger:    func() error { return nil },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no app")
}
