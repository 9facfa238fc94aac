package core

import (
	"context"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veilpay/veilpay/ledger/memdb"
	"github.com/veilpay/veilpay/oracle/mock"
)

func TestConfigDefaults(t *testing.T) {
	c := NewConfig()
	require.Equal(t, DefaultListenAddress, c.ListenAddress())
	require.Equal(t, DefaultSweepPeriod, c.sweepPeriod)
	require.Equal(t, DefaultRequestMaxAge, c.requestMaxAge)
	require.Empty(t, c.Folder())
	require.NotNil(t, c.logger)
	require.NotNil(t, c.clock)
}

func TestConfigOptions(t *testing.T) {
	c := NewConfig(
		WithFolder("/tmp/veilpay"),
		WithListenAddress("127.0.0.1:9000"),
		WithMetricsAddress("127.0.0.1:9001"),
		WithSweepPeriod(5*time.Second),
		WithRequestMaxAge(30*time.Second),
	)
	require.Equal(t, "/tmp/veilpay", c.Folder())
	require.Equal(t, "127.0.0.1:9000", c.ListenAddress())
	require.Equal(t, "127.0.0.1:9001", c.metricsAddr)
	require.Equal(t, 5*time.Second, c.sweepPeriod)
	require.Equal(t, 30*time.Second, c.requestMaxAge)
}

func TestLoadFileConfig(t *testing.T) {
	file := path.Join(t.TempDir(), "veilpay.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
folder = "/var/lib/veilpay"
listen = "0.0.0.0:8080"
sweep_period = "30s"
`), 0o600))

	fc, err := LoadFileConfig(file)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/veilpay", fc.Folder)
	require.Equal(t, "0.0.0.0:8080", fc.Listen)
	require.Equal(t, "30s", fc.SweepPeriod)
	require.Empty(t, fc.Metrics)

	_, err = LoadFileConfig(path.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestNewDaemonValidation(t *testing.T) {
	ctx := context.Background()
	orc := mock.New()

	_, err := NewDaemon(ctx, NewConfig())
	require.Error(t, err)

	_, err = NewDaemon(ctx, NewConfig(WithOracle(orc)))
	require.Error(t, err)

	_, err = NewDaemon(ctx, NewConfig(WithOracle(orc), WithEncrypter(orc)))
	require.Error(t, err)

	d, err := NewDaemon(ctx, NewConfig(
		WithOracle(orc),
		WithEncrypter(orc),
		WithOraclePublicKey(orc.PublicKey()),
		WithStore(memdb.NewStore()),
	))
	require.NoError(t, err)
	require.NotNil(t, d.Engine())
	require.NoError(t, d.Stop(ctx))
}

func TestDaemonStartStop(t *testing.T) {
	ctx := context.Background()
	orc := mock.New()

	d, err := NewDaemon(ctx, NewConfig(
		WithOracle(orc),
		WithEncrypter(orc),
		WithOraclePublicKey(orc.PublicKey()),
		WithFolder(t.TempDir()),
		WithListenAddress("127.0.0.1:0"),
	))
	require.NoError(t, err)
	require.NoError(t, d.Start())
	require.NoError(t, d.Stop(ctx))
}
