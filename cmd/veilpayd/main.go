// veilpayd runs the encrypted royalty daemon. Until an external oracle
// integration is configured it runs against the in-process development
// oracle, which decrypts its own ciphertexts and signs the reveals with a
// throwaway key.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/veilpay/veilpay/core"
	"github.com/veilpay/veilpay/ledger"
	ledgererrors "github.com/veilpay/veilpay/ledger/errors"
	"github.com/veilpay/veilpay/log"
	"github.com/veilpay/veilpay/oracle/mock"
	"github.com/veilpay/veilpay/reveal"
)

// Automatically set through -ldflags
// Example: go install -ldflags "-X main.version=`git describe --tags`
//   -X main.buildDate=`date -u +%d/%m/%Y@%H:%M:%S` -X main.gitCommit=`git rev-parse HEAD`"
var (
	version   = "master"
	gitCommit = "none"
	buildDate = "unknown"
)

var folderFlag = &cli.StringFlag{
	Name:  "folder",
	Usage: "folder holding the ledger database; empty runs in memory",
}

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file, overridden by explicit flags",
}

var listenFlag = &cli.StringFlag{
	Name:  "listen",
	Usage: "address the public API binds to",
	Value: core.DefaultListenAddress,
}

var metricsFlag = &cli.StringFlag{
	Name:  "metrics",
	Usage: "address for the prometheus listener, disabled when empty",
}

var sweepPeriodFlag = &cli.DurationFlag{
	Name:  "sweep-period",
	Usage: "how often stale oracle requests are expired",
	Value: core.DefaultSweepPeriod,
}

var requestTimeoutFlag = &cli.DurationFlag{
	Name:  "request-timeout",
	Usage: "how long an oracle request may wait for its callback",
	Value: core.DefaultRequestMaxAge,
}

var oracleDelayFlag = &cli.DurationFlag{
	Name:  "dev-oracle-delay",
	Usage: "artificial callback delay of the development oracle",
	Value: 2 * time.Second,
}

var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "print debug-level log messages",
}

func main() {
	app := cli.NewApp()
	app.Name = "veilpayd"
	app.Version = version
	app.Usage = "encrypted contributor royalty daemon"
	app.Flags = []cli.Flag{
		folderFlag, configFlag, listenFlag, metricsFlag,
		sweepPeriodFlag, requestTimeoutFlag, oracleDelayFlag, verboseFlag,
	}
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("veilpayd %s (date %v, commit %v)\n", version, buildDate, gitCommit)
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.DefaultLogger().Fatalw("daemon exited", "err", err)
	}
}

func run(c *cli.Context) error {
	level := log.InfoLevel
	if c.Bool(verboseFlag.Name) {
		level = log.DebugLevel
	}
	logger := log.New(nil, level, false)

	opts, err := buildOptions(c, logger)
	if err != nil {
		return err
	}

	// the dev oracle plays both sides of the boundary: it queues requests,
	// signs reveals and hands callbacks back to the engine after a delay
	devOracle := mock.New()
	delay := c.Duration(oracleDelayFlag.Name)
	dispatcher := &devDispatcher{oracle: devOracle, delay: delay, log: logger}
	opts = append(opts,
		core.WithOracle(dispatcher),
		core.WithEncrypter(devOracle),
		core.WithOraclePublicKey(devOracle.PublicKey()),
	)
	logger.Warnw("running with the in-process development oracle", "delay", delay)

	daemon, err := core.NewDaemon(c.Context, core.NewConfig(opts...))
	if err != nil {
		return err
	}
	dispatcher.engine = daemon.Engine()

	if err := daemon.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return daemon.Stop(ctx)
}

func buildOptions(c *cli.Context, logger log.Logger) ([]core.ConfigOption, error) {
	opts := []core.ConfigOption{core.WithLogger(logger)}

	if path := c.String(configFlag.Name); path != "" {
		fc, err := core.LoadFileConfig(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		if fc.Folder != "" {
			opts = append(opts, core.WithFolder(fc.Folder))
		}
		if fc.Listen != "" {
			opts = append(opts, core.WithListenAddress(fc.Listen))
		}
		if fc.Metrics != "" {
			opts = append(opts, core.WithMetricsAddress(fc.Metrics))
		}
		if fc.SweepPeriod != "" {
			period, err := time.ParseDuration(fc.SweepPeriod)
			if err != nil {
				return nil, fmt.Errorf("config sweep_period: %w", err)
			}
			opts = append(opts, core.WithSweepPeriod(period))
		}
		if fc.RequestTimeout != "" {
			age, err := time.ParseDuration(fc.RequestTimeout)
			if err != nil {
				return nil, fmt.Errorf("config request_timeout: %w", err)
			}
			opts = append(opts, core.WithRequestMaxAge(age))
		}
	}

	if c.IsSet(folderFlag.Name) {
		opts = append(opts, core.WithFolder(c.String(folderFlag.Name)))
	}
	if c.IsSet(listenFlag.Name) {
		opts = append(opts, core.WithListenAddress(c.String(listenFlag.Name)))
	}
	if c.IsSet(metricsFlag.Name) {
		opts = append(opts, core.WithMetricsAddress(c.String(metricsFlag.Name)))
	}
	if c.IsSet(sweepPeriodFlag.Name) {
		opts = append(opts, core.WithSweepPeriod(c.Duration(sweepPeriodFlag.Name)))
	}
	if c.IsSet(requestTimeoutFlag.Name) {
		opts = append(opts, core.WithRequestMaxAge(c.Duration(requestTimeoutFlag.Name)))
	}
	return opts, nil
}

// devDispatcher forwards decryption requests to the mock oracle and delivers
// the callback to the engine after the configured delay, trying the
// calculation handler first and falling back to the claim handler.
type devDispatcher struct {
	oracle *mock.Oracle
	engine *reveal.Engine
	delay  time.Duration
	log    log.Logger
}

func (d *devDispatcher) RequestDecryption(ctx context.Context, cts []ledger.Ciphertext) (string, error) {
	id, err := d.oracle.RequestDecryption(ctx, cts)
	if err != nil {
		return "", err
	}
	time.AfterFunc(d.delay, func() {
		err := d.oracle.Emit(id, func(ctx context.Context, requestID string, cleartext, proof []byte) error {
			err := d.engine.OnCalculationRevealed(ctx, requestID, cleartext, proof)
			if errors.Is(err, ledgererrors.ErrUnknownRequest) {
				err = d.engine.OnClaimRevealed(ctx, requestID, cleartext, proof)
			}
			return err
		})
		if err != nil {
			d.log.Warnw("dev oracle callback rejected", "request", id, "err", err)
		}
	})
	return id, nil
}
