// Package core assembles the daemon: it opens the ledger store, wires the
// reveal engine to the oracle and proof verifier, runs the public HTTP API
// and keeps the pending-request sweep going.
package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/veilpay/veilpay/crypto"
	dhttp "github.com/veilpay/veilpay/handler/http"
	"github.com/veilpay/veilpay/ledger"
	"github.com/veilpay/veilpay/ledger/boltdb"
	"github.com/veilpay/veilpay/ledger/memdb"
	"github.com/veilpay/veilpay/metrics"
	"github.com/veilpay/veilpay/reveal"
)

// Daemon is a running veilpay node.
type Daemon struct {
	cfg    *Config
	store  ledger.CallbackStore
	engine *reveal.Engine

	server    *http.Server
	listener  net.Listener
	sweepStop context.CancelFunc
}

// NewDaemon builds a daemon from the config without starting any listener.
func NewDaemon(ctx context.Context, cfg *Config) (*Daemon, error) {
	if cfg.oracle == nil {
		return nil, errors.New("config: no decryption oracle set")
	}
	if cfg.encrypter == nil {
		return nil, errors.New("config: no encrypter set")
	}
	if cfg.oraclePub == nil {
		return nil, errors.New("config: no oracle public key set")
	}

	store := cfg.store
	if store == nil {
		if cfg.folder != "" {
			bs, err := boltdb.NewBoltStore(ctx, cfg.logger, cfg.folder, cfg.boltOpts)
			if err != nil {
				return nil, fmt.Errorf("opening bolt store: %w", err)
			}
			store = bs
		} else {
			cfg.logger.Warnw("no folder configured, using the in-memory store")
			store = memdb.NewStore()
		}
	}
	cbStore := ledger.NewCallbackStore(store)

	verifier := crypto.NewVerifier(cfg.oraclePub)
	engine := reveal.NewEngine(cfg.logger, cbStore, cfg.oracle, cfg.encrypter, verifier, cfg.clock)

	return &Daemon{
		cfg:    cfg,
		store:  cbStore,
		engine: engine,
	}, nil
}

// Engine exposes the reveal engine so the oracle integration can deliver
// callbacks.
func (d *Daemon) Engine() *reveal.Engine {
	return d.engine
}

// Store exposes the ledger store, mostly so observers can register
// notification callbacks.
func (d *Daemon) Store() ledger.CallbackStore {
	return d.store
}

// Start brings up the public API, the metrics listener and the sweep loop.
func (d *Daemon) Start() error {
	lis, err := net.Listen("tcp", d.cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", d.cfg.listenAddr, err)
	}
	d.listener = lis
	d.server = &http.Server{
		Addr:    lis.Addr().String(),
		Handler: dhttp.New(d.cfg.logger, d.engine, d.store),
	}
	go func() {
		if err := d.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			d.cfg.logger.Errorw("public api stopped", "err", err)
		}
	}()
	d.cfg.logger.Infow("public api started", "addr", lis.Addr().String())

	if d.cfg.metricsAddr != "" {
		metrics.Start(d.cfg.logger, d.cfg.metricsAddr)
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	d.sweepStop = cancel
	go d.engine.SweepLoop(sweepCtx, d.cfg.sweepPeriod, d.cfg.requestMaxAge)
	return nil
}

// Stop shuts the daemon down and closes the store.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.sweepStop != nil {
		d.sweepStop()
	}
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			d.cfg.logger.Warnw("public api shutdown", "err", err)
		}
	}
	return d.store.Close(ctx)
}
