// Package metrics exposes the daemon's prometheus counters and serves them
// over a private listener.
package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veilpay/veilpay/log"
)

var (
	// PrivateMetrics about the internal world (go process, private stuff)
	PrivateMetrics = prometheus.NewRegistry()

	// ContributionCounter counts submitted contributions
	ContributionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contributions_total",
		Help: "Number of encrypted contributions submitted",
	})
	// DecryptionRequestCounter counts decryption requests by kind
	DecryptionRequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "decryption_requests_total",
		Help: "Number of decryption requests issued to the oracle",
	}, []string{"kind"})
	// RevealCounter counts processed oracle callbacks by kind and outcome
	RevealCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reveals_total",
		Help: "Number of oracle callbacks processed",
	}, []string{"kind", "outcome"})
	// ClaimSettledCounter counts finalized claim settlements
	ClaimSettledCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "claims_settled_total",
		Help: "Number of claims finalized",
	})
	// ExpiredRequestCounter counts pending requests released by the sweep
	ExpiredRequestCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "expired_requests_total",
		Help: "Number of pending oracle requests expired by the sweep",
	})
	// PoolBalance tracks the reward pool balance
	PoolBalance = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reward_pool_balance",
		Help: "Current reward pool balance",
	})
	// HTTPCallCounter counts http requests on the public surface
	HTTPCallCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_call_counter",
		Help: "Number of HTTP calls received",
	}, []string{"code", "method"})

	metricsBound = false
)

func bindMetrics() {
	if metricsBound {
		return
	}
	metricsBound = true

	PrivateMetrics.MustRegister(prometheus.NewGoCollector())
	PrivateMetrics.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	for _, c := range []prometheus.Collector{
		ContributionCounter,
		DecryptionRequestCounter,
		RevealCounter,
		ClaimSettledCounter,
		ExpiredRequestCounter,
		PoolBalance,
		HTTPCallCounter,
	} {
		PrivateMetrics.MustRegister(c)
	}
}

// Start starts a prometheus metrics server on the given address.
func Start(l log.Logger, metricsBind string) net.Listener {
	bindMetrics()

	lis, err := net.Listen("tcp", metricsBind)
	if err != nil {
		l.Warnw("metrics listen failed", "addr", metricsBind, "err", err)
		return nil
	}
	l.Debugw("metrics listener started", "at", lis.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(PrivateMetrics, promhttp.HandlerOpts{Registry: PrivateMetrics}))
	s := http.Server{Addr: lis.Addr().String(), Handler: mux}
	go func() {
		if err := s.Serve(lis); err != nil && err != http.ErrServerClosed {
			l.Warnw("metrics server stopped", "err", err)
		}
	}()
	return lis
}
