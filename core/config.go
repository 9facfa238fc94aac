package core

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/drand/kyber"
	clock "github.com/jonboulle/clockwork"
	bolt "go.etcd.io/bbolt"

	"github.com/veilpay/veilpay/ledger"
	"github.com/veilpay/veilpay/log"
	"github.com/veilpay/veilpay/oracle"
)

// DefaultSweepPeriod is how often the daemon looks for stale oracle
// requests.
const DefaultSweepPeriod = time.Minute

// DefaultRequestMaxAge is how long a pending oracle request may wait for its
// callback before the sweep releases it.
const DefaultRequestMaxAge = 10 * time.Minute

// DefaultListenAddress is the default public API address.
const DefaultListenAddress = "127.0.0.1:8080"

// ConfigOption is a function that applies a specific setting to a Config.
type ConfigOption func(*Config)

// Config holds all relevant information for the daemon to run.
type Config struct {
	folder        string
	listenAddr    string
	metricsAddr   string
	boltOpts      *bolt.Options
	sweepPeriod   time.Duration
	requestMaxAge time.Duration
	oracle        oracle.Oracle
	encrypter     oracle.Encrypter
	oraclePub     kyber.Point
	store         ledger.Store
	logger        log.Logger
	clock         clock.Clock
}

// NewConfig returns the config to pass to the daemon with the default
// options set and the updated values given by the options.
func NewConfig(opts ...ConfigOption) *Config {
	c := &Config{
		listenAddr:    DefaultListenAddress,
		sweepPeriod:   DefaultSweepPeriod,
		requestMaxAge: DefaultRequestMaxAge,
		logger:        log.DefaultLogger(),
		clock:         clock.NewRealClock(),
	}
	for i := range opts {
		opts[i](c)
	}
	return c
}

// Folder returns the folder under which the daemon stores its database. An
// empty folder means the in-memory store is used.
func (c *Config) Folder() string {
	return c.folder
}

// ListenAddress returns the public API address.
func (c *Config) ListenAddress() string {
	return c.listenAddr
}

// WithFolder sets the database folder.
func WithFolder(folder string) ConfigOption {
	return func(c *Config) { c.folder = folder }
}

// WithListenAddress sets the public API address.
func WithListenAddress(addr string) ConfigOption {
	return func(c *Config) { c.listenAddr = addr }
}

// WithMetricsAddress enables the prometheus listener on the given address.
func WithMetricsAddress(addr string) ConfigOption {
	return func(c *Config) { c.metricsAddr = addr }
}

// WithBoltOptions sets the options given to the bolt db.
func WithBoltOptions(opts *bolt.Options) ConfigOption {
	return func(c *Config) { c.boltOpts = opts }
}

// WithSweepPeriod sets how often stale pending requests are expired.
func WithSweepPeriod(period time.Duration) ConfigOption {
	return func(c *Config) { c.sweepPeriod = period }
}

// WithRequestMaxAge sets the pending request timeout.
func WithRequestMaxAge(age time.Duration) ConfigOption {
	return func(c *Config) { c.requestMaxAge = age }
}

// WithOracle sets the decryption oracle the engine talks to.
func WithOracle(o oracle.Oracle) ConfigOption {
	return func(c *Config) { c.oracle = o }
}

// WithEncrypter sets the encrypter used to write ledger ciphertexts.
func WithEncrypter(e oracle.Encrypter) ConfigOption {
	return func(c *Config) { c.encrypter = e }
}

// WithOraclePublicKey sets the key reveal proofs must verify under.
func WithOraclePublicKey(pub kyber.Point) ConfigOption {
	return func(c *Config) { c.oraclePub = pub }
}

// WithStore overrides the ledger store, bypassing the folder setting.
func WithStore(s ledger.Store) ConfigOption {
	return func(c *Config) { c.store = s }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(c *Config) { c.logger = l }
}

// WithClock sets the clock, used by tests to control time.
func WithClock(clk clock.Clock) ConfigOption {
	return func(c *Config) { c.clock = clk }
}

// FileConfig is the on-disk TOML configuration mirrored by the CLI flags.
type FileConfig struct {
	Folder         string `toml:"folder"`
	Listen         string `toml:"listen"`
	Metrics        string `toml:"metrics"`
	SweepPeriod    string `toml:"sweep_period"`
	RequestTimeout string `toml:"request_timeout"`
}

// LoadFileConfig reads a FileConfig from the given TOML file.
func LoadFileConfig(path string) (*FileConfig, error) {
	fc := &FileConfig{}
	if _, err := toml.DecodeFile(path, fc); err != nil {
		return nil, err
	}
	return fc, nil
}
