package config

import (
	"strings"
	"time"

	"github.com/matrix-tang/ex-rs/internal/ingest/binance"
	"github.com/matrix-tang/ex-rs/pkg/conn"
	"github.com/matrix-tang/ex-rs/pkg/exception"
	"github.com/matrix-tang/ex-rs/pkg/queue"
	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
)

const EnvPrefix = "EXRS"

// Config is the whole process configuration.
type Config struct {
	Feed      FeedConfig      `mapstructure:"feed"`
	Router    RouterConfig    `mapstructure:"router"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Mirror    MirrorConfig    `mapstructure:"mirror"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

// FeedConfig configures both stream supervisors.
type FeedConfig struct {
	WsURL             string        `mapstructure:"ws_url"`
	TickerStreams     []string      `mapstructure:"ticker_streams"`
	BookTickerEnabled bool          `mapstructure:"book_ticker_enabled"`
	BookTickerStreams []string      `mapstructure:"book_ticker_streams"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	SubscribeTimeout  time.Duration `mapstructure:"subscribe_timeout"`
	// MaxReconnects < 0 retries forever, 0 terminates on the first failure.
	MaxReconnects int           `mapstructure:"max_reconnects"`
	Backoff       BackoffConfig `mapstructure:"backoff"`
}

type BackoffConfig struct {
	Min    time.Duration `mapstructure:"min"`
	Max    time.Duration `mapstructure:"max"`
	Factor float64       `mapstructure:"factor"`
	Jitter float64       `mapstructure:"jitter"`
}

// RouterConfig configures the lane pool.
type RouterConfig struct {
	Lanes        int           `mapstructure:"lanes"`
	QueueSize    int           `mapstructure:"queue_size"`
	Overflow     string        `mapstructure:"overflow"`
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
}

// ReconcileConfig configures the directory loops.
type ReconcileConfig struct {
	RestURL       string        `mapstructure:"rest_url"`
	IndexInterval time.Duration `mapstructure:"index_interval"`
	SeedInterval  time.Duration `mapstructure:"seed_interval"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
}

// MirrorConfig configures the optional durable side stores.
type MirrorConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Interval time.Duration  `mapstructure:"interval"`
	Restore  bool           `mapstructure:"restore"`
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig enables the asset index mirror when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type MetricsConfig struct {
	LogInterval time.Duration `mapstructure:"log_interval"`
}

type ProfilingConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ServerAddress   string `mapstructure:"server_address"`
	ApplicationName string `mapstructure:"application_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.ws_url", binance.DefaultWsURL)
	v.SetDefault("feed.ticker_streams", []string{binance.StreamAllTicker})
	v.SetDefault("feed.book_ticker_enabled", true)
	v.SetDefault("feed.book_ticker_streams", []string{binance.StreamAllBookTicker})
	v.SetDefault("feed.read_timeout", 60*time.Second)
	v.SetDefault("feed.subscribe_timeout", 10*time.Second)
	v.SetDefault("feed.max_reconnects", 10)
	v.SetDefault("feed.backoff.min", 250*time.Millisecond)
	v.SetDefault("feed.backoff.max", 30*time.Second)
	v.SetDefault("feed.backoff.factor", 2.0)
	v.SetDefault("feed.backoff.jitter", 0.2)

	v.SetDefault("router.lanes", 10)
	v.SetDefault("router.queue_size", 4096)
	v.SetDefault("router.overflow", queue.OverflowDropOldest.String())
	v.SetDefault("router.block_timeout", 50*time.Millisecond)

	v.SetDefault("reconcile.rest_url", binance.DefaultRestURL)
	v.SetDefault("reconcile.index_interval", 300*time.Second)
	v.SetDefault("reconcile.seed_interval", 3*time.Second)
	v.SetDefault("reconcile.fetch_timeout", 10*time.Second)

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.interval", 5*time.Second)
	v.SetDefault("mirror.restore", true)
	v.SetDefault("mirror.driver", conn.DriverSQLite)
	v.SetDefault("mirror.postgres.host", "localhost")
	v.SetDefault("mirror.postgres.port", 5432)
	v.SetDefault("mirror.postgres.user", "")
	v.SetDefault("mirror.postgres.password", "")
	v.SetDefault("mirror.postgres.database", "exrs")
	v.SetDefault("mirror.postgres.sslmode", "disable")
	v.SetDefault("mirror.sqlite.path", "exrs.db")
	v.SetDefault("mirror.redis.addr", "")
	v.SetDefault("mirror.redis.password", "")
	v.SetDefault("mirror.redis.db", 0)
	v.SetDefault("mirror.redis.prefix", "EX_ASSET:")

	v.SetDefault("metrics.log_interval", 30*time.Second)

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.server_address", "http://localhost:4040")
	v.SetDefault("profiling.application_name", "ex-rs.pricecache")
}

// Load reads the YAML file at path, when given, on top of the defaults.
// Every key can be overridden by an EXRS_ environment variable, e.g.
// EXRS_ROUTER_LANES.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config").With("path", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	invalid := func(key string, value any) error {
		return errors.Wrap(exception.ErrInvalidArgument, "invalid config").With("key", key).With("value", value)
	}

	if c.Feed.WsURL == "" {
		return invalid("feed.ws_url", c.Feed.WsURL)
	}
	if len(c.Feed.TickerStreams) == 0 {
		return invalid("feed.ticker_streams", c.Feed.TickerStreams)
	}
	if c.Feed.BookTickerEnabled && len(c.Feed.BookTickerStreams) == 0 {
		return invalid("feed.book_ticker_streams", c.Feed.BookTickerStreams)
	}
	if c.Feed.Backoff.Jitter < 0 || c.Feed.Backoff.Jitter > 1 {
		return invalid("feed.backoff.jitter", c.Feed.Backoff.Jitter)
	}

	if c.Router.Lanes <= 0 {
		return invalid("router.lanes", c.Router.Lanes)
	}
	if c.Router.QueueSize <= 0 {
		return invalid("router.queue_size", c.Router.QueueSize)
	}
	policy, err := queue.ParseOverflowPolicy(c.Router.Overflow)
	if err != nil {
		return invalid("router.overflow", c.Router.Overflow)
	}
	if policy == queue.OverflowBlock && c.Router.BlockTimeout <= 0 {
		return invalid("router.block_timeout", c.Router.BlockTimeout)
	}

	if c.Reconcile.IndexInterval <= 0 {
		return invalid("reconcile.index_interval", c.Reconcile.IndexInterval)
	}
	if c.Reconcile.SeedInterval <= 0 {
		return invalid("reconcile.seed_interval", c.Reconcile.SeedInterval)
	}

	if c.Mirror.Enabled {
		switch c.Mirror.Driver {
		case conn.DriverPostgres, conn.DriverSQLite:
		default:
			return invalid("mirror.driver", c.Mirror.Driver)
		}
		if c.Mirror.Driver == conn.DriverSQLite && c.Mirror.SQLite.Path == "" {
			return invalid("mirror.sqlite.path", c.Mirror.SQLite.Path)
		}
		if c.Mirror.Interval <= 0 {
			return invalid("mirror.interval", c.Mirror.Interval)
		}
	}
	return nil
}

// OverflowPolicy returns the parsed router.overflow value.
func (c RouterConfig) OverflowPolicy() queue.OverflowPolicy {
	p, err := queue.ParseOverflowPolicy(c.Overflow)
	if err != nil {
		return queue.OverflowDropOldest
	}
	return p
}
