package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"WindowEdge/pkg/logger"
	"WindowEdge/pkg/util"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"required"`
	Logger      logger.Config `yaml:"logger"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Engine      EngineConfig      `yaml:"engine"`
	Feed        FeedConfig        `yaml:"feed"`
	Venue       VenueConfig       `yaml:"venue"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Journal     JournalConfig     `yaml:"journal"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	Redis       RedisConfig       `yaml:"redis"`
}

// EngineConfig enumerates every tunable of the decision pipeline.
type EngineConfig struct {
	Assets       []string      `yaml:"assets" default:"[\"BTC\",\"ETH\",\"SOL\",\"XRP\"]" validate:"required,min=1,dive,required"`
	TickInterval time.Duration `yaml:"tick_interval" default:"2s" validate:"gt=0"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"3s" validate:"gt=0"`
	DryRun       bool          `yaml:"dry_run"`

	// MaxPriceDivergence is the relative |live-reference|/reference ceiling above which a tick aborts.
	MaxPriceDivergence float64       `yaml:"max_price_divergence" default:"0.05" validate:"gt=0"`
	PriceMaxAge        time.Duration `yaml:"price_max_age" default:"15s" validate:"gt=0"`

	Window     WindowConfig     `yaml:"window"`
	Volatility VolatilityConfig `yaml:"volatility"`
	Signal     SignalConfig     `yaml:"signal"`
	Sizing     SizingConfig     `yaml:"sizing"`
	Risk       RiskConfig       `yaml:"risk"`
	Orders     OrdersConfig     `yaml:"orders"`
}

type WindowConfig struct {
	Key string `yaml:"key" default:"15m" validate:"oneof=5m 15m 1h"`
	// TooEarlyMinutes: ticks with more minutes remaining than this are no-ops.
	TooEarlyMinutes float64 `yaml:"too_early_minutes" default:"14" validate:"gt=0"`
	// RolloverMinutes: below this many minutes remaining the window starts rolling.
	RolloverMinutes  float64       `yaml:"rollover_minutes" default:"0.05" validate:"gte=0"`
	RolloverCooldown time.Duration `yaml:"rollover_cooldown" default:"30s" validate:"gte=0"`
}

type VolatilityConfig struct {
	SampleSpacing time.Duration      `yaml:"sample_spacing" default:"58s" validate:"gt=0"`
	WindowSize    int                `yaml:"window_size" default:"60" validate:"gte=2"`
	MinSamples    int                `yaml:"min_samples" default:"10" validate:"gte=2"`
	Floors        map[string]float64 `yaml:"floors" default:"{\"BTC\":70,\"ETH\":4,\"SOL\":0.35,\"XRP\":0.004}" validate:"dive,keys,required,endkeys,gte=0"`
	DriftLookback int                `yaml:"drift_lookback" default:"15" validate:"gte=3"`
	// MaxDriftPerMin caps |drift| as a fraction of price per minute.
	MaxDriftPerMin float64 `yaml:"max_drift_per_min" default:"0.001" validate:"gte=0"`
	DisableDrift   bool    `yaml:"disable_drift"`
}

type ZTier struct {
	MinMinutes float64 `yaml:"min_minutes" json:"min_minutes" validate:"gte=0"`
	Z          float64 `yaml:"z" json:"z" validate:"gt=0"`
}

type SignalConfig struct {
	Tiers []ZTier `yaml:"tiers" default:"[{\"min_minutes\":10,\"z\":2.2},{\"min_minutes\":6,\"z\":1.9},{\"min_minutes\":3,\"z\":1.6},{\"min_minutes\":1,\"z\":1.35},{\"min_minutes\":0,\"z\":1.2}]" validate:"required,min=1,dive"`

	RegimeScalarMin float64 `yaml:"regime_scalar_min" default:"0.7" validate:"gt=0"`
	RegimeScalarMax float64 `yaml:"regime_scalar_max" default:"1.4" validate:"gtfield=RegimeScalarMin"`
	CalmScalar      float64 `yaml:"calm_scalar" default:"1.1" validate:"gt=0"`
	CalmRelief      float64 `yaml:"calm_relief" default:"0.85" validate:"gt=0,lte=1"`

	HistoryWindow time.Duration `yaml:"history_window" default:"30s" validate:"gt=0"`

	DecayMinPoints   int     `yaml:"decay_min_points" default:"5" validate:"gte=2"`
	DecayDeltaFar    float64 `yaml:"decay_delta_far" default:"0.8" validate:"gt=0"`
	DecayDeltaNear   float64 `yaml:"decay_delta_near" default:"0.5" validate:"gt=0"`
	DecayNearMinutes float64 `yaml:"decay_near_minutes" default:"2" validate:"gte=0"`

	WeakBand        float64 `yaml:"weak_band" default:"1.15" validate:"gte=1"`
	StrongBand      float64 `yaml:"strong_band" default:"1.5" validate:"gtefield=WeakBand"`
	WeakConsecutive int     `yaml:"weak_consecutive" default:"3" validate:"gte=1"`
	WeakRatioWindow int     `yaml:"weak_ratio_window" default:"10" validate:"gte=2"`

	ReversalMinPoints    int     `yaml:"reversal_min_points" default:"4" validate:"gte=2"`
	ReversalThreshold    float64 `yaml:"reversal_threshold" default:"1.5" validate:"gt=0"`
	EntryReversalMinutes float64 `yaml:"entry_reversal_minutes" default:"3" validate:"gte=0"`

	ExtremeSeconds float64 `yaml:"extreme_seconds" default:"10" validate:"gte=0"`
	ExtremeZ       float64 `yaml:"extreme_z" default:"3" validate:"gt=0"`
}

type EdgeTier struct {
	MinMinutes float64 `yaml:"min_minutes" json:"min_minutes" validate:"gte=0"`
	Edge       float64 `yaml:"edge" json:"edge" validate:"gte=0,lt=1"`
}

type Band struct {
	Min float64 `yaml:"min" json:"min" validate:"gte=0"`
	Max float64 `yaml:"max" json:"max" validate:"gtefield=Min"`
}

type SizingConfig struct {
	Mode          string     `yaml:"mode" default:"heuristic" validate:"oneof=heuristic kelly"`
	LotSize       float64    `yaml:"lot_size" default:"5" validate:"gt=0"`
	MaxOrderSize  float64    `yaml:"max_order_size" default:"100" validate:"gt=0"`
	MinEdgeTiers  []EdgeTier `yaml:"min_edge_tiers" default:"[{\"min_minutes\":10,\"edge\":0.08},{\"min_minutes\":5,\"edge\":0.06},{\"min_minutes\":2,\"edge\":0.04},{\"min_minutes\":0,\"edge\":0.03}]" validate:"required,min=1,dive"`
	EdgeCap       float64    `yaml:"edge_cap" default:"0.25" validate:"gt=0"`
	UrgencyWeight float64    `yaml:"urgency_weight" default:"0.3" validate:"gte=0,lte=1"`
	CoreBand      Band       `yaml:"core_band" default:"{\"min\":40,\"max\":100}"`
	MediumBand    Band       `yaml:"medium_band" default:"{\"min\":20,\"max\":60}"`
	RiskyBand     Band       `yaml:"risky_band" default:"{\"min\":5,\"max\":20}"`
	CoreMinProb   float64    `yaml:"core_min_prob" default:"0.8"`
	CoreMinPrice  float64    `yaml:"core_min_price" default:"0.65"`
	RiskyMaxProb  float64    `yaml:"risky_max_prob" default:"0.6"`
	RiskyMaxPrice float64    `yaml:"risky_max_price" default:"0.3"`
	KellyFraction float64    `yaml:"kelly_fraction" default:"0.15" validate:"gt=0,lte=1"`
	FallbackSize  float64    `yaml:"fallback_size" default:"5" validate:"gte=0"`
}

type RiskConfig struct {
	DefaultCap float64                       `yaml:"default_cap" default:"500" validate:"gt=0"`
	Caps       map[string]map[string]float64 `yaml:"caps"`
	// Correlation is keyed "A/B"; lookups are symmetric.
	Correlation           map[string]float64 `yaml:"correlation" default:"{\"BTC/ETH\":0.8,\"BTC/SOL\":0.7,\"ETH/SOL\":0.75,\"BTC/XRP\":0.6,\"ETH/XRP\":0.6,\"SOL/XRP\":0.55}" validate:"dive,gte=-1,lte=1"`
	DefaultCorrelation    float64            `yaml:"default_correlation" default:"0.5" validate:"gte=-1,lte=1"`
	CorrelationMultiplier float64            `yaml:"correlation_multiplier" default:"3" validate:"gt=0"`
}

type OrdersConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" default:"3s" validate:"gt=0"`
	FillTimeout  time.Duration `yaml:"fill_timeout" default:"30s" validate:"gtfield=PollInterval"`
	FillRatio    float64       `yaml:"fill_ratio" default:"0.95" validate:"gt=0,lte=1"`

	// PaperFillDelay is how long dry-run orders rest before filling.
	PaperFillDelay time.Duration `yaml:"paper_fill_delay" default:"1s" validate:"gte=0"`
}

type FeedConfig struct {
	Source       string `yaml:"source" default:"websocket" validate:"oneof=websocket kafka"`
	WebSocketURL string `yaml:"websocket_url" validate:"required_if=Source websocket"`
	Token        string `yaml:"token"`
	// Symbols maps asset to stream symbol.
	Symbols        map[string]string `yaml:"symbols"`
	ReconnectDelay time.Duration     `yaml:"reconnect_delay" default:"3s"`
	PingInterval   time.Duration     `yaml:"ping_interval" default:"20s"`
	MaxRPS         int               `yaml:"max_rps" default:"20" validate:"gte=0"`
	BufferSize     int               `yaml:"buffer_size" default:"1000" validate:"gt=0"`
}

type VenueConfig struct {
	BaseURL      string        `yaml:"base_url" validate:"required"`
	GatewayURL   string        `yaml:"gateway_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout" default:"3s" validate:"gt=0"`
	RateCapacity float64       `yaml:"rate_capacity" default:"20" validate:"gt=0"`
	RatePerSec   float64       `yaml:"rate_per_sec" default:"10" validate:"gt=0"`
}

type PersistenceConfig struct {
	Backend    string `yaml:"backend" default:"sqlite" validate:"oneof=redis sqlite memory"`
	SQLitePath string `yaml:"sqlite_path" default:"data/volatility.db"`
	KeyPrefix  string `yaml:"key_prefix" default:"volhist"`
}

type JournalConfig struct {
	Backend string `yaml:"backend" default:"none" validate:"oneof=kafka clickhouse redis none"`
	Topic   string `yaml:"topic" default:"windowedge.decisions"`
	Table   string `yaml:"table" default:"decisions"`
	// RedisMaxLen caps the redis journal list.
	RedisMaxLen int64 `yaml:"redis_max_len" default:"10000" validate:"gte=0"`
	// RecentSize bounds the in-memory decision buffer served by the status API.
	RecentSize int `yaml:"recent_size" default:"500" validate:"gt=0"`
	// Timeout bounds each backend write; Buffer is how many entries may wait.
	Timeout time.Duration `yaml:"timeout" default:"2s" validate:"gt=0"`
	Buffer  int           `yaml:"buffer" default:"1024" validate:"gt=0"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	TicksTopic   string   `yaml:"ticks_topic" default:"windowedge.ticks"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"200ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"windowedge"`
		Workers    int           `yaml:"workers" default:"1"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"2"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"1s"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		DLQTopic   string        `yaml:"dlq_topic"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"windowedge"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type RedisConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"windowedge"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ASSETS"); v != "" {
		c.Engine.Assets = splitList(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("VENUE_BASE_URL"); v != "" {
		c.Venue.BaseURL = v
	}
	if v := os.Getenv("VENUE_API_KEY"); v != "" {
		c.Venue.APIKey = v
	}
	if v := os.Getenv("FEED_TOKEN"); v != "" {
		c.Feed.Token = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("SERVER_PORT"), c.Server.Port)
	if v := os.Getenv("DRY_RUN"); v != "" {
		c.Engine.DryRun = v == "1" || strings.EqualFold(v, "true")
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Engine.Volatility.MinSamples > c.Engine.Volatility.WindowSize {
		return fmt.Errorf("engine.volatility.min_samples (%d) exceeds window_size (%d)",
			c.Engine.Volatility.MinSamples, c.Engine.Volatility.WindowSize)
	}
	if c.Engine.Window.TooEarlyMinutes > WindowLength(c.Engine.Window.Key).Minutes() {
		return fmt.Errorf("engine.window.too_early_minutes exceeds window length")
	}
	if c.Journal.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required for journal backend kafka")
	}
	if c.Journal.Backend == "redis" && c.Redis.Host == "" {
		return fmt.Errorf("redis.host required for journal backend redis")
	}
	if c.Feed.Source == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required for feed source kafka")
	}
	if !c.Engine.DryRun && c.Venue.GatewayURL == "" {
		return fmt.Errorf("venue.gateway_url is required unless engine.dry_run is set")
	}
	for key, rho := range c.Engine.Risk.Correlation {
		if _, _, ok := SplitPair(key); !ok {
			return fmt.Errorf("engine.risk.correlation key %q must be formatted A/B", key)
		}
		if rho < -1 || rho > 1 {
			return fmt.Errorf("engine.risk.correlation %q out of range: %v", key, rho)
		}
	}
	return nil
}

// SplitPair parses a correlation key "A/B".
func SplitPair(key string) (string, string, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return strings.ToUpper(strings.TrimSpace(parts[0])), strings.ToUpper(strings.TrimSpace(parts[1])), true
}

// WindowLength maps a window key to its duration.
func WindowLength(key string) time.Duration {
	switch key {
	case "5m":
		return 5 * time.Minute
	case "1h":
		return time.Hour
	default:
		return 15 * time.Minute
	}
}

func splitList(v string) []string {
	out := make([]string, 0)
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
