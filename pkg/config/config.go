package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TokenConfig describes one monitored target token.
type TokenConfig struct {
	Address string `yaml:"address" validate:"required"`
	Symbol  string `yaml:"symbol" validate:"required"`
	Name    string `yaml:"name"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		EnableCORS      bool          `yaml:"enable_cors" default:"true"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`
	Logger struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`
	Storage struct {
		Driver      string `yaml:"driver" default:"sqlite" validate:"oneof=memory sqlite postgres"`
		SQLitePath  string `yaml:"sqlite_path" default:"data/dexsignal.db"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"storage"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"dexsignal"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Topics       struct {
			Signals   string `yaml:"signals" default:"dexsignal.signals"`
			Outcomes  string `yaml:"outcomes" default:"dexsignal.outcomes"`
			Logs      string `yaml:"logs" default:"dexsignal.logs"`
			TradeLogs string `yaml:"trade_logs" default:"dexsignal.trade-logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"dexsignal-trade-logs"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
			SlowLog    time.Duration `yaml:"slow_log" default:"2s"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"dexsignal"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		BufferSize       int           `yaml:"buffer_size" default:"1000"`
		BatchSize        int           `yaml:"batch_size" default:"500"`
		FlushInterval    time.Duration `yaml:"flush_interval" default:"2s"`
		FlushRetries     int           `yaml:"flush_retries" default:"3"`
	} `yaml:"clickhouse"`
	Sources struct {
		Alchemy struct {
			BaseURL        string        `yaml:"base_url" default:"https://api.g.alchemy.com/prices/v1" validate:"url"`
			APIKey         string        `yaml:"api_key"`
			PriceTimeout   time.Duration `yaml:"price_timeout" default:"10s"`
			HistoryTimeout time.Duration `yaml:"history_timeout" default:"15s"`
			RPS            float64       `yaml:"rps" default:"5"`
		} `yaml:"alchemy"`
		Dexscreener struct {
			BaseURL string        `yaml:"base_url" default:"https://api.dexscreener.com" validate:"url"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
			RPS     float64       `yaml:"rps" default:"4"`
		} `yaml:"dexscreener"`
		Subgraph struct {
			URL     string        `yaml:"url" default:"https://gateway.thegraph.com/api/subgraphs/id/Hv1GncLY5docZoGtXjo4kwbTvxm3MAhVZqBZE4sUT9eZ" validate:"url"`
			APIKey  string        `yaml:"api_key"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
			RPS     float64       `yaml:"rps" default:"2"`
		} `yaml:"subgraph"`
	} `yaml:"sources"`
	Market struct {
		ChainID                  string            `yaml:"chain_id" default:"bsc" validate:"required"`
		DexID                    string            `yaml:"dex_id" default:"pancakeswap" validate:"required"`
		QuoteSymbol              string            `yaml:"quote_symbol" default:"WBNB" validate:"required"`
		QuoteTokens              map[string]string `yaml:"quote_tokens"`
		Tokens                   []TokenConfig     `yaml:"tokens" validate:"required,min=1,dive"`
		HistoricalDataDays       int               `yaml:"historical_data_days" default:"60" validate:"gt=0"`
		HistoryRetentionLimit    int               `yaml:"history_retention_limit" default:"200" validate:"gt=0"`
		SignalHistoryLength      int               `yaml:"signal_history_length" default:"5" validate:"gt=0"`
		TargetPriceHistoryLength int               `yaml:"target_price_history_length" default:"20" validate:"gt=0"`
	} `yaml:"market"`
	Forecast struct {
		LSTMLookback    int           `yaml:"lstm_lookback" default:"24" validate:"gt=0"`
		LSTMUnits       int           `yaml:"lstm_units" default:"50" validate:"gt=0"`
		LSTMEpochs      int           `yaml:"lstm_epochs" default:"50" validate:"gt=0"`
		LSTMLearnRate   float64       `yaml:"lstm_learning_rate" default:"0.001" validate:"gt=0"`
		GBTRounds       int           `yaml:"gbt_rounds" default:"100" validate:"gt=0"`
		GBTLearningRate float64       `yaml:"gbt_learning_rate" default:"0.1" validate:"gt=0"`
		GBTMaxDepth     int           `yaml:"gbt_max_depth" default:"3" validate:"gt=0"`
		RSIPeriod       int           `yaml:"rsi_period" default:"14" validate:"gt=0"`
		MACDFast        int           `yaml:"macd_fast" default:"12" validate:"gt=0"`
		MACDSlow        int           `yaml:"macd_slow" default:"26" validate:"gtfield=MACDFast"`
		MACDSignal      int           `yaml:"macd_signal" default:"9" validate:"gt=0"`
		TargetMargin    float64       `yaml:"target_margin" default:"0.02" validate:"gte=0"`
		SignalBand      float64       `yaml:"signal_band" default:"0.005" validate:"gte=0"`
		Horizon         time.Duration `yaml:"horizon" default:"4h" validate:"gt=0"`
		AllowedHours    []int         `yaml:"allowed_hours" validate:"required,min=1,dive,gte=0,lte=23"`
		ModelDir        string        `yaml:"model_dir" default:"data/models"`
		Seed            int64         `yaml:"seed" default:"42"`
	} `yaml:"forecast"`
	Schedule struct {
		SignalInterval           time.Duration `yaml:"signal_interval" default:"5m" validate:"gt=0"`
		MonitorInterval          time.Duration `yaml:"monitor_interval" default:"1m" validate:"gt=0"`
		MonitorCleanupInterval   time.Duration `yaml:"monitor_cleanup_interval" default:"30m" validate:"gt=0"`
		RetrainInterval          time.Duration `yaml:"retrain_interval" default:"24h" validate:"gt=0"`
		AccuracyRotationInterval time.Duration `yaml:"accuracy_rotation_interval" default:"4h" validate:"gt=0"`
		PairDelay                time.Duration `yaml:"pair_delay" default:"2s"`
		RetrainOnStart           bool          `yaml:"retrain_on_start" default:"true"`
	} `yaml:"schedule"`
	Monitor struct {
		StaleAfter time.Duration `yaml:"stale_after" default:"24h" validate:"gt=0"`
	} `yaml:"monitor"`
	Accuracy struct {
		ExpectedPairCount int           `yaml:"expected_pair_count" default:"98" validate:"gt=0"`
		LabelTimezone     string        `yaml:"label_timezone" default:"Africa/Lagos"`
		StatsCacheTTL     time.Duration `yaml:"stats_cache_ttl" default:"15s"`
	} `yaml:"accuracy"`
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

// Parse decodes YAML bytes, fills defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDerivedDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads .env (if present), then the YAML file, and finally
// overrides secrets and endpoints with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ALCHEMY_API_KEY"); v != "" {
		c.Sources.Alchemy.APIKey = v
	}
	if v := os.Getenv("SUBGRAPH_API_KEY"); v != "" {
		c.Sources.Subgraph.APIKey = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Enabled = true
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Enabled = true
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDerivedDefaults() {
	if len(c.Forecast.AllowedHours) == 0 {
		c.Forecast.AllowedHours = []int{1, 5, 9, 13, 17, 21}
	}
	if c.Market.QuoteTokens == nil {
		c.Market.QuoteTokens = map[string]string{}
	}
	if _, ok := c.Market.QuoteTokens["WBNB"]; !ok {
		c.Market.QuoteTokens["WBNB"] = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for i, t := range c.Market.Tokens {
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("market.tokens[%d].address %q is not a hex address", i, t.Address)
		}
	}
	quote, ok := c.QuoteTokenAddress()
	if !ok {
		return fmt.Errorf("market.quote_tokens has no entry for %s", c.Market.QuoteSymbol)
	}
	if !common.IsHexAddress(quote) {
		return fmt.Errorf("market.quote_tokens[%s] %q is not a hex address", c.Market.QuoteSymbol, quote)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if _, err := time.LoadLocation(c.Accuracy.LabelTimezone); err != nil {
		return fmt.Errorf("accuracy.label_timezone: %w", err)
	}
	return nil
}

// QuoteTokenAddress returns the configured address of the preferred quote token.
func (c *Config) QuoteTokenAddress() (string, bool) {
	addr, ok := c.Market.QuoteTokens[strings.ToUpper(c.Market.QuoteSymbol)]
	return addr, ok
}

// MonitoredAddresses returns the checksum-independent (lowercase) addresses
// of every monitored token.
func (c *Config) MonitoredAddresses() []string {
	out := make([]string, 0, len(c.Market.Tokens))
	for _, t := range c.Market.Tokens {
		out = append(out, strings.ToLower(common.HexToAddress(t.Address).Hex()))
	}
	return out
}

// MinHistoryLength is the number of price samples both training and
// inference need before they will run.
func (c *Config) MinHistoryLength() int {
	return max(
		c.Market.HistoryRetentionLimit,
		c.Forecast.LSTMLookback+1,
		c.Forecast.MACDSlow+1,
		c.Forecast.RSIPeriod+1,
	)
}
