package ops

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"tickcore/internal/core"
	"tickcore/internal/fusion"
	"tickcore/internal/indicator"
	"tickcore/internal/recorder"
	"tickcore/internal/schema"
	"tickcore/pkg/exception"
	"tickcore/pkg/websocket"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TICKCORE_"

const (
	DefaultSocketPath    = "/tmp/tickcore.sock"
	DefaultSuggestMillis = 1000
)

// FileConfig mirrors the YAML / JSON config layout.
type FileConfig struct {
	Risk        schema.RiskLimits       `json:"risk" yaml:"risk"`
	Instruments []schema.Instrument     `json:"instruments" yaml:"instruments"`
	Connections []schema.ConnectRequest `json:"connections" yaml:"connections"`
	Indicator   IndicatorConfig         `json:"indicator" yaml:"indicator"`
	Fusion      FusionConfig            `json:"fusion" yaml:"fusion"`
	Feed        FeedConfig              `json:"feed" yaml:"feed"`
	Host        HostConfig              `json:"host" yaml:"host"`
	Journal     JournalConfig           `json:"journal" yaml:"journal"`
	Profiling   ProfilingConfig         `json:"profiling" yaml:"profiling"`
	Tape        TapeConfig              `json:"tape" yaml:"tape"`
	Admin       AdminConfig             `json:"admin" yaml:"admin"`
}

// IndicatorConfig bounds the EMA engine.
type IndicatorConfig struct {
	EMAPeriod  int `json:"emaPeriod" yaml:"ema_period"`
	HistoryCap int `json:"historyCap" yaml:"history_cap"`
	MaxSymbols int `json:"maxSymbols" yaml:"max_symbols"`
}

// FusionConfig bounds the fusion registry.
type FusionConfig struct {
	MaxSymbols      int `json:"maxSymbols" yaml:"max_symbols"`
	SourceTTLMillis int `json:"sourceTtlMs" yaml:"source_ttl_ms"`
}

// FeedConfig tunes reconnect and lag detection.
type FeedConfig struct {
	ReconnectMillis    int      `json:"reconnectMs" yaml:"reconnect_ms"`
	MaxReconnectMillis int      `json:"maxReconnectMs" yaml:"max_reconnect_ms"`
	BackoffFactor      float64  `json:"backoffFactor" yaml:"backoff_factor"`
	BackoffJitter      *float64 `json:"backoffJitter" yaml:"backoff_jitter"`
	LagThresholdMillis int      `json:"lagThresholdMs" yaml:"lag_threshold_ms"`
	LagCheckMillis     int      `json:"lagCheckMs" yaml:"lag_check_ms"`
	SuggestMillis      *int     `json:"suggestMs" yaml:"suggest_ms"`
	QueueSize          int      `json:"queueSize" yaml:"queue_size"`
}

// HostConfig describes the host bridge socket.
type HostConfig struct {
	Socket string `json:"socket" yaml:"socket"`
}

// JournalConfig describes the audit journal database.
type JournalConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"sslMode" yaml:"ssl_mode"`
}

// Enabled reports whether a journal database is configured.
func (c JournalConfig) Enabled() bool {
	return len(c.Host) != 0 && len(c.Database) != 0
}

// ProfilingConfig enables continuous profiling when ServerAddress is set.
type ProfilingConfig struct {
	ServerAddress string `json:"serverAddress" yaml:"server_address"`
	AppName       string `json:"appName" yaml:"app_name"`
}

// TapeConfig enables raw frame capture when Dir is set.
type TapeConfig struct {
	Dir          string `json:"dir" yaml:"dir"`
	SegmentMaxMB int    `json:"segmentMaxMb" yaml:"segment_max_mb"`
	FlushMillis  int    `json:"flushMs" yaml:"flush_ms"`
}

// AdminConfig enables the HTTP admin API when Addr is set.
type AdminConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Core        core.Config
	Connections []schema.ConnectRequest
	Socket      string
	Journal     JournalConfig
	Profiling   ProfilingConfig
	// Tape is nil when frame capture is off.
	Tape *recorder.Config
	// AdminAddr is empty when the admin API is off.
	AdminAddr string
}

// LoadEnv loads .env files into the process environment. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return errors.Wrapf(err, "load env file %s", file)
		}
	}
	return nil
}

// Load reads a YAML or JSON config file, applies TICKCORE_* environment
// overrides and resolves it. An empty path resolves defaults plus environment.
func Load(path string) (Loaded, error) {
	var cfg FileConfig
	if len(path) != 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := Decode(path, data, &cfg); err != nil {
			return Loaded{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Decode parses data by the extension of path.
func Decode(path string, data []byte, cfg *FileConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.Wrapf(err, "parse yaml %s", path)
		}
	case ".json":
		if err := sonic.Unmarshal(data, cfg); err != nil {
			return errors.Wrapf(err, "parse json %s", path)
		}
	default:
		return errors.Wrapf(exception.ErrConfigFormat, "file: %s", path)
	}
	return nil
}

// Resolve validates cfg and fills defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Risk.MaxLoss > 0 {
		return Loaded{}, errors.Wrapf(exception.ErrConfigInvalid, "risk.max_loss must be <= 0, got %v", cfg.Risk.MaxLoss)
	}
	if cfg.Risk.MaxTrades < 0 {
		return Loaded{}, errors.Wrapf(exception.ErrConfigInvalid, "risk.max_trades must be >= 0, got %d", cfg.Risk.MaxTrades)
	}
	if cfg.Indicator.EMAPeriod < 0 || cfg.Indicator.HistoryCap < 0 {
		return Loaded{}, errors.Wrap(exception.ErrConfigInvalid, "indicator values must be >= 0")
	}
	historyCap := cfg.Indicator.HistoryCap
	if historyCap == 0 {
		historyCap = indicator.DefaultHistoryCap
	}
	if cfg.Indicator.EMAPeriod > historyCap {
		return Loaded{}, errors.Wrapf(exception.ErrConfigInvalid, "indicator.ema_period %d exceeds history cap %d", cfg.Indicator.EMAPeriod, historyCap)
	}
	for i, in := range cfg.Instruments {
		if len(in.Symbol) == 0 {
			return Loaded{}, errors.Wrapf(exception.ErrConfigInvalid, "instruments[%d].symbol is empty", i)
		}
	}
	for i, conn := range cfg.Connections {
		if len(conn.ConnectionKey()) == 0 {
			return Loaded{}, errors.Wrapf(exception.ErrConfigInvalid, "connections[%d] has no key or url", i)
		}
		if !conn.Transport.IsAvailable() {
			return Loaded{}, errors.Wrapf(exception.ErrConfigInvalid, "connections[%d].transport %q", i, conn.Transport)
		}
	}

	suggest := DefaultSuggestMillis
	if cfg.Feed.SuggestMillis != nil {
		suggest = *cfg.Feed.SuggestMillis
	}

	socket := cfg.Host.Socket
	if len(socket) == 0 {
		socket = DefaultSocketPath
	}

	var tape *recorder.Config
	if len(cfg.Tape.Dir) != 0 {
		if cfg.Tape.SegmentMaxMB < 0 || cfg.Tape.FlushMillis < 0 {
			return Loaded{}, errors.Wrap(exception.ErrConfigInvalid, "tape values must be >= 0")
		}
		tc := recorder.DefaultConfig(cfg.Tape.Dir)
		if cfg.Tape.SegmentMaxMB > 0 {
			tc.SegmentMaxBytes = int64(cfg.Tape.SegmentMaxMB) << 20
		}
		if cfg.Tape.FlushMillis > 0 {
			tc.FlushInterval = millis(cfg.Tape.FlushMillis)
		}
		tape = &tc
	}

	return Loaded{
		Core: core.Config{
			Limits:      cfg.Risk,
			Instruments: cfg.Instruments,
			EMAPeriod:   cfg.Indicator.EMAPeriod,
			Fusion: fusion.Config{
				MaxSymbols: cfg.Fusion.MaxSymbols,
				SourceTTL:  millis(cfg.Fusion.SourceTTLMillis),
			},
			Indicator: indicator.Config{
				HistoryCap: historyCap,
				MaxSymbols: cfg.Indicator.MaxSymbols,
			},
			Backoff:          resolveBackoff(cfg.Feed),
			LagThreshold:     millis(cfg.Feed.LagThresholdMillis),
			LagCheckInterval: millis(cfg.Feed.LagCheckMillis),
			SuggestInterval:  millis(suggest),
			CommandQueueSize: cfg.Feed.QueueSize,
			NotifyQueueSize:  cfg.Feed.QueueSize,
			EventQueueSize:   cfg.Feed.QueueSize,
		},
		Connections: cfg.Connections,
		Socket:      socket,
		Journal:     cfg.Journal,
		Profiling:   cfg.Profiling,
		Tape:        tape,
		AdminAddr:   cfg.Admin.Addr,
	}, nil
}

func resolveBackoff(cfg FeedConfig) websocket.Backoff {
	b := websocket.DefaultBackoff()
	if cfg.ReconnectMillis > 0 {
		b.Min = millis(cfg.ReconnectMillis)
	}
	if cfg.MaxReconnectMillis > 0 {
		b.Max = millis(cfg.MaxReconnectMillis)
	}
	if cfg.BackoffFactor > 0 {
		b.Factor = cfg.BackoffFactor
	}
	if cfg.BackoffJitter != nil {
		b.Jitter = *cfg.BackoffJitter
	}
	return b
}

func millis(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// applyEnv overrides file values with TICKCORE_* variables.
func applyEnv(cfg *FileConfig, lookup func(string) (string, bool)) error {
	floatVar := func(name string, dst *float64) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return errors.Wrapf(exception.ErrConfigInvalid, "%s%s=%q", EnvPrefix, name, v)
		}
		*dst = f
		return nil
	}
	intVar := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(exception.ErrConfigInvalid, "%s%s=%q", EnvPrefix, name, v)
		}
		*dst = n
		return nil
	}
	stringVar := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if err := floatVar("MAX_LOSS", &cfg.Risk.MaxLoss); err != nil {
		return err
	}
	if err := intVar("MAX_TRADES", &cfg.Risk.MaxTrades); err != nil {
		return err
	}
	if err := intVar("EMA_PERIOD", &cfg.Indicator.EMAPeriod); err != nil {
		return err
	}
	if err := intVar("HISTORY_CAP", &cfg.Indicator.HistoryCap); err != nil {
		return err
	}
	if err := intVar("LAG_THRESHOLD_MS", &cfg.Feed.LagThresholdMillis); err != nil {
		return err
	}
	if err := intVar("RECONNECT_MS", &cfg.Feed.ReconnectMillis); err != nil {
		return err
	}
	stringVar("SOCKET", &cfg.Host.Socket)
	stringVar("JOURNAL_HOST", &cfg.Journal.Host)
	if err := intVar("JOURNAL_PORT", &cfg.Journal.Port); err != nil {
		return err
	}
	stringVar("JOURNAL_USER", &cfg.Journal.User)
	stringVar("JOURNAL_PASSWORD", &cfg.Journal.Password)
	stringVar("JOURNAL_DATABASE", &cfg.Journal.Database)
	stringVar("PYROSCOPE_ADDRESS", &cfg.Profiling.ServerAddress)
	stringVar("TAPE_DIR", &cfg.Tape.Dir)
	stringVar("ADMIN_ADDR", &cfg.Admin.Addr)
	return nil
}
