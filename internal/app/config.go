package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"decode1090/internal/adsb"
	"decode1090/internal/sdr"
	"decode1090/internal/tracker"
)

// Default configuration constants
const (
	DefaultBeastAddr     = "tcp://localhost:30005"
	DefaultRawAddr       = "tcp://localhost:30002"
	DefaultGain          = 0 // automatic
	DefaultWorkers       = 4
	DefaultSBSPath       = "-"
	DefaultLogDir        = "./logs"
	DefaultArchivePath   = "decode1090.db"
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
	DefaultHTTPAddr      = ":8080"
	DefaultStatsInterval = 30 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultConfigName    = "decode1090"
	DefaultConfigDir     = "/etc/decode1090"
	EnvPrefix            = "DECODE1090"
)

// Config holds application configuration
type Config struct {
	EnableBeast bool
	BeastAddr   string
	EnableRaw   bool
	RawAddr     string
	EnableJSON  bool
	JSONAddr    string

	EnableSDR   bool
	DeviceIndex int
	Gain        int
	Frequency   uint32

	Workers          int
	RequireKnownICAO bool
	ICAOTTL          time.Duration

	CPR adsb.ResolverConfig

	AircraftTTL   time.Duration
	SweepInterval time.Duration

	EnableSBS bool
	SBSPath   string

	EnableJSONL  bool
	LogDir       string
	LogRotateUTC bool
	LogMaxDays   int

	EnableArchive bool
	ArchivePath   string
	BatchSize     int
	FlushInterval time.Duration

	EnableHTTP bool
	HTTPAddr   string

	StatsInterval time.Duration

	Log     LogConfig
	Verbose bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// TrackerConfig returns the aggregator settings for this configuration
func (c Config) TrackerConfig() tracker.Config {
	cfg := tracker.DefaultConfig()
	cfg.RequireKnownICAO = c.RequireKnownICAO
	cfg.ICAOTTL = c.ICAOTTL
	cfg.AircraftTTL = c.AircraftTTL
	cfg.SweepInterval = c.SweepInterval
	cfg.Resolver = c.CPR
	return cfg
}

// SDRConfig returns the dongle settings for this configuration
func (c Config) SDRConfig() sdr.Config {
	return sdr.Config{
		DeviceIndex: c.DeviceIndex,
		Frequency:   c.Frequency,
		Gain:        c.Gain,
	}
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("inputs.beast.enable", true)
	v.SetDefault("inputs.beast.addr", DefaultBeastAddr)
	v.SetDefault("inputs.raw.enable", false)
	v.SetDefault("inputs.raw.addr", DefaultRawAddr)
	v.SetDefault("inputs.json.enable", false)
	v.SetDefault("inputs.json.addr", "")
	v.SetDefault("inputs.sdr.enable", false)
	v.SetDefault("inputs.sdr.device", 0)
	v.SetDefault("inputs.sdr.gain", DefaultGain)
	v.SetDefault("inputs.sdr.frequency", sdr.Frequency)

	v.SetDefault("decoder.workers", DefaultWorkers)
	v.SetDefault("decoder.require_known_icao", true)
	v.SetDefault("decoder.icao_ttl", tracker.DefaultICAOTTL)

	v.SetDefault("cpr.pair_window", adsb.DefaultPairWindow)
	v.SetDefault("cpr.local_max_age", adsb.DefaultLocalMaxAge)
	v.SetDefault("cpr.staleness", adsb.DefaultStaleness)
	v.SetDefault("cpr.max_speed_airborne", adsb.DefaultMaxSpeedAirborne)
	v.SetDefault("cpr.max_speed_surface", adsb.DefaultMaxSpeedSurface)

	v.SetDefault("tracker.aircraft_ttl", tracker.DefaultAircraftTTL)
	v.SetDefault("tracker.sweep_interval", tracker.DefaultSweepInterval)

	v.SetDefault("output.sbs.enable", true)
	v.SetDefault("output.sbs.path", DefaultSBSPath)
	v.SetDefault("output.jsonl.enable", false)
	v.SetDefault("output.jsonl.dir", DefaultLogDir)
	v.SetDefault("output.jsonl.utc", true)
	v.SetDefault("output.jsonl.max_days", 0)
	v.SetDefault("output.archive.enable", false)
	v.SetDefault("output.archive.path", DefaultArchivePath)
	v.SetDefault("output.archive.batch_size", DefaultBatchSize)
	v.SetDefault("output.archive.flush_interval", DefaultFlushInterval)
	v.SetDefault("output.http.enable", false)
	v.SetDefault("output.http.addr", DefaultHTTPAddr)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("stats.interval", DefaultStatsInterval)
}

// LoadConfig reads the configuration from v. Values come from, in order of
// precedence, bound flags, DECODE1090_* environment variables, the config
// file and the defaults. A missing config file is not an error unless one
// was named explicitly with the "config" key.
func LoadConfig(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		EnableBeast: v.GetBool("inputs.beast.enable"),
		BeastAddr:   v.GetString("inputs.beast.addr"),
		EnableRaw:   v.GetBool("inputs.raw.enable"),
		RawAddr:     v.GetString("inputs.raw.addr"),
		EnableJSON:  v.GetBool("inputs.json.enable"),
		JSONAddr:    v.GetString("inputs.json.addr"),

		EnableSDR:   v.GetBool("inputs.sdr.enable"),
		DeviceIndex: v.GetInt("inputs.sdr.device"),
		Gain:        v.GetInt("inputs.sdr.gain"),
		Frequency:   v.GetUint32("inputs.sdr.frequency"),

		Workers:          v.GetInt("decoder.workers"),
		RequireKnownICAO: v.GetBool("decoder.require_known_icao"),
		ICAOTTL:          v.GetDuration("decoder.icao_ttl"),

		CPR: adsb.ResolverConfig{
			Shards:           adsb.DefaultShards,
			PairWindow:       v.GetDuration("cpr.pair_window"),
			LocalMaxAge:      v.GetDuration("cpr.local_max_age"),
			Staleness:        v.GetDuration("cpr.staleness"),
			MaxSpeedAirborne: v.GetFloat64("cpr.max_speed_airborne"),
			MaxSpeedSurface:  v.GetFloat64("cpr.max_speed_surface"),
		},

		AircraftTTL:   v.GetDuration("tracker.aircraft_ttl"),
		SweepInterval: v.GetDuration("tracker.sweep_interval"),

		EnableSBS: v.GetBool("output.sbs.enable"),
		SBSPath:   v.GetString("output.sbs.path"),

		EnableJSONL:  v.GetBool("output.jsonl.enable"),
		LogDir:       v.GetString("output.jsonl.dir"),
		LogRotateUTC: v.GetBool("output.jsonl.utc"),
		LogMaxDays:   v.GetInt("output.jsonl.max_days"),

		EnableArchive: v.GetBool("output.archive.enable"),
		ArchivePath:   v.GetString("output.archive.path"),
		BatchSize:     v.GetInt("output.archive.batch_size"),
		FlushInterval: v.GetDuration("output.archive.flush_interval"),

		EnableHTTP: v.GetBool("output.http.enable"),
		HTTPAddr:   v.GetString("output.http.addr"),

		StatsInterval: v.GetDuration("stats.interval"),

		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Verbose: v.GetBool("verbose"),
	}

	if v.IsSet("receiver.lat") && v.IsSet("receiver.lon") {
		cfg.CPR.Receiver = &adsb.Reference{
			Latitude:  v.GetFloat64("receiver.lat"),
			Longitude: v.GetFloat64("receiver.lon"),
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// validate validates the configuration values
func (c Config) validate() error {
	if !c.EnableBeast && !c.EnableRaw && !c.EnableJSON && !c.EnableSDR {
		return fmt.Errorf("at least one input must be enabled")
	}
	if c.EnableBeast && c.BeastAddr == "" {
		return fmt.Errorf("inputs.beast.addr is required")
	}
	if c.EnableRaw && c.RawAddr == "" {
		return fmt.Errorf("inputs.raw.addr is required")
	}
	if c.EnableJSON && c.JSONAddr == "" {
		return fmt.Errorf("inputs.json.addr is required")
	}
	if c.Gain < 0 {
		return fmt.Errorf("inputs.sdr.gain must not be negative")
	}

	if c.Workers <= 0 {
		return fmt.Errorf("decoder.workers must be greater than 0")
	}
	if c.ICAOTTL <= 0 {
		return fmt.Errorf("decoder.icao_ttl must be greater than 0")
	}
	if c.CPR.PairWindow <= 0 || c.CPR.LocalMaxAge <= 0 || c.CPR.Staleness <= 0 {
		return fmt.Errorf("cpr windows must be greater than 0")
	}
	if c.CPR.MaxSpeedAirborne <= 0 || c.CPR.MaxSpeedSurface <= 0 {
		return fmt.Errorf("cpr speed limits must be greater than 0")
	}
	if r := c.CPR.Receiver; r != nil {
		if r.Latitude < -90 || r.Latitude > 90 || r.Longitude < -180 || r.Longitude > 180 {
			return fmt.Errorf("receiver position %.4f,%.4f is out of range", r.Latitude, r.Longitude)
		}
	}
	if c.AircraftTTL <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("tracker.aircraft_ttl and tracker.sweep_interval must be greater than 0")
	}

	if c.EnableSBS && c.SBSPath == "" {
		return fmt.Errorf("output.sbs.path is required")
	}
	if c.EnableJSONL && c.LogDir == "" {
		return fmt.Errorf("output.jsonl.dir is required")
	}
	if c.LogMaxDays < 0 {
		return fmt.Errorf("output.jsonl.max_days must not be negative")
	}
	if c.EnableArchive {
		if c.ArchivePath == "" {
			return fmt.Errorf("output.archive.path is required")
		}
		if c.BatchSize <= 0 {
			return fmt.Errorf("output.archive.batch_size must be greater than 0")
		}
		if c.FlushInterval <= 0 {
			return fmt.Errorf("output.archive.flush_interval must be greater than 0")
		}
	}
	if c.EnableHTTP && c.HTTPAddr == "" {
		return fmt.Errorf("output.http.addr is required")
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("stats.interval must be greater than 0")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}
	return nil
}
