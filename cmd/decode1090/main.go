package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"decode1090/internal/app"
)

// runFunc starts the decoder with a loaded configuration
type runFunc func(cfg app.Config) error

func main() {
	cmd := newRootCmd(viper.New(), os.Stdout, func(cfg app.Config) error {
		return app.NewApplication(cfg, nil).Start()
	})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flagBinding maps a command-line flag to its configuration key
type flagBinding struct {
	flag string
	key  string
}

var bindings = []flagBinding{
	{"config", "config"},
	{"beast-enable", "inputs.beast.enable"},
	{"beast", "inputs.beast.addr"},
	{"raw-enable", "inputs.raw.enable"},
	{"raw", "inputs.raw.addr"},
	{"json-enable", "inputs.json.enable"},
	{"json", "inputs.json.addr"},
	{"sdr-enable", "inputs.sdr.enable"},
	{"device", "inputs.sdr.device"},
	{"gain", "inputs.sdr.gain"},
	{"frequency", "inputs.sdr.frequency"},
	{"workers", "decoder.workers"},
	{"lat", "receiver.lat"},
	{"lon", "receiver.lon"},
	{"sbs-enable", "output.sbs.enable"},
	{"sbs", "output.sbs.path"},
	{"jsonl-enable", "output.jsonl.enable"},
	{"log-dir", "output.jsonl.dir"},
	{"utc", "output.jsonl.utc"},
	{"archive-enable", "output.archive.enable"},
	{"archive", "output.archive.path"},
	{"http-enable", "output.http.enable"},
	{"http", "output.http.addr"},
	{"log-level", "log.level"},
	{"log-format", "log.format"},
	{"verbose", "verbose"},
}

func newRootCmd(v *viper.Viper, out io.Writer, run runFunc) *cobra.Command {
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:   "decode1090",
		Short: "Mode S / ADS-B decoder",
		Long: `Mode S / ADS-B decoder for 1090 MHz traffic.

Reads frames from Beast or raw AVR TCP feeds, JSON lines, recorded files or an
RTL-SDR dongle, validates their parity, decodes identity, position and
velocity, and maintains a live aircraft table. Updates are written as
BaseStation (SBS) lines, daily JSON-lines logs, an SQLite frame archive and
an HTTP/WebSocket API.

Example usage:
  decode1090 --beast tcp://localhost:30005 --http-enable
  decode1090 --beast-enable=false --raw capture.txt.zst --raw-enable
  decode1090 --beast-enable=false --sdr-enable --gain 40 --lat 52.3 --lon 4.76`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				app.ShowVersion(out)
				return nil
			}

			cfg, err := app.LoadConfig(v)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.String("config", "", "Path to config file (YAML)")

	flags.Bool("beast-enable", true, "Read a Beast binary feed")
	flags.String("beast", app.DefaultBeastAddr, "Beast feed: tcp://host:port, file path, or - for stdin")
	flags.Bool("raw-enable", false, "Read a raw AVR hex feed")
	flags.String("raw", app.DefaultRawAddr, "Raw feed: tcp://host:port, file path, or - for stdin")
	flags.Bool("json-enable", false, "Read a JSON lines feed")
	flags.String("json", "", "JSON feed: tcp://host:port, file path, or - for stdin")

	flags.Bool("sdr-enable", false, "Capture from an RTL-SDR dongle")
	flags.IntP("device", "d", 0, "RTL-SDR device index")
	flags.IntP("gain", "g", app.DefaultGain, "Tuner gain in dB (0 for auto)")
	flags.Uint32P("frequency", "f", 1090000000, "Frequency to tune to (Hz)")

	flags.Int("workers", app.DefaultWorkers, "Number of decode workers")
	flags.Float64("lat", 0, "Receiver latitude for surface positions")
	flags.Float64("lon", 0, "Receiver longitude for surface positions")

	flags.Bool("sbs-enable", true, "Write BaseStation lines")
	flags.String("sbs", app.DefaultSBSPath, "BaseStation output file, or - for stdout")
	flags.Bool("jsonl-enable", false, "Write daily JSON lines aircraft logs")
	flags.StringP("log-dir", "l", app.DefaultLogDir, "JSON lines log directory")
	flags.BoolP("utc", "u", true, "Use UTC for log rotation")
	flags.Bool("archive-enable", false, "Archive accepted frames to SQLite")
	flags.String("archive", app.DefaultArchivePath, "SQLite archive path")
	flags.Bool("http-enable", false, "Serve the HTTP and WebSocket API")
	flags.String("http", app.DefaultHTTPAddr, "HTTP listen address")

	flags.String("log-level", app.DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.String("log-format", app.DefaultLogFormat, "Log format: text or json")
	flags.BoolP("verbose", "v", false, "Verbose logging")
	flags.BoolVar(&showVersion, "version", false, "Show version information")

	if err := bindFlags(v, flags); err != nil {
		panic(err)
	}
	return rootCmd
}

// bindFlags binds every flag in bindings to its configuration key
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, b := range bindings {
		flag := flags.Lookup(b.flag)
		if flag == nil {
			return fmt.Errorf("unknown flag %q", b.flag)
		}
		if err := v.BindPFlag(b.key, flag); err != nil {
			return fmt.Errorf("binding flag %s: %w", b.flag, err)
		}
	}
	return nil
}
