package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decode1090/internal/app"
)

// execute runs the root command with args and returns the config it produced
func execute(t *testing.T, args ...string) (app.Config, string, error) {
	t.Helper()
	var (
		out bytes.Buffer
		got app.Config
	)
	cmd := newRootCmd(viper.New(), &out, func(cfg app.Config) error {
		got = cfg
		return nil
	})
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return got, out.String(), err
}

// TestRootCmd_Defaults tests the configuration with no flags
func TestRootCmd_Defaults(t *testing.T) {
	cfg, _, err := execute(t)
	require.NoError(t, err)

	assert.True(t, cfg.EnableBeast)
	assert.Equal(t, app.DefaultBeastAddr, cfg.BeastAddr)
	assert.Equal(t, app.DefaultWorkers, cfg.Workers)
	assert.Equal(t, "-", cfg.SBSPath)
	assert.Nil(t, cfg.CPR.Receiver)
	assert.False(t, cfg.Verbose)
}

// TestRootCmd_Flags tests that flags override the defaults
func TestRootCmd_Flags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg app.Config)
	}{
		{
			name: "raw file replay",
			args: []string{"--beast-enable=false", "--raw-enable", "--raw", "capture.txt.zst"},
			check: func(t *testing.T, cfg app.Config) {
				assert.False(t, cfg.EnableBeast)
				assert.True(t, cfg.EnableRaw)
				assert.Equal(t, "capture.txt.zst", cfg.RawAddr)
			},
		},
		{
			name: "sdr with short flags",
			args: []string{"--sdr-enable", "-d", "1", "-g", "40", "-f", "1090100000"},
			check: func(t *testing.T, cfg app.Config) {
				assert.True(t, cfg.EnableSDR)
				assert.Equal(t, 1, cfg.DeviceIndex)
				assert.Equal(t, 40, cfg.Gain)
				assert.Equal(t, uint32(1090100000), cfg.Frequency)
			},
		},
		{
			name: "receiver position",
			args: []string{"--lat", "52.3", "--lon", "4.76"},
			check: func(t *testing.T, cfg app.Config) {
				require.NotNil(t, cfg.CPR.Receiver)
				assert.InDelta(t, 52.3, cfg.CPR.Receiver.Latitude, 1e-9)
				assert.InDelta(t, 4.76, cfg.CPR.Receiver.Longitude, 1e-9)
			},
		},
		{
			name: "outputs",
			args: []string{"--sbs", "out.sbs", "--jsonl-enable", "-l", "/tmp/adsb", "-u=false", "--archive-enable", "--archive", "f.db", "--http-enable", "--http", ":9000"},
			check: func(t *testing.T, cfg app.Config) {
				assert.Equal(t, "out.sbs", cfg.SBSPath)
				assert.True(t, cfg.EnableJSONL)
				assert.Equal(t, "/tmp/adsb", cfg.LogDir)
				assert.False(t, cfg.LogRotateUTC)
				assert.True(t, cfg.EnableArchive)
				assert.Equal(t, "f.db", cfg.ArchivePath)
				assert.True(t, cfg.EnableHTTP)
				assert.Equal(t, ":9000", cfg.HTTPAddr)
			},
		},
		{
			name: "logging",
			args: []string{"-v", "--log-format", "json", "--workers", "2"},
			check: func(t *testing.T, cfg app.Config) {
				assert.True(t, cfg.Verbose)
				assert.Equal(t, "json", cfg.Log.Format)
				assert.Equal(t, 2, cfg.Workers)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _, err := execute(t, tt.args...)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

// TestRootCmd_FlagOverridesEnv tests flag precedence over the environment
func TestRootCmd_FlagOverridesEnv(t *testing.T) {
	t.Setenv("DECODE1090_DECODER_WORKERS", "6")
	t.Setenv("DECODE1090_TRACKER_AIRCRAFT_TTL", "90s")

	cfg, _, err := execute(t, "--workers", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 90*time.Second, cfg.AircraftTTL)
}

// TestRootCmd_Invalid tests that configuration errors are returned
func TestRootCmd_Invalid(t *testing.T) {
	_, _, err := execute(t, "--beast-enable=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one input")

	_, _, err = execute(t, "--log-level", "loud")
	assert.Error(t, err)
}

// TestRootCmd_Version tests the version flag
func TestRootCmd_Version(t *testing.T) {
	var called bool
	var out bytes.Buffer
	cmd := newRootCmd(viper.New(), &out, func(app.Config) error {
		called = true
		return nil
	})
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.Execute())

	assert.False(t, called)
	assert.Contains(t, out.String(), "Version: "+app.Version)
}

// TestRootCmd_RunError tests that run failures surface from Execute
func TestRootCmd_RunError(t *testing.T) {
	cmd := newRootCmd(viper.New(), &bytes.Buffer{}, func(app.Config) error {
		return errors.New("device busy")
	})
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.EqualError(t, cmd.Execute(), "device busy")
}

// TestBindFlags_Unknown tests that a binding without a flag is rejected
func TestBindFlags_Unknown(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	err := bindFlags(viper.New(), flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown flag "config"`)
}
