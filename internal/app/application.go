package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"decode1090/internal/adsb"
	"decode1090/internal/archive"
	"decode1090/internal/basestation"
	"decode1090/internal/beast"
	"decode1090/internal/input"
	"decode1090/internal/jsonfeed"
	"decode1090/internal/logging"
	"decode1090/internal/rawhex"
	"decode1090/internal/sdr"
	"decode1090/internal/server"
	"decode1090/internal/tracker"
)

const (
	frameBuffer     = 1000
	recordBuffer    = 1000
	shutdownTimeout = 5 * time.Second
)

// Stats are the pipeline counters reported periodically and on /stats
type Stats struct {
	Frames        uint64     `json:"frames"`
	Decoded       uint64     `json:"decoded"`
	Applied       uint64     `json:"applied"`
	CRCErrors     uint64     `json:"crc_errors"`
	Unsupported   uint64     `json:"unsupported"`
	OtherErrors   uint64     `json:"other_errors"`
	FramingErrors uint64     `json:"framing_errors"`
	SinkErrors    uint64     `json:"sink_errors"`
	Aircraft      int        `json:"aircraft"`
	Dropped       uint64     `json:"dropped"`
	SDR           *sdr.Stats `json:"sdr,omitempty"`
	WSClients     int        `json:"ws_clients"`

	// MalformedFields counts fields omitted from otherwise valid frames,
	// by field name.
	MalformedFields map[string]uint64 `json:"malformed_fields"`
	ArchiveDropped  uint64            `json:"archive_dropped"`
}

// Application wires the inputs, decoder, aggregator and sinks together
type Application struct {
	config Config
	logger *logrus.Logger

	aggregator *tracker.Aggregator
	sources    []input.Source
	sdrSource  *sdr.Source

	baseStation *basestation.Writer
	sbsCloser   io.Closer
	logRotator  *logging.LogRotator
	store       *archive.Store
	records     chan *archive.Record
	hub         *server.Hub
	server      *server.Server

	frames        atomic.Uint64
	decoded       atomic.Uint64
	applied       atomic.Uint64
	crcErrors     atomic.Uint64
	unsupported   atomic.Uint64
	otherErrors   atomic.Uint64
	framingErrors atomic.Uint64
	sinkErrors    atomic.Uint64

	archiveDropped atomic.Uint64
	fieldMu        sync.Mutex
	fieldErrors    map[string]uint64

	// Stdout receives SBS lines when the SBS path is "-".
	Stdout io.Writer
}

// NewLogger builds the application logger from the log settings
func NewLogger(cfg LogConfig, verbose bool) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	if strings.ToLower(cfg.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetOutput(os.Stderr)
	return logger
}

// NewApplication creates a new application instance
func NewApplication(config Config, logger *logrus.Logger) *Application {
	if logger == nil {
		logger = NewLogger(config.Log, config.Verbose)
	}
	return &Application{
		config: config,
		logger: logger,
		Stdout: os.Stdout,
	}
}

// Start runs the application until SIGINT or SIGTERM, or until every input
// has ended.
func (app *Application) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx)
}

// Run initialises the components and processes frames until ctx is
// cancelled or every input has ended, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	app.logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}).Info("Starting decode1090")

	if err := app.initializeComponents(); err != nil {
		app.closeComponents()
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		background sync.WaitGroup
		pipeline   sync.WaitGroup
	)
	errCh := make(chan error, 1)
	app.startBackground(ctx, &background, errCh)

	frames := make(chan *adsb.Frame, frameBuffer)
	app.startSources(ctx, frames)
	app.startWorkers(frames, &pipeline)

	var collector sync.WaitGroup
	if app.store != nil {
		c := archive.NewCollector(app.store, app.records, app.config.BatchSize, app.config.FlushInterval, app.logger)
		collector.Add(1)
		go func() {
			defer collector.Done()
			// The channel is closed after the workers finish so the final
			// batch is always flushed.
			if err := c.Start(context.Background()); err != nil {
				app.logger.WithError(err).Error("Archive collector stopped")
			}
		}()
	}

	app.logger.Info("All components started successfully")

	pipelineDone := make(chan struct{})
	go func() {
		pipeline.Wait()
		close(pipelineDone)
	}()

	var runErr error
	select {
	case <-pipelineDone:
		app.logger.Info("All inputs finished")
	case <-ctx.Done():
		app.logger.Info("Received shutdown signal")
	case runErr = <-errCh:
		app.logger.WithError(runErr).Error("Component failed")
	}

	app.shutdown(cancel, pipelineDone, &collector, &background)
	app.reportStatistics()
	return runErr
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	cfg := app.config

	tcfg := cfg.TrackerConfig()
	if app.replay() {
		// Replayed traffic ages against its own timestamps.
		tcfg.Clock = func() time.Time { return app.aggregator.Latest() }
	}
	app.aggregator = tracker.New(tcfg, app.logger)

	onError := func(err error) {
		if input.IsFraming(err) {
			app.framingErrors.Add(1)
		}
	}
	if cfg.EnableBeast {
		app.sources = append(app.sources, input.NewStreamSource("beast", cfg.BeastAddr, beast.NewAdapter(app.logger, onError), app.logger))
	}
	if cfg.EnableRaw {
		app.sources = append(app.sources, input.NewStreamSource("raw", cfg.RawAddr, rawhex.NewAdapter(app.logger, onError), app.logger))
	}
	if cfg.EnableJSON {
		app.sources = append(app.sources, input.NewStreamSource("json", cfg.JSONAddr, jsonfeed.NewAdapter(app.logger, onError), app.logger))
	}
	if cfg.EnableSDR {
		src, err := sdr.NewSource(cfg.SDRConfig(), app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RTL-SDR: %w", err)
		}
		app.sdrSource = src
		app.sources = append(app.sources, src)
	}

	if cfg.EnableSBS {
		out, closer, err := app.openSBS(cfg.SBSPath)
		if err != nil {
			return err
		}
		app.sbsCloser = closer
		app.baseStation = basestation.NewWriter(out, app.logger)
	}

	if cfg.EnableJSONL {
		rotator, err := logging.NewLogRotator(cfg.LogDir, cfg.LogRotateUTC, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize log rotator: %w", err)
		}
		app.logRotator = rotator
		if cfg.LogMaxDays > 0 {
			if err := rotator.CleanupOldLogs(cfg.LogMaxDays); err != nil {
				app.logger.WithError(err).Warn("Failed to clean up old log files")
			}
		}
	}

	if cfg.EnableArchive {
		store, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		app.store = store
		app.records = make(chan *archive.Record, recordBuffer)
	}

	if cfg.EnableHTTP {
		app.hub = server.NewHub(app.logger)
		app.server = server.New(app.aggregator, app.hub, func() any { return app.Stats() }, app.logger)
	}
	return nil
}

func (app *Application) openSBS(path string) (io.Writer, io.Closer, error) {
	if path == "-" {
		return app.Stdout, nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open SBS output %s: %w", path, err)
	}
	return f, f, nil
}

// replay reports whether every input is a finite file
func (app *Application) replay() bool {
	c := app.config
	if c.EnableSDR {
		return false
	}
	live := func(enabled bool, addr string) bool {
		return enabled && strings.HasPrefix(addr, "tcp://")
	}
	return !live(c.EnableBeast, c.BeastAddr) && !live(c.EnableRaw, c.RawAddr) && !live(c.EnableJSON, c.JSONAddr)
}

// startBackground starts the components that run until ctx is cancelled
func (app *Application) startBackground(ctx context.Context, wg *sync.WaitGroup, errCh chan<- error) {
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { app.aggregator.Run(ctx) })
	run(func() { app.runStatistics(ctx) })

	if app.logRotator != nil {
		run(func() { app.logRotator.Start(ctx) })
	}
	if app.hub != nil {
		run(func() { app.hub.Run(ctx) })
	}
	if app.server != nil {
		run(func() {
			if err := app.server.ListenAndServe(ctx, app.config.HTTPAddr); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		})
	}
}

// startSources runs every input and closes frames when all have returned
func (app *Application) startSources(ctx context.Context, frames chan<- *adsb.Frame) {
	var wg sync.WaitGroup
	for _, src := range app.sources {
		wg.Add(1)
		go func(src input.Source) {
			defer wg.Done()
			log := app.logger.WithField("source", src.Name())
			log.Info("Starting input")
			if err := src.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("Input stopped")
				return
			}
			log.Info("Input finished")
		}(src)
	}
	go func() {
		wg.Wait()
		close(frames)
	}()
}

// startWorkers decodes frames until the channel is closed
func (app *Application) startWorkers(frames <-chan *adsb.Frame, wg *sync.WaitGroup) {
	for i := 0; i < app.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range frames {
				app.processFrame(f)
			}
		}()
	}
}

// processFrame decodes one frame, merges it and feeds the sinks
func (app *Application) processFrame(f *adsb.Frame) {
	app.frames.Add(1)

	frag, err := adsb.Decode(f)
	if err != nil {
		app.countDecodeError(err)
		app.logger.WithFields(logrus.Fields{
			"source": f.Source,
			"frame":  f.Hex(),
		}).WithError(err).Debug("Discarding frame")
		return
	}
	app.decoded.Add(1)
	input.EachError(frag.Errs, func(ferr error) {
		app.countFieldError(ferr)
		app.logger.WithField("icao", frag.ICAO.String()).WithError(ferr).Debug("Field decode error")
	})

	snap, ok := app.aggregator.Apply(frag)
	if !ok {
		return
	}
	app.applied.Add(1)

	if app.baseStation != nil {
		if err := app.baseStation.Write(frag, snap); err != nil {
			app.sinkError(err, "basestation")
		}
	}
	if app.logRotator != nil {
		if err := app.logRotator.WriteJSON(snap); err != nil {
			app.sinkError(err, "jsonl")
		}
	}
	if app.records != nil {
		select {
		case app.records <- archive.NewRecord(f, frag):
		default:
			app.archiveDropped.Add(1)
			app.logger.WithField("icao", frag.ICAO.String()).Debug("Archive queue full, dropping record")
		}
	}
	if app.hub != nil {
		app.hub.Broadcast(snap)
	}
}

func (app *Application) countDecodeError(err error) {
	switch {
	case errors.Is(err, adsb.ErrCRCMismatch):
		app.crcErrors.Add(1)
	case errors.Is(err, adsb.ErrUnsupportedFormat):
		app.unsupported.Add(1)
	default:
		app.otherErrors.Add(1)
	}
}

func (app *Application) countFieldError(err error) {
	field := "other"
	var fe *adsb.FieldError
	if errors.As(err, &fe) {
		field = fe.Field
	}

	app.fieldMu.Lock()
	defer app.fieldMu.Unlock()
	if app.fieldErrors == nil {
		app.fieldErrors = make(map[string]uint64)
	}
	app.fieldErrors[field]++
}

func (app *Application) sinkError(err error, sink string) {
	app.sinkErrors.Add(1)
	app.logger.WithError(err).WithField("sink", sink).Error("Failed to write output")
}

// Stats returns a snapshot of the pipeline counters
func (app *Application) Stats() Stats {
	s := Stats{
		Frames:        app.frames.Load(),
		Decoded:       app.decoded.Load(),
		Applied:       app.applied.Load(),
		CRCErrors:     app.crcErrors.Load(),
		Unsupported:   app.unsupported.Load(),
		OtherErrors:   app.otherErrors.Load(),
		FramingErrors: app.framingErrors.Load(),
		SinkErrors:    app.sinkErrors.Load(),

		ArchiveDropped:  app.archiveDropped.Load(),
		MalformedFields: make(map[string]uint64),
	}
	app.fieldMu.Lock()
	for field, n := range app.fieldErrors {
		s.MalformedFields[field] = n
	}
	app.fieldMu.Unlock()

	if app.aggregator != nil {
		s.Aircraft = app.aggregator.Len()
		s.Dropped = app.aggregator.Dropped()
	}
	if app.sdrSource != nil {
		st := app.sdrSource.Stats()
		s.SDR = &st
	}
	if app.hub != nil {
		s.WSClients = app.hub.Clients()
	}
	return s
}

// runStatistics reports processing statistics periodically
func (app *Application) runStatistics(ctx context.Context) {
	ticker := time.NewTicker(app.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.reportStatistics()
		}
	}
}

func (app *Application) reportStatistics() {
	s := app.Stats()
	fields := logrus.Fields{
		"frames":         s.Frames,
		"decoded":        s.Decoded,
		"applied":        s.Applied,
		"crc_errors":     s.CRCErrors,
		"unsupported":    s.Unsupported,
		"framing_errors": s.FramingErrors,
		"sink_errors":    s.SinkErrors,
		"aircraft":       s.Aircraft,
		"dropped":        s.Dropped,
		"archive_drops":  s.ArchiveDropped,
	}
	if s.Frames > 0 {
		fields["success_rate"] = fmt.Sprintf("%.2f%%", float64(s.Decoded)/float64(s.Frames)*100)
	}
	if len(s.MalformedFields) > 0 {
		fields["malformed_fields"] = s.MalformedFields
	}
	if s.SDR != nil {
		fields["preambles"] = s.SDR.Preambles
		fields["demodulated"] = s.SDR.Accepted
	}
	app.logger.WithFields(fields).Info("Processing statistics")
}

// shutdown stops the inputs, drains the pipeline and closes the sinks
func (app *Application) shutdown(cancel context.CancelFunc, pipelineDone <-chan struct{}, collector, background *sync.WaitGroup) {
	app.logger.Info("Shutting down application")
	cancel()

	done := make(chan struct{})
	go func() {
		<-pipelineDone
		if app.records != nil {
			close(app.records)
		}
		collector.Wait()
		background.Wait()
		close(done)
	}()

	select {
	case <-done:
		app.logger.Info("All goroutines finished")
	case <-time.After(shutdownTimeout):
		app.logger.Warn("Shutdown timeout, forcing exit")
	}

	app.closeComponents()
	app.logger.Info("Shutdown completed")
}

func (app *Application) closeComponents() {
	if app.logRotator != nil {
		if err := app.logRotator.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close log rotator")
		}
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close archive")
		}
	}
	if app.sbsCloser != nil {
		if err := app.sbsCloser.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close SBS output")
		}
	}
}
