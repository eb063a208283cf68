// Package tracker merges decoded fragments into per-aircraft records.
package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"decode1090/internal/adsb"
)

// Tracker defaults
const (
	DefaultShards        = adsb.DefaultShards
	DefaultAircraftTTL   = 300 * time.Second
	DefaultSweepInterval = 10 * time.Second
	DefaultICAOTTL       = 60 * time.Second

	signalWindow = 8
)

// Config tunes the aggregator
type Config struct {
	Shards        int
	AircraftTTL   time.Duration
	SweepInterval time.Duration

	// RequireKnownICAO drops parity-recovered addresses that have not been
	// seen on a CRC-checked frame within ICAOTTL.
	RequireKnownICAO bool
	ICAOTTL          time.Duration

	Resolver adsb.ResolverConfig

	// Declination converts magnetic headings to true. Nil disables it.
	Declination DeclinationFunc

	// Clock drives the expiry sweep. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the default aggregator settings
func DefaultConfig() Config {
	return Config{
		Shards:           DefaultShards,
		AircraftTTL:      DefaultAircraftTTL,
		SweepInterval:    DefaultSweepInterval,
		RequireKnownICAO: true,
		ICAOTTL:          DefaultICAOTTL,
		Resolver:         adsb.DefaultResolverConfig(),
		Declination:      WMMDeclination,
		Clock:            time.Now,
	}
}

type record struct {
	state    Snapshot
	signals  []float64
	lastSeen time.Time

	// NIC supplements and the last position type code, combined into
	// state.NIC and state.RC
	nicA, nicB, nicC *uint8
	positionTC       uint8
}

type shard struct {
	mu      sync.RWMutex
	records map[adsb.ICAO]*record
}

// Aggregator holds the per-address aircraft records
type Aggregator struct {
	cfg      Config
	shards   []shard
	resolver *adsb.Resolver
	known    *cache.Cache
	logger   *logrus.Logger

	messages atomic.Uint64
	dropped  atomic.Uint64
	latest   atomic.Int64
}

// New creates an aggregator. Zero config values take their defaults.
func New(cfg Config, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}
	if cfg.AircraftTTL <= 0 {
		cfg.AircraftTTL = DefaultAircraftTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.ICAOTTL <= 0 {
		cfg.ICAOTTL = DefaultICAOTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	a := &Aggregator{
		cfg:      cfg,
		shards:   make([]shard, cfg.Shards),
		resolver: adsb.NewResolver(cfg.Resolver, logger),
		known:    cache.New(cfg.ICAOTTL, cfg.ICAOTTL/6),
		logger:   logger,
	}
	for i := range a.shards {
		a.shards[i].records = make(map[adsb.ICAO]*record)
	}
	return a
}

func (a *Aggregator) shard(icao adsb.ICAO) *shard {
	return &a.shards[uint32(icao)%uint32(len(a.shards))]
}

// Known reports whether icao was seen on a CRC-checked frame recently
func (a *Aggregator) Known(icao adsb.ICAO) bool {
	_, found := a.known.Get(icao.String())
	return found
}

// Apply merges frag into its aircraft record and returns the updated
// snapshot. It returns false when the fragment was filtered out.
func (a *Aggregator) Apply(frag *adsb.Fragment) (Snapshot, bool) {
	if frag == nil {
		return Snapshot{}, false
	}

	switch frag.AddressSource {
	case adsb.AddressCRC:
		a.known.SetDefault(frag.ICAO.String(), frag.ICAO)
	case adsb.AddressParity:
		if a.cfg.RequireKnownICAO && !a.Known(frag.ICAO) {
			a.dropped.Add(1)
			a.logger.WithFields(logrus.Fields{
				"icao": frag.ICAO.String(),
				"df":   frag.DF,
			}).Debug("Dropping frame from unknown address")
			return Snapshot{}, false
		}
	}

	a.messages.Add(1)
	a.observe(frag.Timestamp)

	// The shard lock is held across Resolve so CPR state and the record of
	// one aircraft change in the same order. Lock order is always tracker
	// shard, then resolver shard.
	sh := a.shard(frag.ICAO)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var pos *adsb.Position
	if frag.CPR != nil {
		p, err := a.resolver.Resolve(frag.ICAO, *frag.CPR)
		switch {
		case err == nil:
			pos = &p
		case !errors.Is(err, adsb.ErrInsufficientData):
			a.logger.WithField("icao", frag.ICAO.String()).WithError(err).Debug("Position not resolved")
		}
	}

	rec, ok := sh.records[frag.ICAO]
	if !ok {
		rec = &record{state: Snapshot{
			ICAO:    frag.ICAO,
			Updated: make(map[Category]time.Time),
		}}
		sh.records[frag.ICAO] = rec
	}
	a.merge(rec, frag, pos)
	return rec.state.clone(), true
}

func (a *Aggregator) observe(ts time.Time) {
	n := ts.UnixNano()
	for {
		cur := a.latest.Load()
		if n <= cur || a.latest.CompareAndSwap(cur, n) {
			return
		}
	}
}

// accept reports whether a field group may be written by a message from ts
// and records the new update time when it may.
func accept(rec *record, cat Category, ts time.Time) bool {
	if prev, ok := rec.state.Updated[cat]; ok && ts.Before(prev) {
		return false
	}
	rec.state.Updated[cat] = ts
	return true
}

func (a *Aggregator) merge(rec *record, frag *adsb.Fragment, pos *adsb.Position) {
	s := &rec.state
	ts := frag.Timestamp

	s.Messages++
	if ts.After(rec.lastSeen) {
		rec.lastSeen = ts
		s.Seen = ts
	}
	// a CRC-checked address is never downgraded
	if frag.AddressSource == adsb.AddressCRC || (s.AddressSource == "" && frag.AddressSource != adsb.AddressUnknown) {
		s.AddressSource = frag.AddressSource.String()
	}
	if frag.Signal != 0 {
		rec.signals = append(rec.signals, frag.Signal)
		if len(rec.signals) > signalWindow {
			rec.signals = rec.signals[len(rec.signals)-signalWindow:]
		}
		s.RSSI = ptr(stat.Mean(rec.signals, nil))
	}

	if (frag.Callsign != nil || frag.Category != nil) && accept(rec, CategoryIdentity, ts) {
		if frag.Callsign != nil {
			s.Callsign = ptr(*frag.Callsign)
		}
		if frag.Category != nil {
			s.Category = ptr(*frag.Category)
		}
	}

	if frag.Altitude != nil && accept(rec, CategoryAltitude, ts) {
		if frag.Altitude.Source == adsb.SourceGNSS {
			s.AltGeom = ptr(frag.Altitude.Feet)
		} else {
			s.AltBaro = ptr(frag.Altitude.Feet)
		}
	}

	if pos != nil && accept(rec, CategoryPosition, pos.Timestamp) {
		s.Latitude = ptr(pos.Latitude)
		s.Longitude = ptr(pos.Longitude)
		s.PositionMethod = ptr(pos.Method.String())
		s.SeenPos = ptr(pos.Timestamp)
	}

	if frag.Velocity != nil && accept(rec, CategoryVelocity, ts) {
		a.mergeVelocity(s, frag.Velocity, ts)
	}
	if frag.Ground != nil && (frag.Ground.Speed != nil || frag.Ground.Track != nil) && accept(rec, CategoryVelocity, ts) {
		if frag.Ground.Speed != nil {
			s.GroundSpeed = ptr(*frag.Ground.Speed)
		}
		if frag.Ground.Track != nil {
			s.Track = ptr(*frag.Ground.Track)
		}
	}

	if (frag.Integrity != nil || frag.CPR != nil) && accept(rec, CategoryIntegrity, ts) {
		mergeIntegrity(rec, frag)
	}

	if frag.TargetState != nil && accept(rec, CategoryTargetState, ts) {
		mergeTargetState(s, frag.TargetState)
	}

	if hasStatus(frag) && accept(rec, CategoryStatus, ts) {
		if frag.Squawk != nil {
			s.Squawk = ptr(*frag.Squawk)
		}
		if frag.Emergency != nil {
			s.Emergency = ptr(frag.Emergency.String())
		}
		if frag.OnGround != nil {
			s.OnGround = ptr(*frag.OnGround)
		}
		if frag.Alert != nil {
			s.Alert = ptr(*frag.Alert)
		}
		if frag.SPI != nil {
			s.SPI = ptr(*frag.SPI)
		}
		if frag.Version != nil {
			s.Version = ptr(*frag.Version)
		}
	}
}

func mergeIntegrity(rec *record, frag *adsb.Fragment) {
	s := &rec.state
	if frag.CPR != nil {
		rec.positionTC = frag.TypeCode
	}

	if in := frag.Integrity; in != nil {
		if in.NICA != nil {
			rec.nicA = ptr(*in.NICA)
		}
		// B and C are never both in use: an aircraft is airborne or on the surface
		if in.NICB != nil {
			rec.nicB, rec.nicC = ptr(*in.NICB), nil
		}
		if in.NICC != nil {
			rec.nicC, rec.nicB = ptr(*in.NICC), nil
		}
		if in.NACp != nil {
			s.NACp = ptr(*in.NACp)
		}
		if in.NICBaro != nil {
			s.NICBaro = ptr(*in.NICBaro)
		}
		if in.SIL != nil {
			s.SIL = ptr(*in.SIL)
		}
		if in.SILType != nil {
			s.SILType = ptr(*in.SILType)
		}
		if in.SDA != nil {
			s.SDA = ptr(*in.SDA)
		}
		if in.GVA != nil {
			s.GVA = ptr(*in.GVA)
		}
	}

	if rec.positionTC == 0 {
		return
	}
	sup := rec.nicB
	if adsb.SurfaceTypeCode(rec.positionTC) {
		sup = rec.nicC
	}
	nic, rc, ok := adsb.NavigationIntegrity(rec.positionTC, rec.nicA, sup)
	if !ok {
		s.NIC, s.RC = nil, nil
		return
	}
	s.NIC, s.RC = ptr(nic), rc
}

func mergeTargetState(s *Snapshot, ts *adsb.TargetState) {
	if ts.SelectedAltitude != nil {
		if ts.FMS {
			s.NavAltitudeFMS = ptr(*ts.SelectedAltitude)
		} else {
			s.NavAltitudeMCP = ptr(*ts.SelectedAltitude)
		}
	}
	if ts.QNH != nil {
		s.NavQNH = ptr(*ts.QNH)
	}
	if ts.SelectedHeading != nil {
		s.NavHeading = ptr(*ts.SelectedHeading)
	}
	if ts.Modes != nil {
		s.NavModes = ts.Modes.Names()
	}
}

func (a *Aggregator) mergeVelocity(s *Snapshot, v *adsb.Velocity, ts time.Time) {
	if v.GroundSpeed != nil {
		s.GroundSpeed = ptr(*v.GroundSpeed)
	}
	if v.Track != nil {
		s.Track = ptr(*v.Track)
	}
	if v.Airspeed != nil {
		if v.AirspeedType == adsb.TAS {
			s.TAS = ptr(*v.Airspeed)
		} else {
			s.IAS = ptr(*v.Airspeed)
		}
	}
	if v.VerticalRate != nil {
		if v.VerticalRateSource == adsb.SourceGNSS {
			s.GeomRate = ptr(*v.VerticalRate)
		} else {
			s.BaroRate = ptr(*v.VerticalRate)
		}
	}
	if v.GNSSBaroDiff != nil {
		s.GNSSBaroDiff = ptr(*v.GNSSBaroDiff)
	}

	if v.Heading == nil {
		return
	}
	s.MagHeading = ptr(*v.Heading)
	if a.cfg.Declination == nil || !s.HasPosition() {
		return
	}
	alt := 0.0
	if s.AltBaro != nil {
		alt = float64(*s.AltBaro)
	}
	decl, err := a.cfg.Declination(*s.Latitude, *s.Longitude, alt, ts)
	if err != nil {
		a.logger.WithField("icao", s.ICAO.String()).WithError(err).Debug("Magnetic declination unavailable")
		return
	}
	s.TrueHeading = ptr(trueHeading(*v.Heading, decl))
}

func hasStatus(frag *adsb.Fragment) bool {
	return frag.Squawk != nil || frag.Emergency != nil || frag.OnGround != nil ||
		frag.Alert != nil || frag.SPI != nil || frag.Version != nil
}

// Get returns the snapshot for icao
func (a *Aggregator) Get(icao adsb.ICAO) (Snapshot, bool) {
	sh := a.shard(icao)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	rec, ok := sh.records[icao]
	if !ok {
		return Snapshot{}, false
	}
	return rec.state.clone(), true
}

// Snapshots returns every record ordered by address
func (a *Aggregator) Snapshots() []Snapshot {
	var out []Snapshot
	for i := range a.shards {
		sh := &a.shards[i]
		sh.mu.RLock()
		for _, rec := range sh.records {
			out = append(out, rec.state.clone())
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ICAO < out[j].ICAO })
	return out
}

// Len returns the number of tracked aircraft
func (a *Aggregator) Len() int {
	n := 0
	for i := range a.shards {
		sh := &a.shards[i]
		sh.mu.RLock()
		n += len(sh.records)
		sh.mu.RUnlock()
	}
	return n
}

// Messages returns the number of fragments applied
func (a *Aggregator) Messages() uint64 {
	return a.messages.Load()
}

// Dropped returns the number of fragments rejected by the address filter
func (a *Aggregator) Dropped() uint64 {
	return a.dropped.Load()
}

// Latest returns the newest message timestamp applied so far. Replays use it
// as the sweep clock.
func (a *Aggregator) Latest() time.Time {
	n := a.latest.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Expire removes aircraft not heard from within the aircraft TTL and prunes
// stale CPR state. It returns the number of aircraft removed.
func (a *Aggregator) Expire(now time.Time) int {
	cutoff := now.Add(-a.cfg.AircraftTTL)
	removed := 0

	for i := range a.shards {
		sh := &a.shards[i]
		sh.mu.Lock()
		for icao, rec := range sh.records {
			if rec.lastSeen.Before(cutoff) {
				delete(sh.records, icao)
				a.resolver.Forget(icao)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	pruned := a.resolver.Expire(now)
	if removed > 0 || pruned > 0 {
		a.logger.WithFields(logrus.Fields{
			"aircraft":  removed,
			"cpr_state": pruned,
			"remaining": a.Len(),
		}).Debug("Expired stale aircraft")
	}
	return removed
}

// Run sweeps expired records until ctx is cancelled
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := a.cfg.Clock()
			if now.IsZero() {
				continue
			}
			a.Expire(now)
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
