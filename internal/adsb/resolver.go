package adsb

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Resolver defaults
const (
	DefaultShards           = 64
	DefaultPairWindow       = 10 * time.Second
	DefaultLocalMaxAge      = 10 * time.Second
	DefaultStaleness        = 60 * time.Second
	DefaultMaxSpeedAirborne = 1000.0 // knots
	DefaultMaxSpeedSurface  = 250.0  // knots
)

// DecodeMethod records how a position was resolved
type DecodeMethod uint8

const (
	MethodGlobal DecodeMethod = iota
	MethodLocal
	MethodReceiver
)

func (m DecodeMethod) String() string {
	switch m {
	case MethodLocal:
		return "local"
	case MethodReceiver:
		return "receiver"
	default:
		return "global"
	}
}

// Reference is a fixed point such as the receiver location
type Reference struct {
	Latitude  float64
	Longitude float64
}

// Position is a resolved latitude/longitude
type Position struct {
	Latitude  float64
	Longitude float64
	Timestamp time.Time
	Surface   bool
	Method    DecodeMethod
}

// ResolverConfig tunes the position resolver
type ResolverConfig struct {
	Shards           int
	PairWindow       time.Duration
	LocalMaxAge      time.Duration
	Staleness        time.Duration
	MaxSpeedAirborne float64
	MaxSpeedSurface  float64
	Receiver         *Reference
}

// DefaultResolverConfig returns the default resolver settings
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Shards:           DefaultShards,
		PairWindow:       DefaultPairWindow,
		LocalMaxAge:      DefaultLocalMaxAge,
		Staleness:        DefaultStaleness,
		MaxSpeedAirborne: DefaultMaxSpeedAirborne,
		MaxSpeedSurface:  DefaultMaxSpeedSurface,
	}
}

type cprState struct {
	even *CPRFrame
	odd  *CPRFrame
	last *Position
}

type resolverShard struct {
	mu     sync.Mutex
	states map[ICAO]*cprState
}

// Resolver turns CPR frames into positions. It keeps the latest even and odd
// frame and the last resolved position per address.
type Resolver struct {
	cfg    ResolverConfig
	shards []resolverShard
	logger *logrus.Logger
}

// NewResolver creates a resolver. Zero config values take their defaults.
func NewResolver(cfg ResolverConfig, logger *logrus.Logger) *Resolver {
	def := DefaultResolverConfig()
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}
	if cfg.PairWindow <= 0 {
		cfg.PairWindow = def.PairWindow
	}
	if cfg.LocalMaxAge <= 0 {
		cfg.LocalMaxAge = def.LocalMaxAge
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = def.Staleness
	}
	if cfg.MaxSpeedAirborne <= 0 {
		cfg.MaxSpeedAirborne = def.MaxSpeedAirborne
	}
	if cfg.MaxSpeedSurface <= 0 {
		cfg.MaxSpeedSurface = def.MaxSpeedSurface
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := &Resolver{
		cfg:    cfg,
		shards: make([]resolverShard, cfg.Shards),
		logger: logger,
	}
	for i := range r.shards {
		r.shards[i].states = make(map[ICAO]*cprState)
	}
	return r
}

func (r *Resolver) shard(icao ICAO) *resolverShard {
	return &r.shards[uint32(icao)%uint32(len(r.shards))]
}

// Resolve stores frame and attempts to produce a position from it.
// ErrInsufficientData means no position can be derived yet.
func (r *Resolver) Resolve(icao ICAO, frame CPRFrame) (Position, error) {
	sh := r.shard(icao)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.states[icao]
	if !ok {
		st = &cprState{}
		sh.states[icao] = st
	}

	f := &frame
	slot := &st.even
	if f.Odd {
		slot = &st.odd
	}
	if *slot != nil && f.Timestamp.Before((*slot).Timestamp) {
		return Position{}, ErrInsufficientData
	}
	*slot = f

	if pos, ok := r.local(icao, st, f); ok {
		st.last = &pos
		return pos, nil
	}

	if pos, err := r.global(icao, st, f); err == nil {
		st.last = &pos
		return pos, nil
	}

	if f.Surface && st.last == nil && r.cfg.Receiver != nil {
		lat, lon, ok := localDecode(f, r.cfg.Receiver.Latitude, r.cfg.Receiver.Longitude)
		if ok {
			pos := Position{Latitude: lat, Longitude: lon, Timestamp: f.Timestamp, Surface: true, Method: MethodReceiver}
			st.last = &pos
			return pos, nil
		}
	}

	return Position{}, ErrInsufficientData
}

// local decodes f against the last known position of the same kind.
func (r *Resolver) local(icao ICAO, st *cprState, f *CPRFrame) (Position, bool) {
	last := st.last
	if last == nil || last.Surface != f.Surface {
		return Position{}, false
	}
	age := f.Timestamp.Sub(last.Timestamp)
	if age < 0 {
		age = -age
	}
	if age > r.cfg.LocalMaxAge {
		return Position{}, false
	}

	lat, lon, ok := localDecode(f, last.Latitude, last.Longitude)
	if !ok {
		return Position{}, false
	}

	limit := r.cfg.MaxSpeedAirborne
	if f.Surface {
		limit = r.cfg.MaxSpeedSurface
	}
	if speed := impliedSpeedKnots(last.Latitude, last.Longitude, last.Timestamp, lat, lon, f.Timestamp); speed > limit {
		r.logger.WithFields(logrus.Fields{
			"icao":  icao.String(),
			"speed": speed,
			"limit": limit,
		}).Debug("Local CPR decode rejected")
		return Position{}, false
	}

	return Position{Latitude: lat, Longitude: lon, Timestamp: f.Timestamp, Surface: f.Surface, Method: MethodLocal}, true
}

// global decodes the stored even/odd pair when both are recent and of the
// same kind as f.
func (r *Resolver) global(icao ICAO, st *cprState, f *CPRFrame) (Position, error) {
	even, odd := st.even, st.odd
	if even == nil || odd == nil || even.Surface != odd.Surface || even.Surface != f.Surface {
		return Position{}, ErrInsufficientData
	}
	gap := odd.Timestamp.Sub(even.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	if gap > r.cfg.PairWindow {
		return Position{}, ErrInsufficientData
	}

	oddNewer := odd.Timestamp.After(even.Timestamp) || (odd.Timestamp.Equal(even.Timestamp) && f.Odd)
	ts := even.Timestamp
	if oddNewer {
		ts = odd.Timestamp
	}

	var lat, lon float64
	var err error
	if f.Surface {
		ref, ok := r.reference(st)
		if !ok {
			return Position{}, ErrInsufficientData
		}
		lat, lon, err = globalSurface(even, odd, oddNewer, ref.Latitude, ref.Longitude)
	} else {
		lat, lon, err = globalAirborne(even, odd, oddNewer)
	}
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"icao":    icao.String(),
			"surface": f.Surface,
		}).Debug("Global CPR decode failed")
		return Position{}, err
	}

	return Position{Latitude: lat, Longitude: lon, Timestamp: ts, Surface: f.Surface, Method: MethodGlobal}, nil
}

// reference picks the anchor for a surface decode: the aircraft's last
// position, else the receiver.
func (r *Resolver) reference(st *cprState) (Reference, bool) {
	if st.last != nil {
		return Reference{Latitude: st.last.Latitude, Longitude: st.last.Longitude}, true
	}
	if r.cfg.Receiver != nil {
		return *r.cfg.Receiver, true
	}
	return Reference{}, false
}

// Expire drops frames and positions older than the staleness bound and
// removes addresses left with no state. It returns the number removed.
func (r *Resolver) Expire(now time.Time) int {
	cutoff := now.Add(-r.cfg.Staleness)
	removed := 0

	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for icao, st := range sh.states {
			if st.even != nil && st.even.Timestamp.Before(cutoff) {
				st.even = nil
			}
			if st.odd != nil && st.odd.Timestamp.Before(cutoff) {
				st.odd = nil
			}
			if st.last != nil && st.last.Timestamp.Before(cutoff) {
				st.last = nil
			}
			if st.even == nil && st.odd == nil && st.last == nil {
				delete(sh.states, icao)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Forget discards all state for an address.
func (r *Resolver) Forget(icao ICAO) {
	sh := r.shard(icao)
	sh.mu.Lock()
	delete(sh.states, icao)
	sh.mu.Unlock()
}

// Len returns the number of addresses with CPR state.
func (r *Resolver) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		n += len(sh.states)
		sh.mu.Unlock()
	}
	return n
}
