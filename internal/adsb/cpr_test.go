package adsb

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeCPR produces the 17-bit CPR fields for a position.
func encodeCPR(lat, lon float64, odd, surface bool) (uint32, uint32) {
	span := airborneSpan
	if surface {
		span = surfaceSpan
	}
	dlat := span / 60
	if odd {
		dlat = span / 59
	}
	yz := math.Floor(cprMax*cprMod(lat, dlat)/dlat + 0.5)
	rlat := dlat * (yz/cprMax + math.Floor(lat/dlat))

	dlon := span / float64(lonZones(rlat, odd))
	xz := math.Floor(cprMax*cprMod(lon, dlon)/dlon + 0.5)
	return uint32(int(yz) % 131072), uint32(int(xz) % 131072)
}

func cprPair(lat, lon float64, surface bool, evenAt, oddAt time.Time) (*CPRFrame, *CPRFrame) {
	elat, elon := encodeCPR(lat, lon, false, surface)
	olat, olon := encodeCPR(lat, lon, true, surface)
	return &CPRFrame{LatCPR: elat, LonCPR: elon, Surface: surface, Timestamp: evenAt},
		&CPRFrame{LatCPR: olat, LonCPR: olon, Odd: true, Surface: surface, Timestamp: oddAt}
}

// TestNL tests the longitude zone table boundaries
func TestNL(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		want int
	}{
		{"equator", 0, 59},
		{"just below first boundary", 10.4704713, 59},
		{"first boundary", 10.47047130, 58},
		{"southern hemisphere", -52.25, 36},
		{"mid latitude", 52.2572, 36},
		{"high latitude", 86.9, 2},
		{"above 87", 87.0, 1},
		{"pole", -90, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NL(tt.lat))
		})
	}
}

// TestCPRMod tests the always-positive modulo helpers
func TestCPRMod(t *testing.T) {
	assert.Equal(t, 1, cprModInt(-59, 60))
	assert.Equal(t, 0, cprModInt(60, 60))
	assert.InDelta(t, 5.5, cprMod(-0.5, 6), 1e-12)
	assert.InDelta(t, 0.5, cprMod(6.5, 6), 1e-12)
}

// TestGlobalAirborneKnownPairs decodes reference even/odd pairs
func TestGlobalAirborneKnownPairs(t *testing.T) {
	tests := []struct {
		name     string
		even     [2]uint32
		odd      [2]uint32
		oddNewer bool
		lat, lon float64
	}{
		{"even newer", [2]uint32{93000, 51372}, [2]uint32{74158, 50194}, false, 52.2572021484375, 3.91937255859375},
		{"odd newer north", [2]uint32{108011, 110088}, [2]uint32{75050, 36777}, true, 88.91747426178496, 101.01104736328125},
		{"odd newer south", [2]uint32{3487, 4958}, [2]uint32{16540, 81316}, true, -35.8401954780191, 150.2838524351729},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			even := &CPRFrame{LatCPR: tt.even[0], LonCPR: tt.even[1]}
			odd := &CPRFrame{LatCPR: tt.odd[0], LonCPR: tt.odd[1], Odd: true}

			lat, lon, err := globalAirborne(even, odd, tt.oddNewer)
			require.NoError(t, err)
			assert.InDelta(t, tt.lat, lat, 1e-9)
			assert.InDelta(t, tt.lon, lon, 1e-9)
		})
	}
}

// TestGlobalAirborneRoundTrip checks that encoded positions decode within 5 m
func TestGlobalAirborneRoundTrip(t *testing.T) {
	points := []struct {
		name     string
		lat, lon float64
	}{
		{"amsterdam", 52.2572, 3.9194},
		{"sydney", -33.9, 151.2},
		{"new york", 40.6413, -73.7781},
		{"null island", 0.5, -0.5},
		{"date line", -0.5, 179.99},
		{"alaska", 70.1, -150.3},
	}

	for _, p := range points {
		for _, oddNewer := range []bool{false, true} {
			t.Run(p.name, func(t *testing.T) {
				even, odd := cprPair(p.lat, p.lon, false, time.Time{}, time.Time{})
				lat, lon, err := globalAirborne(even, odd, oddNewer)
				require.NoError(t, err)
				assert.Less(t, haversineKm(p.lat, p.lon, lat, lon), 0.005)
			})
		}
	}
}

// TestGlobalAirborneZoneMismatch checks that a pair straddling an NL boundary is refused
func TestGlobalAirborneZoneMismatch(t *testing.T) {
	// even frame encoded just south of the 10.47 degree boundary, odd just north
	elat, elon := encodeCPR(10.46, 20.0, false, false)
	olat, olon := encodeCPR(10.48, 20.0, true, false)
	even := &CPRFrame{LatCPR: elat, LonCPR: elon}
	odd := &CPRFrame{LatCPR: olat, LonCPR: olon, Odd: true}

	_, _, err := globalAirborne(even, odd, true)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

// TestGlobalSurface checks the nearest candidate is chosen for surface pairs
func TestGlobalSurface(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		refLat   float64
		refLon   float64
	}{
		{"schiphol", 52.3206, 4.7305, 51.990, 4.375},
		{"albuquerque", 35.18, -106.57, 35.10, -106.60},
		{"sydney", -33.94, 151.17, -33.9, 151.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, oddNewer := range []bool{false, true} {
				even, odd := cprPair(tt.lat, tt.lon, true, time.Time{}, time.Time{})
				lat, lon, err := globalSurface(even, odd, oddNewer, tt.refLat, tt.refLon)
				require.NoError(t, err)
				assert.Less(t, haversineKm(tt.lat, tt.lon, lat, lon), 0.002)
			}
		})
	}

	even := &CPRFrame{LatCPR: 115396, LonCPR: 116942, Surface: true}
	odd := &CPRFrame{LatCPR: 39198, LonCPR: 110053, Odd: true, Surface: true}
	lat, lon, err := globalSurface(even, odd, false, 51.990, 4.375)
	require.NoError(t, err)
	assert.InDelta(t, 52.32060241699219, lat, 1e-9)
	assert.InDelta(t, 4.730491638183594, lon, 1e-9)
}

// TestGlobalSurfaceKnownPair decodes a received surface pair near Schiphol
func TestGlobalSurfaceKnownPair(t *testing.T) {
	even := mustDecode(t, "8C4841753AAB238733C8CD4020B1")
	odd := mustDecode(t, "8C4841753A8A35323FAEBDAC702D")
	require.NotNil(t, even.CPR)
	require.NotNil(t, odd.CPR)
	require.False(t, even.CPR.Odd)
	require.True(t, odd.CPR.Odd)
	assert.Equal(t, uint8(7), even.TypeCode)

	lat, lon, err := globalSurface(even.CPR, odd.CPR, true, 51.990, 4.375)
	require.NoError(t, err)
	assert.InDelta(t, 52.320607, lat, 1e-5)
	assert.InDelta(t, 4.734735, lon, 1e-5)

	cfg := DefaultResolverConfig()
	cfg.Receiver = &Reference{Latitude: 51.990, Longitude: 4.375}
	r := NewResolver(cfg, quietLogger())
	even.CPR.Timestamp = resolverEpoch
	odd.CPR.Timestamp = resolverEpoch.Add(time.Second)
	_, _ = r.Resolve(0x484175, *even.CPR)
	pos, err := r.Resolve(0x484175, *odd.CPR)
	require.NoError(t, err)
	assert.True(t, pos.Surface)
	assert.InDelta(t, 52.320607, pos.Latitude, 1e-5)
	assert.InDelta(t, 4.734735, pos.Longitude, 1e-5)
}

// TestLocalDecode checks single-frame decoding against a nearby reference
func TestLocalDecode(t *testing.T) {
	f := &CPRFrame{LatCPR: 93000, LonCPR: 51372}
	lat, lon, ok := localDecode(f, 52.258, 3.919)
	require.True(t, ok)
	assert.InDelta(t, 52.2572021484375, lat, 1e-9)
	assert.InDelta(t, 3.91937255859375, lon, 1e-9)
	assert.Less(t, haversineKm(52.258, 3.919, lat, lon), 0.1)

	t.Run("agrees with global", func(t *testing.T) {
		points := [][2]float64{{52.2572, 3.9194}, {-33.9, 151.2}, {40.6413, -73.7781}, {0.5, -0.5}}
		for _, p := range points {
			even, odd := cprPair(p[0], p[1], false, time.Time{}, time.Time{})
			glat, glon, err := globalAirborne(even, odd, true)
			require.NoError(t, err)

			llat, llon, ok := localDecode(odd, p[0]+0.05, p[1]-0.05)
			require.True(t, ok)
			assert.InDelta(t, glat, llat, 1e-6)
			assert.InDelta(t, glon, llon, 1e-6)
		}
	})

	t.Run("surface", func(t *testing.T) {
		even, _ := cprPair(-33.94, 151.17, true, time.Time{}, time.Time{})
		lat, lon, ok := localDecode(even, -33.9, 151.2)
		require.True(t, ok)
		assert.InDelta(t, -33.93999481201172, lat, 1e-9)
		assert.InDelta(t, 151.16999723473373, lon, 1e-9)
	})
}

// TestHaversine tests the great-circle distance helper
func TestHaversine(t *testing.T) {
	assert.InDelta(t, 0, haversineKm(10, 20, 10, 20), 1e-12)
	// one degree of latitude
	assert.InDelta(t, 111.195, haversineKm(0, 0, 1, 0), 0.001)
	assert.InDelta(t, 0.0923, haversineKm(52.258, 3.919, 52.2572021484375, 3.91937255859375), 0.0005)
}

// TestImpliedSpeed tests the speed plausibility helper
func TestImpliedSpeed(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	// one degree of latitude in one hour is about 60 knots
	speed := impliedSpeedKnots(0, 0, t0, 1, 0, t0.Add(time.Hour))
	assert.InDelta(t, 60.04, speed, 0.01)

	// elapsed time is floored at one second
	fast := impliedSpeedKnots(0, 0, t0, 0.001, 0, t0)
	slow := impliedSpeedKnots(0, 0, t0, 0.001, 0, t0.Add(time.Second))
	assert.InDelta(t, slow, fast, 1e-9)
}
