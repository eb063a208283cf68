package adsb

import (
	"math"
	"time"
)

// Compact Position Reporting constants
const (
	cprMax        = 131072.0 // 2^17
	airborneSpan  = 360.0
	surfaceSpan   = 90.0
	earthRadiusKm = 6371.0
	kmPerNM       = 1.852
)

// nlThresholds holds the upper latitude bound of each longitude zone count,
// starting at NL=59 near the equator.
var nlThresholds = [...]float64{
	10.47047130, 14.82817437, 18.18626357, 21.02939493, 23.54504487,
	25.82924707, 27.93898710, 29.91135686, 31.77209708, 33.53993436,
	35.22899598, 36.85025108, 38.41241892, 39.92256684, 41.38651832,
	42.80914012, 44.19454951, 45.54626723, 46.86733252, 48.16039128,
	49.42776439, 50.67150166, 51.89342469, 53.09516153, 54.27817472,
	55.44378444, 56.59318756, 57.72747354, 58.84763776, 59.95459277,
	61.04917774, 62.13216659, 63.20427479, 64.26616523, 65.31845310,
	66.36171008, 67.39646774, 68.42322022, 69.44242631, 70.45451075,
	71.45986473, 72.45884545, 73.45177442, 74.43893416, 75.42056257,
	76.39684391, 77.36789461, 78.33374083, 79.29428225, 80.24923213,
	81.19801349, 82.13956981, 83.07199445, 83.99173563, 84.89166191,
	85.75541621, 86.53536998, 87.00000000,
}

// NL returns the number of longitude zones at the given latitude.
func NL(lat float64) int {
	abs := math.Abs(lat)
	for i, th := range nlThresholds {
		if abs < th {
			return 59 - i
		}
	}
	return 1
}

// cprMod is a modulo whose result is always in [0, b).
func cprMod(a, b float64) float64 {
	res := math.Mod(a, b)
	if res < 0 {
		res += b
	}
	return res
}

func cprModInt(a, b int) int {
	res := a % b
	if res < 0 {
		res += b
	}
	return res
}

// lonZones is the number of longitude zones for a frame of the given parity.
func lonZones(lat float64, odd bool) int {
	n := NL(lat)
	if odd {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}

func normalizeLon(lon float64) float64 {
	return lon - math.Floor((lon+180)/360)*360
}

// globalLatitudes computes the candidate latitudes of an even/odd pair
// before any hemisphere or range adjustment.
func globalLatitudes(even, odd *CPRFrame, span float64) (float64, float64) {
	lat0 := float64(even.LatCPR) / cprMax
	lat1 := float64(odd.LatCPR) / cprMax

	j := int(math.Floor(59*lat0 - 60*lat1 + 0.5))

	rlat0 := span / 60 * (float64(cprModInt(j, 60)) + lat0)
	rlat1 := span / 59 * (float64(cprModInt(j, 59)) + lat1)
	return rlat0, rlat1
}

// globalLongitude computes the longitude anchored on the frame of parity
// oddNewer, before normalisation.
func globalLongitude(even, odd *CPRFrame, lat float64, oddNewer bool, span float64) float64 {
	lon0 := float64(even.LonCPR) / cprMax
	lon1 := float64(odd.LonCPR) / cprMax

	nl := NL(lat)
	ni := lonZones(lat, oddNewer)
	m := int(math.Floor(lon0*float64(nl-1) - lon1*float64(nl) + 0.5))

	anchor := lon0
	if oddNewer {
		anchor = lon1
	}
	return span / float64(ni) * (float64(cprModInt(m, ni)) + anchor)
}

// globalAirborne decodes an airborne even/odd pair. The result is anchored
// on the frame selected by oddNewer.
func globalAirborne(even, odd *CPRFrame, oddNewer bool) (float64, float64, error) {
	rlat0, rlat1 := globalLatitudes(even, odd, airborneSpan)
	if rlat0 >= 270 {
		rlat0 -= 360
	}
	if rlat1 >= 270 {
		rlat1 -= 360
	}

	if rlat0 < -90 || rlat0 > 90 || rlat1 < -90 || rlat1 > 90 {
		return 0, 0, ErrInsufficientData
	}
	if NL(rlat0) != NL(rlat1) {
		return 0, 0, ErrInsufficientData
	}

	lat := rlat0
	if oddNewer {
		lat = rlat1
	}
	lon := globalLongitude(even, odd, lat, oddNewer, airborneSpan)
	return lat, normalizeLon(lon), nil
}

// globalSurface decodes a surface even/odd pair. Surface CPR spans a quarter
// of the globe, so the hemisphere and the longitude quadrant are chosen
// nearest the reference.
func globalSurface(even, odd *CPRFrame, oddNewer bool, refLat, refLon float64) (float64, float64, error) {
	rlat0, rlat1 := globalLatitudes(even, odd, surfaceSpan)
	rlat0 = nearestLatitude(rlat0, refLat)
	rlat1 = nearestLatitude(rlat1, refLat)

	if NL(rlat0) != NL(rlat1) {
		return 0, 0, ErrInsufficientData
	}

	lat := rlat0
	if oddNewer {
		lat = rlat1
	}
	base := globalLongitude(even, odd, lat, oddNewer, surfaceSpan)

	best, bestDist := 0.0, math.Inf(1)
	for k := 0; k < 4; k++ {
		lon := normalizeLon(base + surfaceSpan*float64(k))
		if d := haversineKm(lat, lon, refLat, refLon); d < bestDist {
			best, bestDist = lon, d
		}
	}
	return lat, best, nil
}

func nearestLatitude(lat, ref float64) float64 {
	south := lat - surfaceSpan
	if math.Abs(south-ref) < math.Abs(lat-ref) {
		return south
	}
	return lat
}

// localDecode resolves a single frame against a reference position within
// half a zone. ok is false when the result falls outside that window.
func localDecode(f *CPRFrame, refLat, refLon float64) (lat, lon float64, ok bool) {
	span := airborneSpan
	if f.Surface {
		span = surfaceSpan
	}

	dlat := span / 60
	if f.Odd {
		dlat = span / 59
	}
	fracLat := float64(f.LatCPR) / cprMax
	fracLon := float64(f.LonCPR) / cprMax

	j := math.Floor(refLat/dlat) + math.Floor(cprMod(refLat, dlat)/dlat-fracLat+0.5)
	lat = dlat * (j + fracLat)
	if lat < -90 || lat > 90 || math.Abs(lat-refLat) > dlat/2 {
		return 0, 0, false
	}

	dlon := span / float64(lonZones(lat, f.Odd))
	m := math.Floor(refLon/dlon) + math.Floor(cprMod(refLon, dlon)/dlon-fracLon+0.5)
	lon = dlon * (m + fracLon)
	if math.Abs(lon-refLon) > dlon/2 {
		return 0, 0, false
	}
	return lat, normalizeLon(lon), true
}

// haversineKm is the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := lat1 * math.Pi / 180
	p2 := lat2 * math.Pi / 180
	dp := p2 - p1
	dl := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dp/2)*math.Sin(dp/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// impliedSpeedKnots is the ground speed needed to move between two fixes.
// Elapsed time is floored at one second.
func impliedSpeedKnots(lat1, lon1 float64, t1 time.Time, lat2, lon2 float64, t2 time.Time) float64 {
	elapsed := t2.Sub(t1)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	if elapsed < time.Second {
		elapsed = time.Second
	}
	nm := haversineKm(lat1, lon1, lat2, lon2) / kmPerNM
	return nm / elapsed.Hours()
}
