package tracker

import (
	"time"

	"decode1090/internal/adsb"
)

// Category groups record fields that are updated together
type Category string

const (
	CategoryIdentity Category = "identity"
	CategoryPosition Category = "position"
	CategoryVelocity Category = "velocity"
	CategoryAltitude Category = "altitude"
	CategoryStatus   Category = "status"

	CategoryIntegrity   Category = "integrity"
	CategoryTargetState Category = "target_state"
)

// Snapshot is an immutable copy of an aircraft record. Optional fields are
// nil until a message has supplied them.
type Snapshot struct {
	ICAO          adsb.ICAO `json:"hex"`
	AddressSource string    `json:"address_source"`

	Callsign  *string `json:"flight,omitempty"`
	Category  *string `json:"category,omitempty"`
	Squawk    *string `json:"squawk,omitempty"`
	Emergency *string `json:"emergency,omitempty"`

	AltBaro *int `json:"alt_baro,omitempty"`
	AltGeom *int `json:"alt_geom,omitempty"`

	GroundSpeed  *float64 `json:"gs,omitempty"`
	Track        *float64 `json:"track,omitempty"`
	MagHeading   *float64 `json:"mag_heading,omitempty"`
	TrueHeading  *float64 `json:"true_heading,omitempty"`
	IAS          *float64 `json:"ias,omitempty"`
	TAS          *float64 `json:"tas,omitempty"`
	BaroRate     *int     `json:"baro_rate,omitempty"`
	GeomRate     *int     `json:"geom_rate,omitempty"`
	GNSSBaroDiff *int     `json:"gnss_baro_diff,omitempty"`

	Latitude       *float64 `json:"lat,omitempty"`
	Longitude      *float64 `json:"lon,omitempty"`
	PositionMethod *string  `json:"position_method,omitempty"`

	OnGround *bool  `json:"on_ground,omitempty"`
	Alert    *bool  `json:"alert,omitempty"`
	SPI      *bool  `json:"spi,omitempty"`
	Version  *uint8 `json:"version,omitempty"`

	NIC     *uint8   `json:"nic,omitempty"`
	RC      *float64 `json:"rc,omitempty"` // metres
	NACp    *uint8   `json:"nac_p,omitempty"`
	NICBaro *uint8   `json:"nic_baro,omitempty"`
	SIL     *uint8   `json:"sil,omitempty"`
	SILType *string  `json:"sil_type,omitempty"`
	SDA     *uint8   `json:"sda,omitempty"`
	GVA     *uint8   `json:"gva,omitempty"`

	NavAltitudeMCP *int     `json:"nav_altitude_mcp,omitempty"`
	NavAltitudeFMS *int     `json:"nav_altitude_fms,omitempty"`
	NavQNH         *float64 `json:"nav_qnh,omitempty"`
	NavHeading     *float64 `json:"nav_heading,omitempty"`
	NavModes       []string `json:"nav_modes,omitempty"`

	Messages uint64     `json:"messages"`
	RSSI     *float64   `json:"rssi,omitempty"`
	Seen     time.Time  `json:"seen"`
	SeenPos  *time.Time `json:"seen_pos,omitempty"`

	Updated map[Category]time.Time `json:"updated"`
}

// HasPosition reports whether a position has been resolved
func (s Snapshot) HasPosition() bool {
	return s.Latitude != nil && s.Longitude != nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// clone returns a copy that shares no memory with s
func (s *Snapshot) clone() Snapshot {
	c := *s
	c.Callsign = clonePtr(s.Callsign)
	c.Category = clonePtr(s.Category)
	c.Squawk = clonePtr(s.Squawk)
	c.Emergency = clonePtr(s.Emergency)
	c.AltBaro = clonePtr(s.AltBaro)
	c.AltGeom = clonePtr(s.AltGeom)
	c.GroundSpeed = clonePtr(s.GroundSpeed)
	c.Track = clonePtr(s.Track)
	c.MagHeading = clonePtr(s.MagHeading)
	c.TrueHeading = clonePtr(s.TrueHeading)
	c.IAS = clonePtr(s.IAS)
	c.TAS = clonePtr(s.TAS)
	c.BaroRate = clonePtr(s.BaroRate)
	c.GeomRate = clonePtr(s.GeomRate)
	c.GNSSBaroDiff = clonePtr(s.GNSSBaroDiff)
	c.Latitude = clonePtr(s.Latitude)
	c.Longitude = clonePtr(s.Longitude)
	c.PositionMethod = clonePtr(s.PositionMethod)
	c.OnGround = clonePtr(s.OnGround)
	c.Alert = clonePtr(s.Alert)
	c.SPI = clonePtr(s.SPI)
	c.Version = clonePtr(s.Version)
	c.NIC = clonePtr(s.NIC)
	c.RC = clonePtr(s.RC)
	c.NACp = clonePtr(s.NACp)
	c.NICBaro = clonePtr(s.NICBaro)
	c.SIL = clonePtr(s.SIL)
	c.SILType = clonePtr(s.SILType)
	c.SDA = clonePtr(s.SDA)
	c.GVA = clonePtr(s.GVA)
	c.NavAltitudeMCP = clonePtr(s.NavAltitudeMCP)
	c.NavAltitudeFMS = clonePtr(s.NavAltitudeFMS)
	c.NavQNH = clonePtr(s.NavQNH)
	c.NavHeading = clonePtr(s.NavHeading)
	if s.NavModes != nil {
		c.NavModes = append([]string{}, s.NavModes...)
	}
	c.RSSI = clonePtr(s.RSSI)
	c.SeenPos = clonePtr(s.SeenPos)

	c.Updated = make(map[Category]time.Time, len(s.Updated))
	for k, v := range s.Updated {
		c.Updated[k] = v
	}
	return c
}
