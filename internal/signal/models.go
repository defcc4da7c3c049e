// Package signal models link-quality telemetry packets and persists them in
// InfluxDB for windowed aggregation.
package signal

// Radio is the serving radio access technology reported by a UA.
type Radio string

// Radio modes accepted on ingest.
const (
	RadioUnknown Radio = "UNKNOWN"
	Radio4G      Radio = "4G"
	Radio5GNSA   Radio = "5GNSA"
	Radio5GSA    Radio = "5GSA"
)

// Valid reports whether r is a known radio mode.
func (r Radio) Valid() bool {
	switch r {
	case RadioUnknown, Radio4G, Radio5GNSA, Radio5GSA:
		return true
	default:
		return false
	}
}

// Packet is one telemetry report from a connectivity user. Optional values
// are pointers so that absent and zero can be told apart; absent values are
// never written to the store.
type Packet struct {
	Timestamp *Timestamp `json:"timestamp"`
	Position  *Position  `json:"position,omitempty"`
	Signal    *Signal    `json:"signal,omitempty"`
	Perf      *Perf      `json:"perf,omitempty"`
}

// Timestamp carries the packet's own clock reading.
type Timestamp struct {
	Unix *float64 `json:"unix"`
}

// Position groups location with optional attitude and velocities.
type Position struct {
	Location *Location `json:"location"`
	Attitude *Attitude `json:"attitude,omitempty"`
	Speeds   *Speeds   `json:"speeds,omitempty"`
}

// Location is a geodetic fix. Altitude is geodetic meters, baro is the
// barometric reading.
type Location struct {
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
	Alt  *float64 `json:"alt,omitempty"`
	Baro *float64 `json:"baro,omitempty"`
}

// Attitude is the aircraft orientation in degrees.
type Attitude struct {
	Roll    *int     `json:"roll,omitempty"`
	Pitch   *int     `json:"pitch,omitempty"`
	Yaw     *int     `json:"yaw,omitempty"`
	Heading *float64 `json:"heading,omitempty"`
}

// Speeds are aircraft velocities in meters per second.
type Speeds struct {
	VNorth *float64 `json:"vnorth,omitempty"`
	VEast  *float64 `json:"veast,omitempty"`
	VDown  *float64 `json:"vdown,omitempty"`
	VAir   *float64 `json:"vair,omitempty"`
}

// Signal carries cellular link measurements. The per-RAT RSRP/RSRQ variants
// are accepted on ingest but only the combined scalars are stored.
type Signal struct {
	Radio  Radio  `json:"radio"`
	RSRP   *int   `json:"RSRP,omitempty"`
	RSRQ   *int   `json:"RSRQ,omitempty"`
	RSRP4G *int   `json:"RSRP_4G,omitempty"`
	RSRQ4G *int   `json:"RSRQ_4G,omitempty"`
	RSRP5G *int   `json:"RSRP_5G,omitempty"`
	RSRQ5G *int   `json:"RSRQ_5G,omitempty"`
	Cell   string `json:"cell,omitempty"`
	Band   string `json:"band,omitempty"`
	RSSI   *int   `json:"RSSI,omitempty"`
	SINR   *int   `json:"SINR,omitempty"`
}

// Perf carries link performance indicators measured by the reporter.
type Perf struct {
	HeartbeatLoss *bool    `json:"heartbeat_loss,omitempty"`
	RTT           *float64 `json:"RTT,omitempty"`
}

const requiredMsg = "missing data for required field"

// Validate checks the packet against its schema. It returns a map of field
// path to error messages, nil when the packet is valid.
func (p *Packet) Validate() map[string][]string {
	errs := make(map[string][]string)

	if p.Timestamp == nil {
		errs["timestamp"] = append(errs["timestamp"], requiredMsg)
	} else if p.Timestamp.Unix == nil {
		errs["timestamp.unix"] = append(errs["timestamp.unix"], requiredMsg)
	}

	if p.Position != nil {
		if p.Position.Location == nil {
			errs["position.location"] = append(errs["position.location"], requiredMsg)
		} else {
			if p.Position.Location.Lat == nil {
				errs["position.location.lat"] = append(errs["position.location.lat"], requiredMsg)
			}
			if p.Position.Location.Lon == nil {
				errs["position.location.lon"] = append(errs["position.location.lon"], requiredMsg)
			}
		}
	}

	if p.Signal != nil {
		switch {
		case p.Signal.Radio == "":
			errs["signal.radio"] = append(errs["signal.radio"], requiredMsg)
		case !p.Signal.Radio.Valid():
			errs["signal.radio"] = append(errs["signal.radio"],
				"must be one of: UNKNOWN, 4G, 5GNSA, 5GSA")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
