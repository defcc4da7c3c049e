package rest

import (
	"regexp"

	"github.com/flyvercity/c2ng/internal/server/storage"
	"github.com/flyvercity/c2ng/internal/signal"
)

const requiredMsg = "missing data for required field"

// imsiPattern matches a 3GPP IMSI: 14 or 15 decimal digits.
var imsiPattern = regexp.MustCompile(`^[0-9]{14,15}$`)

// AerialConnectionSessionRequest is the body of POST /session.
type AerialConnectionSessionRequest struct {
	// ReferenceTime is the client's UNIX timestamp for the request.
	ReferenceTime *float64 `json:"ReferenceTime"`

	UasID   string `json:"UasID"`
	Segment string `json:"Segment"`

	// IMSI identifies the UE's cellular subscription. Required for the UA
	// segment only; the session manager enforces that.
	IMSI string `json:"IMSI,omitempty"`

	// Metadata is an opaque object passed through to the USSP.
	Metadata map[string]any `json:"Metadata,omitempty"`
}

// Validate checks the structural rules of the request and returns per-field
// message lists, or nil when the request is well-formed.
func (r *AerialConnectionSessionRequest) Validate() map[string][]string {
	errs := make(map[string][]string)

	if r.ReferenceTime == nil {
		errs["ReferenceTime"] = append(errs["ReferenceTime"], requiredMsg)
	}

	if r.UasID == "" {
		errs["UasID"] = append(errs["UasID"], requiredMsg)
	}

	switch {
	case r.Segment == "":
		errs["Segment"] = append(errs["Segment"], requiredMsg)
	case !storage.Segment(r.Segment).Valid():
		errs["Segment"] = append(errs["Segment"], "must be one of: ua, adx")
	}

	if r.IMSI != "" && !imsiPattern.MatchString(r.IMSI) {
		errs["IMSI"] = append(errs["IMSI"], "must be a 14- or 15-digit IMSI")
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// SignalStatsReportRequest is the body of POST /signal/{uasid}.
type SignalStatsReportRequest struct {
	Packet *signal.Packet `json:"Packet"`
}

// Validate checks the report envelope and the packet inside it. Packet
// field errors come back under dotted "Packet." keys.
func (r *SignalStatsReportRequest) Validate() map[string][]string {
	if r.Packet == nil {
		return map[string][]string{"Packet": {requiredMsg}}
	}

	perrs := r.Packet.Validate()
	if perrs == nil {
		return nil
	}

	errs := make(map[string][]string, len(perrs))
	for field, messages := range perrs {
		errs["Packet."+field] = messages
	}
	return errs
}
