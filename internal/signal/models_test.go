package signal_test

import (
	"testing"

	"github.com/flyvercity/c2ng/internal/signal"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func validPacket() *signal.Packet {
	return &signal.Packet{
		Timestamp: &signal.Timestamp{Unix: floatPtr(1700000000.5)},
		Position: &signal.Position{
			Location: &signal.Location{
				Lat: floatPtr(32.1),
				Lon: floatPtr(34.8),
				Alt: floatPtr(120.0),
			},
		},
		Signal: &signal.Signal{
			Radio: signal.Radio4G,
			RSRP:  intPtr(-99),
			RSRQ:  intPtr(-12),
		},
		Perf: &signal.Perf{RTT: floatPtr(42.5)},
	}
}

// TestPacketValidate_Valid verifies that both a full and a minimal packet
// pass validation.
func TestPacketValidate_Valid(t *testing.T) {
	t.Parallel()

	if errs := validPacket().Validate(); errs != nil {
		t.Errorf("full packet: unexpected errors %v", errs)
	}

	minimal := &signal.Packet{Timestamp: &signal.Timestamp{Unix: floatPtr(1700000000)}}
	if errs := minimal.Validate(); errs != nil {
		t.Errorf("minimal packet: unexpected errors %v", errs)
	}
}

// TestPacketValidate_MissingTimestamp verifies that the timestamp block is
// required.
func TestPacketValidate_MissingTimestamp(t *testing.T) {
	t.Parallel()

	p := validPacket()
	p.Timestamp = nil

	errs := p.Validate()
	if len(errs["timestamp"]) == 0 {
		t.Fatalf("expected error for timestamp, got %v", errs)
	}
}

// TestPacketValidate_MissingUnix verifies that the unix reading inside the
// timestamp block is required.
func TestPacketValidate_MissingUnix(t *testing.T) {
	t.Parallel()

	p := validPacket()
	p.Timestamp = &signal.Timestamp{}

	errs := p.Validate()
	if len(errs["timestamp.unix"]) == 0 {
		t.Fatalf("expected error for timestamp.unix, got %v", errs)
	}
}

// TestPacketValidate_PositionRequiresLocation verifies that a position block
// without a location fails.
func TestPacketValidate_PositionRequiresLocation(t *testing.T) {
	t.Parallel()

	p := validPacket()
	p.Position = &signal.Position{}

	errs := p.Validate()
	if len(errs["position.location"]) == 0 {
		t.Fatalf("expected error for position.location, got %v", errs)
	}
}

// TestPacketValidate_LocationRequiresLatLon verifies that lat and lon are
// both required inside a location.
func TestPacketValidate_LocationRequiresLatLon(t *testing.T) {
	t.Parallel()

	p := validPacket()
	p.Position.Location = &signal.Location{Alt: floatPtr(100)}

	errs := p.Validate()
	if len(errs["position.location.lat"]) == 0 {
		t.Errorf("expected error for lat, got %v", errs)
	}
	if len(errs["position.location.lon"]) == 0 {
		t.Errorf("expected error for lon, got %v", errs)
	}
}

// TestPacketValidate_RadioRequired verifies that a signal block without a
// radio mode fails.
func TestPacketValidate_RadioRequired(t *testing.T) {
	t.Parallel()

	p := validPacket()
	p.Signal.Radio = ""

	errs := p.Validate()
	if len(errs["signal.radio"]) == 0 {
		t.Fatalf("expected error for signal.radio, got %v", errs)
	}
}

// TestPacketValidate_RadioEnum verifies that unknown radio modes are
// rejected.
func TestPacketValidate_RadioEnum(t *testing.T) {
	t.Parallel()

	p := validPacket()
	p.Signal.Radio = signal.Radio("3G")

	errs := p.Validate()
	if len(errs["signal.radio"]) == 0 {
		t.Fatalf("expected error for signal.radio, got %v", errs)
	}
}

// TestRadioValid verifies the accepted radio mode set.
func TestRadioValid(t *testing.T) {
	t.Parallel()

	for _, r := range []signal.Radio{signal.RadioUnknown, signal.Radio4G, signal.Radio5GNSA, signal.Radio5GSA} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	for _, r := range []signal.Radio{"", "3G", "unknown", "4g"} {
		if r.Valid() {
			t.Errorf("%q should be invalid", r)
		}
	}
}
