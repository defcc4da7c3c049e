package signal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/flyvercity/c2ng/internal/config"
)

// measurementName is the single measurement all telemetry points land in.
const measurementName = "cell-signal"

// Field names exposed for aggregation queries.
const (
	FieldRSRP = "RSRP"
	FieldRTT  = "RTT"
)

// Store persists telemetry points and serves windowed aggregates over them.
// It is safe for concurrent use.
type Store struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	query  api.QueryAPI
	bucket string
	logger *slog.Logger
}

// New connects a Store to the InfluxDB instance named by cfg. The token is
// the API token (taken from the environment by the caller, never from the
// config file).
func New(cfg config.InfluxConfig, token string, logger *slog.Logger) *Store {
	client := influxdb2.NewClient(cfg.URI, token)
	return &Store{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query:  client.QueryAPI(cfg.Org),
		bucket: cfg.Bucket,
		logger: logger,
	}
}

// Close releases the underlying client.
func (s *Store) Close() {
	s.client.Close()
}

// Write appends one point for a validated packet. The point is stamped by
// the database at write time.
func (s *Store) Write(ctx context.Context, uasid string, packet *Packet) error {
	point := buildPoint(uasid, packet)

	if err := s.write.WritePoint(ctx, point); err != nil {
		writeFailures.Inc()
		return fmt.Errorf("signal: write point: %w", err)
	}

	pointsWritten.Inc()
	s.logger.Debug("signal: point written", slog.String("uasid", uasid))
	return nil
}

// Read aggregates the named field for uasid over the trailing window with
// mean(). It returns one value per matching series; no matching points
// yield an empty list, not an error.
func (s *Store) Read(ctx context.Context, uasid, field string, window time.Duration) ([]float64, error) {
	query := fluxQuery(s.bucket, uasid, field, window)
	s.logger.Debug("signal: querying aggregates", slog.String("query", query))

	result, err := s.query.Query(ctx, query)
	if err != nil {
		readFailures.Inc()
		return nil, fmt.Errorf("signal: query: %w", err)
	}

	values := []float64{}
	for result.Next() {
		if v, ok := toFloat(result.Record().Value()); ok {
			values = append(values, v)
		}
	}
	if err := result.Err(); err != nil {
		readFailures.Inc()
		return nil, fmt.Errorf("signal: read result: %w", err)
	}

	return values, nil
}

// buildPoint maps a packet onto the measurement's tag and field sets. Unset
// values are dropped, never zero-filled.
func buildPoint(uasid string, packet *Packet) *write.Point {
	point := influxdb2.NewPointWithMeasurement(measurementName)
	point.AddTag("uasid", uasid)

	if sig := packet.Signal; sig != nil {
		if sig.Radio != "" {
			point.AddTag("radio", string(sig.Radio))
		}
		if sig.Cell != "" {
			point.AddTag("cell", sig.Cell)
		}
		if sig.Band != "" {
			point.AddTag("band", sig.Band)
		}
		addIntField(point, "RSRP", sig.RSRP)
		addIntField(point, "RSRQ", sig.RSRQ)
		addIntField(point, "RSSI", sig.RSSI)
		addIntField(point, "SINR", sig.SINR)
	}

	if pos := packet.Position; pos != nil {
		if loc := pos.Location; loc != nil {
			addFloatField(point, "latitude", loc.Lat)
			addFloatField(point, "longitude", loc.Lon)
			addFloatField(point, "altitude", loc.Alt)
			addFloatField(point, "baro", loc.Baro)
		}
		if att := pos.Attitude; att != nil {
			addIntField(point, "roll", att.Roll)
			addIntField(point, "pitch", att.Pitch)
			addIntField(point, "yaw", att.Yaw)
			addFloatField(point, "heading", att.Heading)
		}
		if spd := pos.Speeds; spd != nil {
			addFloatField(point, "vnorth", spd.VNorth)
			addFloatField(point, "veast", spd.VEast)
			addFloatField(point, "vdown", spd.VDown)
			addFloatField(point, "vair", spd.VAir)
		}
	}

	if perf := packet.Perf; perf != nil {
		addBoolField(point, "heartbeat_loss", perf.HeartbeatLoss)
		addFloatField(point, "RTT", perf.RTT)
	}

	return point
}

// fluxQuery builds the aggregation query for one uasid and field.
func fluxQuery(bucket, uasid, field string, window time.Duration) string {
	return fmt.Sprintf(`from(bucket: %q)
	|> range(start: -%dm)
	|> filter(fn: (r) => r._measurement == %q)
	|> filter(fn: (r) => r.uasid == %q)
	|> filter(fn: (r) => r._field == %q)
	|> mean()`,
		bucket, int(window.Minutes()), measurementName, uasid, field)
}

func addIntField(p *write.Point, name string, v *int) {
	if v != nil {
		p.AddField(name, *v)
	}
}

func addFloatField(p *write.Point, name string, v *float64) {
	if v != nil {
		p.AddField(name, *v)
	}
}

func addBoolField(p *write.Point, name string, v *bool) {
	if v != nil {
		p.AddField(name, *v)
	}
}

// toFloat widens the value types mean() can produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
