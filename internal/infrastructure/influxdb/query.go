package influxdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/query"
)

// maxQueryPoints caps the rows returned by one field query.
const maxQueryPoints = 5000

// projectorFields are the fields written by WriteProjectorSample.
var projectorFields = map[string]bool{
	"power":            true,
	"input":            true,
	"audio_muted":      true,
	"video_muted":      true,
	"lamp_hours":       true,
	"error_mask":       true,
	"connection_error": true,
}

// FieldPoint is one stored value of a projector field.
type FieldPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// FieldQuery selects one projector field over a time range.
type FieldQuery struct {
	ProjectorID string
	Field       string
	Start       time.Time
	Stop        time.Time

	// Every downsamples to the last value per window. Zero returns raw points.
	Every time.Duration
}

// rows is the subset of api.QueryTableResult the client reads.
type rows interface {
	Next() bool
	Record() *query.FluxRecord
	Err() error
	Close() error
}

// IsProjectorField reports whether field is recorded for projectors.
func IsProjectorField(field string) bool {
	return projectorFields[field]
}

// QueryProjectorField reads a field series for one projector.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - q: Projector, field and range to read
//
// Returns:
//   - []FieldPoint: Points in time order (empty, never nil)
//   - error: ErrNotConnected, ErrUnknownField, or the query failure
func (c *Client) QueryProjectorField(ctx context.Context, q FieldQuery) ([]FieldPoint, error) {
	if !c.IsConnected() || c.runQuery == nil {
		return nil, ErrNotConnected
	}
	if !IsProjectorField(q.Field) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, q.Field)
	}
	if !q.Stop.After(q.Start) {
		return nil, fmt.Errorf("stop must be after start")
	}

	result, err := c.runQuery(ctx, buildFieldQuery(c.cfg.Bucket, q))
	if err != nil {
		return nil, fmt.Errorf("influxdb query failed: %w", err)
	}
	defer result.Close()

	points := []FieldPoint{}
	for result.Next() {
		rec := result.Record()
		v, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		points = append(points, FieldPoint{Time: rec.Time().UTC(), Value: v})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading influxdb result: %w", err)
	}
	return points, nil
}

func buildFieldQuery(bucket string, q FieldQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", fluxString(bucket))
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n",
		q.Start.UTC().Format(time.RFC3339Nano), q.Stop.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %s and r.projector_id == %s and r._field == %s)\n",
		fluxString(MeasurementProjector), fluxString(q.ProjectorID), fluxString(q.Field))
	if q.Every > 0 {
		fmt.Fprintf(&b, "  |> aggregateWindow(every: %s, fn: last, createEmpty: false)\n", fluxDuration(q.Every))
	}
	fmt.Fprintf(&b, "  |> sort(columns: [\"_time\"])\n")
	fmt.Fprintf(&b, "  |> limit(n: %d)", maxQueryPoints)
	return b.String()
}

// fluxString quotes s as a Flux string literal.
func fluxString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `${`, `\${`)
	return `"` + r.Replace(s) + `"`
}

// fluxDuration renders d in whole seconds (minimum 1s).
func fluxDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("%ds", seconds)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
