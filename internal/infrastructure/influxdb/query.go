package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// maxHistoryPoints bounds a usage history query so a small window over a
// long range cannot produce an unbounded response.
const maxHistoryPoints = 10000

// UsagePoint is one window of registry occupancy.
type UsagePoint struct {
	Time     time.Time `json:"time"`
	InUse    int64     `json:"in_use"`
	Capacity int64     `json:"capacity"`
}

// UsageHistory returns peak slot occupancy per window between start and end.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - start: Start of the range (inclusive)
//   - end: End of the range (exclusive)
//   - every: Aggregation window
//
// Returns:
//   - []UsagePoint: One point per window that has data, oldest first
//   - error: ErrNotConnected, ErrInvalidRange, or ErrQueryFailed
func (c *Client) UsageHistory(ctx context.Context, start, end time.Time, every time.Duration) ([]UsagePoint, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if err := validateRange(start, end, every); err != nil {
		return nil, err
	}

	result, err := c.queryAPI.Query(ctx, usageHistoryFlux(c.bucket, start, end, every))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	var points []UsagePoint
	for result.Next() {
		rec := result.Record()
		points = append(points, UsagePoint{
			Time:     rec.Time(),
			InUse:    asInt64(rec.ValueByKey("in_use")),
			Capacity: asInt64(rec.ValueByKey("capacity")),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return points, nil
}

// EventCounts returns the number of endpoint events per kind since the given
// time, e.g. {"endpoint_added": 12, "endpoint_failed": 1}.
func (c *Client) EventCounts(ctx context.Context, since time.Time) (map[string]int64, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if since.IsZero() || !since.Before(time.Now()) {
		return nil, fmt.Errorf("%w: since must be in the past", ErrInvalidRange)
	}

	result, err := c.queryAPI.Query(ctx, eventCountsFlux(c.bucket, since))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	counts := make(map[string]int64)
	for result.Next() {
		rec := result.Record()
		kind, _ := rec.ValueByKey("kind").(string)
		if kind == "" {
			continue
		}
		counts[kind] += asInt64(rec.Value())
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return counts, nil
}

func validateRange(start, end time.Time, every time.Duration) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidRange)
	}
	if every <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrInvalidRange)
	}
	if end.Sub(start)/every > maxHistoryPoints {
		return fmt.Errorf("%w: more than %d windows", ErrInvalidRange, maxHistoryPoints)
	}
	return nil
}

// usageHistoryFlux pivots in_use and capacity into one row per window.
func usageHistoryFlux(bucket string, start, end time.Time, every time.Duration) string {
	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r._field == "in_use" or r._field == "capacity")
  |> aggregateWindow(every: %s, fn: max, createEmpty: false)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])`,
		strconv.Quote(bucket),
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		MeasurementRegistryUsage,
		fluxDuration(every),
	)
}

func eventCountsFlux(bucket string, since time.Time) string {
	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == %q and r._field == "endpoint_id")
  |> group(columns: ["kind"])
  |> count()`,
		strconv.Quote(bucket),
		since.UTC().Format(time.RFC3339),
		MeasurementEndpointEvents,
	)
}

// fluxDuration renders d as a Flux duration literal in whole seconds, with
// a floor of one second.
func fluxDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10) + "s"
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n) //nolint:gosec // counts and slot numbers are small
	case float64:
		return int64(n)
	default:
		return 0
	}
}
