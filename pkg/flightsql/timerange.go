package flightsql

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"google.golang.org/grpc/metadata"

	"github.com/TFMV/kite/pkg/errors"
)

// Metadata keys carrying the query time range to the server. They ride on
// both GetFlightInfo and DoGet so either half of the call can be routed or
// pruned by time.
const (
	metadataRangeBegin = "query_range_begin"
	metadataRangeEnd   = "query_range_end"
)

// naiveLayout matches RFC 3339-shaped timestamps that lack a UTC offset.
// Such values are ambiguous and rejected before any RPC is issued.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// TimeRange bounds a query in time. Bounds are RFC 3339 strings with an
// explicit UTC offset; either side may be empty for a half-open range.
type TimeRange struct {
	Begin string
	End   string
}

// NewTimeRange formats concrete instants into a TimeRange. time.Time always
// carries an offset, so the result never fails validation.
func NewTimeRange(begin, end time.Time) TimeRange {
	r := TimeRange{}
	if !begin.IsZero() {
		r.Begin = begin.Format(time.RFC3339Nano)
	}
	if !end.IsZero() {
		r.End = end.Format(time.RFC3339Nano)
	}
	return r
}

// IsZero reports whether neither bound is set.
func (r TimeRange) IsZero() bool {
	return r.Begin == "" && r.End == ""
}

// Validate checks both bounds. A timestamp without an offset is rejected as
// naive rather than silently assumed to be UTC or local time.
func (r TimeRange) Validate() error {
	var begin, end time.Time
	var err error

	if r.Begin != "" {
		if begin, err = parseRangeBound("begin", r.Begin); err != nil {
			return err
		}
	}
	if r.End != "" {
		if end, err = parseRangeBound("end", r.End); err != nil {
			return err
		}
	}
	if r.Begin != "" && r.End != "" && begin.After(end) {
		return errors.Newf(errors.CodeInvalidRange,
			"time range begin %s is after end %s", r.Begin, r.End)
	}
	return nil
}

func parseRangeBound(label, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return t, nil
	}
	if _, naiveErr := time.Parse(naiveLayout, value); naiveErr == nil {
		return time.Time{}, errors.Newf(errors.CodeNaiveTime,
			"%s timestamp %q has no UTC offset; use an explicit offset such as Z or +02:00", label, value)
	}
	return time.Time{}, errors.Wrapf(err, errors.CodeInvalidRange,
		"%s timestamp %q is not valid RFC 3339", label, value)
}

// appendToContext attaches the range bounds as outgoing metadata.
func (r TimeRange) appendToContext(ctx context.Context) context.Context {
	if r.Begin != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, metadataRangeBegin, r.Begin)
	}
	if r.End != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, metadataRangeEnd, r.End)
	}
	return ctx
}

// deltaPattern admits compact relative offsets like 90s, 30m, 2h, 7d, 1w.
var deltaPattern = regexp.MustCompile(`^(\d+)([smhdw])$`)

// ParseTimeDelta turns a relative offset into a duration. Plain Go duration
// strings such as "1h30m" work too; d and w suffixes extend them for days
// and weeks, which time.ParseDuration does not accept.
func ParseTimeDelta(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New(errors.CodeInvalidRange, "time delta is empty")
	}

	if m := deltaPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, errors.CodeInvalidRange, "invalid time delta %q", s)
		}
		switch m[2] {
		case "s":
			return time.Duration(n) * time.Second, nil
		case "m":
			return time.Duration(n) * time.Minute, nil
		case "h":
			return time.Duration(n) * time.Hour, nil
		case "d":
			return time.Duration(n) * 24 * time.Hour, nil
		case "w":
			return time.Duration(n) * 7 * 24 * time.Hour, nil
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeInvalidRange,
			"invalid time delta %q; use forms like 90s, 30m, 2h, 7d or 1w", s)
	}
	if d < 0 {
		return 0, errors.Newf(errors.CodeInvalidRange, "time delta %q is negative", s)
	}
	return d, nil
}
