package pgmcp

import (
	"encoding/base64"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// convertValue turns a value decoded by pgx into something encoding/json
// renders the way psql would print it.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return specialFloat(float64(val), val)
	case float64:
		return specialFloat(val, val)
	case netip.Prefix:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case string:
		return val
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = convertValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	}
	if s, ok := convertPgtype(v); ok {
		return s
	}
	return v
}

// specialFloat maps NaN and the infinities to their Postgres spellings,
// which JSON cannot represent as numbers.
func specialFloat(f float64, orig interface{}) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return orig
}

// convertPgtype handles the pgtype structs pgx returns for types without a
// natural Go equivalent. Invalid (NULL) values become nil.
func convertPgtype(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case pgtype.Time:
		if !val.Valid {
			return nil, true
		}
		return formatTimeOfDay(val.Microseconds), true
	case pgtype.Interval:
		if !val.Valid {
			return nil, true
		}
		return formatInterval(val), true
	case pgtype.Numeric:
		if !val.Valid {
			return nil, true
		}
		return formatNumeric(val), true
	case pgtype.Range[interface{}]:
		if !val.Valid {
			return nil, true
		}
		return formatRange(val), true
	case pgtype.Point:
		if !val.Valid {
			return nil, true
		}
		return formatPoint(val.P), true
	case pgtype.Line:
		if !val.Valid {
			return nil, true
		}
		return fmt.Sprintf("{%g,%g,%g}", val.A, val.B, val.C), true
	case pgtype.Lseg:
		if !val.Valid {
			return nil, true
		}
		return "[" + formatPoints(val.P[:]) + "]", true
	case pgtype.Box:
		if !val.Valid {
			return nil, true
		}
		return formatPoints(val.P[:]), true
	case pgtype.Path:
		if !val.Valid {
			return nil, true
		}
		if val.Closed {
			return "(" + formatPoints(val.P) + ")", true
		}
		return "[" + formatPoints(val.P) + "]", true
	case pgtype.Polygon:
		if !val.Valid {
			return nil, true
		}
		return "(" + formatPoints(val.P) + ")", true
	case pgtype.Circle:
		if !val.Valid {
			return nil, true
		}
		return fmt.Sprintf("<%s,%g>", formatPoint(val.P), val.R), true
	case pgtype.Bits:
		if !val.Valid {
			return nil, true
		}
		return formatBits(val), true
	}
	return nil, false
}

func formatTimeOfDay(us int64) string {
	hours := us / 3_600_000_000
	us -= hours * 3_600_000_000
	minutes := us / 60_000_000
	us -= minutes * 60_000_000
	seconds := us / 1_000_000
	us -= seconds * 1_000_000
	if us > 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%06d", hours, minutes, seconds, us)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

func formatInterval(val pgtype.Interval) string {
	var parts []string
	if years := val.Months / 12; years != 0 {
		parts = append(parts, fmt.Sprintf("%d year(s)", years))
	}
	if months := val.Months % 12; months != 0 {
		parts = append(parts, fmt.Sprintf("%d mon(s)", months))
	}
	if val.Days != 0 {
		parts = append(parts, fmt.Sprintf("%d day(s)", val.Days))
	}
	if val.Microseconds != 0 {
		parts = append(parts, (time.Duration(val.Microseconds) * time.Microsecond).String())
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, " ")
}

// formatNumeric keeps numerics as strings so no precision is lost.
func formatNumeric(val pgtype.Numeric) interface{} {
	switch {
	case val.NaN:
		return "NaN"
	case val.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case val.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	}
	b, err := val.MarshalJSON()
	if err != nil {
		return nil
	}
	return string(b)
}

func formatRange(val pgtype.Range[interface{}]) string {
	if val.LowerType == pgtype.Empty {
		return "empty"
	}
	var sb strings.Builder
	if val.LowerType == pgtype.Inclusive {
		sb.WriteByte('[')
	} else {
		sb.WriteByte('(')
	}
	if val.LowerType != pgtype.Unbounded {
		fmt.Fprintf(&sb, "%v", convertValue(val.Lower))
	}
	sb.WriteByte(',')
	if val.UpperType != pgtype.Unbounded {
		fmt.Fprintf(&sb, "%v", convertValue(val.Upper))
	}
	if val.UpperType == pgtype.Inclusive {
		sb.WriteByte(']')
	} else {
		sb.WriteByte(')')
	}
	return sb.String()
}

func formatPoint(p pgtype.Vec2) string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

func formatPoints(ps []pgtype.Vec2) string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = formatPoint(p)
	}
	return strings.Join(out, ",")
}

func formatBits(val pgtype.Bits) string {
	out := make([]byte, val.Len)
	for i := int32(0); i < val.Len; i++ {
		if val.Bytes[i/8]&(1<<uint(7-i%8)) != 0 {
			out[i] = '1'
		} else {
			out[i] = '0'
		}
	}
	return string(out)
}
