package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// FromDriver converts a value returned by a database driver into a Value.
func FromDriver(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(val)
	case string:
		return Text(val)
	case int:
		return Int(int64(val))
	case int8:
		return Int(int64(val))
	case int16:
		return Int(int64(val))
	case int32:
		return Int(int64(val))
	case int64:
		return Int(val)
	case uint:
		return Uint(uint64(val))
	case uint8:
		return Uint(uint64(val))
	case uint16:
		return Uint(uint64(val))
	case uint32:
		return Uint(uint64(val))
	case uint64:
		return Uint(val)
	case float32:
		return Float(float64(val))
	case float64:
		return Float(val)
	case json.Number:
		return Value{kind: KindNumber, text: val.String()}
	case time.Time:
		return Text(val.Format(time.RFC3339Nano))
	case [16]byte:
		return Text(formatUUID(val))
	case []byte:
		return Opaque(base64.StdEncoding.EncodeToString(val))
	case map[string]any, []any:
		b, err := json.Marshal(plain(val))
		if err != nil {
			return Opaque(fmt.Sprintf("%v", val))
		}
		return Document(b)
	case netip.Prefix, netip.Addr, net.HardwareAddr:
		if s, ok := plain(val).(string); ok {
			return Text(s)
		}
	}

	switch p := plain(v).(type) {
	case nil:
		return Null()
	case string:
		return Opaque(p)
	default:
		return Opaque(fmt.Sprintf("%v", p))
	}
}

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05.999999"
)

// FromColumn is FromDriver for a value of the given column type. Dates and
// timestamps without time zone have no offset, so they are rendered the way
// PostgreSQL prints them rather than as RFC3339 instants.
func FromColumn(oid uint32, v any) Value {
	switch oid {
	case pgtype.DateOID, pgtype.DateArrayOID:
		return FromDriver(formatTimes(v, dateLayout))
	case pgtype.TimestampOID, pgtype.TimestampArrayOID:
		return FromDriver(formatTimes(v, timestampLayout))
	}
	return FromDriver(v)
}

func formatTimes(v any, layout string) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(layout)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = formatTimes(e, layout)
		}
		return out
	}
	return v
}

// plain converts a driver value to a JSON-friendly Go value.
func plain(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return plainFloat(float64(val))
	case float64:
		return plainFloat(val)
	case netip.Prefix:
		return val.String()
	case netip.Addr:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		us := val.Microseconds
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
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return formatInterval(val)
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		switch val.InfinityModifier {
		case pgtype.Infinity:
			return "Infinity"
		case pgtype.NegativeInfinity:
			return "-Infinity"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case pgtype.Range[any]:
		if !val.Valid {
			return nil
		}
		return formatRange(val)
	case pgtype.Point:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("(%g,%g)", val.P.X, val.P.Y)
	case pgtype.Line:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("{%g,%g,%g}", val.A, val.B, val.C)
	case pgtype.Lseg:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("[(%g,%g),(%g,%g)]", val.P[0].X, val.P[0].Y, val.P[1].X, val.P[1].Y)
	case pgtype.Box:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("(%g,%g),(%g,%g)", val.P[0].X, val.P[0].Y, val.P[1].X, val.P[1].Y)
	case pgtype.Path:
		if !val.Valid {
			return nil
		}
		joined := joinPoints(val.P)
		if val.Closed {
			return "(" + joined + ")"
		}
		return "[" + joined + "]"
	case pgtype.Polygon:
		if !val.Valid {
			return nil
		}
		return "(" + joinPoints(val.P) + ")"
	case pgtype.Circle:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("<(%g,%g),%g>", val.P.X, val.P.Y, val.R)
	case pgtype.Bits:
		if !val.Valid {
			return nil
		}
		out := make([]byte, val.Len)
		for i := int32(0); i < val.Len; i++ {
			if val.Bytes[i/8]&(1<<uint(7-(i%8))) != 0 {
				out[i] = '1'
			} else {
				out[i] = '0'
			}
		}
		return string(out)
	case [16]byte:
		return formatUUID(val)
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case string:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = plain(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	case fmt.Stringer:
		return val.String()
	default:
		return val
	}
}

func plainFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func formatUUID(u [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}

func formatInterval(val pgtype.Interval) string {
	parts := []string{}
	if val.Months != 0 {
		years := val.Months / 12
		months := val.Months % 12
		if years != 0 {
			parts = append(parts, fmt.Sprintf("%d year(s)", years))
		}
		if months != 0 {
			parts = append(parts, fmt.Sprintf("%d mon(s)", months))
		}
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

func formatRange(val pgtype.Range[any]) string {
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
		fmt.Fprintf(&sb, "%v", plain(val.Lower))
	}
	sb.WriteByte(',')
	if val.UpperType != pgtype.Unbounded {
		fmt.Fprintf(&sb, "%v", plain(val.Upper))
	}
	if val.UpperType == pgtype.Inclusive {
		sb.WriteByte(']')
	} else {
		sb.WriteByte(')')
	}
	return sb.String()
}

func joinPoints(points []pgtype.Vec2) string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = fmt.Sprintf("(%g,%g)", p.X, p.Y)
	}
	return strings.Join(out, ",")
}
