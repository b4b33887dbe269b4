package typemap

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Temporal values are stored as ISO-8601 text. The column keeps REAL
// affinity; SQLite leaves text it cannot read as a number untouched.
const (
	dateLayout        = "2006-01-02"
	timeLayout        = "15:04:05.999999999"
	timeTZLayout      = "15:04:05.999999999-07:00"
	timestampLayout   = "2006-01-02 15:04:05.999999999"
	timestampTZLayout = "2006-01-02 15:04:05.999999999-07:00"
)

// The converters below accept the representations produced by both source
// drivers: pgx decodes into native Go and pgtype values, lib/pq hands back
// int64, float64, bool, time.Time, string or raw []byte text.

func toInteger(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case string:
		return parseInteger(x)
	case []byte:
		return parseInteger(string(x))
	}
	return nil, fmt.Errorf("cannot read %T as an integer", v)
}

func parseInteger(s string) (any, error) {
	switch s {
	case "t", "true":
		return int64(1), nil
	case "f", "false":
		return int64(0), nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing integer %q: %w", s, err)
	}
	return n, nil
}

func toReal(v any) (any, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil {
			return nil, fmt.Errorf("reading numeric: %w", err)
		}
		if !f.Valid {
			return nil, fmt.Errorf("numeric value is not valid")
		}
		return f.Float64, nil
	case string:
		return parseReal(x)
	case []byte:
		return parseReal(string(x))
	}
	return nil, fmt.Errorf("cannot read %T as a real", v)
}

func parseReal(s string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("parsing real %q: %w", s, err)
	}
	return f, nil
}

func toText(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return nil, fmt.Errorf("cannot read %T as text", v)
}

// charToText handles the single-byte "char" type, which pgx decodes as a
// numeric code rather than a string.
func charToText(v any) (any, error) {
	switch x := v.(type) {
	case int8:
		return string(rune(uint8(x))), nil
	case uint8:
		return string(rune(x)), nil
	case int32:
		return string(rune(x)), nil
	}
	return toText(v)
}

func toBytes(v any) (any, error) {
	switch x := v.(type) {
	case []byte:
		out := make([]byte, len(x))
		copy(out, x)
		return out, nil
	case string:
		return []byte(x), nil
	}
	return nil, fmt.Errorf("cannot read %T as bytes", v)
}

// jsonToText stores documents as their compact JSON text.
func jsonToText(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case json.RawMessage:
		return string(x), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding json: %w", err)
	}
	return string(b), nil
}

func uuidToText(v any) (any, error) {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String(), nil
	case uuid.UUID:
		return x.String(), nil
	case string:
		id, err := uuid.Parse(x)
		if err != nil {
			return nil, fmt.Errorf("parsing uuid: %w", err)
		}
		return id.String(), nil
	case []byte:
		id, err := uuid.ParseBytes(x)
		if err != nil {
			return nil, fmt.Errorf("parsing uuid: %w", err)
		}
		return id.String(), nil
	}
	return nil, fmt.Errorf("cannot read %T as a uuid", v)
}

// bitsToBytes packs a bit string into bytes, most significant bit first,
// zero-padding the final byte.
func bitsToBytes(v any) (any, error) {
	switch x := v.(type) {
	case pgtype.Bits:
		out := make([]byte, len(x.Bytes))
		copy(out, x.Bytes)
		return out, nil
	case string:
		return packBits(x)
	case []byte:
		return packBits(string(x))
	}
	return nil, fmt.Errorf("cannot read %T as a bit string", v)
}

func packBits(s string) ([]byte, error) {
	out := make([]byte, (len(s)+7)/8)
	for i, c := range s {
		switch c {
		case '1':
			out[i/8] |= 0x80 >> (uint(i) % 8)
		case '0':
		default:
			return nil, fmt.Errorf("invalid bit %q at position %d", c, i)
		}
	}
	return out, nil
}

func temporal(layout string, utc bool) converter {
	return func(v any) (any, error) {
		switch x := v.(type) {
		case time.Time:
			if utc {
				x = x.UTC()
			}
			return x.Format(layout), nil
		case pgtype.InfinityModifier:
			return x.String(), nil
		case pgtype.Date:
			if x.InfinityModifier != pgtype.Finite {
				return x.InfinityModifier.String(), nil
			}
			return x.Time.Format(layout), nil
		case pgtype.Timestamp:
			if x.InfinityModifier != pgtype.Finite {
				return x.InfinityModifier.String(), nil
			}
			return x.Time.Format(layout), nil
		case pgtype.Timestamptz:
			if x.InfinityModifier != pgtype.Finite {
				return x.InfinityModifier.String(), nil
			}
			return x.Time.UTC().Format(layout), nil
		case pgtype.Time:
			return formatClock(x.Microseconds), nil
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
		return nil, fmt.Errorf("cannot read %T as a temporal value", v)
	}
}

func formatClock(micros int64) string {
	d := time.Duration(micros) * time.Microsecond
	return time.Time{}.Add(d).Format(timeLayout)
}
