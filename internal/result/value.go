// Package result holds the typed values and ordered row sets produced by
// running a statement.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"
)

// ValueKind is the scalar type of a cell
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInteger
	KindReal
	KindText
)

// String returns the lower-case kind name
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Value is one cell of a result: text, integer, real, or null
type Value struct {
	Kind ValueKind
	Int  int64
	Real float64
	Text string
}

// Null is the null value
var Null = Value{Kind: KindNull}

// Int returns an integer value
func Int(n int64) Value { return Value{Kind: KindInteger, Int: n} }

// Real returns a real value
func Real(f float64) Value { return Value{Kind: KindReal, Real: f} }

// Text returns a text value
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// FromDriver converts a value scanned from database/sql into a Value.
// Blobs become text. Times are rendered in RFC 3339, or as a bare date
// when they fall on midnight. Wide integers and decimals from DuckDB are
// narrowed to integer or real.
func FromDriver(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case int64:
		return Int(x)
	case int32:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int:
		return Int(int64(x))
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return Real(float64(x))
		}

		return Int(int64(x))
	case float64:
		return Real(x)
	case float32:
		return Real(float64(x))
	case bool:
		if x {
			return Int(1)
		}

		return Int(0)
	case []byte:
		return Text(string(x))
	case string:
		return Text(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return Text(x.Format(time.DateOnly))
		}

		return Text(x.Format(time.RFC3339))
	case *big.Int:
		if x.IsInt64() {
			return Int(x.Int64())
		}

		f, _ := new(big.Float).SetInt(x).Float64()

		return Real(f)
	case interface{ Float64() float64 }:
		return Real(x.Float64())
	case fmt.Stringer:
		return Text(x.String())
	default:
		return Text(fmt.Sprint(x))
	}
}

// IsNull reports whether the value is null
func (v Value) IsNull() bool { return v.Kind == KindNull }

// String renders the value for display; null renders as "NULL"
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindReal:
		return strconv.FormatFloat(v.Real, 'f', -1, 64)
	default:
		return v.Text
	}
}

// Any returns the value as a native Go value (nil, int64, float64, string)
func (v Value) Any() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindInteger:
		return v.Int
	case KindReal:
		return v.Real
	default:
		return v.Text
	}
}

// Equal compares kind and payload
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}

	switch v.Kind {
	case KindNull:
		return true
	case KindInteger:
		return v.Int == other.Int
	case KindReal:
		return v.Real == other.Real
	default:
		return v.Text == other.Text
	}
}

// MarshalJSON encodes the value as the matching JSON scalar
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindReal && (math.IsNaN(v.Real) || math.IsInf(v.Real, 0)) {
		return json.Marshal(v.String())
	}

	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes a JSON scalar; whole numbers become integers
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch x := raw.(type) {
	case nil:
		*v = Null
	case json.Number:
		if n, err := x.Int64(); err == nil {
			*v = Int(n)
			return nil
		}

		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", x, err)
		}

		*v = Real(f)
	case string:
		*v = Text(x)
	case bool:
		*v = FromDriver(x)
	default:
		return fmt.Errorf("unsupported JSON value for cell: %s", string(data))
	}

	return nil
}
