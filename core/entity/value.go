package entity

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"time"

	"site-sync/core/utils"
)

// Fields maps field names to nullable scalar values.
type Fields map[string]any

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

const floatTolerance = 1e-9

// Normalize converts a raw value into the canonical representation used for
// comparisons: numbers become float64, strings are trimmed, pointers are
// dereferenced and nil stays nil.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return strings.TrimSpace(x)
	case *string:
		if x == nil {
			return nil
		}
		return strings.TrimSpace(*x)
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return float64(*x)
	case *int:
		if x == nil {
			return nil
		}
		return float64(*x)
	case *bool:
		if x == nil {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case time.Time:
		return x.UTC()
	case bool:
		return x
	case json.Number, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		f, _ := utils.ToFloat(x)
		return f
	default:
		return x
	}
}

// IsBlank reports whether v carries no information: nil or a whitespace-only string.
func IsBlank(v any) bool {
	switch x := Normalize(v).(type) {
	case nil:
		return true
	case string:
		return x == ""
	default:
		return false
	}
}

// ValuesEqual compares two field values after normalization.
// Two blanks are equal; numbers compare within a small tolerance and numeric
// strings compare equal to the number they encode.
func ValuesEqual(a, b any) bool {
	if IsBlank(a) || IsBlank(b) {
		return IsBlank(a) && IsBlank(b)
	}
	na, nb := Normalize(a), Normalize(b)

	fa, aNum := na.(float64)
	fb, bNum := nb.(float64)
	switch {
	case aNum && bNum:
		return math.Abs(fa-fb) <= floatTolerance
	case aNum:
		if f, ok := utils.ToFloat(nb); ok {
			return math.Abs(fa-f) <= floatTolerance
		}
		return false
	case bNum:
		if f, ok := utils.ToFloat(na); ok {
			return math.Abs(f-fb) <= floatTolerance
		}
		return false
	}

	if ta, ok := na.(time.Time); ok {
		tb, ok := nb.(time.Time)
		return ok && ta.Equal(tb)
	}
	if sa, ok := na.(string); ok {
		sb, ok := nb.(string)
		return ok && sa == sb
	}
	return reflect.DeepEqual(na, nb)
}

// NormalizeSerial upper-cases a serial number and removes every whitespace character.
func NormalizeSerial(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
