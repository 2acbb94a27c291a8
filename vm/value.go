package vm

import (
	"fmt"
	"math"
)

// Value represents a Fennec value using NaN-boxing.
//
// All values are represented as 64-bit IEEE 754 doubles. Non-float values
// are encoded in the NaN (Not-a-Number) space using the quiet NaN prefix
// and tag bits to distinguish types.
//
// Encoding scheme:
//   - Float: Native IEEE 754 double (if not a NaN, it's a float)
//   - SmallInt: Quiet NaN + tagInt + 48-bit signed payload
//   - Ref: Quiet NaN + tagRef + heap arena index
//   - Symbol: Quiet NaN + tagSymbol + symbol ID
//   - Special: Quiet NaN + tagSpecial + special value ID
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	// 0x7FF8_0000_0000_0000
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	// 0x0007_0000_0000_0000
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for index/int/id
	// 0x0000_FFFF_FFFF_FFFF
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Tag values (shifted into position)
	tagRef     uint64 = 0x0001000000000000 // Heap arena index
	tagInt     uint64 = 0x0002000000000000 // 48-bit signed integer
	tagSpecial uint64 = 0x0003000000000000 // undefined, null, true, false
	tagSymbol  uint64 = 0x0004000000000000 // Interned symbol ID

	// Sign bit for 48-bit integer sign extension
	intSignBit uint64 = 0x0000800000000000

	// Mask for sign extension
	intSignExtend uint64 = 0xFFFF000000000000
)

// Special value payloads
const (
	specialUndefined uint64 = 0
	specialNull      uint64 = 1
	specialTrue      uint64 = 2
	specialFalse     uint64 = 3
)

// Pre-defined special values
const (
	Undefined Value = Value(nanBits | tagSpecial | specialUndefined)
	Null      Value = Value(nanBits | tagSpecial | specialNull)
	True      Value = Value(nanBits | tagSpecial | specialTrue)
	False     Value = Value(nanBits | tagSpecial | specialFalse)
)

// SmallInt range (48-bit signed)
const (
	MaxSmallInt int64 = (1 << 47) - 1
	MinSmallInt int64 = -(1 << 47)
)

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsFloat returns true if v represents a float64 value. A value is a
// float if it is not one of our tagged NaN values; regular numbers,
// infinities, and untagged NaNs all count.
func (v Value) IsFloat() bool {
	bits := uint64(v)
	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		return true
	}
	mantissa := bits & 0x000FFFFFFFFFFFFF
	if mantissa == 0 {
		// +Inf or -Inf
		return true
	}
	if (bits & nanBits) != nanBits {
		// Signaling NaN, not ours
		return true
	}
	return bits&tagMask == 0
}

// IsRef returns true if v holds a heap reference.
func (v Value) IsRef() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagRef)
}

// IsSmallInt returns true if v represents a small integer.
func (v Value) IsSmallInt() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagInt)
}

// IsSymbol returns true if v holds an interned symbol.
func (v Value) IsSymbol() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagSymbol)
}

// IsSpecial returns true if v is undefined, null, true, or false.
func (v Value) IsSpecial() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagSpecial)
}

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool { return v == True || v == False }

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// FromFloat boxes a float64.
func FromFloat(f float64) Value { return Value(math.Float64bits(f)) }

// FromSmallInt boxes a 48-bit signed integer. Panics outside the range.
func FromSmallInt(i int64) Value {
	if i > MaxSmallInt || i < MinSmallInt {
		panic(fmt.Sprintf("vm: small int %d out of range", i))
	}
	return Value(nanBits | tagInt | (uint64(i) & payloadMask))
}

// FromRef boxes a heap reference.
func FromRef(r Ref) Value {
	return Value(nanBits | tagRef | uint64(r))
}

// FromSymbol boxes an interned symbol ID.
func FromSymbol(id SymbolID) Value {
	return Value(nanBits | tagSymbol | uint64(id))
}

// FromBool boxes a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// ---------------------------------------------------------------------------
// Extraction
// ---------------------------------------------------------------------------

// AsFloat unboxes a float64. Valid only when IsFloat.
func (v Value) AsFloat() float64 { return math.Float64frombits(uint64(v)) }

// AsSmallInt unboxes a small integer with sign extension.
func (v Value) AsSmallInt() int64 {
	payload := uint64(v) & payloadMask
	if payload&intSignBit != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// AsRef unboxes a heap reference. Valid only when IsRef.
func (v Value) AsRef() Ref { return Ref(uint64(v) & payloadMask) }

// AsSymbol unboxes a symbol ID. Valid only when IsSymbol.
func (v Value) AsSymbol() SymbolID { return SymbolID(uint64(v) & payloadMask) }

// AsBool unboxes a bool; everything except False and the empty specials
// counts as true, mirroring script truthiness for the values this layer
// produces.
func (v Value) AsBool() bool {
	return v != False && v != Null && v != Undefined
}

// String renders the value for diagnostics.
func (v Value) String() string {
	switch {
	case v == Undefined:
		return "undefined"
	case v == Null:
		return "null"
	case v == True:
		return "true"
	case v == False:
		return "false"
	case v.IsSmallInt():
		return fmt.Sprintf("%d", v.AsSmallInt())
	case v.IsRef():
		return fmt.Sprintf("ref(%d)", v.AsRef())
	case v.IsSymbol():
		return fmt.Sprintf("symbol(%d)", v.AsSymbol())
	default:
		return fmt.Sprintf("%g", v.AsFloat())
	}
}
