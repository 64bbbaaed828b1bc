package axml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value types, the high byte of the attribute type word.
const (
	AttrTypeNull      = 0x00
	AttrTypeReference = 0x01
	AttrTypeAttribute = 0x02
	AttrTypeString    = 0x03
	AttrTypeFloat     = 0x04
	AttrTypeDimension = 0x05
	AttrTypeFraction  = 0x06
	AttrTypeIntDec    = 0x10
	AttrTypeIntHex    = 0x11
	AttrTypeIntBool   = 0x12

	AttrTypeIntColorArgb8 = 0x1c
	AttrTypeIntColorRgb8  = 0x1d
	AttrTypeIntColorArgb4 = 0x1e
	AttrTypeIntColorRgb4  = 0x1f
)

const (
	frameworkIdFirst = 0x01010000
	frameworkIdLast  = 0x01100000 // exclusive
)

var dimensionUnits = [...]string{"px", "dp", "sp", "pt", "in", "mm"}

// Resource type names of the android package, indexed by the type byte of a
// framework resource id.
var frameworkRefTypes = [...]string{
	"", "attr", "id", "style", "string", "dimen", "color", "array", "drawable",
	"layout", "anim", "animator", "interpolator", "mipmap", "integer", "transition",
}

// TypedValue is the packed (type, data) pair of an attribute that does not
// reference the string pool.
type TypedValue struct {
	// Type is the whole type word; the value type is its high byte.
	Type uint32
	Data uint32
}

// DataType returns the value type byte.
func (v TypedValue) DataType() uint8 {
	return uint8(v.Type >> 24)
}

// Known reports whether String will format the value by its type rather than
// fall back to the raw "<type>/0x<data>" form.
func (v TypedValue) Known() bool {
	switch v.DataType() {
	case AttrTypeReference, AttrTypeAttribute, AttrTypeFloat, AttrTypeFraction,
		AttrTypeIntDec, AttrTypeIntHex, AttrTypeIntBool,
		AttrTypeIntColorArgb8, AttrTypeIntColorRgb8, AttrTypeIntColorArgb4, AttrTypeIntColorRgb4:
		return true
	case AttrTypeDimension:
		return int(v.Data&0xFF) < len(dimensionUnits)
	default:
		return false
	}
}

// String formats the value the way it would most likely appear in the source xml.
// String values (AttrTypeString) need the string pool and are formatted raw here.
func (v TypedValue) String() string {
	data := v.Data
	signed := int32(data)

	switch v.DataType() {
	case AttrTypeReference:
		return "@" + idReference(data)
	case AttrTypeAttribute:
		return "?" + idReference(data)
	case AttrTypeFloat:
		return formatFloat(math.Float32frombits(data))
	case AttrTypeDimension:
		unit := data & 0xFF
		if int(unit) >= len(dimensionUnits) {
			break
		}
		return strconv.FormatInt(int64(signed>>8), 10) + dimensionUnits[unit]
	case AttrTypeFraction:
		return formatFraction(data)
	case AttrTypeIntDec, AttrTypeIntHex:
		return strconv.FormatInt(int64(signed), 10)
	case AttrTypeIntBool:
		return strconv.FormatBool(data != 0)
	case AttrTypeIntColorArgb8:
		return fmt.Sprintf("#%08X", data)
	case AttrTypeIntColorRgb8:
		return fmt.Sprintf("#%06X", data&0x00FFFFFF)
	case AttrTypeIntColorArgb4:
		return fmt.Sprintf("#%X%X%X%X", (data>>24)&0xF, (data>>16)&0xF, (data>>8)&0xF, data&0xF)
	case AttrTypeIntColorRgb4:
		return fmt.Sprintf("#%X%X%X", (data>>16)&0xF, (data>>8)&0xF, data&0xF)
	}
	return fmt.Sprintf("%08X/0x%08X", v.Type, data)
}

// FormatValue formats a typed attribute value, see TypedValue.String.
func FormatValue(valueType, data uint32) string {
	return TypedValue{Type: valueType, Data: data}.String()
}

// formatFloat prints f as a decimal with at least one fractional digit in
// [1e-3, 1e7) and as d.dddEn outside of it.
func formatFloat(f float32) string {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}

	if abs := math.Abs(v); abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(v, 'f', -1, 32)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	mant, exp, _ := strings.Cut(strconv.FormatFloat(v, 'E', -1, 32), "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	e, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(e)
}

// formatFraction handles the three fraction encodings, in this order:
// whole multiples of 100%, whole percents above 100% and two-decimal percents.
func formatFraction(data uint32) string {
	signed := int32(data)
	switch data & 0xFF {
	case 0:
		return strconv.FormatInt(int64(signed>>8), 10) + "00%"
	case 0x20:
		v := float64(signed>>8) / float64(0x7FFF)
		return formatPercent(v, 0)
	default:
		v := float64(signed) / float64(0x7FFFFFFF)
		return formatPercent(v, 2)
	}
}

// formatPercent prints v*100 rounded half-to-even to at most decimals digits,
// without trailing zeros.
func formatPercent(v float64, decimals int) string {
	scale := math.Pow10(decimals)
	p := math.RoundToEven(v*100*scale) / scale
	if p == 0 {
		p = 0 // no "-0%"
	}
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

// idReference returns a resource id without its @ or ? marker: android:type/0x...
// for framework resources, id/0x... for everything else.
func idReference(id uint32) string {
	prefix, typ := "", "id"
	if id >= frameworkIdFirst && id < frameworkIdLast {
		prefix = "android:"
		if idx := (id & 0x00FF0000) >> 16; idx > 0 && int(idx) < len(frameworkRefTypes) {
			typ = frameworkRefTypes[idx]
		}
	}
	return fmt.Sprintf("%s%s/0x%08X", prefix, typ, id)
}
