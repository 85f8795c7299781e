package record

import (
	"strconv"

	"github.com/suyashkumar/dicom"
)

// ValueType identifies the concrete variant held by a Value.
type ValueType int

const (
	ValueStrings ValueType = iota
	ValueInts
	ValueFloats
	ValueBytes
	ValueSequence
	ValuePixels
)

// Value is the closed set of element value variants. Only Sequence values
// own child datasets.
type Value interface {
	Type() ValueType
	IsEmpty() bool
	isValue()
}

// Strings holds one or more textual values (text, dates, times, UIDs).
type Strings []string

// Ints holds one or more integer values.
type Ints []int

// Floats holds one or more floating-point values.
type Floats []float64

// Bytes holds a raw binary value.
type Bytes []byte

// Sequence holds the ordered item list of a sequence element. The slice
// index is the item number addressed by tag-path selectors.
type Sequence []*Dataset

// Pixels wraps decoded pixel data as parsed by the DICOM library.
type Pixels struct {
	Info dicom.PixelDataInfo
}

func (Strings) Type() ValueType  { return ValueStrings }
func (Ints) Type() ValueType     { return ValueInts }
func (Floats) Type() ValueType   { return ValueFloats }
func (Bytes) Type() ValueType    { return ValueBytes }
func (Sequence) Type() ValueType { return ValueSequence }
func (Pixels) Type() ValueType   { return ValuePixels }

func (v Strings) IsEmpty() bool {
	for _, s := range v {
		if s != "" {
			return false
		}
	}
	return true
}

func (v Ints) IsEmpty() bool     { return len(v) == 0 }
func (v Floats) IsEmpty() bool   { return len(v) == 0 }
func (v Bytes) IsEmpty() bool    { return len(v) == 0 }
func (v Sequence) IsEmpty() bool { return len(v) == 0 }
func (v Pixels) IsEmpty() bool   { return len(v.Info.Frames) == 0 }

func (Strings) isValue()  {}
func (Ints) isValue()     {}
func (Floats) isValue()   {}
func (Bytes) isValue()    {}
func (Sequence) isValue() {}
func (Pixels) isValue()   {}

// StringValues renders the value as a list of strings. Numeric values are
// formatted in decimal; binary, sequence and pixel values have no string
// rendering and return nil.
func StringValues(v Value) []string {
	switch val := v.(type) {
	case Strings:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case Ints:
		out := make([]string, len(val))
		for i, n := range val {
			out[i] = strconv.Itoa(n)
		}
		return out
	case Floats:
		out := make([]string, len(val))
		for i, f := range val {
			out[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		return out
	default:
		return nil
	}
}
